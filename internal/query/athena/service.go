// Package athena adapts the AWS Athena API to query.Service.
package athena

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sdkathena "github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/sayan-gitkid/sample-aws-tests/internal/query"
)

var _ query.Service = (*Service)(nil)

type Options struct {
	Region string
	// AccessKeyID and SecretAccessKey override the default credential chain
	// when both are set.
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the regional Athena endpoint, for local emulators.
	Endpoint string
}

type client interface {
	StartQueryExecution(ctx context.Context, params *sdkathena.StartQueryExecutionInput, optFns ...func(*sdkathena.Options)) (*sdkathena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *sdkathena.GetQueryExecutionInput, optFns ...func(*sdkathena.Options)) (*sdkathena.GetQueryExecutionOutput, error)
}

type Service struct {
	client client
}

// New builds a client from the default AWS configuration chain.
func New(ctx context.Context, opts Options) (*Service, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region := strings.TrimSpace(opts.Region); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	c := sdkathena.NewFromConfig(awsCfg, func(o *sdkathena.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewWithClient(c), nil
}

func NewWithClient(c client) *Service {
	return &Service{client: c}
}

func (s *Service) StartQuery(ctx context.Context, in query.StartInput) (string, error) {
	input := &sdkathena.StartQueryExecutionInput{
		QueryString: aws.String(in.SQL),
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(in.OutputLocation),
		},
	}
	if in.Database != "" {
		input.QueryExecutionContext = &types.QueryExecutionContext{Database: aws.String(in.Database)}
	}
	if in.WorkGroup != "" {
		input.WorkGroup = aws.String(in.WorkGroup)
	}

	out, err := s.client.StartQueryExecution(ctx, input)
	if err != nil {
		return "", fmt.Errorf("start query execution: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

func (s *Service) QueryStatus(ctx context.Context, executionID string) (query.Status, error) {
	out, err := s.client.GetQueryExecution(ctx, &sdkathena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	})
	if err != nil {
		return query.Status{}, fmt.Errorf("get query execution: %w", err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return query.Status{State: query.StateUnobserved}, nil
	}
	status := out.QueryExecution.Status
	state, _ := query.ParseState(string(status.State))
	return query.Status{State: state, Reason: aws.ToString(status.StateChangeReason)}, nil
}
