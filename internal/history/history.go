// Package history records query executions and staged objects so past runs
// can be listed and their results located again.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/sayan-gitkid/sample-aws-tests/internal/query"
)

var ErrNotFound = errors.New("history: not found")

type Repository interface {
	query.Recorder
	HealthCheck(ctx context.Context) error
	GetExecution(ctx context.Context, executionID string) (query.Execution, error)
	ListExecutions(ctx context.Context, limit int) ([]query.Execution, error)
	RecordStaged(ctx context.Context, in StagedObject) error
	ListStaged(ctx context.Context, limit int) ([]StagedObject, error)
}

// StagedObject is one dataset written by the stager.
type StagedObject struct {
	Location  string
	SizeBytes int64
	ETag      string
	Columns   int
	Rows      int64
	StagedAt  time.Time
}

// DefaultListLimit applies when a caller passes a non-positive limit.
const DefaultListLimit = 20

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
