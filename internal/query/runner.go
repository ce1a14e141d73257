package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sayan-gitkid/sample-aws-tests/internal/dataset"
	"github.com/sayan-gitkid/sample-aws-tests/internal/observability"
	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

const DefaultPollInterval = 10 * time.Second

type Config struct {
	Database       string
	OutputLocation string
	WorkGroup      string
	PollInterval   time.Duration
	// MaxAttempts bounds the number of status polls; 0 means unbounded.
	MaxAttempts int
	// Timeout bounds the wait after submission; 0 means no deadline.
	Timeout time.Duration
}

// Runner executes one statement at a time. It holds no state besides its
// configuration.
type Runner struct {
	Service  Service
	Store    storage.ObjectStore
	Recorder Recorder
	Config   Config
	Logger   *slog.Logger
	Clock    func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
}

func (r *Runner) ensureDefaults() {
	if r.Clock == nil {
		r.Clock = time.Now
	}
	if r.Sleep == nil {
		r.Sleep = sleepContext
	}
	if r.Config.PollInterval <= 0 {
		r.Config.PollInterval = DefaultPollInterval
	}
	if r.Logger == nil {
		r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Submit sends sql with the configured database and output location.
func (r *Runner) Submit(ctx context.Context, sql string) (Execution, error) {
	r.ensureDefaults()
	if strings.TrimSpace(sql) == "" {
		return Execution{}, fmt.Errorf("sql is required")
	}
	if r.Service == nil {
		return Execution{}, fmt.Errorf("query service is required")
	}
	if r.Config.OutputLocation == "" {
		return Execution{}, fmt.Errorf("output location is required")
	}
	if loc, err := storage.ParseLocation(r.Config.OutputLocation); err != nil || !loc.IsPrefix() {
		return Execution{}, fmt.Errorf("%w: %q", ErrInvalidOutputLocation, r.Config.OutputLocation)
	}

	exec := Execution{
		SQL:            sql,
		Database:       r.Config.Database,
		OutputLocation: r.Config.OutputLocation,
		WorkGroup:      r.Config.WorkGroup,
		State:          StateUnobserved,
	}

	id, err := r.Service.StartQuery(ctx, StartInput{
		SQL:            sql,
		Database:       r.Config.Database,
		OutputLocation: r.Config.OutputLocation,
		WorkGroup:      r.Config.WorkGroup,
	})
	if err != nil {
		r.Logger.ErrorContext(ctx, "query submission failed", slog.Any("error", err))
		return Execution{}, &TransportError{Op: "start query", Err: err}
	}
	if id == "" {
		return Execution{}, &TransportError{Op: "start query", Err: fmt.Errorf("service returned an empty execution id")}
	}

	exec.ID = id
	exec.SubmittedAt = r.Clock().UTC()
	r.Logger.InfoContext(ctx, "query submitted",
		slog.String("execution_id", id),
		slog.String("database", exec.Database),
		slog.String("output_location", exec.OutputLocation),
	)
	if r.Recorder != nil {
		if err := r.Recorder.RecordSubmitted(ctx, exec); err != nil {
			r.Logger.WarnContext(ctx, "record submitted execution failed", slog.String("execution_id", id), slog.Any("error", err))
		}
	}
	return exec, nil
}

// Wait polls exec until it reaches a final state. It returns the execution
// as last observed together with any error.
func (r *Runner) Wait(ctx context.Context, exec Execution) (Execution, error) {
	r.ensureDefaults()
	if exec.ID == "" {
		return exec, fmt.Errorf("execution id is required")
	}
	if r.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Config.Timeout)
		defer cancel()
	}

	logger := observability.ForExecution(r.Logger, exec.ID)
	for attempt := 1; ; attempt++ {
		status, err := r.Service.QueryStatus(ctx, exec.ID)
		observability.ObserveQueryPoll()
		if err != nil {
			return exec, r.abandon(ctx, &exec, &TransportError{Op: "get query status", ExecutionID: exec.ID, Err: err})
		}

		exec.State = status.State
		exec.Reason = status.Reason
		exec.Attempts = attempt
		logger.InfoContext(ctx, "query state observed",
			slog.String("state", string(exec.State)),
			slog.Int("attempt", attempt),
		)

		switch exec.State {
		case StateSucceeded:
			r.finish(ctx, &exec)
			return exec, nil
		case StateFailed, StateCancelled:
			r.finish(ctx, &exec)
			return exec, &QueryFailedError{SQL: exec.SQL, ExecutionID: exec.ID, State: exec.State, Reason: exec.Reason}
		case StateUnobserved, StateQueued, StateRunning:
		default:
			return exec, r.abandon(ctx, &exec, fmt.Errorf("execution %s reported unexpected query state %q", exec.ID, exec.State))
		}

		if r.Config.MaxAttempts > 0 && attempt >= r.Config.MaxAttempts {
			return exec, r.abandon(ctx, &exec, fmt.Errorf("execution %s still %s after %d polls: %w", exec.ID, exec.State, attempt, ErrPollLimitExceeded))
		}
		if err := r.Sleep(ctx, r.Config.PollInterval); err != nil {
			return exec, r.abandon(ctx, &exec, fmt.Errorf("wait for execution %s: %w", exec.ID, err))
		}
	}
}

// Run submits sql and polls it to completion, returning the execution id.
// A failed submission returns before any poll.
func (r *Runner) Run(ctx context.Context, sql string) (string, error) {
	exec, err := r.Submit(ctx, sql)
	if err != nil {
		return "", err
	}
	exec, err = r.Wait(ctx, exec)
	if err != nil {
		return "", err
	}
	r.Logger.InfoContext(ctx, "query finished",
		slog.String("execution_id", exec.ID),
		slog.String("result_path", r.ResultPath(exec.ID)),
	)
	return exec.ID, nil
}

// RunSequence runs statements strictly in order and stops at the first
// failure. It returns the ids of the statements that succeeded.
func (r *Runner) RunSequence(ctx context.Context, statements []string) ([]string, error) {
	ids := make([]string, 0, len(statements))
	for i, statement := range statements {
		id, err := r.Run(ctx, statement)
		if err != nil {
			return ids, fmt.Errorf("statement %d: %w", i+1, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Runner) ResultPath(executionID string) string {
	return ResultPath(r.Config.OutputLocation, executionID)
}

// FetchResult loads the CSV result of a succeeded execution.
func (r *Runner) FetchResult(ctx context.Context, executionID string) (dataset.Dataset, error) {
	if r.Store == nil {
		return dataset.Dataset{}, fmt.Errorf("object store is required")
	}
	path := r.ResultPath(executionID)
	loc, err := storage.ParseLocation(path)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("result path: %w", err)
	}
	reader, err := r.Store.Get(ctx, loc)
	if err != nil {
		return dataset.Dataset{}, err
	}
	defer func() { _ = reader.Close() }()
	return dataset.ReadCSV(reader, path)
}

func (r *Runner) finish(ctx context.Context, exec *Execution) {
	exec.FinishedAt = r.Clock().UTC()
	elapsed := time.Duration(0)
	if !exec.SubmittedAt.IsZero() {
		elapsed = exec.FinishedAt.Sub(exec.SubmittedAt)
	}
	observability.ObserveQueryFinished(string(exec.State), elapsed)
	if r.Recorder != nil {
		if err := r.Recorder.RecordFinished(ctx, *exec); err != nil {
			r.Logger.WarnContext(ctx, "record finished execution failed", slog.String("execution_id", exec.ID), slog.Any("error", err))
		}
	}
}

// abandon records an execution the runner stopped waiting for before it
// reached a final state. The last observed state is kept, or cleared when the
// service reported one outside the known set, and err becomes the reason.
// Recording outlives a cancelled or expired ctx.
func (r *Runner) abandon(ctx context.Context, exec *Execution, err error) error {
	exec.FinishedAt = r.Clock().UTC()
	exec.Reason = err.Error()
	observability.ObserveQueryAbandoned()
	if r.Recorder == nil {
		return err
	}
	recorded := *exec
	if _, known := ParseState(string(recorded.State)); !known {
		recorded.State = StateUnobserved
	}
	if recordErr := r.Recorder.RecordFinished(context.WithoutCancel(ctx), recorded); recordErr != nil {
		r.Logger.WarnContext(ctx, "record abandoned execution failed", slog.String("execution_id", exec.ID), slog.Any("error", recordErr))
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
