// Package query drives SQL statements through an asynchronous query service:
// submit, poll at a fixed interval until a final state, then locate and load
// the CSV result the service deposited under the output location.
package query

import (
	"context"
	"time"
)

type State string

const (
	// StateUnobserved is the state of an execution whose status has not
	// been polled yet.
	StateUnobserved State = ""
	StateQueued     State = "QUEUED"
	StateRunning    State = "RUNNING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ParseState maps a service-reported state name onto State. Unknown names
// are returned as-is with ok false.
func ParseState(raw string) (State, bool) {
	state := State(raw)
	switch state {
	case StateQueued, StateRunning, StateSucceeded, StateFailed, StateCancelled:
		return state, true
	default:
		return state, false
	}
}

type StartInput struct {
	SQL            string
	Database       string
	OutputLocation string
	WorkGroup      string
}

type Status struct {
	State  State
	Reason string
}

// Service is the external asynchronous query API.
type Service interface {
	StartQuery(ctx context.Context, in StartInput) (string, error)
	QueryStatus(ctx context.Context, executionID string) (Status, error)
}

// Execution is one submitted statement. It is never reused across statements.
type Execution struct {
	ID             string
	SQL            string
	Database       string
	OutputLocation string
	WorkGroup      string
	State          State
	Reason         string
	Attempts       int
	SubmittedAt    time.Time
	FinishedAt     time.Time
}

// Recorder persists execution transitions. Failures are logged by the runner
// and never fail the query.
type Recorder interface {
	RecordSubmitted(ctx context.Context, exec Execution) error
	RecordFinished(ctx context.Context, exec Execution) error
}

// ResultPath is the CSV object the service writes for executionID. The
// output location is used verbatim and is expected to end in "/".
func ResultPath(outputLocation, executionID string) string {
	return outputLocation + executionID + ".csv"
}
