package query

import (
	"errors"
	"fmt"
)

var (
	ErrPollLimitExceeded = errors.New("query poll limit exceeded")
	// ErrInvalidOutputLocation rejects output locations that are not an
	// s3:// prefix ending in "/", since result paths append the id directly.
	ErrInvalidOutputLocation = errors.New("output location must be an s3:// prefix ending in /")
)

// TransportError is a network or service failure while submitting or polling.
type TransportError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *TransportError) Error() string {
	if e.ExecutionID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ExecutionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// QueryFailedError reports an execution that ended FAILED or CANCELLED.
type QueryFailedError struct {
	SQL         string
	ExecutionID string
	State       State
	Reason      string
}

func (e *QueryFailedError) Error() string {
	msg := fmt.Sprintf("query with the string %q ended %s", e.SQL, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
