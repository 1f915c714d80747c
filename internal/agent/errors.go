package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/swarmd/internal/cancel"
)

// TransientError marks a failure worth retrying: network errors,
// timeouts, rate limits, and similar conditions reported by a worker's
// external calls.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure that retrying cannot resolve:
// malformed input, a logic error in a worker, or a side effect the
// worker cannot safely repeat.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Timeout wraps err as a transient timeout for the named agent.
func Timeout(name string, ceiling time.Duration, err error) error {
	return Transient(fmt.Errorf("agent %s timed out after %s: %w", name, ceiling, err))
}

// IsRetryable classifies an invocation error for the retry controller.
// Cancellation always takes precedence and is never retried. Timeouts
// are transient. Unclassified errors are treated as permanent so that
// logic errors are never retried by accident.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, cancel.ErrCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
