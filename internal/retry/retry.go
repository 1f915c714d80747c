// Package retry wraps a single operation with bounded
// exponential-backoff retry. Waits between attempts are interruptible
// by both the context and the session's cancellation token.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fyrsmithlabs/swarmd/internal/cancel"
)

// Policy configures retry behavior for external calls.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the
	// first. Default: 3.
	MaxAttempts int `json:"max_attempts" koanf:"max_attempts"`

	// BaseDelay is the delay before the first retry. Default: 1s.
	BaseDelay time.Duration `json:"base_delay" koanf:"base_delay"`

	// MaxDelay caps the computed delay. Default: 30s.
	MaxDelay time.Duration `json:"max_delay" koanf:"max_delay"`

	// Multiplier is the exponential base. Default: 2.
	Multiplier float64 `json:"multiplier" koanf:"multiplier"`
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (p *Policy) ApplyDefaults() {
	defaults := DefaultPolicy()

	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	if p.Multiplier == 0 {
		p.Multiplier = defaults.Multiplier
	}
}

// Delay returns the wait before the retry following the given
// zero-based attempt index: min(base * multiplier^attempt, max).
func (p Policy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// ExhaustedError reports that every attempt failed with a retryable
// error. It wraps the last underlying error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do invokes op, retrying with exponential backoff while retryable
// classifies the failure as transient. A non-retryable error
// propagates immediately with no further attempts. When attempts are
// exhausted, Do returns an ExhaustedError wrapping the last error.
//
// Cancellation always takes precedence: the token is checked before
// every attempt, and a pending backoff wait is aborted as soon as
// either the context or the token is cancelled. token may be nil.
func Do(ctx context.Context, token *cancel.Token, policy Policy, retryable func(error) bool, op func(context.Context) error) error {
	policy.ApplyDefaults()

	var done <-chan struct{}
	if token != nil {
		done = token.Done()
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if token != nil {
			if err := token.Check(); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		if attempt == policy.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return cancel.ErrCancelled
		case <-time.After(policy.Delay(attempt)):
		}
	}

	return &ExhaustedError{Attempts: policy.MaxAttempts, Err: lastErr}
}
