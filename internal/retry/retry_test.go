package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/swarmd/internal/cancel"
)

func alwaysRetryable(error) bool { return true }

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, DefaultPolicy(), alwaysRetryable, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}

	calls := 0
	err := Do(context.Background(), nil, policy, alwaysRetryable, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	boom := errors.New("still broken")

	calls := 0
	err := Do(context.Background(), nil, policy, alwaysRetryable, func(context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 3, calls, "an always-failing retryable op is invoked exactly MaxAttempts times")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestDo_NonRetryablePropagatesImmediately(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	fatal := errors.New("malformed input")

	calls := 0
	start := time.Now()
	err := Do(context.Background(), nil, policy, func(error) bool { return false }, func(context.Context) error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, fatal)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted), "non-retryable errors are not wrapped")
	assert.Less(t, time.Since(start), 500*time.Millisecond, "no backoff wait before propagating")
}

func TestDo_CancellationAbortsWait(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	token := cancel.NewToken()

	go func() {
		time.Sleep(20 * time.Millisecond)
		token.Cancel()
	}()

	start := time.Now()
	err := Do(context.Background(), token, policy, alwaysRetryable, func(context.Context) error {
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, cancel.ErrCancelled)
	assert.Less(t, time.Since(start), time.Second, "pending wait must abort on cancellation")
}

func TestDo_CancelledTokenSkipsOperation(t *testing.T) {
	token := cancel.NewToken()
	token.Cancel()

	calls := 0
	err := Do(context.Background(), token, DefaultPolicy(), alwaysRetryable, func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, cancel.ErrCancelled)
	assert.Zero(t, calls, "no attempt starts after cancellation is observed")
}

func TestDo_ContextCancellationAbortsWait(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	ctx, cancelFn := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancelFn()
	}()

	err := Do(ctx, nil, policy, alwaysRetryable, func(context.Context) error {
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 30*time.Second, p.Delay(10), "delay is capped at MaxDelay")
}

func TestPolicy_ApplyDefaults(t *testing.T) {
	var p Policy
	p.ApplyDefaults()

	assert.Equal(t, DefaultPolicy(), p)

	custom := Policy{MaxAttempts: 7}
	custom.ApplyDefaults()
	assert.Equal(t, 7, custom.MaxAttempts)
	assert.Equal(t, time.Second, custom.BaseDelay)
}
