package cancel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_InitiallyUncancelled(t *testing.T) {
	token := NewToken()

	assert.False(t, token.Cancelled())
	assert.NoError(t, token.Check())
}

func TestToken_Cancel(t *testing.T) {
	token := NewToken()
	token.Cancel()

	assert.True(t, token.Cancelled())
	assert.ErrorIs(t, token.Check(), ErrCancelled)
}

func TestToken_CancelIsIdempotent(t *testing.T) {
	token := NewToken()

	token.Cancel()
	token.Cancel() // second call must not panic or change behavior

	assert.True(t, token.Cancelled())
	assert.ErrorIs(t, token.Check(), ErrCancelled)

	// Once cancelled, Check never succeeds again.
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, token.Check(), ErrCancelled)
	}
}

func TestToken_DoneChannelClosesOnCancel(t *testing.T) {
	token := NewToken()

	select {
	case <-token.Done():
		t.Fatal("done channel closed before cancellation")
	default:
	}

	token.Cancel()

	select {
	case <-token.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after cancellation")
	}
}

func TestToken_ConcurrentCancel(t *testing.T) {
	token := NewToken()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			token.Cancel()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("concurrent Cancel call did not return")
		}
	}

	require.True(t, token.Cancelled())
}
