// Package cancel provides a write-once cooperative cancellation token
// shared across the concurrent tasks of one orchestration session.
//
// Cancellation is cooperative only: nothing is forcibly preempted.
// Every suspension point (a retry wait, an external call boundary)
// checks the token before proceeding and aborts with ErrCancelled once
// the flag is set.
package cancel

import (
	"errors"
	"sync"
)

// ErrCancelled is returned by Check once a token has been cancelled.
var ErrCancelled = errors.New("operation cancelled")

// Token is a write-once cooperative abort flag. Once set it cannot be
// unset. Create tokens with NewToken; the zero value is not usable.
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken creates an uncancelled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag. It is idempotent and safe to call from any
// goroutine.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether the token has been cancelled.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Check returns ErrCancelled if the token has been cancelled, nil
// otherwise.
func (t *Token) Check() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Done returns a channel that is closed when the token is cancelled.
// It is intended for select-based waits.
func (t *Token) Done() <-chan struct{} {
	return t.done
}
