// Package approval implements the human-in-the-loop boundary: when a
// routing decision escalates or the quality loop exhausts its budget,
// the orchestration loop pauses here until an external signal resolves
// the escalation.
package approval

import (
	"context"
	"errors"
	"sync"

	"github.com/fyrsmithlabs/swarmd/internal/cancel"
)

// ErrNoPendingApproval is returned by Resolve when the session has no
// escalation waiting.
var ErrNoPendingApproval = errors.New("no pending approval for session")

// Request asks a human to resolve an escalation.
type Request struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// Response is the human's verdict. Approval resumes the session with
// the feedback as additional instructions; rejection fails it.
type Response struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// Approver blocks until a human resolves an escalation or the session
// is cancelled.
type Approver interface {
	Await(ctx context.Context, token *cancel.Token, req Request) (Response, error)
}

// Broker is an in-process approver fed by an external surface (the
// HTTP API, a CLI prompt, tests). One escalation may be pending per
// session at a time.
type Broker struct {
	mu      sync.Mutex
	pending map[string]pendingRequest
}

type pendingRequest struct {
	req Request
	ch  chan Response
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{pending: make(map[string]pendingRequest)}
}

// Await registers the escalation and blocks until Resolve is called
// for the session, the context ends, or the token is cancelled.
func (b *Broker) Await(ctx context.Context, token *cancel.Token, req Request) (Response, error) {
	ch := make(chan Response, 1)

	b.mu.Lock()
	b.pending[req.SessionID] = pendingRequest{req: req, ch: ch}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.SessionID)
		b.mu.Unlock()
	}()

	var done <-chan struct{}
	if token != nil {
		done = token.Done()
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-done:
		return Response{}, cancel.ErrCancelled
	}
}

// Pending returns the escalation currently waiting for the session.
func (b *Broker) Pending(sessionID string) (Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[sessionID]
	return p.req, ok
}

// Resolve delivers the human's verdict to a waiting session.
func (b *Broker) Resolve(sessionID string, resp Response) error {
	b.mu.Lock()
	p, ok := b.pending[sessionID]
	if ok {
		delete(b.pending, sessionID)
	}
	b.mu.Unlock()

	if !ok {
		return ErrNoPendingApproval
	}
	p.ch <- resp
	return nil
}

// Static resolves every escalation with a fixed response. Useful for
// headless runs and tests.
type Static struct {
	Approved bool
	Feedback string
}

// Await returns the fixed response immediately.
func (s Static) Await(ctx context.Context, token *cancel.Token, req Request) (Response, error) {
	return Response{Approved: s.Approved, Feedback: s.Feedback}, nil
}
