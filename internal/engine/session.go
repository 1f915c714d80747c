package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/swarmd/internal/cancel"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
)

// Session is one orchestrated task run: its plan, its cancellation
// token, and the lock serializing plan updates across parallel steps.
type Session struct {
	id    string
	token *cancel.Token

	mu   sync.RWMutex
	plan plan.Plan
}

func newSession(workspace, task string) *Session {
	id := uuid.NewString()
	return &Session{
		id:    id,
		token: cancel.NewToken(),
		plan:  plan.New(id, workspace, task),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Token returns the session's cancellation token.
func (s *Session) Token() *cancel.Token {
	return s.token
}

// Snapshot returns the current plan. Plans update by value, so the
// returned copy is safe to read without further locking.
func (s *Session) Snapshot() plan.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

// update applies a plan transformation atomically. The transform runs
// under the session lock so concurrent step updates never clobber each
// other's siblings.
func (s *Session) update(f func(plan.Plan) (plan.Plan, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := f(s.plan)
	if err != nil {
		return err
	}
	s.plan = next
	return nil
}

// Tracker indexes sessions by id for the inspection API. Finished
// sessions stay visible until the process exits.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*Session)}
}

func (t *Tracker) add(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.id] = s
}

// Get returns the session with the given id.
func (t *Tracker) Get(sessionID string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[sessionID]
	return s, ok
}

// Snapshot returns the session's current plan.
func (t *Tracker) Snapshot(sessionID string) (plan.Plan, bool) {
	s, ok := t.Get(sessionID)
	if !ok {
		return plan.Plan{}, false
	}
	return s.Snapshot(), true
}

// Cancel fires the session's cancellation token. It reports whether
// the session was found.
func (t *Tracker) Cancel(sessionID string) bool {
	s, ok := t.Get(sessionID)
	if !ok {
		return false
	}
	s.token.Cancel()
	return true
}
