// Package events provides the ordered progress stream the
// orchestration loop produces for external presentation layers.
//
// Delivery is best-effort and must never block the loop: the buffered
// emitter drops events when its consumer falls behind, and the NATS
// emitter relies on the client's internal buffering.
package events

import (
	"sync/atomic"
	"time"
)

// Type classifies an event.
type Type string

const (
	TypeSessionStarted      Type = "session_started"
	TypeSessionFinished     Type = "session_finished"
	TypeStepStarted         Type = "step_started"
	TypeStepCompleted       Type = "step_completed"
	TypeStepFailed          Type = "step_failed"
	TypeRoutingDecisionMade Type = "routing_decision_made"
	TypeEscalationRequested Type = "escalation_requested"
)

// Event is one entry in a session's progress stream.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	StepID    string    `json:"step_id,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter delivers events best-effort. Emit must never block.
type Emitter interface {
	Emit(event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}

// Multi fans out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}

// Buffer is an in-process buffered emitter. When the buffer is full
// the event is dropped and counted rather than blocking the loop.
type Buffer struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewBuffer creates a buffered emitter. size 0 means 256.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 256
	}
	return &Buffer{ch: make(chan Event, size)}
}

// Emit enqueues the event or drops it when the buffer is full.
func (b *Buffer) Emit(event Event) {
	select {
	case b.ch <- event:
	default:
		b.dropped.Add(1)
	}
}

// Events returns the consumer side of the buffer. Events arrive in
// emission order.
func (b *Buffer) Events() <-chan Event {
	return b.ch
}

// Dropped returns how many events were discarded because the buffer
// was full.
func (b *Buffer) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes the consumer channel. Only call after the producing
// session has finished.
func (b *Buffer) Close() {
	close(b.ch)
}
