// Package agent defines the uniform invocation contract between the
// orchestration engine and its external workers, plus the error
// taxonomy used to classify their failures.
//
// Workers themselves (their prompting, tool use, and side effects)
// live outside the engine; only this boundary is in scope.
package agent

import (
	"context"
	"time"
)

// Canonical agent names. The order of AllAgents is the fixed priority
// order used to break confidence ties during routing.
const (
	Researcher = "researcher"
	Designer   = "designer"
	Coder      = "coder"
	Validator  = "validator"
	Responder  = "responder"
)

// AllAgents returns the canonical agents in priority order.
func AllAgents() []string {
	return []string{Researcher, Designer, Coder, Validator, Responder}
}

// Task describes one unit of work handed to a worker.
type Task struct {
	StepID       string            `json:"step_id"`
	Description  string            `json:"description"`
	Instructions string            `json:"instructions,omitempty"`
	Workspace    string            `json:"workspace,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// Result is the opaque success payload of one invocation.
type Result struct {
	Content string        `json:"content"`
	Elapsed time.Duration `json:"elapsed"`
}

// Invoker is implemented by every external worker. Invocations must be
// idempotent-safe to retry; a worker that cannot guarantee this for a
// given failure must return a PermanentError so the engine does not
// retry it.
type Invoker interface {
	// Name returns the agent name this invoker serves.
	Name() string

	// Invoke performs the task. It must respect ctx cancellation and
	// bound its own external calls with a per-call ceiling.
	Invoke(ctx context.Context, task Task) (*Result, error)
}
