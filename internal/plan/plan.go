// Package plan implements the execution plan state machine: an
// ordered, immutable-update record of all steps for one session.
//
// All operations are pure. An update never mutates a Step in place; it
// returns a new Plan with the target Step replaced by a new value and
// every sibling Step carried over unchanged. Callers must replace
// their reference to "the plan" after each call rather than holding a
// stale copy across a suspension point.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Plan is the ordered record of all steps for one session. Step order
// is creation order and drives default "next pending" selection.
type Plan struct {
	SessionID string   `json:"session_id"`
	Workspace string   `json:"workspace,omitempty"`
	Task      string   `json:"task"`
	Steps     []Step   `json:"steps"`
	Errors    []string `json:"errors,omitempty"`
}

// New creates an empty plan for a session.
func New(sessionID, workspace, task string) Plan {
	return Plan{
		SessionID: sessionID,
		Workspace: workspace,
		Task:      task,
	}
}

// AppendStep adds a new pending step for the given agent and returns
// the updated plan and the new step's id.
func (p Plan) AppendStep(agent, task string) (Plan, string) {
	return p.appendStep(agent, task, 1)
}

// RetryStep spawns a replacement for a failed step: a new step with a
// fresh id, the same agent, and an incremented attempt count. The
// failed step itself keeps its terminal status.
func (p Plan) RetryStep(stepID, task string) (Plan, string, error) {
	prev, ok := p.Step(stepID)
	if !ok {
		return p, "", &UnknownStepError{StepID: stepID}
	}
	if prev.Status != StatusFailed {
		return p, "", fmt.Errorf("cannot retry step %q with status %s", stepID, prev.Status)
	}
	if task == "" {
		task = prev.Task
	}
	next, id := p.appendStep(prev.Agent, task, prev.Attempt+1)
	return next, id, nil
}

func (p Plan) appendStep(agent, task string, attempt int) (Plan, string) {
	id := uuid.NewString()
	steps := make([]Step, len(p.Steps), len(p.Steps)+1)
	copy(steps, p.Steps)
	steps = append(steps, Step{
		ID:        id,
		Agent:     agent,
		Task:      task,
		Status:    StatusPending,
		Attempt:   attempt,
		CreatedAt: time.Now().UTC(),
	})
	next := p
	next.Steps = steps
	return next, id
}

// UpdateStepStatus transitions one step to a new status and returns
// the updated plan. It fails with UnknownStepError if the step id is
// absent and InvalidTransitionError if the transition would regress
// the monotone ordering. When the new status is failed, the step's
// error is also appended to the plan's accumulated error list.
func (p Plan) UpdateStepStatus(stepID string, status Status, result, errMsg string) (Plan, error) {
	if !status.Valid() {
		return p, fmt.Errorf("invalid status %q", status)
	}

	idx := -1
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p, &UnknownStepError{StepID: stepID}
	}

	prev := p.Steps[idx]
	if statusRank(status) <= statusRank(prev.Status) {
		return p, &InvalidTransitionError{StepID: stepID, From: prev.Status, To: status}
	}

	step := prev
	step.Status = status
	now := time.Now().UTC()
	switch status {
	case StatusInProgress:
		step.StartedAt = now
	case StatusCompleted:
		step.Result = result
		step.FinishedAt = now
	case StatusFailed, StatusCancelled:
		step.Error = errMsg
		step.FinishedAt = now
	}

	steps := make([]Step, len(p.Steps))
	copy(steps, p.Steps)
	steps[idx] = step

	next := p
	next.Steps = steps
	if status == StatusFailed {
		errs := make([]string, len(p.Errors), len(p.Errors)+1)
		copy(errs, p.Errors)
		next.Errors = append(errs, fmt.Sprintf("step %s (%s): %s", stepID, step.Agent, errMsg))
	}
	return next, nil
}

// Step returns the step with the given id, if present.
func (p Plan) Step(stepID string) (Step, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			return p.Steps[i], true
		}
	}
	return Step{}, false
}

// CurrentStep returns the first step in sequence order whose status is
// pending or in_progress. It returns false if every step is terminal.
func (p Plan) CurrentStep() (Step, bool) {
	for i := range p.Steps {
		if !p.Steps[i].Status.Terminal() {
			return p.Steps[i], true
		}
	}
	return Step{}, false
}

// LastTerminalStep returns the most recently created step that has
// reached a terminal status.
func (p Plan) LastTerminalStep() (Step, bool) {
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if p.Steps[i].Status.Terminal() {
			return p.Steps[i], true
		}
	}
	return Step{}, false
}

// Settled reports whether every step in the plan is terminal.
func (p Plan) Settled() bool {
	_, open := p.CurrentStep()
	return !open
}
