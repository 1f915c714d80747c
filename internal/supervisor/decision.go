// Package supervisor implements the routing engine: it inspects the
// execution plan plus the latest result and emits a routing decision.
//
// Two interchangeable strategies sit behind the Strategy interface: a
// deterministic rule table and a capability-scored evaluator that
// queries candidate agents concurrently. Every decision carries a
// non-empty justification for the audit trail.
package supervisor

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
)

// Action is the kind of routing decision.
type Action string

const (
	// ActionContinue routes to exactly one next agent.
	ActionContinue Action = "continue"
	// ActionParallel routes to two or more agents whose steps must all
	// reach a terminal status before the next decision.
	ActionParallel Action = "parallel"
	// ActionRetry spawns a fresh step (new id, new attempt budget) for
	// a failed agent.
	ActionRetry Action = "retry"
	// ActionEnd terminates the session successfully.
	ActionEnd Action = "end"
	// ActionEscalate pauses the session at the human-in-the-loop
	// boundary.
	ActionEscalate Action = "escalate"
)

// Decision is the supervisor's output: an action plus target agent(s),
// instructions, a confidence score, and a mandatory justification.
type Decision struct {
	Action        Action   `json:"action"`
	Agents        []string `json:"agents,omitempty"`
	Instructions  string   `json:"instructions,omitempty"`
	Confidence    float64  `json:"confidence"`
	Justification string   `json:"justification"`
}

// Validate enforces the decision invariants: a non-empty
// justification, a confidence in [0,1], exactly one agent for
// continue/retry, and at least two for parallel.
func (d Decision) Validate() error {
	if d.Justification == "" {
		return fmt.Errorf("decision justification cannot be empty")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("decision confidence %v outside [0,1]", d.Confidence)
	}
	switch d.Action {
	case ActionContinue, ActionRetry:
		if len(d.Agents) != 1 {
			return fmt.Errorf("%s decision must name exactly one agent, got %d", d.Action, len(d.Agents))
		}
	case ActionParallel:
		if len(d.Agents) < 2 {
			return fmt.Errorf("parallel decision must name at least two agents, got %d", len(d.Agents))
		}
	case ActionEnd, ActionEscalate:
		// No agent requirements.
	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}
	return nil
}

// Strategy decides the next routing step for a plan state.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Decide inspects the plan and the latest result and returns the
	// next routing decision.
	Decide(ctx context.Context, p plan.Plan, last *agent.Result) (Decision, error)
}
