package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
)

// ruleKey selects a routing rule by the last agent and its outcome.
type ruleKey struct {
	Agent   string
	Outcome plan.Status
}

// rule is one entry in the static transition table.
type rule struct {
	Action        Action
	Agents        []string
	Instructions  string
	Justification string
}

// RuleStrategy routes with a static (agent, outcome) transition table
// plus keyword routing for the opening step. It is deterministic,
// makes zero external calls, and serves both as the fast default and
// as the fallback when the capability-scored strategy errors.
type RuleStrategy struct {
	rules           map[ruleKey]rule
	maxStepAttempts int
}

// RuleConfig configures the rule-based strategy.
type RuleConfig struct {
	// MaxStepAttempts bounds how many fresh steps a repeatedly failing
	// agent may spawn before routing escalates. Default: 3.
	MaxStepAttempts int
}

// NewRuleStrategy creates the rule-based strategy with the default
// research -> design -> code -> validate -> respond pipeline.
func NewRuleStrategy(cfg RuleConfig) *RuleStrategy {
	if cfg.MaxStepAttempts == 0 {
		cfg.MaxStepAttempts = 3
	}
	return &RuleStrategy{
		rules:           defaultRules(),
		maxStepAttempts: cfg.MaxStepAttempts,
	}
}

func defaultRules() map[ruleKey]rule {
	return map[ruleKey]rule{
		{agent.Researcher, plan.StatusCompleted}: {
			Action:        ActionContinue,
			Agents:        []string{agent.Designer},
			Instructions:  "Turn the research findings into a concrete design.",
			Justification: "research completed; design is the next pipeline stage",
		},
		{agent.Designer, plan.StatusCompleted}: {
			Action:        ActionContinue,
			Agents:        []string{agent.Coder},
			Instructions:  "Implement the design.",
			Justification: "design completed; implementation is the next pipeline stage",
		},
		{agent.Coder, plan.StatusCompleted}: {
			Action:        ActionContinue,
			Agents:        []string{agent.Validator},
			Instructions:  "Validate the generated code and fix what falls below the quality bar.",
			Justification: "implementation completed; validation guards the quality threshold",
		},
		{agent.Validator, plan.StatusCompleted}: {
			Action:        ActionContinue,
			Agents:        []string{agent.Responder},
			Instructions:  "Summarize the outcome for the user.",
			Justification: "validation passed; the responder closes out the session",
		},
		{agent.Responder, plan.StatusCompleted}: {
			Action:        ActionEnd,
			Justification: "responder delivered the final answer; nothing remains to route",
		},
		{agent.Validator, plan.StatusFailed}: {
			Action:        ActionContinue,
			Agents:        []string{agent.Coder},
			Instructions:  "Address the validation feedback and regenerate the affected code.",
			Justification: "validation failed; routing the feedback back to the coder",
		},
	}
}

// fixKeywords route a repair-shaped task straight to the validator,
// skipping the research and design phases.
var fixKeywords = []string{"fix", "bug", "error", "broken", "fails", "failing", "repair"}

// Name identifies the strategy.
func (s *RuleStrategy) Name() string {
	return "rules"
}

// Decide applies keyword routing for the opening step and the static
// transition table afterwards.
func (s *RuleStrategy) Decide(ctx context.Context, p plan.Plan, last *agent.Result) (Decision, error) {
	if len(p.Steps) == 0 {
		return s.openingDecision(p), nil
	}

	step, ok := p.LastTerminalStep()
	if !ok {
		// Decide must only be called once all dispatched steps are
		// terminal; a plan with open steps is a caller bug.
		return Decision{}, fmt.Errorf("plan %s has no terminal step to route from", p.SessionID)
	}

	switch step.Status {
	case plan.StatusCancelled:
		return Decision{
			Action:        ActionEnd,
			Justification: fmt.Sprintf("step %s was cancelled; the session is winding down", step.ID),
		}, nil
	case plan.StatusFailed:
		if r, ok := s.rules[ruleKey{step.Agent, plan.StatusFailed}]; ok {
			return decisionFromRule(r), nil
		}
		if step.Attempt < s.maxStepAttempts {
			return Decision{
				Action:     ActionRetry,
				Agents:     []string{step.Agent},
				Confidence: 1,
				Justification: fmt.Sprintf("step %s failed on attempt %d of %d; spawning a fresh step for %s",
					step.ID, step.Attempt, s.maxStepAttempts, step.Agent),
			}, nil
		}
		return Decision{
			Action: ActionEscalate,
			Justification: fmt.Sprintf("agent %s failed %d consecutive attempts; a human decision is required",
				step.Agent, step.Attempt),
		}, nil
	}

	if r, ok := s.rules[ruleKey{step.Agent, step.Status}]; ok {
		return decisionFromRule(r), nil
	}
	return Decision{
		Action:        ActionEscalate,
		Justification: fmt.Sprintf("no routing rule for agent %s with outcome %s", step.Agent, step.Status),
	}, nil
}

func (s *RuleStrategy) openingDecision(p plan.Plan) Decision {
	task := strings.ToLower(p.Task)
	for _, kw := range fixKeywords {
		if strings.Contains(task, kw) {
			return Decision{
				Action:        ActionContinue,
				Agents:        []string{agent.Validator},
				Instructions:  p.Task,
				Confidence:    1,
				Justification: fmt.Sprintf("task mentions %q; routing directly to the validator, no research phase needed", kw),
			}
		}
	}
	return Decision{
		Action:        ActionContinue,
		Agents:        []string{agent.Researcher},
		Instructions:  p.Task,
		Confidence:    1,
		Justification: "new task; starting with the research phase",
	}
}

func decisionFromRule(r rule) Decision {
	return Decision{
		Action:        r.Action,
		Agents:        r.Agents,
		Instructions:  r.Instructions,
		Confidence:    1,
		Justification: r.Justification,
	}
}
