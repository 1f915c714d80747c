package supervisor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
)

// Score is one candidate's self-assessment: how productively it can
// act on the current plan state, and why.
type Score struct {
	Confidence float64
	Reasoning  string
}

// Evaluator scores whether one candidate agent can productively act on
// the current plan state.
type Evaluator interface {
	// Agent returns the candidate's agent name.
	Agent() string

	// Evaluate returns the candidate's confidence in [0,1] plus
	// reasoning.
	Evaluate(ctx context.Context, p plan.Plan, last *agent.Result) (Score, error)
}

// CapabilityStrategy asks every candidate, independently and
// concurrently, whether it can act on the plan state, then routes to
// the highest-confidence candidate. Ties break by the evaluators'
// order, which is the fixed agent priority order. A top confidence
// below MinConfidence escalates.
type CapabilityStrategy struct {
	evaluators    []Evaluator
	minConfidence float64
	logger        *zap.Logger
}

// CapabilityConfig configures the capability-scored strategy.
type CapabilityConfig struct {
	// MinConfidence is the escalation floor. Default: 0.4.
	MinConfidence float64
}

// NewCapabilityStrategy creates the strategy. The evaluator order is
// the tie-break priority order.
func NewCapabilityStrategy(evaluators []Evaluator, cfg CapabilityConfig, logger *zap.Logger) (*CapabilityStrategy, error) {
	if len(evaluators) == 0 {
		return nil, fmt.Errorf("at least one evaluator is required")
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.4
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return nil, fmt.Errorf("min confidence %v outside [0,1]", cfg.MinConfidence)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapabilityStrategy{
		evaluators:    evaluators,
		minConfidence: cfg.MinConfidence,
		logger:        logger,
	}, nil
}

// Name identifies the strategy.
func (s *CapabilityStrategy) Name() string {
	return "capability"
}

type evaluation struct {
	agent string
	score Score
	err   error
}

// Decide evaluates all candidates concurrently so routing latency is
// bounded by the slowest single candidate, not by their sum.
func (s *CapabilityStrategy) Decide(ctx context.Context, p plan.Plan, last *agent.Result) (Decision, error) {
	results := make([]evaluation, len(s.evaluators))

	var wg sync.WaitGroup
	for i, ev := range s.evaluators {
		wg.Add(1)
		go func(i int, ev Evaluator) {
			defer wg.Done()
			score, err := ev.Evaluate(ctx, p, last)
			results[i] = evaluation{agent: ev.Agent(), score: score, err: err}
		}(i, ev)
	}
	wg.Wait()

	best := -1
	failures := 0
	for i, r := range results {
		if r.err != nil {
			failures++
			s.logger.Warn("candidate evaluation failed",
				zap.String("agent", r.agent),
				zap.Error(r.err),
			)
			continue
		}
		if r.score.Confidence < 0 || r.score.Confidence > 1 {
			failures++
			s.logger.Warn("candidate returned confidence outside [0,1]",
				zap.String("agent", r.agent),
				zap.Float64("confidence", r.score.Confidence),
			)
			continue
		}
		// Strictly-greater keeps the earliest (highest priority)
		// candidate on ties.
		if best < 0 || r.score.Confidence > results[best].score.Confidence {
			best = i
		}
	}

	if best < 0 {
		return Decision{}, fmt.Errorf("all %d candidate evaluations failed", failures)
	}

	winner := results[best]
	if winner.score.Confidence < s.minConfidence {
		return Decision{
			Action:     ActionEscalate,
			Confidence: winner.score.Confidence,
			Justification: fmt.Sprintf("top candidate %s scored %.2f, below the %.2f confidence floor: %s",
				winner.agent, winner.score.Confidence, s.minConfidence, winner.score.Reasoning),
		}, nil
	}

	instructions := p.Task
	if step, ok := p.LastTerminalStep(); ok {
		instructions = fmt.Sprintf("Continue the task %q after %s finished with status %s.", p.Task, step.Agent, step.Status)
	}

	return Decision{
		Action:       ActionContinue,
		Agents:       []string{winner.agent},
		Instructions: instructions,
		Confidence:   winner.score.Confidence,
		Justification: fmt.Sprintf("%s scored highest (%.2f) among %d candidates: %s",
			winner.agent, winner.score.Confidence, len(results), winner.score.Reasoning),
	}, nil
}
