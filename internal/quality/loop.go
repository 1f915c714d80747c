// Package quality implements the bounded validate -> fix loop that
// guards a quality threshold before a session can complete.
//
// The loop never runs unboundedly and never silently drops a
// below-threshold result: it either passes or escalates, carrying the
// full iteration history either way.
package quality

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/cancel"
	"github.com/fyrsmithlabs/swarmd/internal/logging"
)

// State is the fix loop's state machine position.
type State string

const (
	StateValidating State = "validating"
	StateFixing     State = "fixing"
	StatePassed     State = "passed"
	StateEscalated  State = "escalated"
)

// Report is the validator's verdict for one iteration.
type Report struct {
	Score         float64  `json:"score"`
	Feedback      string   `json:"feedback"`
	FixableIssues []string `json:"fixable_issues,omitempty"`
	Iteration     int      `json:"iteration"`
}

// FixResult summarizes one repair pass.
type FixResult struct {
	FilesChanged []string `json:"files_changed,omitempty"`
	Summary      string   `json:"summary"`
}

// Validator scores the referenced files against the quality bar.
type Validator interface {
	Validate(ctx context.Context, filesRef string) (Report, error)
}

// Fixer repairs the referenced files using the validator's feedback.
type Fixer interface {
	Fix(ctx context.Context, filesRef, feedback string, issues []string) (FixResult, error)
}

// Config bounds the loop.
type Config struct {
	// Threshold is the minimum passing score in [0,1]. Default: 0.8.
	Threshold float64 `json:"threshold" koanf:"threshold"`

	// MaxIterations bounds validate calls. Default: 5.
	MaxIterations int `json:"max_iterations" koanf:"max_iterations"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 0.8
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 5
	}
}

// Validate checks config bounds.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("quality threshold %v outside [0,1]", c.Threshold)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("quality max iterations must be at least 1, got %d", c.MaxIterations)
	}
	return nil
}

// Outcome carries the loop's terminal state plus every iteration's
// report, so an escalation surfaces the full history.
type Outcome struct {
	State   State       `json:"state"`
	Reports []Report    `json:"reports"`
	Fixes   []FixResult `json:"fixes,omitempty"`
}

// LastReport returns the most recent validation report.
func (o Outcome) LastReport() (Report, bool) {
	if len(o.Reports) == 0 {
		return Report{}, false
	}
	return o.Reports[len(o.Reports)-1], true
}

// Loop runs the validate -> fix cycle.
type Loop struct {
	validator Validator
	fixer     Fixer
	cfg       Config
	logger    *zap.Logger
}

// NewLoop creates a quality loop.
func NewLoop(validator Validator, fixer Fixer, cfg Config, logger *zap.Logger) (*Loop, error) {
	if validator == nil {
		return nil, fmt.Errorf("validator cannot be nil")
	}
	if fixer == nil {
		return nil, fmt.Errorf("fixer cannot be nil")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{validator: validator, fixer: fixer, cfg: cfg, logger: logger}, nil
}

// Run executes the loop: validate, and while the score is below the
// threshold and iterations remain, fix and validate again. It
// terminates in StatePassed or StateEscalated; the returned error is
// non-nil only for cancellation or a validator/fixer call failure.
func (l *Loop) Run(ctx context.Context, token *cancel.Token, filesRef string) (Outcome, error) {
	out := Outcome{State: StateValidating}

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := checkCancellation(ctx, token); err != nil {
			return out, err
		}

		report, err := l.validator.Validate(ctx, filesRef)
		if err != nil {
			return out, fmt.Errorf("validation failed on iteration %d: %w", iteration, err)
		}
		report.Iteration = iteration
		out.Reports = append(out.Reports, report)

		fields := append(logging.ContextFields(ctx),
			zap.Int("iteration", iteration),
			zap.Float64("score", report.Score),
			zap.Float64("threshold", l.cfg.Threshold),
		)
		l.logger.Info("validation iteration finished", fields...)

		if report.Score >= l.cfg.Threshold {
			out.State = StatePassed
			return out, nil
		}
		if iteration == l.cfg.MaxIterations {
			break
		}

		out.State = StateFixing
		if err := checkCancellation(ctx, token); err != nil {
			return out, err
		}
		fix, err := l.fixer.Fix(ctx, filesRef, report.Feedback, report.FixableIssues)
		if err != nil {
			return out, fmt.Errorf("fix pass failed on iteration %d: %w", iteration, err)
		}
		out.Fixes = append(out.Fixes, fix)
		out.State = StateValidating
	}

	out.State = StateEscalated
	return out, nil
}

func checkCancellation(ctx context.Context, token *cancel.Token) error {
	if token != nil {
		if err := token.Check(); err != nil {
			return err
		}
	}
	return ctx.Err()
}
