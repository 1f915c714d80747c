package supervisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
)

// FallbackStrategy tries the primary strategy and falls back to the
// secondary when the primary errors. The usual pairing is
// capability-scored primary with the rule table as the deterministic
// safety net.
type FallbackStrategy struct {
	primary   Strategy
	secondary Strategy
	logger    *zap.Logger
}

// NewFallbackStrategy wires a primary strategy to its fallback.
func NewFallbackStrategy(primary, secondary Strategy, logger *zap.Logger) *FallbackStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackStrategy{primary: primary, secondary: secondary, logger: logger}
}

// Name identifies the strategy pair.
func (s *FallbackStrategy) Name() string {
	return s.primary.Name() + "+" + s.secondary.Name()
}

// Decide delegates to the primary and falls back on error.
func (s *FallbackStrategy) Decide(ctx context.Context, p plan.Plan, last *agent.Result) (Decision, error) {
	d, err := s.primary.Decide(ctx, p, last)
	if err == nil {
		return d, nil
	}
	s.logger.Warn("primary routing strategy failed, using fallback",
		zap.String("primary", s.primary.Name()),
		zap.String("fallback", s.secondary.Name()),
		zap.String("session_id", p.SessionID),
		zap.Error(err),
	)
	return s.secondary.Decide(ctx, p, last)
}
