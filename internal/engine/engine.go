// Package engine implements the orchestration loop: it drives the
// execution plan through supervisor decisions, dispatches steps to
// agents with retry, runs the quality gate before completion, and
// pauses at the human-in-the-loop boundary on escalation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/approval"
	"github.com/fyrsmithlabs/swarmd/internal/cancel"
	"github.com/fyrsmithlabs/swarmd/internal/events"
	"github.com/fyrsmithlabs/swarmd/internal/logging"
	"github.com/fyrsmithlabs/swarmd/internal/metrics"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
	"github.com/fyrsmithlabs/swarmd/internal/quality"
	"github.com/fyrsmithlabs/swarmd/internal/retry"
	"github.com/fyrsmithlabs/swarmd/internal/supervisor"
)

// Options configures an Engine.
type Options struct {
	// Strategy decides routing. Required.
	Strategy supervisor.Strategy

	// Agents resolves invokers by name. Required.
	Agents *agent.Registry

	// Quality gates validator steps. Optional; when nil, validator
	// steps dispatch like any other agent.
	Quality *quality.Loop

	// Approver resolves escalations. Optional; when nil, escalations
	// end the session with an EscalationError.
	Approver approval.Approver

	// Emitter receives progress events. Optional.
	Emitter events.Emitter

	// Metrics records counters and histograms. Optional.
	Metrics *metrics.Metrics

	// Logger is the engine logger. Optional.
	Logger *zap.Logger

	// Retry is the per-step invocation retry policy.
	Retry retry.Policy

	// MaxRoutingIterations bounds supervisor invocations per session
	// before forcing an escalation. Default: 50.
	MaxRoutingIterations int
}

// Engine orchestrates sessions.
type Engine struct {
	strategy supervisor.Strategy
	agents   *agent.Registry
	quality  *quality.Loop
	approver approval.Approver
	emitter  events.Emitter
	metrics  *metrics.Metrics
	logger   *zap.Logger
	retry    retry.Policy
	budget   int
	tracker  *Tracker
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Strategy == nil {
		return nil, fmt.Errorf("strategy cannot be nil")
	}
	if opts.Agents == nil {
		return nil, fmt.Errorf("agent registry cannot be nil")
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Retry.ApplyDefaults()
	if opts.MaxRoutingIterations == 0 {
		opts.MaxRoutingIterations = 50
	}

	return &Engine{
		strategy: opts.Strategy,
		agents:   opts.Agents,
		quality:  opts.Quality,
		approver: opts.Approver,
		emitter:  opts.Emitter,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		retry:    opts.Retry,
		budget:   opts.MaxRoutingIterations,
		tracker:  NewTracker(),
	}, nil
}

// Tracker returns the engine's session tracker for the inspection API.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Run orchestrates one session to completion and returns the final
// plan. The returned error is non-nil for cancellation, a rejected
// escalation, or a routing failure; agent failures surface in the plan
// instead.
func (e *Engine) Run(ctx context.Context, task, workspace string) (plan.Plan, error) {
	session := newSession(workspace, task)
	e.tracker.add(session)

	// Bind the run context to the session token so an external cancel
	// interrupts in-flight agent calls, not just the loop boundary.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-session.token.Done():
			stop()
		case <-runCtx.Done():
		}
	}()

	logger := e.logger.With(zap.String("session_id", session.id))
	logger.Info("session started", zap.String("task", task))
	e.emit(events.Event{Type: events.TypeSessionStarted, SessionID: session.id, Message: task})

	final, err := e.run(runCtx, session, logger)

	outcome := "completed"
	if err != nil {
		outcome = err.Error()
	}
	e.emit(events.Event{Type: events.TypeSessionFinished, SessionID: session.id, Message: outcome})
	logger.Info("session finished", zap.Error(err), zap.Int("steps", len(final.Steps)))
	return final, err
}

func (e *Engine) run(ctx context.Context, session *Session, logger *zap.Logger) (plan.Plan, error) {
	var last *agent.Result
	var pendingInstructions string
	iterations := 0

	for {
		if err := e.checkCancellation(ctx, session); err != nil {
			return session.Snapshot(), err
		}

		iterations++
		if iterations > e.budget {
			resp, err := e.requestApproval(ctx, session, logger,
				fmt.Sprintf("routing budget of %d iterations exhausted", e.budget))
			if err != nil {
				return session.Snapshot(), err
			}
			if !resp.Approved {
				return session.Snapshot(), &EscalationError{
					SessionID: session.id,
					Reason:    "routing budget exhausted",
					Feedback:  resp.Feedback,
				}
			}
			// Approval grants a fresh budget.
			iterations = 1
			pendingInstructions = joinInstructions(pendingInstructions, resp.Feedback)
		}

		decision, err := e.strategy.Decide(ctx, session.Snapshot(), last)
		if err != nil {
			return session.Snapshot(), fmt.Errorf("routing failed: %w", err)
		}
		if err := decision.Validate(); err != nil {
			return session.Snapshot(), fmt.Errorf("invalid routing decision from %s: %w", e.strategy.Name(), err)
		}
		if pendingInstructions != "" {
			decision.Instructions = joinInstructions(pendingInstructions, decision.Instructions)
			pendingInstructions = ""
		}

		logger.Info("routing decision",
			zap.String("action", string(decision.Action)),
			zap.Strings("agents", decision.Agents),
			zap.Float64("confidence", decision.Confidence),
			zap.String("justification", decision.Justification),
		)
		e.emit(events.Event{
			Type:      events.TypeRoutingDecisionMade,
			SessionID: session.id,
			Agent:     strings.Join(decision.Agents, ","),
			Message:   fmt.Sprintf("%s: %s", decision.Action, decision.Justification),
		})
		e.metrics.RecordDecision(string(decision.Action), e.strategy.Name())

		switch decision.Action {
		case supervisor.ActionEnd:
			return session.Snapshot(), nil

		case supervisor.ActionEscalate:
			resp, err := e.requestApproval(ctx, session, logger, decision.Justification)
			if err != nil {
				return session.Snapshot(), err
			}
			if !resp.Approved {
				return session.Snapshot(), &EscalationError{
					SessionID: session.id,
					Reason:    decision.Justification,
					Feedback:  resp.Feedback,
				}
			}
			pendingInstructions = resp.Feedback

		case supervisor.ActionRetry:
			stepID, err := e.spawnRetry(session, decision)
			if err != nil {
				return session.Snapshot(), err
			}
			last, err = e.runStep(ctx, session, logger, stepID)
			if err != nil {
				return session.Snapshot(), err
			}

		case supervisor.ActionContinue:
			agentName := decision.Agents[0]
			stepID := e.spawnStep(session, agentName, decision.Instructions)

			if agentName == agent.Validator && e.quality != nil {
				last, err = e.runQualityStep(ctx, session, logger, stepID)
			} else {
				last, err = e.runStep(ctx, session, logger, stepID)
			}
			if err != nil {
				return session.Snapshot(), err
			}

		case supervisor.ActionParallel:
			last, err = e.runParallel(ctx, session, logger, decision)
			if err != nil {
				return session.Snapshot(), err
			}
		}
	}
}

// spawnStep appends a pending step, falling back to the session task
// when the decision carries no instructions.
func (e *Engine) spawnStep(session *Session, agentName, instructions string) string {
	var stepID string
	_ = session.update(func(p plan.Plan) (plan.Plan, error) {
		task := instructions
		if task == "" {
			task = p.Task
		}
		next, id := p.AppendStep(agentName, task)
		stepID = id
		return next, nil
	})
	return stepID
}

// spawnRetry creates a fresh step for the most recent failed step of
// the decision's agent.
func (e *Engine) spawnRetry(session *Session, decision supervisor.Decision) (string, error) {
	agentName := decision.Agents[0]
	var stepID string
	err := session.update(func(p plan.Plan) (plan.Plan, error) {
		failedID := ""
		for i := len(p.Steps) - 1; i >= 0; i-- {
			if p.Steps[i].Agent == agentName && p.Steps[i].Status == plan.StatusFailed {
				failedID = p.Steps[i].ID
				break
			}
		}
		if failedID == "" {
			return p, fmt.Errorf("retry decision for %s but no failed step exists", agentName)
		}
		next, id, err := p.RetryStep(failedID, decision.Instructions)
		if err != nil {
			return p, err
		}
		stepID = id
		return next, nil
	})
	return stepID, err
}

// runStep drives one step from pending to a terminal status. The
// returned error is non-nil only for cancellation; agent failures mark
// the step failed and return a nil result so routing can react.
func (e *Engine) runStep(ctx context.Context, session *Session, logger *zap.Logger, stepID string) (*agent.Result, error) {
	ctx = logging.WithSessionID(ctx, session.id)
	ctx = logging.WithStepID(ctx, stepID)

	step, _ := session.Snapshot().Step(stepID)
	stepLogger := logger.With(zap.String("step_id", stepID), zap.String("agent", step.Agent))

	if err := e.markStep(session, stepID, plan.StatusInProgress, "", ""); err != nil {
		return nil, err
	}
	e.emit(events.Event{Type: events.TypeStepStarted, SessionID: session.id, StepID: stepID, Agent: step.Agent})
	start := time.Now()

	invoker, ok := e.agents.Get(step.Agent)
	if !ok {
		return nil, e.failStep(session, stepLogger, step, start, fmt.Sprintf("no invoker registered for agent %q", step.Agent))
	}

	var result *agent.Result
	attempts := 0
	err := retry.Do(ctx, session.token, e.retry, agent.IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			e.metrics.RecordRetry()
			stepLogger.Info("retrying step", zap.Int("attempt", attempts))
		}
		res, err := invoker.Invoke(ctx, agent.Task{
			StepID:      stepID,
			Description: step.Task,
			Workspace:   session.Snapshot().Workspace,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	if err != nil {
		if isCancellation(ctx, err) {
			if cerr := session.token.Check(); cerr != nil {
				err = cerr
			}
			_ = e.markStep(session, stepID, plan.StatusCancelled, "", err.Error())
			e.metrics.ObserveStep(step.Agent, string(plan.StatusCancelled), time.Since(start))
			return nil, err
		}
		return nil, e.failStep(session, stepLogger, step, start, err.Error())
	}

	if err := e.markStep(session, stepID, plan.StatusCompleted, result.Content, ""); err != nil {
		return nil, err
	}
	e.emit(events.Event{Type: events.TypeStepCompleted, SessionID: session.id, StepID: stepID, Agent: step.Agent})
	e.metrics.ObserveStep(step.Agent, string(plan.StatusCompleted), time.Since(start))
	stepLogger.Info("step completed", zap.Duration("elapsed", time.Since(start)), zap.Int("attempts", attempts))
	return result, nil
}

// runQualityStep drives a validator step through the quality gate. A
// passing gate completes the step; an exhausted gate fails it with the
// final report's feedback so routing can send a fixer.
func (e *Engine) runQualityStep(ctx context.Context, session *Session, logger *zap.Logger, stepID string) (*agent.Result, error) {
	ctx = logging.WithSessionID(ctx, session.id)
	ctx = logging.WithStepID(ctx, stepID)

	step, _ := session.Snapshot().Step(stepID)
	stepLogger := logger.With(zap.String("step_id", stepID), zap.String("agent", step.Agent))

	if err := e.markStep(session, stepID, plan.StatusInProgress, "", ""); err != nil {
		return nil, err
	}
	e.emit(events.Event{Type: events.TypeStepStarted, SessionID: session.id, StepID: stepID, Agent: step.Agent})
	start := time.Now()

	// The gate reviews the workspace; the step's routing instruction
	// is only a fallback for workspace-less sessions.
	filesRef := session.Snapshot().Workspace
	if filesRef == "" {
		filesRef = step.Task
	}
	outcome, err := e.quality.Run(ctx, session.token, filesRef)
	e.metrics.ObserveQualityIterations(len(outcome.Reports))

	if err != nil {
		if isCancellation(ctx, err) {
			if cerr := session.token.Check(); cerr != nil {
				err = cerr
			}
			_ = e.markStep(session, stepID, plan.StatusCancelled, "", err.Error())
			e.metrics.ObserveStep(step.Agent, string(plan.StatusCancelled), time.Since(start))
			return nil, err
		}
		return nil, e.failStep(session, stepLogger, step, start, err.Error())
	}

	report, _ := outcome.LastReport()
	switch outcome.State {
	case quality.StatePassed:
		content := fmt.Sprintf("quality gate passed with score %.2f after %d iteration(s): %s",
			report.Score, report.Iteration, report.Feedback)
		if err := e.markStep(session, stepID, plan.StatusCompleted, content, ""); err != nil {
			return nil, err
		}
		e.emit(events.Event{Type: events.TypeStepCompleted, SessionID: session.id, StepID: stepID, Agent: step.Agent})
		e.metrics.ObserveStep(step.Agent, string(plan.StatusCompleted), time.Since(start))
		stepLogger.Info("quality gate passed", zap.Float64("score", report.Score), zap.Int("iterations", report.Iteration))
		return &agent.Result{Content: content, Elapsed: time.Since(start)}, nil

	default:
		msg := fmt.Sprintf("quality gate escalated after %d iteration(s), final score %.2f: %s",
			report.Iteration, report.Score, report.Feedback)
		return nil, e.failStep(session, stepLogger, step, start, msg)
	}
}

// runParallel dispatches every step of a parallel decision and blocks
// until all of them are terminal before returning control to routing.
func (e *Engine) runParallel(ctx context.Context, session *Session, logger *zap.Logger, decision supervisor.Decision) (*agent.Result, error) {
	stepIDs := make([]string, 0, len(decision.Agents))
	for _, agentName := range decision.Agents {
		stepIDs = append(stepIDs, e.spawnStep(session, agentName, decision.Instructions))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(stepIDs))
	results := make([]*agent.Result, len(stepIDs))
	for i, stepID := range stepIDs {
		wg.Add(1)
		go func(i int, stepID string) {
			defer wg.Done()
			results[i], errs[i] = e.runStep(ctx, session, logger, stepID)
		}(i, stepID)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// Feed the last successful result forward; failures are already
	// visible to the supervisor through the plan.
	var last *agent.Result
	for _, res := range results {
		if res != nil {
			last = res
		}
	}
	return last, nil
}

func (e *Engine) failStep(session *Session, logger *zap.Logger, step plan.Step, start time.Time, msg string) error {
	if err := e.markStep(session, step.ID, plan.StatusFailed, "", msg); err != nil {
		return err
	}
	e.emit(events.Event{Type: events.TypeStepFailed, SessionID: session.id, StepID: step.ID, Agent: step.Agent, Message: msg})
	e.metrics.ObserveStep(step.Agent, string(plan.StatusFailed), time.Since(start))
	logger.Warn("step failed", zap.String("error", msg))
	return nil
}

func (e *Engine) markStep(session *Session, stepID string, status plan.Status, result, errMsg string) error {
	return session.update(func(p plan.Plan) (plan.Plan, error) {
		return p.UpdateStepStatus(stepID, status, result, errMsg)
	})
}

// requestApproval pauses the session at the human boundary.
func (e *Engine) requestApproval(ctx context.Context, session *Session, logger *zap.Logger, reason string) (approval.Response, error) {
	e.emit(events.Event{Type: events.TypeEscalationRequested, SessionID: session.id, Message: reason})
	logger.Info("escalation requested", zap.String("reason", reason))

	if e.approver == nil {
		return approval.Response{}, &EscalationError{
			SessionID: session.id,
			Reason:    reason,
			Feedback:  "no approver configured",
		}
	}

	resp, err := e.approver.Await(ctx, session.token, approval.Request{
		SessionID: session.id,
		Reason:    reason,
	})
	if err != nil {
		return approval.Response{}, err
	}
	logger.Info("escalation resolved", zap.Bool("approved", resp.Approved))
	return resp, nil
}

// checkCancellation marks any open steps cancelled once the session's
// token fires or the context ends.
func (e *Engine) checkCancellation(ctx context.Context, session *Session) error {
	err := session.token.Check()
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		return nil
	}
	_ = session.update(func(p plan.Plan) (plan.Plan, error) {
		for {
			step, open := p.CurrentStep()
			if !open {
				return p, nil
			}
			next, uerr := p.UpdateStepStatus(step.ID, plan.StatusCancelled, "", "session cancelled")
			if uerr != nil {
				return p, nil
			}
			p = next
		}
	})
	return err
}

func (e *Engine) emit(event events.Event) {
	event.Timestamp = time.Now().UTC()
	e.emitter.Emit(event)
}

// isCancellation distinguishes session-level cancellation from an
// agent call's own deadline, which also surfaces context errors but
// should be treated as a step failure.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, cancel.ErrCancelled)
}

func joinInstructions(first, second string) string {
	switch {
	case first == "":
		return second
	case second == "":
		return first
	default:
		return first + "\n" + second
	}
}
