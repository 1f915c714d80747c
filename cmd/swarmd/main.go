// Package main implements the swarmd CLI: it runs a task through the
// multi-agent orchestration engine and streams progress to stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/approval"
	"github.com/fyrsmithlabs/swarmd/internal/config"
	"github.com/fyrsmithlabs/swarmd/internal/engine"
	"github.com/fyrsmithlabs/swarmd/internal/events"
	swarmhttp "github.com/fyrsmithlabs/swarmd/internal/http"
	"github.com/fyrsmithlabs/swarmd/internal/logging"
	"github.com/fyrsmithlabs/swarmd/internal/metrics"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
	"github.com/fyrsmithlabs/swarmd/internal/quality"
	"github.com/fyrsmithlabs/swarmd/internal/supervisor"
)

var (
	configPath string
	workspace  string
	strategy   string

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "swarmd",
	Short:   "Multi-agent task orchestrator",
	Long:    `swarmd routes a task through a team of specialist agents: a supervisor decides which agent acts next, failed steps retry with backoff, and a quality gate guards completion.`,
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task through the orchestration engine",
	Long: `Run a task to completion and print the final plan.

Examples:
  # Run a task with the default rule-based supervisor
  swarmd run "add input validation to the signup form"

  # Use the capability-scored supervisor
  swarmd run --strategy capability "fix the failing integration tests"

  # Point the agents at a workspace
  swarmd run --workspace ./repo "refactor the storage layer"`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	runCmd.Flags().StringVar(&workspace, "workspace", "", "workspace directory handed to agents")
	runCmd.Flags().StringVar(&strategy, "strategy", "", "supervisor strategy: rules or capability")
	rootCmd.AddCommand(runCmd)
}

// Agent role prompts. The supervisor decides who acts; these frame how
// each agent acts.
var systemPrompts = map[string]string{
	agent.Researcher: "You are a research agent. Investigate the task, gather the relevant facts and constraints, and report findings concisely.",
	agent.Designer:   "You are a design agent. Turn research findings into a concrete, minimal implementation plan.",
	agent.Coder:      "You are a coding agent. Implement the plan precisely and describe the changes you made.",
	agent.Validator:  "You are a validation agent. Check the work against the task requirements and report problems bluntly.",
	agent.Responder:  "You are a response agent. Summarize the session outcome for the user in plain language.",
}

var evaluatorDescriptions = map[string]string{
	agent.Researcher: "investigates tasks and gathers facts before any design or implementation",
	agent.Designer:   "turns findings into concrete implementation plans",
	agent.Coder:      "implements planned changes in code",
	agent.Validator:  "verifies finished work against the task requirements",
	agent.Responder:  "summarizes outcomes once the work is verified",
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if strategy != "" {
		cfg.Supervisor.Strategy = strategy
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	model, err := openai.New(openai.WithModel(cfg.Agents.Model))
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}

	registry := agent.NewRegistry()
	for _, name := range agent.AllAgents() {
		inv := agent.NewLLMInvoker(name, model, systemPrompts[name], cfg.Agents.Timeout)
		if err := registry.Register(inv); err != nil {
			return err
		}
	}

	routing, err := buildStrategy(cfg, model, logger)
	if err != nil {
		return err
	}

	loop, err := quality.NewLoop(
		quality.NewLLMValidator(model, cfg.Agents.Timeout),
		quality.NewLLMFixer(model, cfg.Agents.Timeout),
		cfg.Quality,
		logger.Named("quality"),
	)
	if err != nil {
		return err
	}

	buffer := events.NewBuffer(cfg.Events.BufferSize)
	emitters := events.Multi{buffer}
	if cfg.Events.NATSURL != "" {
		conn, err := nats.Connect(cfg.Events.NATSURL, nats.Name("swarmd"))
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer conn.Close()
		natsEmitter, err := events.NewNATSEmitter(conn, logger.Named("events"))
		if err != nil {
			return err
		}
		emitters = append(emitters, natsEmitter)
	}

	m := metrics.New()
	broker := approval.NewBroker()

	eng, err := engine.New(engine.Options{
		Strategy:             routing,
		Agents:               registry,
		Quality:              loop,
		Approver:             broker,
		Emitter:              emitters,
		Metrics:              m,
		Logger:               logger.Named("engine"),
		Retry:                cfg.Retry,
		MaxRoutingIterations: cfg.Supervisor.MaxRoutingIterations,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *swarmhttp.Server
	if cfg.HTTP.Enabled {
		server, err = swarmhttp.NewServer(eng.Tracker(), broker, m, logger.Named("http"), &swarmhttp.Config{
			Host: cfg.HTTP.Host,
			Port: cfg.HTTP.Port,
		})
		if err != nil {
			return err
		}
		go func() {
			if serveErr := server.Start(); serveErr != nil {
				logger.Warn("http server stopped", zap.Error(serveErr))
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printEvents(buffer)
	}()

	final, runErr := eng.Run(ctx, args[0], workspace)

	buffer.Close()
	wg.Wait()

	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = server.Shutdown(shutdownCtx)
	}

	printSummary(final)
	return runErr
}

func buildStrategy(cfg *config.Config, model llms.Model, logger *zap.Logger) (supervisor.Strategy, error) {
	rules := supervisor.NewRuleStrategy(supervisor.RuleConfig{
		MaxStepAttempts: cfg.Supervisor.MaxStepAttempts,
	})
	if cfg.Supervisor.Strategy == "rules" {
		return rules, nil
	}

	evaluators := make([]supervisor.Evaluator, 0, len(agent.AllAgents()))
	for _, name := range agent.AllAgents() {
		evaluators = append(evaluators, supervisor.NewLLMEvaluator(name, evaluatorDescriptions[name], model, 0))
	}
	capability, err := supervisor.NewCapabilityStrategy(evaluators, supervisor.CapabilityConfig{
		MinConfidence: cfg.Supervisor.MinConfidence,
	}, logger.Named("supervisor"))
	if err != nil {
		return nil, err
	}

	// Rules back up the scored strategy when every evaluator fails.
	return supervisor.NewFallbackStrategy(capability, rules, logger.Named("supervisor")), nil
}

func printEvents(buffer *events.Buffer) {
	for ev := range buffer.Events() {
		switch ev.Type {
		case events.TypeStepStarted:
			fmt.Printf("-> %s working\n", ev.Agent)
		case events.TypeStepCompleted:
			fmt.Printf("   %s done\n", ev.Agent)
		case events.TypeStepFailed:
			fmt.Printf("   %s failed: %s\n", ev.Agent, ev.Message)
		case events.TypeRoutingDecisionMade:
			fmt.Printf("** %s\n", ev.Message)
		case events.TypeEscalationRequested:
			fmt.Printf("!! escalation: %s\n", ev.Message)
		}
	}
}

func printSummary(p plan.Plan) {
	fmt.Printf("\nsession %s: %d step(s)\n", p.SessionID, len(p.Steps))
	for i, step := range p.Steps {
		line := fmt.Sprintf("%2d. [%s] %s (attempt %d)", i+1, step.Status, step.Agent, step.Attempt)
		if step.Error != "" {
			line += ": " + step.Error
		}
		fmt.Println(line)
	}
	if len(p.Errors) > 0 {
		fmt.Printf("\nerrors:\n  %s\n", strings.Join(p.Errors, "\n  "))
	}
	if last, ok := p.LastTerminalStep(); ok && last.Result != "" {
		fmt.Printf("\n%s\n", last.Result)
	}
}
