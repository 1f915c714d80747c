package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
)

const evaluatorSystemPrompt = `You assess whether one agent can productively act on the current state of a multi-agent execution plan.
Respond with a single JSON object and nothing else:
{"confidence": <float between 0 and 1>, "reasoning": "<one sentence>"}`

// LLMEvaluator asks a language model how productively the named agent
// could act on the current plan state.
type LLMEvaluator struct {
	agentName   string
	description string
	model       llms.Model
	timeout     time.Duration
}

// NewLLMEvaluator creates an evaluator for the named agent.
// description tells the model what the agent is good at; timeout is
// the per-call ceiling (0 means a 30 second default).
func NewLLMEvaluator(agentName, description string, model llms.Model, timeout time.Duration) *LLMEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &LLMEvaluator{
		agentName:   agentName,
		description: description,
		model:       model,
		timeout:     timeout,
	}
}

// Agent returns the candidate's agent name.
func (e *LLMEvaluator) Agent() string {
	return e.agentName
}

// Evaluate prompts the model for a confidence score and reasoning.
func (e *LLMEvaluator) Evaluate(ctx context.Context, p plan.Plan, last *agent.Result) (Score, error) {
	ctx, cancelFn := context.WithTimeout(ctx, e.timeout)
	defer cancelFn()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent: %s (%s)\n", e.agentName, e.description)
	fmt.Fprintf(&sb, "Task: %s\n", p.Task)
	if len(p.Steps) == 0 {
		sb.WriteString("Plan state: no steps executed yet.\n")
	} else {
		sb.WriteString("Plan state:\n")
		for _, step := range p.Steps {
			fmt.Fprintf(&sb, "- %s: %s (attempt %d)\n", step.Agent, step.Status, step.Attempt)
		}
	}
	if last != nil {
		fmt.Fprintf(&sb, "Latest result: %s\n", truncate(last.Content, 500))
	}
	sb.WriteString("Can this agent productively act on the plan right now?")

	resp, err := e.model.GenerateContent(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(evaluatorSystemPrompt)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(sb.String())}},
	})
	if err != nil {
		return Score{}, fmt.Errorf("capability evaluation for %s failed: %w", e.agentName, err)
	}
	if len(resp.Choices) == 0 {
		return Score{}, fmt.Errorf("capability evaluation for %s returned no choices", e.agentName)
	}

	return parseScore(resp.Choices[0].Content)
}

// parseScore extracts the {"confidence": ..., "reasoning": ...} object
// from the model's reply, tolerating surrounding prose or code fences.
func parseScore(content string) (Score, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Score{}, fmt.Errorf("no JSON object in evaluation reply: %q", truncate(content, 120))
	}

	var parsed struct {
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return Score{}, fmt.Errorf("failed to parse evaluation reply: %w", err)
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	if parsed.Reasoning == "" {
		parsed.Reasoning = "no reasoning provided"
	}
	return Score{Confidence: parsed.Confidence, Reasoning: parsed.Reasoning}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
