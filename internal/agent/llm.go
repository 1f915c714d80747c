package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// LLMInvoker executes a task by prompting a language model. Each
// invocation is bounded by a per-call ceiling; exceeding it is
// reported as a transient timeout, never as an indefinite block.
type LLMInvoker struct {
	name    string
	model   llms.Model
	system  string
	timeout time.Duration
}

// NewLLMInvoker creates an invoker for the named agent. systemPrompt
// frames the agent's role; timeout is the per-call ceiling (0 means
// a 2 minute default).
func NewLLMInvoker(name string, model llms.Model, systemPrompt string, timeout time.Duration) *LLMInvoker {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &LLMInvoker{
		name:    name,
		model:   model,
		system:  systemPrompt,
		timeout: timeout,
	}
}

// Name returns the agent name this invoker serves.
func (v *LLMInvoker) Name() string {
	return v.name
}

// Invoke prompts the model with the task description and any routing
// instructions, returning the model's text as the opaque result.
func (v *LLMInvoker) Invoke(ctx context.Context, task Task) (*Result, error) {
	ctx, cancelFn := context.WithTimeout(ctx, v.timeout)
	defer cancelFn()

	prompt := task.Description
	if task.Instructions != "" {
		prompt = fmt.Sprintf("%s\n\nInstructions: %s", task.Description, task.Instructions)
	}
	if task.Workspace != "" {
		prompt = fmt.Sprintf("%s\n\nWorkspace: %s", prompt, task.Workspace)
	}

	messages := make([]llms.MessageContent, 0, 2)
	if v.system != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(v.system)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(prompt)},
	})

	start := time.Now()
	resp, err := v.model.GenerateContent(ctx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Timeout(v.name, v.timeout, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Provider failures are network-shaped; let the retry
		// controller decide whether attempts remain.
		return nil, Transient(fmt.Errorf("agent %s model call failed: %w", v.name, err))
	}
	if len(resp.Choices) == 0 {
		return nil, Permanent(fmt.Errorf("agent %s model returned no choices", v.name))
	}

	return &Result{
		Content: resp.Choices[0].Content,
		Elapsed: time.Since(start),
	}, nil
}
