package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

const validatorSystemPrompt = `You review the referenced files against the task's quality bar.
Respond with a single JSON object and nothing else:
{"score": <float between 0 and 1>, "feedback": "<what is wrong>", "fixable_issues": ["<issue>", ...]}`

const fixerSystemPrompt = `You repair the referenced files using the reviewer's feedback.
Respond with a single JSON object and nothing else:
{"files_changed": ["<path>", ...], "summary": "<what you changed>"}`

// LLMValidator scores files by prompting a language model.
type LLMValidator struct {
	model   llms.Model
	timeout time.Duration
}

// NewLLMValidator creates a model-backed validator. timeout is the
// per-call ceiling (0 means a 2 minute default).
func NewLLMValidator(model llms.Model, timeout time.Duration) *LLMValidator {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &LLMValidator{model: model, timeout: timeout}
}

// Validate asks the model for a scored review of the referenced files.
func (v *LLMValidator) Validate(ctx context.Context, filesRef string) (Report, error) {
	ctx, cancelFn := context.WithTimeout(ctx, v.timeout)
	defer cancelFn()

	content, err := generateText(ctx, v.model, validatorSystemPrompt,
		fmt.Sprintf("Review the files at %s.", filesRef))
	if err != nil {
		return Report{}, err
	}

	var parsed struct {
		Score         float64  `json:"score"`
		Feedback      string   `json:"feedback"`
		FixableIssues []string `json:"fixable_issues"`
	}
	if err := unmarshalReply(content, &parsed); err != nil {
		return Report{}, fmt.Errorf("failed to parse validator reply: %w", err)
	}
	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 1 {
		parsed.Score = 1
	}
	return Report{
		Score:         parsed.Score,
		Feedback:      parsed.Feedback,
		FixableIssues: parsed.FixableIssues,
	}, nil
}

// LLMFixer repairs files by prompting a language model.
type LLMFixer struct {
	model   llms.Model
	timeout time.Duration
}

// NewLLMFixer creates a model-backed fixer. timeout is the per-call
// ceiling (0 means a 2 minute default).
func NewLLMFixer(model llms.Model, timeout time.Duration) *LLMFixer {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &LLMFixer{model: model, timeout: timeout}
}

// Fix asks the model to repair the referenced files.
func (f *LLMFixer) Fix(ctx context.Context, filesRef, feedback string, issues []string) (FixResult, error) {
	ctx, cancelFn := context.WithTimeout(ctx, f.timeout)
	defer cancelFn()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Repair the files at %s.\nReviewer feedback: %s\n", filesRef, feedback)
	if len(issues) > 0 {
		sb.WriteString("Fixable issues:\n")
		for _, issue := range issues {
			fmt.Fprintf(&sb, "- %s\n", issue)
		}
	}

	content, err := generateText(ctx, f.model, fixerSystemPrompt, sb.String())
	if err != nil {
		return FixResult{}, err
	}

	var parsed struct {
		FilesChanged []string `json:"files_changed"`
		Summary      string   `json:"summary"`
	}
	if err := unmarshalReply(content, &parsed); err != nil {
		return FixResult{}, fmt.Errorf("failed to parse fixer reply: %w", err)
	}
	return FixResult{FilesChanged: parsed.FilesChanged, Summary: parsed.Summary}, nil
}

func generateText(ctx context.Context, model llms.Model, system, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(prompt)}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// unmarshalReply extracts the JSON object from a model reply that may
// carry surrounding prose or code fences.
func unmarshalReply(content string, v any) error {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in reply")
	}
	return json.Unmarshal([]byte(content[start:end+1]), v)
}
