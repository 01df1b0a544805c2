package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sylvia_browser_agent/internal/llm"
)

// fallbackModel is used when a command does not pin its own model.
const fallbackModel = "gpt-4o-mini"

// Runner executes commands through the LLM client.
type Runner struct {
	Registry *Registry
	Client   *llm.Client
}

func NewRunner(registry *Registry, client *llm.Client) *Runner {
	return &Runner{Registry: registry, Client: client}
}

// Run renders the command template with values and dispatches a two-message
// conversation (system prompt, rendered user content).
func (r *Runner) Run(ctx context.Context, cmd Command, values map[string]any) (string, error) {
	if r == nil || r.Client == nil {
		return "", errors.New("runner is not configured")
	}
	model := strings.TrimSpace(cmd.Model)
	if model == "" {
		model = fallbackModel
	}
	var messages []llm.Message
	if strings.TrimSpace(cmd.SystemPrompt) != "" {
		messages = append(messages, llm.Message{Role: "system", Content: cmd.SystemPrompt})
	}
	messages = append(messages, llm.Message{Role: "user", Content: Render(cmd.UserTemplate, values)})
	return r.Client.Chat(ctx, messages, llm.Options{Model: model})
}

// RunSlug resolves slug in the registry and runs it. Unknown slugs are a
// not-found error so callers can map them to 404.
func (r *Runner) RunSlug(ctx context.Context, slug string, values map[string]any) (string, error) {
	if r == nil || r.Registry == nil {
		return "", errors.New("runner is not configured")
	}
	cmd, ok := r.Registry.Get(slug)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(slug))
	}
	return r.Run(ctx, cmd, values)
}
