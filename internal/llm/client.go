package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Provider tags. Dispatch is a closed switch over these; adding a vendor
// means adding a constant and a branch, not editing existing ones.
const (
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderClaude     = "claude"
	ProviderOpenRouter = "openrouter"
)

const defaultMaxTokens = 2048

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options override the client defaults for a single Chat call. A nil
// Temperature means "use the default"; zero is a valid temperature.
type Options struct {
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Defaults is the process-wide LLM configuration, mutable via the config API.
type Defaults struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// Settings configures a Client at construction time.
type Settings struct {
	OpenAIKey     string
	GeminiKey     string
	AnthropicKey  string
	OpenRouterKey string

	DefaultProvider    string
	DefaultModel       string
	DefaultTemperature float64

	// Base URL overrides, used by tests; empty means the vendor default.
	OpenAIBaseURL     string
	GeminiBaseURL     string
	AnthropicBaseURL  string
	OpenRouterBaseURL string
}

type Client struct {
	settings   Settings
	HTTPClient *http.Client

	mu       sync.Mutex
	defaults Defaults
}

func New(s Settings) *Client {
	provider := strings.ToLower(strings.TrimSpace(s.DefaultProvider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	model := strings.TrimSpace(s.DefaultModel)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		settings: s,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		defaults: Defaults{
			Provider:    provider,
			Model:       model,
			Temperature: clampTemperature(s.DefaultTemperature),
		},
	}
}

func (c *Client) Defaults() Defaults {
	if c == nil {
		return Defaults{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaults
}

// UpdateDefaults applies a partial update; empty strings and nil temperature
// leave the current value in place. Temperature is clamped to [0,1].
func (c *Client) UpdateDefaults(provider, model string, temperature *float64) Defaults {
	if c == nil {
		return Defaults{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := strings.ToLower(strings.TrimSpace(provider)); p != "" {
		c.defaults.Provider = p
	}
	if m := strings.TrimSpace(model); m != "" {
		c.defaults.Model = m
	}
	if temperature != nil {
		c.defaults.Temperature = clampTemperature(*temperature)
	}
	return c.defaults
}

// Chat sends an ordered conversation to the configured provider and returns
// the assistant text. Unset options fall back to the client defaults.
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	if c == nil {
		return "", errors.New("nil client")
	}
	if len(messages) == 0 {
		return "", errors.New("messages are required")
	}

	d := c.Defaults()
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = d.Provider
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = d.Model
	}
	temperature := d.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	switch provider {
	case ProviderOpenAI:
		return c.chatOpenAI(ctx, messages, model, temperature, maxTokens)
	case ProviderGemini:
		return c.chatGemini(ctx, messages, model, temperature, maxTokens)
	case ProviderClaude:
		return c.chatClaude(ctx, messages, model, temperature, maxTokens)
	case ProviderOpenRouter:
		return c.chatOpenRouter(ctx, messages, model, temperature, maxTokens)
	default:
		return "", fmt.Errorf("unsupported provider: %q", provider)
	}
}

// splitSystem extracts every system-role message, concatenated with
// blank-line separators, and returns the remaining conversation. Gemini and
// Claude have no in-band system role, so both branches share this.
func splitSystem(messages []Message) (string, []Message) {
	var systemTexts []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if strings.EqualFold(strings.TrimSpace(m.Role), "system") {
			if strings.TrimSpace(m.Content) != "" {
				systemTexts = append(systemTexts, m.Content)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(systemTexts, "\n\n"), rest
}

// noResponse is the placeholder returned when a vendor reply contains no
// extractable text. Callers treat it as a valid response.
func noResponse(providerDisplay string) string {
	return "[No response from " + providerDisplay + "]"
}

func clampTemperature(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func (c *Client) httpClient() *http.Client {
	if c == nil || c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
