package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"

func (c *Client) chatClaude(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (string, error) {
	apiKey := strings.TrimSpace(c.settings.AnthropicKey)
	if apiKey == "" {
		return "", errors.New("ANTHROPIC_API_KEY is not set")
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithBaseURL(resolvedAnthropicBaseURL(c.settings.AnthropicBaseURL)),
	}
	if c.HTTPClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(c.HTTPClient))
	}
	sdk := anthropic.NewClient(opts...)

	system, rest := splitSystem(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
	}
	if strings.TrimSpace(system) != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	out := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return "", fmt.Errorf("unsupported message role: %q", m.Role)
		}
	}
	params.Messages = out

	resp, err := sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}
	return claudeText(resp), nil
}

// claudeText joins the text blocks of a Claude reply with newlines, skipping
// non-text blocks.
func claudeText(msg *anthropic.Message) string {
	if msg == nil {
		return noResponse("Claude")
	}
	var texts []string
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			if variant.Text != "" {
				texts = append(texts, variant.Text)
			}
		default:
			// Ignore unknown block variants.
		}
	}
	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return noResponse("Claude")
	}
	return text
}

func resolvedAnthropicBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimSuffix(base, "/v1")
	}
	base = strings.TrimRight(base, "/")
	return base + "/"
}
