package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sylvia_browser_agent/internal/appinfo"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api"

	// OpenRouter requires headers identifying the calling application.
	openRouterReferer = "https://github.com/sylvia-app/sylvia"
)

// chatCompletionRequest is the OpenAI-style wire format, shared by OpenAI
// and OpenRouter. Messages pass through unchanged, system role included.
type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) chatOpenAI(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (string, error) {
	apiKey := strings.TrimSpace(c.settings.OpenAIKey)
	if apiKey == "" {
		return "", errors.New("OPENAI_API_KEY is not set")
	}
	base := strings.TrimSpace(c.settings.OpenAIBaseURL)
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
	}
	raw, err := c.postChatCompletion(ctx, strings.TrimRight(base, "/")+"/v1/chat/completions", headers, chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, "openai")
	if err != nil {
		return "", err
	}
	return extractChatCompletionText(raw, "OpenAI")
}

func (c *Client) chatOpenRouter(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (string, error) {
	apiKey := strings.TrimSpace(c.settings.OpenRouterKey)
	if apiKey == "" {
		return "", errors.New("OPENROUTER_API_KEY is not set")
	}
	base := strings.TrimSpace(c.settings.OpenRouterBaseURL)
	if base == "" {
		base = defaultOpenRouterBaseURL
	}
	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
		"HTTP-Referer":  openRouterReferer,
		"X-Title":       appinfo.Name,
	}
	raw, err := c.postChatCompletion(ctx, strings.TrimRight(base, "/")+"/v1/chat/completions", headers, chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, "openrouter")
	if err != nil {
		return "", err
	}
	return extractChatCompletionText(raw, "OpenRouter")
}

func (c *Client) postChatCompletion(ctx context.Context, url string, headers map[string]string, req chatCompletionRequest, vendor string) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s api error: %d: %s", vendor, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func extractChatCompletionText(raw []byte, providerDisplay string) (string, error) {
	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return noResponse(providerDisplay), nil
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return noResponse(providerDisplay), nil
	}
	return text, nil
}
