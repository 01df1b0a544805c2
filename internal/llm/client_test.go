package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testClient(rt roundTripFunc) *Client {
	c := New(Settings{
		OpenAIKey:          "sk-test",
		GeminiKey:          "gm-test",
		AnthropicKey:       "an-test",
		OpenRouterKey:      "or-test",
		DefaultProvider:    ProviderOpenAI,
		DefaultModel:       "gpt-4o-mini",
		DefaultTemperature: 0.5,
	})
	if rt != nil {
		c.HTTPClient = &http.Client{Transport: rt}
	}
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read request body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal request body: %v: %s", err, string(data))
	}
	return out
}

func TestChatGemini_SystemInstructionAndRoleMapping(t *testing.T) {
	var captured map[string]any
	client := testClient(func(r *http.Request) (*http.Response, error) {
		captured = decodeBody(t, r)
		return jsonResponse(200, `{"candidates":[{"content":{"parts":[{"text":"line one"},{"text":"line two"}]}}]}`), nil
	})

	msgs := []Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "summarize"},
	}
	got, err := client.Chat(context.Background(), msgs, Options{Provider: ProviderGemini, Model: "gemini-2.0-flash"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if got != "line one\nline two" {
		t.Fatalf("Chat() = %q, want parts joined by newline", got)
	}

	si, ok := captured["systemInstruction"].(map[string]any)
	if !ok {
		t.Fatalf("expected systemInstruction object, got: %#v", captured["systemInstruction"])
	}
	parts := si["parts"].([]any)
	text := parts[0].(map[string]any)["text"].(string)
	if text != "You are helpful.\n\nBe brief." {
		t.Fatalf("systemInstruction text = %q, want blank-line concatenation", text)
	}

	contents, ok := captured["contents"].([]any)
	if !ok || len(contents) != 3 {
		t.Fatalf("expected 3 contents (system excluded), got: %#v", captured["contents"])
	}
	wantRoles := []string{"user", "model", "user"}
	for i, raw := range contents {
		role := raw.(map[string]any)["role"].(string)
		if role != wantRoles[i] {
			t.Fatalf("contents[%d].role = %q, want %q", i, role, wantRoles[i])
		}
	}
}

func TestChatGemini_OmitsSystemInstructionWhenNoSystemMessages(t *testing.T) {
	var captured map[string]any
	client := testClient(func(r *http.Request) (*http.Response, error) {
		captured = decodeBody(t, r)
		return jsonResponse(200, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`), nil
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{Provider: ProviderGemini, Model: "gemini-2.0-flash"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if _, present := captured["systemInstruction"]; present {
		t.Fatalf("systemInstruction should be omitted entirely, got: %#v", captured["systemInstruction"])
	}
}

func TestChatClaude_TopLevelSystemField(t *testing.T) {
	var captured map[string]any
	client := testClient(func(r *http.Request) (*http.Response, error) {
		captured = decodeBody(t, r)
		return jsonResponse(200, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"first"},{"type":"text","text":"second"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`), nil
	})

	msgs := []Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "hi"},
	}
	got, err := client.Chat(context.Background(), msgs, Options{Provider: ProviderClaude, Model: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if got != "first\nsecond" {
		t.Fatalf("Chat() = %q, want text blocks joined by newline", got)
	}

	system, present := captured["system"]
	if !present {
		t.Fatalf("expected top-level system field, body: %#v", captured)
	}
	raw, _ := json.Marshal(system)
	if !strings.Contains(string(raw), "You are helpful.") || !strings.Contains(string(raw), "Be brief.") {
		t.Fatalf("system field missing concatenated text: %s", string(raw))
	}

	messages := captured["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message (system extracted), got %d", len(messages))
	}
	if role := messages[0].(map[string]any)["role"].(string); role != "user" {
		t.Fatalf("messages[0].role = %q, want user", role)
	}
}

func TestChatOpenRouter_IdentifyingHeaders(t *testing.T) {
	var referer, title string
	client := testClient(func(r *http.Request) (*http.Response, error) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		return jsonResponse(200, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`), nil
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{Provider: ProviderOpenRouter, Model: "openai/gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if referer == "" || title == "" {
		t.Fatalf("expected HTTP-Referer and X-Title headers, got %q / %q", referer, title)
	}
}

func TestChat_MissingAPIKey(t *testing.T) {
	client := New(Settings{DefaultProvider: ProviderOpenAI, DefaultModel: "gpt-4o-mini"})
	client.HTTPClient = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no network call expected for missing key")
		return nil, nil
	})}

	cases := []struct {
		provider string
		wantKey  string
	}{
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderGemini, "GEMINI_API_KEY"},
		{ProviderClaude, "ANTHROPIC_API_KEY"},
		{ProviderOpenRouter, "OPENROUTER_API_KEY"},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{Provider: tc.provider, Model: "m"})
			if err == nil || !strings.Contains(err.Error(), tc.wantKey+" is not set") {
				t.Fatalf("Chat() error = %v, want %q", err, tc.wantKey+" is not set")
			}
		})
	}
}

func TestChat_UnsupportedProvider(t *testing.T) {
	client := testClient(nil)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{Provider: "mistral"})
	if err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Fatalf("Chat() error = %v, want unsupported provider", err)
	}
}

func TestChatOpenAI_HTTPErrorEmbedsStatusAndBody(t *testing.T) {
	client := testClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(429, `{"error":{"message":"rate limited"}}`), nil
	})
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{Provider: ProviderOpenAI})
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("Chat() error = %v, want status and body embedded", err)
	}
}

func TestChatOpenAI_EmptyChoicesReturnsPlaceholder(t *testing.T) {
	client := testClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"choices":[]}`), nil
	})
	got, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{Provider: ProviderOpenAI})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if got != "[No response from OpenAI]" {
		t.Fatalf("Chat() = %q, want placeholder", got)
	}
}

func TestUpdateDefaults_TemperatureClamp(t *testing.T) {
	client := testClient(nil)
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "above_range", in: 5, want: 1},
		{name: "below_range", in: -3, want: 0},
		{name: "in_range", in: 0.3, want: 0.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := client.UpdateDefaults("", "", &tc.in)
			if got.Temperature != tc.want {
				t.Fatalf("UpdateDefaults temperature = %v, want %v", got.Temperature, tc.want)
			}
		})
	}
}

func TestUpdateDefaults_PartialUpdateKeepsUnsetFields(t *testing.T) {
	client := testClient(nil)
	before := client.Defaults()
	got := client.UpdateDefaults("gemini", "", nil)
	if got.Provider != "gemini" {
		t.Fatalf("provider = %q, want gemini", got.Provider)
	}
	if got.Model != before.Model || got.Temperature != before.Temperature {
		t.Fatalf("unset fields changed: %+v -> %+v", before, got)
	}
}
