package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cratos-ai/cratos/pkg/models"
)

type fakeTool struct {
	name   string
	desc   string
	schema json.RawMessage
}

func (f *fakeTool) Name() string           { return f.name }
func (f *fakeTool) Description() string    { return f.desc }
func (f *fakeTool) Schema() json.RawMessage { return f.schema }
func (f *fakeTool) Execute(context.Context, json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: "ok"}, nil
}

func TestNewAnthropicProviderDefaults(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.maxRetries != 3 {
		t.Errorf("expected default maxRetries 3, got %d", p.maxRetries)
	}
	if p.retryDelay != time.Second {
		t.Errorf("expected default retryDelay 1s, got %v", p.retryDelay)
	}
	if p.defaultModel != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected default model: %s", p.defaultModel)
	}
	if p.Name() != "anthropic" {
		t.Errorf("unexpected name: %s", p.Name())
	}
	if !p.SupportsTools() {
		t.Error("expected SupportsTools to be true")
	}
	if len(p.Models()) == 0 {
		t.Error("expected at least one model")
	}
}

func TestAnthropicConvertMessages(t *testing.T) {
	p := &AnthropicProvider{defaultModel: "claude-sonnet-4-20250514"}

	toolInput, err := json.Marshal(map[string]string{"q": "weather"})
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}

	messages := []CompletionMessage{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "what's the weather?"},
		{
			Role:      "assistant",
			ToolCalls: []models.ToolCall{{ID: "call_1", Name: "get_weather", Input: toolInput}},
		},
		{Role: "tool", ToolResults: []models.ToolResult{{ToolCallID: "call_1", Content: "sunny"}}},
	}

	converted, err := p.convertMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(converted) != 3 {
		t.Fatalf("expected system message to be dropped, got %d messages", len(converted))
	}
}

func TestAnthropicConvertToolsRejectsBadSchema(t *testing.T) {
	p := &AnthropicProvider{}
	if _, err := p.convertTools([]Tool{&fakeTool{name: "broken", schema: json.RawMessage(`not-json`)}}); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestAnthropicIsRetryableError(t *testing.T) {
	p := &AnthropicProvider{}
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("rate_limit exceeded"), true},
		{errors.New("request timeout"), true},
		{errors.New("invalid api key"), false},
	}
	for _, c := range cases {
		if got := p.isRetryableError(c.err); got != c.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestAnthropicGetModelAndMaxTokens(t *testing.T) {
	p := &AnthropicProvider{defaultModel: "claude-sonnet-4-20250514"}
	if got := p.getModel(""); got != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected default model: %s", got)
	}
	if got := p.getModel("claude-opus-4-20250514"); got != "claude-opus-4-20250514" {
		t.Errorf("unexpected model override: %s", got)
	}
	if got := p.getMaxTokens(0); got != 4096 {
		t.Errorf("unexpected default max tokens: %d", got)
	}
	if got := p.getMaxTokens(2048); got != 2048 {
		t.Errorf("unexpected max tokens override: %d", got)
	}
}

func TestAnthropicCompleteStreamsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}

		events := []string{
			"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":5}}}\n\n",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n\n",
			"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{},\"usage\":{\"output_tokens\":2}}\n\n",
			"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n",
		}
		for _, e := range events {
			_, _ = w.Write([]byte(e))
			flusher.Flush()
		}
	}))
	defer server.Close()

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, err := p.Complete(context.Background(), &CompletionRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []CompletionMessage{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var text string
	var done bool
	for c := range chunks {
		if c.Error != nil {
			t.Fatalf("unexpected stream error: %v", c.Error)
		}
		text += c.Text
		if c.Done {
			done = true
			if c.InputTokens != 5 || c.OutputTokens != 2 {
				t.Errorf("unexpected token counts: in=%d out=%d", c.InputTokens, c.OutputTokens)
			}
		}
	}
	if !done {
		t.Fatal("expected Done chunk")
	}
	if text != "hi" {
		t.Errorf("expected text %q, got %q", "hi", text)
	}
}

func TestAnthropicCountTokens(t *testing.T) {
	p := &AnthropicProvider{}
	req := &CompletionRequest{System: "1234", Messages: []CompletionMessage{{Content: "12345678"}}}
	if got, want := p.CountTokens(req), 1+2; got != want {
		t.Errorf("CountTokens() = %d, want %d", got, want)
	}
}
