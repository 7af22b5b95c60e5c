package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cratos-ai/cratos/pkg/models"
)

func TestNewOpenAIProviderWithoutKey(t *testing.T) {
	p := NewOpenAIProvider("")
	if p.Name() != "openai" {
		t.Errorf("unexpected name: %s", p.Name())
	}
	if !p.SupportsTools() {
		t.Error("expected SupportsTools to be true")
	}
	if len(p.Models()) == 0 {
		t.Error("expected at least one model")
	}

	if _, err := p.Complete(context.Background(), &CompletionRequest{}); err == nil {
		t.Fatal("expected error when API key not configured")
	}
}

func TestOpenAIConvertMessagesSplitsToolResults(t *testing.T) {
	p := NewOpenAIProvider("test-key")

	converted, err := p.convertMessages([]CompletionMessage{
		{Role: "user", Content: "hi"},
		{
			Role: "tool",
			ToolResults: []models.ToolResult{
				{ToolCallID: "1", Content: "a"},
				{ToolCallID: "2", Content: "b"},
			},
		},
	}, "be helpful")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// system + user + 2 tool-result messages
	if len(converted) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(converted))
	}
	if converted[2].ToolCallID != "1" || converted[3].ToolCallID != "2" {
		t.Errorf("tool result messages out of order: %+v", converted[2:])
	}
}

func TestOpenAIConvertMessagesVisionAttachments(t *testing.T) {
	p := NewOpenAIProvider("test-key")

	converted, err := p.convertMessages([]CompletionMessage{
		{
			Role:    "user",
			Content: "what's in this image?",
			Attachments: []models.Attachment{
				{Type: "image", URL: "https://example.com/cat.png"},
			},
		},
	}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("expected 1 message, got %d", len(converted))
	}
	if len(converted[0].MultiContent) != 2 {
		t.Fatalf("expected text part + image part, got %d parts", len(converted[0].MultiContent))
	}
}

func TestOpenAIConvertToolsFallsBackOnBadSchema(t *testing.T) {
	p := NewOpenAIProvider("test-key")
	tools := p.convertTools([]Tool{&fakeTool{name: "broken", desc: "d", schema: json.RawMessage(`not-json`)}})
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].Function.Name != "broken" {
		t.Errorf("unexpected tool name: %s", tools[0].Function.Name)
	}
}

func TestOpenAIIsRetryableError(t *testing.T) {
	p := NewOpenAIProvider("test-key")
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 rate limit exceeded"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("invalid request: bad schema"), false},
	}
	for _, c := range cases {
		if got := p.isRetryableError(c.err); got != c.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
