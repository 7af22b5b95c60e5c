package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cratos-ai/cratos/internal/approval"
	"github.com/cratos-ai/cratos/internal/eventbus"
	"github.com/cratos-ai/cratos/internal/graphmem"
	"github.com/cratos-ai/cratos/internal/personaskill"
	"github.com/cratos-ai/cratos/internal/providers"
	"github.com/cratos-ai/cratos/internal/tools"
	"github.com/cratos-ai/cratos/internal/toolpolicy"
	"github.com/cratos-ai/cratos/pkg/models"
)

func TestDriverCompletesWithoutToolCalls(t *testing.T) {
	h := newHarness(t)
	h.provider.scriptText("hello there")

	outcome := h.runAndWait(t, "s1", "u1", "hi")

	if outcome.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", outcome.Status)
	}
	if outcome.ResponseText != "hello there" {
		t.Fatalf("unexpected response: %q", outcome.ResponseText)
	}
}

func TestDriverDispatchesAllowedToolCall(t *testing.T) {
	h := newHarness(t)
	h.registerEchoTool("echo")
	h.provider.scriptToolCall("call-1", "echo", `{"text":"hi"}`)
	h.provider.scriptText("done")

	outcome := h.runAndWait(t, "s1", "u1", "use echo")

	if outcome.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", outcome.Status)
	}
	if outcome.ResponseText != "done" {
		t.Fatalf("unexpected final response: %q", outcome.ResponseText)
	}
}

func TestDriverDeniesToolCallByPolicy(t *testing.T) {
	h := newHarness(t)
	h.policy.AddRule(toolpolicy.Rule{Level: toolpolicy.LevelGlobal, Scope: "*", ToolPattern: "danger", Action: toolpolicy.ActionDeny})
	h.registerEchoTool("danger")
	h.provider.scriptToolCall("call-1", "danger", `{}`)
	h.provider.scriptText("done")

	outcome := h.runAndWait(t, "s1", "u1", "try danger")

	if outcome.Status != StatusCompleted {
		t.Fatalf("expected completed (tool denial doesn't fail the execution), got %v", outcome.Status)
	}
}

func TestDriverApprovalTimeoutDeniesCall(t *testing.T) {
	h := newHarness(t)
	h.cfg.ApprovalTimeout = 20 * time.Millisecond
	h.policy.AddRule(toolpolicy.Rule{Level: toolpolicy.LevelGlobal, Scope: "*", ToolPattern: "risky", Action: toolpolicy.ActionRequireApproval})
	h.registerEchoTool("risky")
	h.provider.scriptToolCall("call-1", "risky", `{}`)
	h.provider.scriptText("done")
	h.build()

	outcome := h.runAndWait(t, "s1", "u1", "try risky")
	if outcome.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", outcome.Status)
	}
}

func TestDriverSkillHintDrivesPersonaSkillUpdate(t *testing.T) {
	h := newHarness(t)
	h.registerEchoTool("echo")
	h.provider.scriptToolCall("call-1", "echo", `{"text":"hi","_skill_id":"deploy"}`)
	h.provider.scriptText("done")

	h.runAndWait(t, "s1", "u1", "@helper use echo")

	binding, ok := h.skills.Get("helper", "deploy")
	if !ok {
		t.Fatal("expected a persona-skill binding to have been created")
	}
	if binding.UsageCount != 1 {
		t.Fatalf("expected usage count 1, got %d", binding.UsageCount)
	}
}

func TestDriverIterationCapExhaustionIsNormalCompletion(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxIterations = 2
	h.registerEchoTool("echo")
	h.provider.scriptToolCall("call-1", "echo", `{}`)
	h.provider.scriptToolCall("call-2", "echo", `{}`)
	h.build()

	outcome := h.runAndWait(t, "s1", "u1", "loop forever")
	if outcome.Status != StatusCompleted {
		t.Fatalf("expected iteration-cap exhaustion to complete normally, got %v", outcome.Status)
	}
}

func TestDriverMalformedToolArgumentsFallBackToEmptyObject(t *testing.T) {
	h := newHarness(t)
	seen := make(chan string, 1)
	h.registry.Register(&tools.Descriptor{
		Name:    "sink",
		Enabled: true,
		Risk:    tools.RiskLow,
		Handler: func(_ context.Context, input json.RawMessage) (any, error) {
			seen <- string(input)
			return map[string]any{"ok": true}, nil
		},
	})
	h.provider.scriptToolCall("call-1", "sink", `not json`)
	h.provider.scriptText("done")

	h.runAndWait(t, "s1", "u1", "use sink")

	select {
	case got := <-seen:
		if got != "{}" {
			t.Fatalf("expected malformed args to fall back to {}, got %q", got)
		}
	default:
		t.Fatal("expected the tool handler to have been invoked")
	}
}

// --- harness ---

type harness struct {
	bus       *eventbus.Bus
	approvals *approval.Manager
	policy    *toolpolicy.Resolver
	registry  *tools.Registry
	runner    *tools.Runner
	memory    *graphmem.Store
	skills    *personaskill.Store
	hooks     *captureHooks
	provider  *scriptedProvider
	events    *captureEvents
	cfg       Config
	driver    *Driver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem, err := graphmem.Open(":memory:")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	h := &harness{
		bus:       eventbus.New(),
		approvals: approval.New(),
		policy:    toolpolicy.New(),
		registry:  tools.NewRegistry(),
		memory:    mem,
		skills:    personaskill.New(nil),
		hooks:     newCaptureHooks(),
		provider:  &scriptedProvider{},
		events:    &captureEvents{},
		cfg:       DefaultConfig(),
	}
	h.runner = tools.NewRunner(h.registry, h.policy, toolpolicy.Context{}, tools.Config{AllowHighRisk: true})
	h.build()
	return h
}

func (h *harness) build() {
	h.driver = New(Deps{
		Bus:       h.bus,
		Approvals: h.approvals,
		Policy:    h.policy,
		Runner:    h.runner,
		Registry:  h.registry,
		Memory:    h.memory,
		Skills:    h.skills,
		Hooks:     h.hooks,
		Provider:  h.provider,
		Events:    h.events,
	}, h.cfg)
}

func (h *harness) registerEchoTool(name string) {
	h.registry.Register(&tools.Descriptor{
		Name:    name,
		Enabled: true,
		Risk:    tools.RiskLow,
		Handler: func(_ context.Context, input json.RawMessage) (any, error) {
			return map[string]any{"echoed": string(input)}, nil
		},
	})
}

func (h *harness) runAndWait(t *testing.T, sessionID, userID, text string) Outcome {
	t.Helper()
	started, _, err := h.driver.Admit(context.Background(), sessionID, userID, "test", text, "")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !started {
		t.Fatal("expected the first admit on an idle session to start immediately")
	}
	outcome, ok := h.hooks.wait(2 * time.Second)
	if !ok {
		t.Fatal("timed out waiting for post-execution hooks to fire")
	}
	return outcome
}

// captureHooks implements PostExecutionHooks by forwarding every Outcome
// onto a channel a test can read from.
type captureHooks struct {
	ch chan Outcome
}

func newCaptureHooks() *captureHooks {
	return &captureHooks{ch: make(chan Outcome, 8)}
}

func (c *captureHooks) Run(_ context.Context, outcome Outcome) {
	c.ch <- outcome
}

func (c *captureHooks) wait(timeout time.Duration) (Outcome, bool) {
	select {
	case o := <-c.ch:
		return o, true
	case <-time.After(timeout):
		return Outcome{}, false
	}
}

// captureEvents implements EventStore by recording every append in memory.
type captureEvents struct {
	mu      sync.Mutex
	records []EventRecord
}

func (c *captureEvents) Append(record EventRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

// scriptedProvider implements providers.LLMProvider by replaying one scripted
// response per call to Complete, in the order scripted.
type scriptedProvider struct {
	mu    sync.Mutex
	turns [][]*providers.CompletionChunk
	next  int
}

func (p *scriptedProvider) scriptText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, []*providers.CompletionChunk{{Text: text}})
}

func (p *scriptedProvider) scriptToolCall(id, name, inputJSON string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := &models.ToolCall{ID: id, Name: name, Input: json.RawMessage(inputJSON)}
	p.turns = append(p.turns, []*providers.CompletionChunk{{ToolCall: call}})
}

func (p *scriptedProvider) Complete(_ context.Context, _ *providers.CompletionRequest) (<-chan *providers.CompletionChunk, error) {
	p.mu.Lock()
	var chunks []*providers.CompletionChunk
	if p.next < len(p.turns) {
		chunks = p.turns[p.next]
		p.next++
	} else if len(p.turns) > 0 {
		chunks = p.turns[len(p.turns)-1]
	}
	p.mu.Unlock()

	out := make(chan *providers.CompletionChunk, len(chunks))
	for _, c := range chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func (p *scriptedProvider) Name() string { return "fake" }

func (p *scriptedProvider) Models() []providers.Model { return nil }

func (p *scriptedProvider) SupportsTools() bool { return true }
