package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cratos-ai/cratos/internal/providers"
	"github.com/cratos-ai/cratos/internal/tools"
)

// descriptorTool adapts a *tools.Descriptor (C4's catalogue entry) to the
// providers.Tool interface the LLM clients in internal/providers expect,
// so the enabled-tool-schema translation step of spec §4.10 can reuse
// those clients unmodified. The clients only ever call Name,
// Description, and Schema to build the wire-level tool definition they
// hand to the model; tool dispatch itself always goes through the Tool
// Runner directly, so Execute here is unreachable in practice.
type descriptorTool struct {
	d *tools.Descriptor
}

func (t descriptorTool) Name() string            { return t.d.Name }
func (t descriptorTool) Description() string     { return t.d.Description }
func (t descriptorTool) Schema() json.RawMessage { return t.d.Parameters }

func (t descriptorTool) Execute(ctx context.Context, params json.RawMessage) (*providers.ToolResult, error) {
	return nil, fmt.Errorf("orchestrator: descriptorTool.Execute called for %q; tool dispatch belongs to the Tool Runner, not the provider layer", t.d.Name)
}

// translateTools builds the providers.Tool list a CompletionRequest advertises
// to the LLM from the registry's currently enabled descriptors.
func translateTools(descriptors []*tools.Descriptor) []providers.Tool {
	out := make([]providers.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, descriptorTool{d: d})
	}
	return out
}
