package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cratos-ai/cratos/internal/coreerr"
	"github.com/cratos-ai/cratos/internal/toolpolicy"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Config holds the Runner's construction-time settings, per spec §4.5.
type Config struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	AllowHighRisk  bool
	WorkingDir     string
}

// CallOptions are the per-call overrides spec §4.5 allows.
type CallOptions struct {
	Timeout        time.Duration
	SkipValidation bool
	DryRun         bool
}

// Call pairs a tool invocation with its options, for execute_sequence and
// execute_parallel.
type Call struct {
	ToolCallID string
	Name       string
	Input      json.RawMessage
	Options    CallOptions
}

// Runner is the Tool Runner (C5): validates, timeout-bounds, and executes
// tool calls against a Registry, consulting a toolpolicy.Resolver for
// high-risk gating.
type Runner struct {
	registry *Registry
	policy   *toolpolicy.Resolver
	policyCtx toolpolicy.Context
	cfg      Config
	schemas  map[string]*jsonschema.Schema
}

// NewRunner constructs a Runner. policy may be nil, in which case
// high-risk tools are gated solely by cfg.AllowHighRisk.
func NewRunner(registry *Registry, policy *toolpolicy.Resolver, policyCtx toolpolicy.Context, cfg Config) *Runner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 5 * time.Minute
	}
	return &Runner{
		registry:  registry,
		policy:    policy,
		policyCtx: policyCtx,
		cfg:       cfg,
		schemas:   make(map[string]*jsonschema.Schema),
	}
}

// Execute runs spec §4.5's seven-step algorithm for a single tool call.
func (r *Runner) Execute(ctx context.Context, call Call) (*Result, error) {
	start := time.Now()

	descriptor, err := r.registry.lookup(call.Name)
	if err != nil {
		return nil, err
	}
	if !descriptor.Enabled {
		return nil, coreerr.PermissionDenied("tool " + call.Name + " is disabled")
	}
	if descriptor.Risk == RiskHigh && !r.cfg.AllowHighRisk {
		action := toolpolicy.ActionAllow
		if r.policy != nil {
			action = r.policy.ResolveOrDefault(call.Name, r.policyCtx)
		}
		if action != toolpolicy.ActionAllow {
			return nil, coreerr.PermissionDenied("tool " + call.Name + " is high-risk and not allowed by policy")
		}
	}

	if !call.Options.SkipValidation {
		if err := r.validateInput(descriptor, call.Input); err != nil {
			return nil, coreerr.InvalidInput(err.Error())
		}
	}

	if call.Options.DryRun {
		var prospective any
		_ = json.Unmarshal(call.Input, &prospective)
		return okResult(call.ToolCallID, map[string]any{"dry_run": true, "input": prospective}, time.Since(start).Milliseconds()), nil
	}

	timeout := call.Options.Timeout
	if timeout <= 0 || timeout > r.cfg.MaxTimeout {
		timeout = r.cfg.MaxTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := descriptor.Handler(runCtx, call.Input)
		done <- outcome{output, err}
	}()

	select {
	case o := <-done:
		duration := time.Since(start).Milliseconds()
		if o.err != nil {
			return errorResult(call.ToolCallID, o.err.Error(), duration), nil
		}
		return okResult(call.ToolCallID, o.output, duration), nil
	case <-runCtx.Done():
		duration := time.Since(start).Milliseconds()
		return errorResult(call.ToolCallID, coreerr.TimeoutErr(duration).Error(), duration), nil
	}
}

// validateInput applies the default JSON-object requirement plus a
// tool-specific JSON Schema when the descriptor carries one; tool-specific
// semantics beyond schema shape stay opaque to the core, per spec §4.4.
func (r *Runner) validateInput(d *Descriptor, input json.RawMessage) error {
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return err
	}
	if _, ok := decoded.(map[string]any); !ok {
		return coreerr.InvalidInput("tool input must be a JSON object")
	}
	if len(d.Parameters) == 0 {
		return nil
	}
	schema, err := r.compileSchema(d.Name, d.Parameters)
	if err != nil {
		return err
	}
	return schema.Validate(decoded)
}

func (r *Runner) compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if cached, ok := r.schemas[name]; ok {
		return cached, nil
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	r.schemas[name] = compiled
	return compiled, nil
}

// ExecuteSequence runs calls in order, stopping at the first error.
func (r *Runner) ExecuteSequence(ctx context.Context, calls []Call) ([]*Result, error) {
	results := make([]*Result, 0, len(calls))
	for _, call := range calls {
		res, err := r.Execute(ctx, call)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if !res.Success {
			break
		}
	}
	return results, nil
}

// ExecuteParallel runs every call concurrently and returns a result (or a
// synthesized failure result) for each, preserving input order.
func (r *Runner) ExecuteParallel(ctx context.Context, calls []Call) []*Result {
	results := make([]*Result, len(calls))
	done := make(chan struct{}, len(calls))
	for i, call := range calls {
		go func(i int, call Call) {
			defer func() { done <- struct{}{} }()
			res, err := r.Execute(ctx, call)
			if err != nil {
				results[i] = errorResult(call.ToolCallID, err.Error(), 0)
				return
			}
			results[i] = res
		}(i, call)
	}
	for range calls {
		<-done
	}
	return results
}
