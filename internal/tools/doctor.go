package tools

import (
	"context"
	"strings"
)

// Finding is a single diagnostic observation about a registered tool.
type Finding struct {
	ToolName string
	Severity string // "info", "warning", "error"
	Message  string
}

// Doctor diagnoses registry health and enriches individual call failures.
// Implementations may check things a Descriptor can't express on its own:
// missing binaries, unreachable sandboxes, schema drift. Per DESIGN.md's
// Open Question decision, this is a pluggable interface rather than a
// single built-in mechanism.
type Doctor interface {
	Diagnose(ctx context.Context, registry *Registry) []Finding

	// DiagnoseError turns a tool call's raw error into a short hint for
	// the caller. The minimum behaviour is to pass the raw error through
	// unchanged.
	DiagnoseError(toolName, rawError string) string
}

// HeuristicDoctor is the default Doctor: it flags structural problems
// visible from the descriptor set alone, without invoking any tool.
type HeuristicDoctor struct{}

// Diagnose reports tools with empty schemas, high-risk tools left
// enabled with no required capabilities declared, and duplicate
// categories that collapse to the same normalized name.
func (HeuristicDoctor) Diagnose(_ context.Context, registry *Registry) []Finding {
	var findings []Finding
	for _, d := range registry.List() {
		if len(d.Parameters) == 0 {
			findings = append(findings, Finding{
				ToolName: d.Name,
				Severity: "warning",
				Message:  "tool has no input schema; validate_input will only check for a JSON object",
			})
		}
		if d.Risk == RiskHigh && d.Enabled && len(d.RequiredCapabilities) == 0 {
			findings = append(findings, Finding{
				ToolName: d.Name,
				Severity: "warning",
				Message:  "high-risk tool is enabled with no declared required capabilities",
			})
		}
		if d.Handler == nil {
			findings = append(findings, Finding{
				ToolName: d.Name,
				Severity: "error",
				Message:  "tool has no handler bound; execution will fail at runtime",
			})
		}
	}
	return findings
}

// errorHints matches on substrings commonly present in process exit output
// and sandbox errors. Checked in order; the first match wins.
var errorHints = []struct {
	substr string
	hint   string
}{
	{"context deadline exceeded", "the tool did not finish within its timeout; consider a narrower request or a longer timeout"},
	{"permission denied", "the sandbox or underlying OS rejected this operation; check the tool's required capabilities"},
	{"no such file or directory", "the tool referenced a path that does not exist in its sandbox root"},
	{"executable file not found", "the tool's binary is missing from the runner's PATH or sandbox image"},
	{"connection refused", "a dependent network service was unreachable from the sandbox"},
	{"exit status 1", "the tool exited with a generic failure status; inspect its stderr for detail"},
}

// DiagnoseError turns a raw tool-execution error into a short operator
// hint. toolName is informational only; the heuristic doesn't vary by
// tool. Falls through to the raw error when nothing matches.
func (HeuristicDoctor) DiagnoseError(toolName, rawError string) string {
	lower := strings.ToLower(rawError)
	for _, h := range errorHints {
		if strings.Contains(lower, h.substr) {
			return rawError + " (" + h.hint + ")"
		}
	}
	return rawError
}
