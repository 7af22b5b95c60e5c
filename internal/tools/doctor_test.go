package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestHeuristicDoctorFlagsMissingHandler(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{Name: "broken", Risk: RiskLow, Enabled: true})

	findings := HeuristicDoctor{}.Diagnose(context.Background(), reg)
	found := false
	for _, f := range findings {
		if f.ToolName == "broken" && f.Severity == "error" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an error finding for the handlerless tool, got %+v", findings)
	}
}

func TestHeuristicDoctorFlagsUngatedHighRisk(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{
		Name:       "exec",
		Risk:       RiskHigh,
		Enabled:    true,
		Parameters: json.RawMessage(`{"type":"object"}`),
		Handler:    func(context.Context, json.RawMessage) (any, error) { return nil, nil },
	})

	findings := HeuristicDoctor{}.Diagnose(context.Background(), reg)
	if len(findings) != 1 || findings[0].Severity != "warning" {
		t.Fatalf("expected exactly one warning about missing capabilities, got %+v", findings)
	}
}

func TestHeuristicDoctorSilentOnCleanTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{
		Name:                 "clean",
		Risk:                 RiskHigh,
		Enabled:              true,
		Parameters:           json.RawMessage(`{"type":"object"}`),
		RequiredCapabilities: []string{"network"},
		Handler:              func(context.Context, json.RawMessage) (any, error) { return nil, nil },
	})

	findings := HeuristicDoctor{}.Diagnose(context.Background(), reg)
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %+v", findings)
	}
}

func TestHeuristicDoctorDiagnoseErrorRecognisesKnownPatterns(t *testing.T) {
	hint := HeuristicDoctor{}.DiagnoseError("exec", "exit status 1: permission denied")
	if hint == "exit status 1: permission denied" {
		t.Fatal("expected the permission-denied pattern to add a hint")
	}
}

func TestHeuristicDoctorDiagnoseErrorPassesThroughUnknownErrors(t *testing.T) {
	raw := "something unrecognisable happened"
	if hint := (HeuristicDoctor{}).DiagnoseError("exec", raw); hint != raw {
		t.Fatalf("expected unrecognised errors to pass through unchanged, got %q", hint)
	}
}
