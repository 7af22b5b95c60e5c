package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDetectRuntimePrefersDockerOverFirecracker(t *testing.T) {
	lookPath := func(name string) (string, error) {
		switch name {
		case "docker":
			return "/usr/bin/docker", nil
		case "firecracker":
			return "/usr/bin/firecracker", nil
		default:
			return "", errors.New("not found")
		}
	}
	if got := DetectRuntime(lookPath); got != RuntimeDocker {
		t.Fatalf("expected Docker to win over Firecracker, got %v", got)
	}
}

func TestDetectRuntimeFallsBackToFirecracker(t *testing.T) {
	lookPath := func(name string) (string, error) {
		if name == "firecracker" {
			return "/usr/bin/firecracker", nil
		}
		return "", errors.New("not found")
	}
	if got := DetectRuntime(lookPath); got != RuntimeFirecracker {
		t.Fatalf("expected Firecracker fallback, got %v", got)
	}
}

func TestDetectRuntimeFallsBackToNone(t *testing.T) {
	lookPath := func(string) (string, error) { return "", errors.New("not found") }
	if got := DetectRuntime(lookPath); got != RuntimeNone {
		t.Fatalf("expected None when nothing is available, got %v", got)
	}
}

func TestExecuteNativeFallbackRunsCommand(t *testing.T) {
	sb := New(RuntimeNone, time.Second, nil)
	result, err := sb.Execute(context.Background(), Request{Command: []string{"echo", "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.ExitCode != 0 {
		t.Fatalf("expected successful exit, got %+v", result)
	}
}

func TestExecuteTimesOut(t *testing.T) {
	sb := New(RuntimeNone, 10*time.Millisecond, nil)
	result, err := sb.Execute(context.Background(), Request{Command: []string{"sleep", "1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected timeout to report failure")
	}
}

func TestExecuteRejectsEmptyCommand(t *testing.T) {
	sb := New(RuntimeNone, time.Second, nil)
	if _, err := sb.Execute(context.Background(), Request{}); err == nil {
		t.Fatal("expected an error for an empty command")
	}
}

func TestExecuteDropsInvalidEnvNames(t *testing.T) {
	sb := New(RuntimeNone, time.Second, nil)
	result, err := sb.Execute(context.Background(), Request{
		Command: []string{"true"},
		Env:     map[string]string{"VALID_NAME": "1", "bad-name!": "2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success despite a dropped env var, got %+v", result)
	}
}

func TestExecuteExitCodeDefaultsToMinusOneOnFailure(t *testing.T) {
	sb := New(RuntimeNone, time.Second, nil)
	result, err := sb.Execute(context.Background(), Request{Command: []string{"false"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for `false`")
	}
	if result.ExitCode != 1 {
		t.Fatalf("expected exit code 1 from `false`, got %d", result.ExitCode)
	}
}
