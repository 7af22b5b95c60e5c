package toolpolicy

import "testing"

func TestResolveOrDefaultAllowsWhenNoRuleMatches(t *testing.T) {
	r := New()
	if got := r.ResolveOrDefault("read_file", Context{}); got != ActionAllow {
		t.Fatalf("expected ActionAllow default, got %v", got)
	}
}

func TestDefaultsRequireApprovalForExecAndBash(t *testing.T) {
	r := WithDefaults()

	if got := r.ResolveOrDefault("exec", Context{}); got != ActionRequireApproval {
		t.Fatalf("expected RequireApproval for exec, got %v", got)
	}
	if got := r.ResolveOrDefault("bash", Context{}); got != ActionRequireApproval {
		t.Fatalf("expected RequireApproval for bash, got %v", got)
	}
	if got := r.ResolveOrDefault("read_file", Context{}); got != ActionAllow {
		t.Fatalf("expected Allow for an unlisted tool, got %v", got)
	}
}

func TestSandboxRuleOutranksGlobalWildcard(t *testing.T) {
	r := New()
	r.AddRule(Rule{Level: LevelGlobal, Scope: "*", ToolPattern: "*", Action: ActionAllow})
	r.AddRule(Rule{Level: LevelSandbox, Scope: "docker", ToolPattern: "*", Action: ActionDeny})

	got := r.ResolveOrDefault("exec", Context{Sandbox: "docker"})
	if got != ActionDeny {
		t.Fatalf("expected the more specific Sandbox rule to win, got %v", got)
	}

	// Outside the docker sandbox the Global wildcard still applies.
	got = r.ResolveOrDefault("exec", Context{})
	if got != ActionAllow {
		t.Fatalf("expected Global wildcard to apply without a sandbox context, got %v", got)
	}
}

func TestPrefixPatternMatchesToolFamily(t *testing.T) {
	r := New()
	r.AddRule(Rule{Level: LevelGlobal, Scope: "*", ToolPattern: "git_*", Action: ActionRequireApproval})

	if got := r.ResolveOrDefault("git_push", Context{}); got != ActionRequireApproval {
		t.Fatalf("expected prefix match to apply, got %v", got)
	}
	if got := r.ResolveOrDefault("read_file", Context{}); got != ActionAllow {
		t.Fatalf("expected unrelated tool to fall through to default, got %v", got)
	}
}

func TestMostSpecificLevelWinsAmongMultipleMatches(t *testing.T) {
	r := New()
	r.AddRule(Rule{Level: LevelGlobal, Scope: "*", ToolPattern: "exec", Action: ActionRequireApproval})
	r.AddRule(Rule{Level: LevelAgent, Scope: "reviewer", ToolPattern: "exec", Action: ActionDeny})

	got := r.ResolveOrDefault("exec", Context{Agent: "reviewer"})
	if got != ActionDeny {
		t.Fatalf("expected Agent-level rule to outrank Global, got %v", got)
	}

	got = r.ResolveOrDefault("exec", Context{Agent: "planner"})
	if got != ActionRequireApproval {
		t.Fatalf("expected Global rule when Agent scope doesn't match, got %v", got)
	}
}
