package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cratos-ai/cratos/internal/graphmem"
	"github.com/cratos-ai/cratos/internal/toolpolicy"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when --config is not supplied and
// CRATOS_CONFIG is unset.
const DefaultConfigPath = "cratos.yaml"

// Config is the on-disk shape cratos.yaml is unmarshalled into. It covers
// only what cmd/cratos needs to construct the orchestration core; channel
// adapter configuration is out of scope for this binary (spec.md §1).
type Config struct {
	Model   string `yaml:"model"`
	System  string `yaml:"system"`
	Anthropic struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"anthropic"`
	OpenAI struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"openai"`

	Database struct {
		MemoryPath    string `yaml:"memory_path"`
		ChroniclePath string `yaml:"chronicle_path"`
	} `yaml:"database"`

	Orchestrator struct {
		MaxIterations   int           `yaml:"max_iterations"`
		MaxTurns        int           `yaml:"max_turns"`
		MaxTokens       int           `yaml:"max_tokens"`
		ApprovalTimeout time.Duration `yaml:"approval_timeout"`
		QueueSoftCap    int           `yaml:"queue_soft_cap"`
	} `yaml:"orchestrator"`

	Policy []PolicyRuleConfig `yaml:"policy"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
}

// PolicyRuleConfig is the on-disk shape of one toolpolicy.Rule, per spec
// §6's "Policy config format": level is the snake_case enum name, pattern
// is a literal, prefix ("foo*"), or "*".
type PolicyRuleConfig struct {
	Level       string `yaml:"level"`
	Scope       string `yaml:"scope"`
	ToolPattern string `yaml:"tool_pattern"`
	Action      string `yaml:"action"`
}

// DefaultConfig returns a Config with every field at its spec-mandated
// default, for "cratos init" to write out and "cratos doctor"/"cratos
// serve" to fall back on when no file is present.
func DefaultConfig() Config {
	var cfg Config
	cfg.Model = "claude-sonnet-4-5"
	cfg.Database.MemoryPath = "cratos-memory.db"
	cfg.Database.ChroniclePath = "cratos-chronicle.db"
	cfg.Orchestrator.MaxIterations = 10
	cfg.Orchestrator.MaxTurns = 20
	cfg.Orchestrator.MaxTokens = 4000
	cfg.Orchestrator.ApprovalTimeout = 5 * time.Minute
	cfg.Orchestrator.QueueSoftCap = 10
	return cfg
}

// LoadConfig reads and parses path, falling back to DefaultConfig if the
// file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// resolveConfigPath applies the --config flag / CRATOS_CONFIG precedence.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CRATOS_CONFIG"); env != "" {
		return env
	}
	return DefaultConfigPath
}

// policyLevel maps a PolicyRuleConfig's snake_case level name to its
// toolpolicy.Level.
func policyLevel(name string) (toolpolicy.Level, error) {
	switch name {
	case "sandbox":
		return toolpolicy.LevelSandbox, nil
	case "group":
		return toolpolicy.LevelGroup, nil
	case "agent":
		return toolpolicy.LevelAgent, nil
	case "global":
		return toolpolicy.LevelGlobal, nil
	case "provider":
		return toolpolicy.LevelProvider, nil
	case "profile":
		return toolpolicy.LevelProfile, nil
	default:
		return 0, fmt.Errorf("unknown policy level %q", name)
	}
}

// buildPolicyResolver seeds a Resolver with spec §4.3's defaults and then
// layers the config file's rules on top.
func buildPolicyResolver(rules []PolicyRuleConfig) (*toolpolicy.Resolver, error) {
	resolver := toolpolicy.WithDefaults()
	for _, r := range rules {
		level, err := policyLevel(r.Level)
		if err != nil {
			return nil, err
		}
		var action toolpolicy.Action
		switch r.Action {
		case "allow":
			action = toolpolicy.ActionAllow
		case "deny":
			action = toolpolicy.ActionDeny
		case "require_approval":
			action = toolpolicy.ActionRequireApproval
		default:
			return nil, fmt.Errorf("unknown policy action %q", r.Action)
		}
		resolver.AddRule(toolpolicy.Rule{
			Level:       level,
			Scope:       r.Scope,
			ToolPattern: r.ToolPattern,
			Action:      action,
		})
	}
	return resolver, nil
}

// retrievalWeights returns the default Graph-RAG scoring weights; config
// does not currently expose overriding them.
func retrievalWeights() graphmem.Weights {
	return graphmem.DefaultWeights
}
