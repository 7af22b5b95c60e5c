package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cratos-ai/cratos/internal/approval"
	"github.com/cratos-ai/cratos/internal/chronicle"
	"github.com/cratos-ai/cratos/internal/eventbus"
	"github.com/cratos-ai/cratos/internal/graphmem"
	"github.com/cratos-ai/cratos/internal/observability"
	"github.com/cratos-ai/cratos/internal/orchestrator"
	"github.com/cratos-ai/cratos/internal/personaskill"
	"github.com/cratos-ai/cratos/internal/providers"
	"github.com/cratos-ai/cratos/internal/tools"
	"github.com/cratos-ai/cratos/internal/toolpolicy"
	"github.com/spf13/cobra"
)

// core bundles the constructed components buildCore wires together, plus
// the teardown function serve/acp defer.
type core struct {
	driver    *orchestrator.Driver
	bus       *eventbus.Bus
	registry  *tools.Registry
	runner    *tools.Runner
	memory    *graphmem.Store
	chronicle *chronicle.Store
	logger    *observability.Logger
	close     func()
}

// buildCore constructs every Orchestration Core component named in
// spec.md §2-4 from cfg and wires them into an orchestrator.Driver,
// following the Deps assembly pattern internal/orchestrator/driver.go
// documents. Tool bodies (exec, web_search, browser, ...) are out of
// scope for this core (spec.md §1); the registry starts empty and is
// populated by whatever caller embeds this binary as a library, or left
// for doctor/data to report on.
func buildCore(cfg Config) (*core, error) {
	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})

	memStore, err := graphmem.Open(cfg.Database.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	chronicleStore, err := chronicle.Open(cfg.Database.ChroniclePath)
	if err != nil {
		memStore.Close()
		return nil, fmt.Errorf("open chronicle store: %w", err)
	}

	policy, err := buildPolicyResolver(cfg.Policy)
	if err != nil {
		memStore.Close()
		chronicleStore.Close()
		return nil, fmt.Errorf("build policy: %w", err)
	}

	registry := tools.NewRegistry()
	runner := tools.NewRunner(registry, policy, toolpolicy.Context{}, tools.Config{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     120 * time.Second,
	})

	skills := personaskill.New(chronicleStore)
	hooks := chronicle.NewHooks(chronicleStore, chronicle.DefaultLawSet, skills, logger)

	var provider providers.LLMProvider
	switch {
	case cfg.Anthropic.APIKey != "":
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: cfg.Anthropic.APIKey})
		if err != nil {
			memStore.Close()
			chronicleStore.Close()
			return nil, fmt.Errorf("construct anthropic provider: %w", err)
		}
		provider = p
	case cfg.OpenAI.APIKey != "":
		provider = providers.NewOpenAIProvider(cfg.OpenAI.APIKey)
	default:
		memStore.Close()
		chronicleStore.Close()
		return nil, fmt.Errorf("no LLM provider configured: set anthropic.api_key or openai.api_key")
	}

	bus := eventbus.New()
	approvals := approval.New()

	driverCfg := orchestrator.DefaultConfig()
	driverCfg.Model = cfg.Model
	driverCfg.System = cfg.System
	if cfg.Orchestrator.MaxIterations > 0 {
		driverCfg.MaxIterations = cfg.Orchestrator.MaxIterations
	}
	if cfg.Orchestrator.MaxTurns > 0 {
		driverCfg.MaxTurns = cfg.Orchestrator.MaxTurns
	}
	if cfg.Orchestrator.MaxTokens > 0 {
		driverCfg.MaxTokens = cfg.Orchestrator.MaxTokens
	}
	if cfg.Orchestrator.ApprovalTimeout > 0 {
		driverCfg.ApprovalTimeout = cfg.Orchestrator.ApprovalTimeout
	}
	if cfg.Orchestrator.QueueSoftCap > 0 {
		driverCfg.QueueSoftCap = cfg.Orchestrator.QueueSoftCap
	}
	driverCfg.RetrievalWeights = retrievalWeights()

	driver := orchestrator.New(orchestrator.Deps{
		Bus:       bus,
		Approvals: approvals,
		Policy:    policy,
		Runner:    runner,
		Registry:  registry,
		Memory:    memStore,
		Skills:    skills,
		Hooks:     hooks,
		Provider:  provider,
		Logger:    logger,
	}, driverCfg)

	c := &core{
		driver:    driver,
		bus:       bus,
		registry:  registry,
		runner:    runner,
		memory:    memStore,
		chronicle: chronicleStore,
		logger:    logger,
	}
	c.close = func() {
		memStore.Close()
		chronicleStore.Close()
	}
	return c, nil
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration core, reachable over ACP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	slog.Info("cratos core started", "config", configPath, "model", cfg.Model)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runACPLoop(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
}
