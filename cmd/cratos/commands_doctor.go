package main

import (
	"context"
	"fmt"

	"github.com/cratos-ai/cratos/internal/sandbox"
	"github.com/cratos-ai/cratos/internal/tools"
	"github.com/spf13/cobra"
)

func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and report registry/sandbox health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "config: %s (model=%q)\n", configPath, cfg.Model)

	if _, err := buildPolicyResolver(cfg.Policy); err != nil {
		fmt.Fprintf(out, "policy: FAIL (%v)\n", err)
	} else {
		fmt.Fprintf(out, "policy: OK (%d rule(s) beyond defaults)\n", len(cfg.Policy))
	}

	if cfg.Anthropic.APIKey == "" && cfg.OpenAI.APIKey == "" {
		fmt.Fprintln(out, "provider: FAIL (no anthropic.api_key or openai.api_key configured)")
	} else {
		fmt.Fprintln(out, "provider: OK")
	}

	runtime := sandbox.DetectRuntime(nil)
	fmt.Fprintf(out, "sandbox: detected runtime %q\n", runtime)
	if runtime == sandbox.RuntimeNone {
		fmt.Fprintln(out, "sandbox: WARN no container runtime found; High-risk tools requiring isolation will run natively unless policy denies them")
	}

	registry := tools.NewRegistry()
	findings := tools.HeuristicDoctor{}.Diagnose(context.Background(), registry)
	if len(findings) == 0 {
		fmt.Fprintln(out, "registry: OK (no findings; registry currently has no tools registered)")
	}
	for _, f := range findings {
		fmt.Fprintf(out, "registry: %s %s: %s\n", f.Severity, f.ToolName, f.Message)
	}

	return nil
}
