// Package main provides the CLI entry point for the Cratos orchestration core.
//
// Cratos turns an inbound chat message, however it arrived, into a bounded,
// observable, cancellable Execution: plan with an LLM, dispatch tool calls
// through the security policy and approval gate, retrieve Graph-RAG memory
// context, and stream the result back out. This binary wires the core's
// components together and exposes them over ACP/MCP for a channel adapter
// to drive.
//
// # Basic Usage
//
// Initialise local state and start serving:
//
//	cratos init
//	cratos serve --config cratos.yaml
//
// Validate configuration and dependency health:
//
//	cratos doctor --config cratos.yaml
//
// Inspect or reset persisted memory/chronicle state:
//
//	cratos data stats
//	cratos data clear
//
// Speak the core's line-delimited protocol directly over stdio:
//
//	cratos acp
//	cratos acp --mcp
//
// Generate keys and exercise the end-to-end session cipher:
//
//	cratos crypto keygen
//	cratos crypto encrypt --key <hex>
//
// # Environment Variables
//
//   - CRATOS_CONFIG: path to the YAML configuration file (default: cratos.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd assembles the root command and every subcommand. Split out
// of main so tests can exercise command wiring without calling os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cratos",
		Short: "Cratos - multi-channel AI orchestration core",
		Long: `Cratos turns inbound chat messages into bounded, observable,
cancellable Executions: LLM planning, policy-gated tool dispatch, approval
gating, and Graph-RAG memory retrieval.

Reachable standalone over ACP (JSON-lines on stdin/stdout) and MCP
(JSON-RPC 2.0).`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildInitCmd(),
		buildDoctorCmd(),
		buildDataCmd(),
		buildAcpCmd(),
		buildCryptoCmd(),
	)

	return rootCmd
}
