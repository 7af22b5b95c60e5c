package main

import (
	"fmt"
	"os"

	"github.com/cratos-ai/cratos/internal/chronicle"
	"github.com/cratos-ai/cratos/internal/graphmem"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func buildInitCmd() *cobra.Command {
	var configPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default cratos.yaml and create the local memory/chronicle databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(configPath)
			return runInit(cmd, path, force)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to write the YAML configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(out, "config already exists at %s (use --force to overwrite)\n", path)
	} else {
		cfg := DefaultConfig()
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}

	memStore, err := graphmem.Open(cfg.Database.MemoryPath)
	if err != nil {
		return fmt.Errorf("initialise memory store: %w", err)
	}
	memStore.Close()
	fmt.Fprintf(out, "initialised memory store at %s\n", cfg.Database.MemoryPath)

	chronicleStore, err := chronicle.Open(cfg.Database.ChroniclePath)
	if err != nil {
		return fmt.Errorf("initialise chronicle store: %w", err)
	}
	chronicleStore.Close()
	fmt.Fprintf(out, "initialised chronicle store at %s\n", cfg.Database.ChroniclePath)

	return nil
}
