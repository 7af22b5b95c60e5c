package main

import (
	"fmt"

	"github.com/cratos-ai/cratos/internal/graphmem"
	"github.com/spf13/cobra"
)

func buildDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Inspect or reset persisted Graph-RAG memory state",
	}
	cmd.AddCommand(buildDataStatsCmd(), buildDataClearCmd())
	return cmd
}

func buildDataStatsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print row counts for the memory store's tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			store, err := graphmem.Open(cfg.Database.MemoryPath)
			if err != nil {
				return fmt.Errorf("open memory store: %w", err)
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "turns:              %d\n", stats.Turns)
			fmt.Fprintf(out, "entities:           %d\n", stats.Entities)
			fmt.Fprintf(out, "turn-entity edges:  %d\n", stats.TurnEntityEdges)
			fmt.Fprintf(out, "co-occurrences:     %d\n", stats.Cooccurrences)
			fmt.Fprintf(out, "explicit memories:  %d\n", stats.ExplicitMemories)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildDataClearCmd() *cobra.Command {
	var configPath string
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all indexed turns, entities, and explicit memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear memory without --yes")
			}
			cfg, err := LoadConfig(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			store, err := graphmem.Open(cfg.Database.MemoryPath)
			if err != nil {
				return fmt.Errorf("open memory store: %w", err)
			}
			defer store.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "memory store cleared")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the destructive clear")
	return cmd
}
