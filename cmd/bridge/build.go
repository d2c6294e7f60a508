package main

import (
	"fmt"
	"os"

	"github.com/OFFIS-RIT/rquest-bridge/internal/config"
	"github.com/OFFIS-RIT/rquest-bridge/internal/crate"
	"github.com/OFFIS-RIT/rquest-bridge/internal/source"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"

	"github.com/spf13/cobra"
)

type buildFlags struct {
	taskID       string
	queryPath    string
	distribution bool
	seedPath     string
	out          string
}

// buildCmd packages a single query file without talking to RQuest, S3 or
// the agent.
func buildCmd() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build one crate zip from a local query file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateCrate(); err != nil {
				return err
			}
			return buildOne(cmd, cfg, flags)
		},
	}

	cmd.Flags().StringVar(&flags.taskID, "task-id", "", "Task id recorded in the crate")
	cmd.Flags().StringVar(&flags.queryPath, "query", "", "Query JSON file to package")
	cmd.Flags().BoolVar(&flags.distribution, "distribution", false, "Mark the query as a distribution query")
	cmd.Flags().StringVar(&flags.seedPath, "seed", "", "Workflow crate (zip or ro-crate-metadata.json) to import")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "Output zip (default <task-id>.zip)")
	_ = cmd.MarkFlagRequired("task-id")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func buildOne(cmd *cobra.Command, cfg *config.Config, flags buildFlags) error {
	query, err := os.ReadFile(flags.queryPath)
	if err != nil {
		return fmt.Errorf("failed to read query: %w", err)
	}
	seed, err := loadSeed(flags.seedPath)
	if err != nil {
		return err
	}

	task := crate.Task{
		ID:             flags.taskID,
		QueryFile:      source.QueryFile,
		Query:          query,
		IsAvailability: !flags.distribution,
		DB:             cfg.Hutch.DB,
	}

	archive, err := crate.NewAssembler(cfg.Crate).Build(task, seed)
	if err != nil {
		return err
	}
	if dangling := archive.Graph.DanglingRefs(); len(dangling) > 0 {
		logger.Warn("[Build] Crate has dangling references", "refs", dangling)
	}

	out := flags.out
	if out == "" {
		out = flags.taskID + ".zip"
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := archive.WriteZip(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d entities)\n", out, task.Kind(), archive.Graph.Len())
	return nil
}
