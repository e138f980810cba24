package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/opt"
)

var (
	resumeOpts   runFlags
	resumeLayout string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume an optimization from its checkpoint",
	Long: `Loads the checkpoint of a previous run, applies its best poses to the
layout and anneals again with a fresh schedule. The checkpoint is updated
with the new result, so its best cost never gets worse.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeOpts.register(resumeCmd)
	resumeCmd.Flags().StringVar(&resumeLayout, "layout", "", "Layout file (default: the path stored in the checkpoint)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	checkpointStore, release, err := resumeOpts.store.open(context.Background())
	if err != nil {
		return err
	}
	cp, err := checkpointStore.LoadCheckpoint(jobID)
	release()
	if err != nil {
		return err
	}

	layoutPath := cp.Config.LayoutPath
	if resumeLayout != "" {
		layoutPath = resumeLayout
	}
	state, err := layout.Load(layoutPath)
	if err != nil {
		return err
	}

	j := job{
		ID:         jobID,
		LayoutPath: cp.Config.LayoutPath,
		State:      state,
		Weights:    cp.Config.Weights,
		Options: opt.Options{
			Seed:      cp.Config.Seed,
			BatchSize: cfg.Anneal.BatchSize,
			Overrides: cp.Config.Params,
		},
		Resume: cp,
	}
	resumeOpts.apply(cmd, &j)

	// resume always writes the checkpoint back
	resumeOpts.checkpoint = true
	return execute(cmd.Context(), j, &resumeOpts)
}
