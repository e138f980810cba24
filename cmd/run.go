package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/store"
)

// runFlags are shared by run and resume.
type runFlags struct {
	outPath       string
	seed          int64
	maxIters      int
	batchSize     int
	preplace      bool
	preplaceIters int
	preplacePop   int
	trace         bool
	checkpoint    bool
	previewPath   string
	previewScale  float64
	store         storeFlags
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.outPath, "out", "o", "", "Output layout path (default <layout>.opt.<ext>)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Random seed (overrides config)")
	cmd.Flags().IntVar(&f.maxIters, "max-iters", 0, "Max iterations (overrides config, 0 = adaptive)")
	cmd.Flags().IntVar(&f.batchSize, "batch", 0, "Iterations per progress report (overrides config)")
	cmd.Flags().BoolVar(&f.preplace, "preplace", false, "Run mayfly pre-placement before annealing")
	cmd.Flags().IntVar(&f.preplaceIters, "preplace-iters", 150, "Pre-placement iterations")
	cmd.Flags().IntVar(&f.preplacePop, "preplace-pop", 30, "Pre-placement population size")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "Write a JSONL snapshot trace under data-dir")
	cmd.Flags().BoolVar(&f.checkpoint, "checkpoint", false, "Save the best layout as a checkpoint")
	cmd.Flags().StringVar(&f.previewPath, "preview", "", "Write a PNG preview of the result")
	cmd.Flags().Float64Var(&f.previewScale, "preview-scale", 1, "Preview pixels per layout unit")
	f.store.register(cmd)
}

// apply copies the flags the user set onto j.
func (f *runFlags) apply(cmd *cobra.Command, j *job) {
	if cmd.Flags().Changed("seed") {
		j.Options.Seed = f.seed
	}
	if cmd.Flags().Changed("max-iters") {
		j.Options.Overrides.MaxIterations = f.maxIters
	}
	if cmd.Flags().Changed("batch") {
		j.Options.BatchSize = f.batchSize
	}
	if cmd.Flags().Changed("preplace") {
		j.Preplace = f.preplace
	}
	j.PreplaceIters = f.preplaceIters
	j.PreplacePop = f.preplacePop
	if f.trace {
		j.TraceDir = f.store.dataDir
	}
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run <layout>",
	Short: "Optimize a layout file",
	Long: `Loads a JSON or YAML layout, anneals it and writes the optimized layout.
Press Ctrl-C to stop early and keep the best layout found so far.`,
	Args: cobra.ExactArgs(1),
	RunE: runOptimization,
}

func init() {
	runOpts.register(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	layoutPath := args[0]
	state, err := layout.Load(layoutPath)
	if err != nil {
		return err
	}

	j := job{
		ID:         uuid.New().String(),
		LayoutPath: layoutPath,
		State:      state,
		Weights:    cfg.Weights,
		Options:    cfg.Options(),
	}
	runOpts.apply(cmd, &j)

	return execute(cmd.Context(), j, &runOpts)
}

// execute runs j, then writes the layout, preview and checkpoint.
func execute(ctx context.Context, j job, f *runFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	slog.Info("Starting optimization",
		"job_id", j.ID,
		"layout", j.LayoutPath,
		"components", len(j.State.Components),
		"beams", j.State.Beams.Len(),
		"seed", j.Options.Seed,
	)

	res, err := optimize(ctx, j)
	if err != nil {
		return err
	}

	outPath := f.outPath
	if outPath == "" {
		outPath = defaultOutPath(j.LayoutPath)
	}
	if err := layout.Save(outPath, res.State); err != nil {
		return err
	}

	if f.previewPath != "" {
		if err := writePreview(f.previewPath, res.State, f.previewScale); err != nil {
			return err
		}
		slog.Info("Wrote preview", "path", f.previewPath)
	}

	if f.checkpoint {
		checkpointStore, release, err := f.store.open(context.Background())
		if err != nil {
			return err
		}
		defer release()
		if err := checkpointStore.SaveCheckpoint(j.ID, res.Checkpoint); err != nil {
			return err
		}
		slog.Info("Checkpoint saved", "job_id", j.ID, "best_cost", res.Checkpoint.BestCost)
	}

	printSummary(res, outPath)
	if f.checkpoint {
		printField("job", j.ID)
	}
	if j.TraceDir != "" {
		printField("trace", store.TracePath(j.TraceDir, j.ID))
	}
	return nil
}

// defaultOutPath turns bench.yaml into bench.opt.yaml.
func defaultOutPath(layoutPath string) string {
	ext := filepath.Ext(layoutPath)
	if ext == "" {
		return layoutPath + ".opt.json"
	}
	return fmt.Sprintf("%s.opt%s", strings.TrimSuffix(layoutPath, ext), ext)
}
