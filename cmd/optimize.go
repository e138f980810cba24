package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/opt"
	"github.com/cwbudde/beamlayout/internal/render"
	"github.com/cwbudde/beamlayout/internal/store"
)

// progressLogInterval throttles progress log lines.
const progressLogInterval = time.Second

// job is one CLI optimization run.
type job struct {
	ID         string
	LayoutPath string
	State      *layout.State
	Weights    cost.Weights
	Options    opt.Options

	Preplace      bool
	PreplaceIters int
	PreplacePop   int

	// Resume, if set, seeds the run with the checkpoint's best poses.
	Resume *store.Checkpoint
	// TraceDir enables a JSONL snapshot trace under TraceDir/jobs/<ID>.
	TraceDir string
}

// config is the checkpoint copy of the job's settings.
func (j job) config() store.JobConfig {
	return store.JobConfig{
		LayoutPath: j.LayoutPath,
		Components: len(j.State.Components),
		Beams:      j.State.Beams.Len(),
		Weights:    j.Weights,
		Params:     j.Options.Overrides,
		Seed:       j.Options.Seed,
		Preplace:   j.Preplace,
	}
}

// result is what a finished run hands back to the command.
type result struct {
	Summary    opt.Summary
	State      *layout.State
	Checkpoint *store.Checkpoint
	Elapsed    time.Duration
	Preplaced  bool
	Snapshots  int
}

// optimize anneals j.State in place until a stop condition fires or ctx is
// cancelled. On cancellation the best layout found so far is committed and
// returned with reason "stopped".
func optimize(ctx context.Context, j job) (*result, error) {
	state := j.State
	if j.Resume != nil {
		if err := j.Resume.IsCompatible(j.config()); err != nil {
			return nil, err
		}
		state.ApplyPoses(j.Resume.BestPositions, j.Resume.BestAngles)
		slog.Info("Resuming from checkpoint", "job_id", j.Resume.JobID, "iteration", j.Resume.Iteration, "best_cost", j.Resume.BestCost)
	}

	res := &result{State: state}
	if j.Preplace {
		_, _, res.Preplaced = opt.ApplyPreplace(state, j.Weights, opt.NewMayfly(j.PreplaceIters, j.PreplacePop, j.Options.Seed))
	}

	var tw *store.TraceWriter
	if j.TraceDir != "" {
		var err error
		tw, err = store.NewTraceWriter(j.TraceDir, j.ID, j.Resume != nil)
		if err != nil {
			return nil, err
		}
		defer tw.Close()
	}

	a := opt.NewAnnealer(j.Options)
	traced := 0
	lastLog := time.Now()
	a.OnProgress = func(p opt.ProgressInfo) {
		if tw != nil {
			traced = appendTrace(tw, a, traced)
		}
		if time.Since(lastLog) < progressLogInterval {
			return
		}
		lastLog = time.Now()
		slog.Info("Progress",
			"iteration", p.Iteration,
			"best_cost", p.BestCost,
			"temperature", p.Temperature,
			"accept_rate", p.AcceptRate,
		)
	}
	a.OnComplete = func(s opt.Summary) { res.Summary = s }

	a.Initialize(state, j.Weights)
	if err := a.Start(); err != nil {
		return nil, fmt.Errorf("failed to start annealer: %w", err)
	}

	start := time.Now()
	if err := a.Run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		slog.Warn("Interrupted, keeping the best layout found so far")
		a.Finish(opt.ReasonStopped)
	}
	res.Elapsed = time.Since(start)

	if tw != nil {
		appendTrace(tw, a, traced)
	}
	res.Snapshots = a.SnapshotCount()
	res.Checkpoint = store.NewCheckpoint(
		j.ID,
		a.BestPositions(),
		a.BestAngles(),
		res.Summary.BestCost,
		res.Summary.InitialCost,
		res.Summary.Iterations,
		j.config(),
	)
	return res, nil
}

func appendTrace(tw *store.TraceWriter, a *opt.Annealer, done int) int {
	if err := tw.WriteSnapshots(a.SnapshotsFrom(done), true); err != nil {
		slog.Warn("Failed to write trace", "error", err)
	}
	return a.SnapshotCount()
}

// writePreview renders the state as a PNG at path.
func writePreview(path string, s *layout.State, scale float64) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, render.Preview(s, scale)); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	if err := store.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	return nil
}

// printSummary reports a finished run.
func printSummary(res *result, outPath string) {
	s := res.Summary
	fmt.Println(styleTitle.Render("Optimization finished"))
	printField("reason", s.Reason)
	printField("iterations", num("%d", s.Iterations))
	printField("cost", fmt.Sprintf("%s %s %s", num("%.4f", s.InitialCost), iconArrow, num("%.4f", s.BestCost)))
	printField("improvement", num("%.1f%%", s.ImprovementPercent))
	printField("elapsed", res.Elapsed.Round(time.Millisecond))
	if res.Preplaced {
		printField("preplace", "applied")
	}
	for _, term := range s.Breakdown.Terms() {
		if term.Value != 0 {
			printField(term.Name, styleDim.Render(fmt.Sprintf("%.4f", term.Value)))
		}
	}
	if s.Breakdown.HardViolations > 0 {
		printWarning("layout still violates hard constraints (%.0f)", s.Breakdown.HardViolations)
	}
	printSuccess("Wrote %s", outPath)
}
