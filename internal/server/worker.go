package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/beamlayout/internal/opt"
	"github.com/cwbudde/beamlayout/internal/store"
)

// Pre-placement budget used when a job asks for it.
const (
	preplaceIters = 150
	preplacePop   = 30
)

// runJob drives the job's annealer batch by batch until it finishes, fails
// or is cancelled. Pause and resume requests are handled between batches.
// If checkpointStore is not nil and the job has CheckpointInterval > 0,
// checkpoints are saved periodically and once more at the end. If
// traceDir is not empty, snapshots are appended to the job's trace.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, traceDir string, jobID string, resume *store.Checkpoint) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !jm.start(jobID, cancel) {
		return nil
	}
	rt, _ := jm.runtime(jobID)
	if rt.layout == nil {
		err := errors.New("job has no layout")
		markJobFailed(jm, jobID, err)
		return err
	}

	state := rt.layout
	if resume != nil {
		state.ApplyPoses(resume.BestPositions, resume.BestAngles)
		slog.Info("Resuming from checkpoint", "job_id", jobID, "iteration", resume.Iteration, "best_cost", resume.BestCost)
	}
	if job.Config.Preplace {
		opt.ApplyPreplace(state, job.Config.Weights, opt.NewMayfly(preplaceIters, preplacePop, job.Config.Seed))
	}
	rt.setCurrent(state.Clone())

	annealer := opt.NewAnnealer(opt.Options{
		Seed:      job.Config.Seed,
		Overrides: job.Config.Params,
	})
	var summary opt.Summary
	annealer.OnComplete = func(s opt.Summary) { summary = s }
	annealer.Initialize(state, job.Config.Weights)
	if err := annealer.Start(); err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "layout", job.Config.LayoutPath, "components", job.Config.Components)
	jm.UpdateJob(jobID, func(j *Job) {
		j.InitialCost = annealer.InitialCost()
	})
	publishProgress(jm, rt, jobID, annealer)

	var trace *store.TraceWriter
	if traceDir != "" {
		tw, err := store.NewTraceWriter(traceDir, jobID, resume != nil)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
		} else {
			trace = tw
			defer trace.Close()
		}
	}
	traced := 0

	start := time.Now()

	// Start progress monitoring goroutine
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	// Start checkpoint monitoring goroutine if enabled
	checkpointDone := make(chan struct{})
	checkpointing := checkpointStore != nil && job.Config.CheckpointInterval > 0
	if checkpointing {
		go monitorCheckpoints(ctx, jm, checkpointStore, jobID, checkpointDone)
	} else {
		close(checkpointDone)
	}
	stopMonitors := func() {
		close(progressDone)
		if checkpointing {
			close(checkpointDone)
		}
	}

	cancelled := false
loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		case cmd := <-rt.commands:
			applyCommand(jm, jobID, annealer, cmd)
		default:
		}

		if annealer.Status() == opt.Paused {
			select {
			case <-ctx.Done():
			case cmd := <-rt.commands:
				applyCommand(jm, jobID, annealer, cmd)
			}
			continue
		}

		more := annealer.Step(0)
		publishProgress(jm, rt, jobID, annealer)
		if trace != nil {
			traced = writeTrace(trace, annealer, traced)
		}
		if !more {
			break
		}
	}

	if cancelled {
		annealer.Stop()
		annealer.Finish(opt.ReasonStopped)
	}
	stopMonitors()
	publishProgress(jm, rt, jobID, annealer)
	if trace != nil {
		writeTrace(trace, annealer, traced)
	}
	if checkpointing {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Error("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	if cancelled {
		markJobCancelled(jm, jobID)
		broadcastJob(jm, jobID)
		return ctx.Err()
	}

	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Reason = summary.Reason
		j.EndTime = &endTime
	})

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"reason", summary.Reason,
		"initial_cost", summary.InitialCost,
		"best_cost", summary.BestCost,
		"improvement_pct", summary.ImprovementPercent,
	)

	broadcastJob(jm, jobID)
	return nil
}

func applyCommand(jm *JobManager, jobID string, a *opt.Annealer, cmd command) {
	var err error
	next := StateRunning
	switch cmd {
	case cmdPause:
		err = a.Pause()
		next = StatePaused
	case cmdResume:
		err = a.Resume()
	}
	if err != nil {
		slog.Warn("Ignoring job command", "job_id", jobID, "error", err)
		return
	}
	jm.UpdateJob(jobID, func(j *Job) { j.State = next })
	slog.Info("Job state changed", "job_id", jobID, "state", next)
	broadcastJob(jm, jobID)
}

// publishProgress copies the annealer's progress into the job record.
func publishProgress(jm *JobManager, rt *jobRuntime, jobID string, a *opt.Annealer) {
	p := a.Progress()
	best := a.BestPositions()
	angles := a.BestAngles()
	jm.UpdateJob(jobID, func(j *Job) {
		j.Iterations = p.Iteration
		j.BestCost = p.BestCost
		j.Temperature = p.Temperature
		j.AcceptRate = p.AcceptRate
		j.BestPositions = best
		j.BestAngles = angles
	})
	rt.appendSnapshots(a.SnapshotsFrom(rt.snapshotCount()))
}

// writeTrace appends snapshots recorded since the last call and returns
// the new count.
func writeTrace(tw *store.TraceWriter, a *opt.Annealer, done int) int {
	if err := tw.WriteSnapshots(a.SnapshotsFrom(done), true); err != nil {
		slog.Warn("Failed to write trace entry", "error", err)
	}
	return a.SnapshotCount()
}

// monitorProgress periodically broadcasts progress events during optimization
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !broadcastJob(jm, jobID) {
				return
			}
		}
	}
}

// broadcastJob sends the job's current progress to stream subscribers.
func broadcastJob(jm *JobManager, jobID string) bool {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return false
	}
	jm.broadcaster.Broadcast(eventFromJob(job))
	return true
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

func setCancelled(j *Job) {
	endTime := time.Now()
	j.State = StateCancelled
	j.Reason = opt.ReasonStopped
	j.EndTime = &endTime
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	jm.UpdateJob(jobID, setCancelled)
	slog.Info("Job cancelled", "job_id", jobID)
}

// monitorCheckpoints periodically saves checkpoints during optimization
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	interval := time.Duration(job.Config.CheckpointInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint saves a checkpoint for the given job
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if len(job.BestPositions) == 0 {
		slog.Debug("Skipping checkpoint, no best layout yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(
		jobID,
		job.BestPositions,
		job.BestAngles,
		job.BestCost,
		job.InitialCost,
		job.Iterations,
		job.Config,
	)
	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"iteration", job.Iterations,
		"best_cost", job.BestCost,
	)
	return nil
}
