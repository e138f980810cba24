package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/opt"
	"github.com/cwbudde/beamlayout/internal/store"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StatePaused    JobState = "paused"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the job can no longer change.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job is the externally visible record of an optimization job. The
// manager hands out copies; the worker is the only writer.
type Job struct {
	ID            string             `json:"id"`
	State         JobState           `json:"state"`
	Config        JobConfig          `json:"config"`
	BestPositions map[string]r2.Vec  `json:"bestPositions,omitempty"`
	BestAngles    map[string]float64 `json:"bestAngles,omitempty"`
	BestCost      float64            `json:"bestCost"`
	InitialCost   float64            `json:"initialCost"`
	Iterations    int                `json:"iterations"`
	Temperature   float64            `json:"temperature"`
	AcceptRate    float64            `json:"acceptRate"`
	Reason        string             `json:"reason,omitempty"`
	StartTime     time.Time          `json:"startTime"`
	EndTime       *time.Time         `json:"endTime,omitempty"`
	Error         string             `json:"error,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.BestPositions != nil {
		c.BestPositions = make(map[string]r2.Vec, len(j.BestPositions))
		for id, p := range j.BestPositions {
			c.BestPositions[id] = p
		}
	}
	if j.BestAngles != nil {
		c.BestAngles = make(map[string]float64, len(j.BestAngles))
		for id, a := range j.BestAngles {
			c.BestAngles[id] = a
		}
	}
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	return &c
}

type command int

const (
	cmdPause command = iota
	cmdResume
)

// jobRuntime is the worker-side state of a job that never leaves the server:
// the layout being optimized, the control channel and snapshots.
type jobRuntime struct {
	layout   *layout.State
	commands chan command
	cancel   context.CancelFunc

	mu        sync.RWMutex
	snapshots []opt.Snapshot
	current   *layout.State
}

// appendSnapshots adds snapshots copied out of the annealer. Stored
// snapshots are never modified afterwards.
func (rt *jobRuntime) appendSnapshots(snaps []opt.Snapshot) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.snapshots = append(rt.snapshots, snaps...)
}

func (rt *jobRuntime) snapshotCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.snapshots)
}

func (rt *jobRuntime) setCurrent(s *layout.State) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.current = s
}

// Snapshots returns the snapshots published by the worker.
func (rt *jobRuntime) Snapshots() []opt.Snapshot {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]opt.Snapshot(nil), rt.snapshots...)
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	runtimes    map[string]*jobRuntime
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		runtimes:    make(map[string]*jobRuntime),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job for state. The manager keeps a private
// clone of the layout for the worker.
func (jm *JobManager) CreateJob(config JobConfig, state *layout.State) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if state != nil {
		config.Components = len(state.Components)
		config.Beams = state.Beams.Len()
	}
	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}
	jm.jobs[job.ID] = job

	rt := &jobRuntime{commands: make(chan command, 4)}
	if state != nil {
		rt.layout = state.Clone()
		rt.current = state.Clone()
	}
	jm.runtimes[job.ID] = rt
	return job.clone()
}

// GetJob returns a copy of the job.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.clone(), true
}

// ListJobs returns copies of all jobs, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartTime.Equal(jobs[j].StartTime) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently running or paused
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning || job.State == StatePaused {
			runningJobs = append(runningJobs, job.clone())
		}
	}
	return runningJobs
}

func (jm *JobManager) runtime(id string) (*jobRuntime, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	rt, ok := jm.runtimes[id]
	return rt, ok
}

// Snapshots returns the snapshots recorded so far for a job.
func (jm *JobManager) Snapshots(id string) ([]opt.Snapshot, bool) {
	rt, ok := jm.runtime(id)
	if !ok {
		return nil, false
	}
	return rt.Snapshots(), true
}

// CurrentLayout returns a copy of the job's layout with its best poses
// applied.
func (jm *JobManager) CurrentLayout(id string) (*layout.State, bool) {
	rt, ok := jm.runtime(id)
	if !ok {
		return nil, false
	}
	rt.mu.RLock()
	cur := rt.current
	rt.mu.RUnlock()
	if cur == nil {
		return nil, false
	}
	s := cur.Clone()
	if job, ok := jm.GetJob(id); ok && job.BestPositions != nil {
		s.ApplyPoses(job.BestPositions, job.BestAngles)
	}
	return s, true
}

// ErrJobFinished is returned by control requests on terminal jobs.
var ErrJobFinished = errors.New("job already finished")

func (jm *JobManager) send(id string, cmd command) error {
	job, ok := jm.GetJob(id)
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		return ErrJobFinished
	}
	rt, _ := jm.runtime(id)
	select {
	case rt.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("job %s is busy, retry", id)
	}
}

// Pause asks the worker to pause after the current batch.
func (jm *JobManager) Pause(id string) error { return jm.send(id, cmdPause) }

// Resume asks a paused worker to continue.
func (jm *JobManager) Resume(id string) error { return jm.send(id, cmdResume) }

// Cancel stops the job's worker. The best layout found so far is kept. A
// job whose worker has not started is marked cancelled right away.
func (jm *JobManager) Cancel(id string) error {
	jm.mu.Lock()
	job, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		jm.mu.Unlock()
		return ErrJobFinished
	}
	cancel := jm.runtimes[id].cancel
	if cancel == nil {
		setCancelled(job)
		jm.mu.Unlock()
		slog.Info("Job cancelled", "job_id", id)
		return nil
	}
	jm.mu.Unlock()
	cancel()
	return nil
}

// start registers the worker's cancel function and moves the job to
// running. It reports false if the job already reached a terminal state.
func (jm *JobManager) start(id string, cancel context.CancelFunc) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	job, ok := jm.jobs[id]
	if !ok || job.State.Terminal() {
		return false
	}
	jm.runtimes[id].cancel = cancel
	job.State = StateRunning
	return true
}

