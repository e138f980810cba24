package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/opt"
	"gonum.org/v1/gonum/spatial/r2"
)

// JobConfig holds the settings of an optimization job (checkpoint copy).
// It lives here rather than in the server package to avoid import cycles.
type JobConfig struct {
	LayoutPath         string       `json:"layoutPath"`
	Components         int          `json:"components"`
	Beams              int          `json:"beams"`
	Weights            cost.Weights `json:"weights"`
	Params             opt.Params   `json:"params"` // zero fields keep the adaptive value
	Seed               int64        `json:"seed"`
	Preplace           bool         `json:"preplace,omitempty"`
	CheckpointInterval int          `json:"checkpointInterval,omitempty"` // seconds, 0 = disabled
}

// Checkpoint is the best layout found by a job, saved so the job can be
// resumed or its result inspected later.
//
// Only the best poses are stored. The annealer's temperature, step size and
// snapshot history are not; a resumed job starts a fresh schedule from the
// checkpointed poses, so its best cost can only stay equal or improve.
type Checkpoint struct {
	JobID         string             `json:"jobId"`
	BestPositions map[string]r2.Vec  `json:"bestPositions"`
	BestAngles    map[string]float64 `json:"bestAngles"`
	BestCost      float64            `json:"bestCost"`
	InitialCost   float64            `json:"initialCost"`
	Iteration     int                `json:"iteration"`
	Timestamp     time.Time          `json:"timestamp"`
	Config        JobConfig          `json:"config"`
}

// CheckpointInfo is checkpoint metadata without the pose maps.
type CheckpointInfo struct {
	JobID      string    `json:"jobId"`
	BestCost   float64   `json:"bestCost"`
	Iteration  int       `json:"iteration"`
	Timestamp  time.Time `json:"timestamp"`
	LayoutPath string    `json:"layoutPath"`
	Components int       `json:"components"`
}

// NewCheckpoint creates a checkpoint stamped with the current time.
func NewCheckpoint(jobID string, positions map[string]r2.Vec, angles map[string]float64, bestCost, initialCost float64, iteration int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:         jobID,
		BestPositions: positions,
		BestAngles:    angles,
		BestCost:      bestCost,
		InitialCost:   initialCost,
		Iteration:     iteration,
		Timestamp:     time.Now(),
		Config:        config,
	}
}

// ToInfo strips a checkpoint down to its metadata.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:      c.JobID,
		BestCost:   c.BestCost,
		Iteration:  c.Iteration,
		Timestamp:  c.Timestamp,
		LayoutPath: c.Config.LayoutPath,
		Components: c.Config.Components,
	}
}

// Validate checks that the checkpoint is complete and self-consistent.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.BestPositions) == 0 {
		return &ValidationError{Field: "BestPositions", Reason: "cannot be empty"}
	}
	if len(c.BestAngles) != len(c.BestPositions) {
		return &ValidationError{
			Field:  "BestAngles",
			Reason: fmt.Sprintf("has %d entries for %d positions", len(c.BestAngles), len(c.BestPositions)),
		}
	}
	for id := range c.BestPositions {
		if _, ok := c.BestAngles[id]; !ok {
			return &ValidationError{Field: "BestAngles", Reason: "missing component " + id}
		}
	}
	if c.BestCost < 0 {
		return &ValidationError{Field: "BestCost", Reason: "cannot be negative"}
	}
	if c.InitialCost < 0 {
		return &ValidationError{Field: "InitialCost", Reason: "cannot be negative"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.LayoutPath == "" {
		return &ValidationError{Field: "Config.LayoutPath", Reason: "cannot be empty"}
	}
	if c.Config.Components <= 0 {
		return &ValidationError{Field: "Config.Components", Reason: "must be positive"}
	}
	if len(c.BestPositions) != c.Config.Components {
		return &ValidationError{
			Field:  "BestPositions",
			Reason: fmt.Sprintf("length mismatch: expected %d components, got %d", c.Config.Components, len(c.BestPositions)),
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks that the checkpoint was produced for the same layout
// shape as config.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.LayoutPath != config.LayoutPath {
		return &CompatibilityError{
			Field:    "LayoutPath",
			Expected: c.Config.LayoutPath,
			Actual:   config.LayoutPath,
		}
	}
	if c.Config.Components != config.Components {
		return &CompatibilityError{
			Field:    "Components",
			Expected: fmt.Sprintf("%d", c.Config.Components),
			Actual:   fmt.Sprintf("%d", config.Components),
		}
	}
	if c.Config.Beams != config.Beams {
		return &CompatibilityError{
			Field:    "Beams",
			Expected: fmt.Sprintf("%d", c.Config.Beams),
			Actual:   fmt.Sprintf("%d", config.Beams),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
