// Package store persists optimization checkpoints and snapshot traces.
package store

import "sort"

// Store persists job checkpoints. Implementations must be safe for
// concurrent use.
//
// Load and Delete return a *NotFoundError (errors.Is(err, ErrNotFound))
// for unknown jobs; other failures are wrapped with context.
type Store interface {
	// SaveCheckpoint overwrites the checkpoint of jobID atomically.
	SaveCheckpoint(jobID string, checkpoint *Checkpoint) error

	// LoadCheckpoint returns the checkpoint of jobID.
	LoadCheckpoint(jobID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for every stored checkpoint, newest
	// first.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the checkpoint and every artifact stored
	// with it (traces, previews).
	DeleteCheckpoint(jobID string) error
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint error.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "checkpoint not found: " + e.JobID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

func sortNewestFirst(infos []CheckpointInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
}
