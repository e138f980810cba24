package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/opt"
	"gonum.org/v1/gonum/spatial/r2"
)

// TraceEntry is one line of trace.jsonl: an annealer snapshot plus the time
// it was written. Poses may be omitted to keep long traces small.
type TraceEntry struct {
	Iteration int                `json:"iteration"`
	Cost      float64            `json:"cost"`
	Timestamp time.Time          `json:"timestamp"`
	Breakdown *cost.Breakdown    `json:"breakdown,omitempty"`
	Positions map[string]r2.Vec  `json:"positions,omitempty"`
	Angles    map[string]float64 `json:"angles,omitempty"`
}

// EntryFromSnapshot converts a snapshot into a trace entry. With poses
// false only the iteration, cost and breakdown are kept.
func EntryFromSnapshot(snap opt.Snapshot, poses bool) TraceEntry {
	b := snap.Breakdown
	e := TraceEntry{
		Iteration: snap.Iteration,
		Cost:      snap.Cost,
		Timestamp: time.Now(),
		Breakdown: &b,
	}
	if poses {
		e.Positions = snap.Positions
		e.Angles = snap.Angles
	}
	return e
}

// Snapshot converts the entry back into an annealer snapshot.
func (e TraceEntry) Snapshot() opt.Snapshot {
	s := opt.Snapshot{
		Iteration: e.Iteration,
		Cost:      e.Cost,
		Positions: e.Positions,
		Angles:    e.Angles,
	}
	if e.Breakdown != nil {
		s.Breakdown = *e.Breakdown
	}
	return s
}

// TracePath returns the trace file location of a job.
func TracePath(baseDir, jobID string) string {
	return filepath.Join(baseDir, "jobs", jobID, "trace.jsonl")
}

// TraceWriter appends entries to a job's trace.jsonl. It buffers writes
// and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter opens <baseDir>/jobs/<jobID>/trace.jsonl, truncating it
// unless append is true.
func NewTraceWriter(baseDir, jobID string, append bool) (*TraceWriter, error) {
	path := TracePath(baseDir, jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write buffers one entry.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// WriteSnapshots buffers one entry per snapshot.
func (tw *TraceWriter) WriteSnapshots(snaps []opt.Snapshot, poses bool) error {
	for _, snap := range snaps {
		if err := tw.Write(EntryFromSnapshot(snap, poses)); err != nil {
			return fmt.Errorf("iteration %d: %w", snap.Iteration, err)
		}
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the trace file path.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads a job's trace.jsonl line by line.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of a job. A missing trace is a
// *NotFoundError.
func NewTraceReader(baseDir, jobID string) (*TraceReader, error) {
	file, err := os.Open(TracePath(baseDir, jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// entries with poses for large layouts can exceed the default line size
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry, or io.EOF at the end.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads every remaining entry.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes a job's trace file. A missing file is not an error.
func DeleteTrace(baseDir, jobID string) error {
	err := os.Remove(TracePath(baseDir, jobID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
