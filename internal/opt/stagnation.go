package opt

import (
	"log/slog"
	"math"
)

// StagnationTracker counts consecutive iterations without a significant
// improvement of the best cost.
type StagnationTracker struct {
	// Limit is the number of stale iterations that signals stagnation.
	// Zero disables detection.
	Limit int

	// Threshold is the minimum relative improvement that resets the count.
	// Zero means any strict improvement counts.
	Threshold float64

	best  float64
	stale int
}

// NewStagnationTracker creates a tracker for the given limit.
func NewStagnationTracker(limit int) *StagnationTracker {
	return &StagnationTracker{Limit: limit, best: math.Inf(1)}
}

// Update records the best cost after an iteration and returns true once
// the stale count reaches the limit.
func (s *StagnationTracker) Update(cost float64) bool {
	if s.improves(cost) {
		s.best = cost
		s.stale = 0
		return false
	}
	if cost < s.best {
		s.best = cost
	}
	s.stale++
	if s.Limit > 0 && s.stale >= s.Limit {
		slog.Debug("Stagnation detected", "stale", s.stale, "limit", s.Limit, "best", s.best)
		return true
	}
	return false
}

func (s *StagnationTracker) improves(cost float64) bool {
	if math.IsInf(s.best, 1) {
		return true
	}
	if s.Threshold <= 0 {
		return cost < s.best
	}
	if s.best == 0 {
		return false
	}
	return (s.best-cost)/math.Abs(s.best) >= s.Threshold
}

// Stale returns the current number of iterations without improvement.
func (s *StagnationTracker) Stale() int { return s.stale }

// Best returns the lowest cost seen.
func (s *StagnationTracker) Best() float64 { return s.best }

// Reset clears the tracker.
func (s *StagnationTracker) Reset() {
	s.best = math.Inf(1)
	s.stale = 0
}
