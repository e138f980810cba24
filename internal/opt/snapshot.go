package opt

import (
	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// SnapshotInterval is the iteration cadence of recorded snapshots.
const SnapshotInterval = 10

// Snapshot is an immutable record of the layout at one iteration.
type Snapshot struct {
	Iteration int                `json:"iteration"`
	Cost      float64            `json:"cost"`
	Breakdown cost.Breakdown     `json:"breakdown"`
	Positions map[string]r2.Vec  `json:"positions"`
	Angles    map[string]float64 `json:"angles"`
}

func (a *Annealer) recordSnapshot() {
	a.snapshots = append(a.snapshots, Snapshot{
		Iteration: a.iteration,
		Cost:      a.currentCost,
		Breakdown: a.current,
		Positions: a.state.Positions(),
		Angles:    a.state.Angles(),
	})
}

// Snapshots returns deep copies of every recorded snapshot in iteration
// order.
func (a *Annealer) Snapshots() []Snapshot {
	return a.SnapshotsFrom(0)
}

// SnapshotsFrom returns deep copies of the snapshots recorded from index i
// on.
func (a *Annealer) SnapshotsFrom(i int) []Snapshot {
	if i < 0 {
		i = 0
	}
	if i >= len(a.snapshots) {
		return nil
	}
	out := make([]Snapshot, 0, len(a.snapshots)-i)
	for _, snap := range a.snapshots[i:] {
		out = append(out, snap.clone())
	}
	return out
}

// SnapshotCount returns the number of recorded snapshots.
func (a *Annealer) SnapshotCount() int { return len(a.snapshots) }

// SnapshotAt returns a copy of the i-th recorded snapshot.
func (a *Annealer) SnapshotAt(i int) (Snapshot, bool) {
	if i < 0 || i >= len(a.snapshots) {
		return Snapshot{}, false
	}
	return a.snapshots[i].clone(), true
}

// BestSnapshot returns a copy of the lowest-cost snapshot; ties go to the
// earliest.
func (a *Annealer) BestSnapshot() (Snapshot, bool) {
	if len(a.snapshots) == 0 {
		return Snapshot{}, false
	}
	best := 0
	for i, s := range a.snapshots {
		if s.Cost < a.snapshots[best].Cost {
			best = i
		}
	}
	return a.snapshots[best].clone(), true
}

func (s Snapshot) clone() Snapshot {
	s.Positions = copyPositions(s.Positions)
	s.Angles = copyAngles(s.Angles)
	return s
}

// ApplySnapshot writes a snapshot's poses onto comps. Ids missing from
// comps are ignored.
func (a *Annealer) ApplySnapshot(snap Snapshot, comps map[string]*layout.Component) {
	ApplySnapshot(snap, comps)
}

// ApplySnapshot writes a snapshot's poses onto comps without an Annealer,
// e.g. for snapshots read back from a trace.
func ApplySnapshot(snap Snapshot, comps map[string]*layout.Component) {
	for id, p := range snap.Positions {
		if c, ok := comps[id]; ok {
			c.Position = p
		}
	}
	for id, ang := range snap.Angles {
		if c, ok := comps[id]; ok {
			c.SetPose(layout.Pose{Position: c.Position, Angle: ang})
		}
	}
}
