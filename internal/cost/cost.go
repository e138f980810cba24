// Package cost scores a layout. Evaluation is pure: it reads the state and
// an optional overlay of candidate poses and never mutates either.
package cost

import (
	"github.com/cwbudde/beamlayout/internal/geom"
	"github.com/cwbudde/beamlayout/internal/layout"
)

// Penalty units and normalization constants.
const (
	ViolationUnit      = 1000.0
	FootprintNorm      = 10000.0
	PathLengthNorm     = 100.0
	BeamAngleTolerance = 1.0 // degrees
	BeamAngleUnit      = 500.0
	FixedLengthTol     = 0.1
	FixedLengthUnit    = 5000.0
	BeamCollisionUnit  = 200.0
)

// Violation multipliers, applied to ViolationUnit.
const (
	outsideMultiplier        = 1.0
	mountOutsideMultiplier   = 0.5
	mountComponentMultiplier = 0.3
	mountMountMultiplier     = 0.2
	overlapMultiplier        = 2.0
	mountCollisionWeight     = 0.5
)

// Weights scale the soft cost terms.
type Weights struct {
	CoM        float64 `json:"com" toml:"com"`
	Footprint  float64 `json:"footprint" toml:"footprint"`
	PathLength float64 `json:"pathLength" toml:"path_length"`
}

// DefaultWeights returns unit weights.
func DefaultWeights() Weights {
	return Weights{CoM: 1, Footprint: 1, PathLength: 1}
}

// Breakdown is a total cost with its named sub-costs.
type Breakdown struct {
	Total          float64 `json:"total"`
	CoM            float64 `json:"com"`
	Footprint      float64 `json:"footprint"`
	PathLength     float64 `json:"pathLength"`
	HardViolations float64 `json:"hardViolations"`
	BeamAngle      float64 `json:"beamAngle"`
	FixedLength    float64 `json:"fixedLength"`
	BeamCollision  float64 `json:"beamCollision"`
}

// Term is one labeled sub-cost.
type Term struct {
	Name  string
	Value float64
}

// Terms returns the sub-costs in a fixed order.
func (b Breakdown) Terms() []Term {
	return []Term{
		{"com", b.CoM},
		{"footprint", b.Footprint},
		{"pathLength", b.PathLength},
		{"hardViolations", b.HardViolations},
		{"beamAngle", b.BeamAngle},
		{"fixedLength", b.FixedLength},
		{"beamCollision", b.BeamCollision},
	}
}

// Evaluate scores the live state.
func Evaluate(s *layout.State, w Weights) Breakdown {
	return EvaluateOverlay(s, nil, w)
}

// EvaluateOverlay scores s with the poses in ov substituted for the live
// ones. It returns a zero Breakdown when nothing in s can move.
func EvaluateOverlay(s *layout.State, ov layout.Overlay, w Weights) Breakdown {
	if s == nil || !hasMovable(s) {
		return Breakdown{}
	}

	sc := newScene(s, ov)

	var b Breakdown
	b.CoM = comCost(sc, s.Constraints.MountingZone)
	b.Footprint = footprintCost(sc)
	b.PathLength = pathLengthCost(sc)
	b.HardViolations = hardViolations(sc, s.Constraints)
	b.BeamAngle = beamAnglePenalty(sc)
	b.FixedLength = fixedLengthPenalty(sc)
	b.BeamCollision = beamCollisionPenalty(sc, s.Constraints)

	b.Total = b.CoM*w.CoM + b.Footprint*w.Footprint + b.PathLength*w.PathLength +
		b.HardViolations + b.BeamAngle + b.FixedLength + b.BeamCollision
	return b
}

func hasMovable(s *layout.State) bool {
	for _, c := range s.Components {
		if c.Movable() || c.Rotatable() {
			return true
		}
	}
	return false
}

// item is a component resolved at its candidate pose.
type item struct {
	id       string
	comp     *layout.Component
	pose     layout.Pose
	body     geom.OrientedRect
	mount    geom.OrientedRect
	hasMount bool
}

// scene is the resolved view of a state plus overlay, in id order.
type scene struct {
	state *layout.State
	items []*item
	byID  map[string]*item
	segs  []layout.BeamSegment
}

func newScene(s *layout.State, ov layout.Overlay) *scene {
	ids := s.IDs()
	sc := &scene{
		state: s,
		items: make([]*item, 0, len(ids)),
		byID:  make(map[string]*item, len(ids)),
		segs:  s.Beams.All(),
	}
	for _, id := range ids {
		pose, c, _ := s.PoseOf(id, ov)
		it := &item{id: id, comp: c, pose: pose, body: c.Footprint(pose)}
		it.mount, it.hasMount = c.MountFootprint(pose)
		sc.items = append(sc.items, it)
		sc.byID[id] = it
	}
	return sc
}

// endpoints resolves both ends of a segment; ok is false if either is missing.
func (sc *scene) endpoints(seg layout.BeamSegment) (src, dst *item, ok bool) {
	src, ok1 := sc.byID[seg.SourceID]
	dst, ok2 := sc.byID[seg.TargetID]
	return src, dst, ok1 && ok2
}
