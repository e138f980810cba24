package cost

import (
	"math"

	"github.com/cwbudde/beamlayout/internal/geom"
	"github.com/cwbudde/beamlayout/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// comCost is the squared distance from the mass-weighted centroid to the
// mounting zone.
func comCost(sc *scene, zone *geom.Rect) float64 {
	if zone == nil || len(sc.items) == 0 {
		return 0
	}
	var sum r2.Vec
	var mass float64
	for _, it := range sc.items {
		m := math.Max(it.comp.Mass, 0)
		sum = r2.Add(sum, r2.Scale(m, it.pose.Position))
		mass += m
	}
	if mass <= 0 {
		// massless layouts fall back to the plain centroid
		sum = r2.Vec{}
		for _, it := range sc.items {
			sum = r2.Add(sum, it.pose.Position)
		}
		mass = float64(len(sc.items))
	}
	centroid := r2.Scale(1/mass, sum)
	return zone.DistanceSquared(centroid)
}

func footprintCost(sc *scene) float64 {
	if len(sc.items) == 0 {
		return 0
	}
	box := sc.items[0].body.AABB()
	for _, it := range sc.items[1:] {
		box = box.Union(it.body.AABB())
	}
	return box.Area() / FootprintNorm
}

func pathLengthCost(sc *scene) float64 {
	var total float64
	for _, seg := range sc.segs {
		src, dst, ok := sc.endpoints(seg)
		if !ok {
			continue
		}
		total += r2.Norm(r2.Sub(dst.pose.Position, src.pose.Position))
	}
	return total / PathLengthNorm
}

func hardViolations(sc *scene, cons layout.Constraints) float64 {
	ws := cons.Workspace
	keepOuts := cons.ActiveKeepOuts()
	var v float64

	for i, it := range sc.items {
		if !it.body.InsideRect(ws) {
			v += outsideMultiplier
		}
		for _, z := range keepOuts {
			if it.body.OverlapsRect(z.Bounds) {
				v += outsideMultiplier
			}
		}

		if it.hasMount {
			if !it.mount.InsideRect(ws) {
				v += mountOutsideMultiplier
			}
			for _, z := range keepOuts {
				if it.mount.OverlapsRect(z.Bounds) {
					v += mountOutsideMultiplier
				}
			}
			for j, other := range sc.items {
				if i != j && it.mount.Overlaps(other.body) {
					v += mountComponentMultiplier
				}
			}
		}

		for _, other := range sc.items[i+1:] {
			if it.body.Overlaps(other.body) {
				v += overlapMultiplier
			}
			if it.hasMount && other.hasMount && it.mount.Overlaps(other.mount) {
				v += mountMountMultiplier
			}
		}
	}
	return v * ViolationUnit
}

// beamAnglePenalty walks the beam graph from every source, comparing each
// segment's realized direction with the direction the emitting component
// should produce for the beam that reached it.
func beamAnglePenalty(sc *scene) float64 {
	type front struct {
		id       string
		incoming float64
	}

	var stack []front
	for _, it := range sc.items {
		if it.comp.IsSource() {
			stack = append(stack, front{id: it.id, incoming: it.comp.EmissionDirection(it.pose)})
		}
	}
	// pop sources in id order
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}

	beams := sc.state.Beams
	visited := make(map[int]bool)
	var penalty float64
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, idx := range beams.OutgoingIndexes(f.id) {
			if visited[idx] {
				continue
			}
			visited[idx] = true
			seg := beams.At(idx)

			src, dst, ok := sc.endpoints(seg)
			if !ok {
				continue
			}
			realized, ok := geom.AngleBetween(src.pose.Position, dst.pose.Position)
			if !ok {
				continue
			}
			expected := geom.ExpectedOutput(src.comp.Type, seg.SourcePort, src.pose.Angle, f.incoming)
			if dev := geom.AbsAngleDiff(realized, expected); dev > BeamAngleTolerance {
				penalty += BeamAngleUnit * dev / 90
			}
			stack = append(stack, front{id: dst.id, incoming: realized})
		}
	}
	return penalty
}

func fixedLengthPenalty(sc *scene) float64 {
	var penalty float64
	for _, seg := range sc.segs {
		if !seg.IsFixedLength || seg.FixedLength <= 0 {
			continue
		}
		src, dst, ok := sc.endpoints(seg)
		if !ok {
			continue
		}
		actual := r2.Norm(r2.Sub(dst.pose.Position, src.pose.Position))
		if dev := math.Abs(actual - seg.FixedLength); dev > FixedLengthTol {
			penalty += FixedLengthUnit * dev / seg.FixedLength
		}
	}
	return penalty
}

func beamCollisionPenalty(sc *scene, cons layout.Constraints) float64 {
	keepOuts := cons.ActiveKeepOuts()
	var hits float64
	for _, seg := range sc.segs {
		src, dst, ok := sc.endpoints(seg)
		if !ok {
			continue
		}
		p, q := src.pose.Position, dst.pose.Position
		if p == q {
			continue
		}
		for _, it := range sc.items {
			if it == src || it == dst {
				continue
			}
			if geom.SegmentIntersectsOriented(p, q, it.body) {
				hits++
			}
			if it.hasMount && geom.SegmentIntersectsOriented(p, q, it.mount) {
				hits += mountCollisionWeight
			}
		}
		for _, z := range keepOuts {
			if geom.SegmentIntersectsRect(p, q, z.Bounds) {
				hits++
			}
		}
	}
	return hits * BeamCollisionUnit
}
