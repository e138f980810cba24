package opt

import (
	"math"

	"github.com/cwbudde/beamlayout/internal/geom"
	"github.com/cwbudde/beamlayout/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// Move tuning.
const (
	stretchProbability = 0.50
	rotateProbability  = 0.25

	minSegmentLength = 20.0
	translateGrid    = 5.0
	rotationSnap     = 1e-6
	angleEpsilon     = 1e-6
)

// compass holds the eight grid-aligned translate directions. Even indexes
// are axis-aligned, odd indexes diagonal.
var compass = [8]r2.Vec{
	{X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: -1, Y: 1},
	{X: -1, Y: 0}, {X: -1, Y: -1}, {X: 0, Y: -1}, {X: 1, Y: -1},
}

// quarterTurns are the offsets from a component's original angle that a
// rotate move may choose from.
var quarterTurns = [4]float64{0, 90, 180, 270}

// propose builds a candidate overlay. ok is false when the chosen move has
// nothing to act on.
func (a *Annealer) propose() (layout.Overlay, bool) {
	if a.state.Beams.Len() == 0 {
		if len(a.movable) == 0 {
			return a.rotateMove()
		}
		return a.freeMove()
	}
	r := a.rng.Float64()
	switch {
	case r < stretchProbability:
		return a.stretchMove()
	case r < stretchProbability+rotateProbability:
		return a.rotateMove()
	default:
		return a.translateMove()
	}
}

// fixed is the downstream stop predicate: walks never move or pass
// through fixed components.
func (a *Annealer) fixed(id string) bool {
	c, ok := a.state.Components[id]
	return !ok || !c.Movable()
}

// translateAll moves root and every movable component downstream of it by d.
func (a *Annealer) translateAll(ov layout.Overlay, root string, d r2.Vec) {
	ids := append([]string{root}, a.state.Beams.Downstream(root, a.fixed)...)
	for _, id := range ids {
		c := a.state.Components[id]
		ov[id] = layout.Pose{Position: r2.Add(c.Position, d), Angle: c.Angle}
	}
}

// stretchMove slides the target of a random segment along the segment
// direction, so the segment angle is unchanged.
func (a *Annealer) stretchMove() (layout.Overlay, bool) {
	var candidates []layout.BeamSegment
	for _, seg := range a.state.Beams.All() {
		src, ok1 := a.state.Components[seg.SourceID]
		dst, ok2 := a.state.Components[seg.TargetID]
		if ok1 && ok2 && dst.Movable() && src.Position != dst.Position {
			candidates = append(candidates, seg)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	seg := candidates[a.rng.Intn(len(candidates))]
	src := a.state.Components[seg.SourceID]
	dst := a.state.Components[seg.TargetID]

	dir := r2.Sub(dst.Position, src.Position)
	length := r2.Norm(dir)
	unit := r2.Scale(1/length, dir)

	var newLen float64
	if seg.IsFixedLength && seg.FixedLength > 0 {
		newLen = seg.FixedLength
	} else {
		delta := (a.rng.Float64()*2 - 1) * a.stepSize
		newLen = math.Max(minSegmentLength, length+delta)
	}
	if newLen == length {
		return nil, false
	}

	ov := make(layout.Overlay)
	a.translateAll(ov, seg.TargetID, r2.Scale(newLen-length, unit))
	return ov, true
}

// rotateMove picks a new quarter-turn offset from a component's original
// angle and carries the rotation through the downstream beam graph.
func (a *Annealer) rotateMove() (layout.Overlay, bool) {
	if len(a.rotatable) == 0 {
		return nil, false
	}
	id := a.rotatable[a.rng.Intn(len(a.rotatable))]
	c := a.state.Components[id]

	choices := a.angleChoices(c)
	if len(choices) == 0 {
		return nil, false
	}
	target := choices[a.rng.Intn(len(choices))]
	delta := geom.AngleDiff(c.Angle, target)

	ov := layout.Overlay{id: {Position: c.Position, Angle: target}}
	a.rotateDownstream(ov, id, delta)
	return ov, true
}

// angleChoices lists the allowed new angles for c, excluding its current one.
func (a *Annealer) angleChoices(c *layout.Component) []float64 {
	base, ok := a.originalAngles[c.ID]
	if !ok {
		base = c.Angle
	}
	var out []float64
	for _, off := range quarterTurns {
		cand := geom.NormalizeAngle(base + off)
		if geom.AbsAngleDiff(cand, c.Angle) < angleEpsilon {
			continue
		}
		if len(c.ValidAngles) > 0 && !containsAngle(c.ValidAngles, cand) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func containsAngle(set []float64, a float64) bool {
	for _, v := range set {
		if geom.AbsAngleDiff(v, a) < angleEpsilon {
			return true
		}
	}
	return false
}

// rotateDownstream rotates every outgoing segment below root by delta,
// keeping segment lengths, and turns downstream rotatable components by
// the same amount. Fixed components are neither moved nor expanded.
func (a *Annealer) rotateDownstream(ov layout.Overlay, root string, delta float64) {
	visited := map[string]bool{root: true}
	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		from := a.state.Components[id]
		newFrom := ov[id].Position

		for _, seg := range a.state.Beams.Outgoing(id) {
			next := seg.TargetID
			if visited[next] || a.fixed(next) {
				continue
			}
			visited[next] = true

			c := a.state.Components[next]
			offset := geom.RotateVec(r2.Sub(c.Position, from.Position), delta)
			pose := layout.Pose{
				Position: geom.SnapVec(r2.Add(newFrom, offset), rotationSnap),
				Angle:    c.Angle,
			}
			if c.Rotatable() {
				pose.Angle = geom.NormalizeAngle(c.Angle + delta)
			}
			ov[next] = pose
			stack = append(stack, next)
		}
	}
}

// translateMove shifts a component and its movable downstream chain by a
// grid-aligned compass displacement no longer than the step size (or one
// grid step), keeping every relative angle.
func (a *Annealer) translateMove() (layout.Overlay, bool) {
	if len(a.movable) == 0 {
		return nil, false
	}
	id := a.movable[a.rng.Intn(len(a.movable))]

	dir := a.rng.Intn(len(compass))
	steps := int(math.Floor(a.stepSize / (translateGrid * r2.Norm(compass[dir]))))
	if steps < 1 {
		// a single diagonal grid step is longer than stepSize
		dir &^= 1
		steps = 1
	}
	k := float64(1 + a.rng.Intn(steps))
	d := r2.Scale(k*translateGrid, compass[dir])

	ov := make(layout.Overlay)
	a.translateAll(ov, id, d)
	return ov, true
}

// freeMove moves one component in a random direction. It is used when
// there are no beams to preserve.
func (a *Annealer) freeMove() (layout.Overlay, bool) {
	id := a.movable[a.rng.Intn(len(a.movable))]
	c := a.state.Components[id]

	dir := geom.UnitVector(a.rng.Float64() * 360)
	mag := a.rng.Float64() * a.stepSize
	return layout.Overlay{
		id: {Position: r2.Add(c.Position, r2.Scale(mag, dir)), Angle: c.Angle},
	}, true
}
