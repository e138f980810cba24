package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Rect is an axis-aligned rectangle.
type Rect struct {
	Min r2.Vec `json:"min" yaml:"min"`
	Max r2.Vec `json:"max" yaml:"max"`
}

// NewRect builds a canonical rectangle from any two opposite corners.
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{
		Min: r2.Vec{X: math.Min(x0, x1), Y: math.Min(y0, y1)},
		Max: r2.Vec{X: math.Max(x0, x1), Y: math.Max(y0, y1)},
	}
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Area returns Width*Height.
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// Center returns the midpoint.
func (r Rect) Center() r2.Vec {
	return r2.Vec{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Empty reports whether r has no positive area.
func (r Rect) Empty() bool { return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y }

// Contains reports whether p lies inside r or on its border.
func (r Rect) Contains(p r2.Vec) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return r.Contains(o.Min) && r.Contains(o.Max)
}

// Overlaps reports whether r and o share interior area.
func (r Rect) Overlaps(o Rect) bool {
	return r.Min.X < o.Max.X && o.Min.X < r.Max.X && r.Min.Y < o.Max.Y && o.Min.Y < r.Max.Y
}

// Union returns the smallest rectangle containing both.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Min: r2.Vec{X: math.Min(r.Min.X, o.Min.X), Y: math.Min(r.Min.Y, o.Min.Y)},
		Max: r2.Vec{X: math.Max(r.Max.X, o.Max.X), Y: math.Max(r.Max.Y, o.Max.Y)},
	}
}

// Clamp moves p onto the nearest point of r.
func (r Rect) Clamp(p r2.Vec) r2.Vec {
	return r2.Vec{
		X: math.Max(r.Min.X, math.Min(r.Max.X, p.X)),
		Y: math.Max(r.Min.Y, math.Min(r.Max.Y, p.Y)),
	}
}

// DistanceSquared returns the squared distance from p to r, 0 when inside.
func (r Rect) DistanceSquared(p r2.Vec) float64 {
	return r2.Norm2(r2.Sub(p, r.Clamp(p)))
}

// EdgeDistance returns the distance from p to the nearest border of r.
// Points outside r return a negative value.
func (r Rect) EdgeDistance(p r2.Vec) float64 {
	return math.Min(
		math.Min(p.X-r.Min.X, r.Max.X-p.X),
		math.Min(p.Y-r.Min.Y, r.Max.Y-p.Y),
	)
}

// Corners returns the four corners counter-clockwise from Min.
func (r Rect) Corners() [4]r2.Vec {
	return [4]r2.Vec{
		r.Min,
		{X: r.Max.X, Y: r.Min.Y},
		r.Max,
		{X: r.Min.X, Y: r.Max.Y},
	}
}

// OrientedRect is a rectangle of the given size centered on Center and
// rotated by Angle degrees.
type OrientedRect struct {
	Center r2.Vec
	Width  float64
	Height float64
	Angle  float64
}

// Corners returns the four corners counter-clockwise.
func (o OrientedRect) Corners() [4]r2.Vec {
	hw, hh := o.Width/2, o.Height/2
	local := [4]r2.Vec{
		{X: -hw, Y: -hh},
		{X: hw, Y: -hh},
		{X: hw, Y: hh},
		{X: -hw, Y: hh},
	}
	var out [4]r2.Vec
	for i, p := range local {
		out[i] = r2.Add(o.Center, RotateVec(p, o.Angle))
	}
	return out
}

// AABB returns the axis-aligned box enclosing o.
func (o OrientedRect) AABB() Rect {
	c := o.Corners()
	box := Rect{Min: c[0], Max: c[0]}
	for _, p := range c[1:] {
		box = box.Union(Rect{Min: p, Max: p})
	}
	return box
}

// Overlaps reports whether two oriented rectangles share interior area,
// using the separating axis theorem. Touching edges do not overlap.
func (o OrientedRect) Overlaps(other OrientedRect) bool {
	a := o.Corners()
	b := other.Corners()
	axes := [4]r2.Vec{
		r2.Sub(a[1], a[0]),
		r2.Sub(a[3], a[0]),
		r2.Sub(b[1], b[0]),
		r2.Sub(b[3], b[0]),
	}
	for _, axis := range axes {
		if axis.X == 0 && axis.Y == 0 {
			continue
		}
		aMin, aMax := project(a, axis)
		bMin, bMax := project(b, axis)
		if aMax <= bMin+overlapEpsilon || bMax <= aMin+overlapEpsilon {
			return false
		}
	}
	return true
}

// OverlapsRect reports whether o overlaps the axis-aligned rectangle r.
func (o OrientedRect) OverlapsRect(r Rect) bool {
	return o.Overlaps(FromRect(r))
}

// InsideRect reports whether every corner of o lies inside r.
func (o OrientedRect) InsideRect(r Rect) bool {
	for _, p := range o.Corners() {
		if !r.Contains(p) {
			return false
		}
	}
	return true
}

// FromRect converts an axis-aligned rectangle into an OrientedRect.
func FromRect(r Rect) OrientedRect {
	return OrientedRect{Center: r.Center(), Width: r.Width(), Height: r.Height()}
}

const overlapEpsilon = 1e-9

func project(pts [4]r2.Vec, axis r2.Vec) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		d := r2.Dot(p, axis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}
