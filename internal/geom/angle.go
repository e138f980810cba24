// Package geom provides the angle, vector and collision primitives used by
// the cost function and the annealer.
//
// Angles are in degrees, measured counter-clockwise from the +X axis and
// normalized to [0,360). Points and vectors are gonum r2.Vec values.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Component type names with special beam behavior.
const (
	TypeSource       = "source"
	TypeMirror       = "mirror"
	TypeBeamSplitter = "beamsplitter"
	TypeLens         = "lens"
	TypeDetector     = "detector"
)

// Beam splitter ports.
const (
	PortTransmitted = "transmitted"
	PortReflected   = "reflected"
)

// NormalizeAngle maps any angle in degrees onto [0,360).
func NormalizeAngle(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	// math.Mod can return 360 - tiny for tiny negative inputs
	if a >= 360 {
		a = 0
	}
	return a
}

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// UnitVector returns the unit direction for an angle in degrees.
// Quarter turns are exact so grid-aligned layouts stay on the grid.
func UnitVector(deg float64) r2.Vec {
	a := NormalizeAngle(deg)
	switch a {
	case 0:
		return r2.Vec{X: 1, Y: 0}
	case 90:
		return r2.Vec{X: 0, Y: 1}
	case 180:
		return r2.Vec{X: -1, Y: 0}
	case 270:
		return r2.Vec{X: 0, Y: -1}
	}
	rad := ToRadians(a)
	return r2.Vec{X: math.Cos(rad), Y: math.Sin(rad)}
}

// AngleOf returns the normalized direction of v in degrees.
// ok is false for a zero-length vector.
func AngleOf(v r2.Vec) (deg float64, ok bool) {
	if v.X == 0 && v.Y == 0 {
		return 0, false
	}
	return NormalizeAngle(ToDegrees(math.Atan2(v.Y, v.X))), true
}

// AngleBetween returns the direction from p to q in degrees.
func AngleBetween(p, q r2.Vec) (float64, bool) {
	return AngleOf(r2.Sub(q, p))
}

// AngleDiff returns the signed smallest rotation from a to b, in (-180,180].
func AngleDiff(a, b float64) float64 {
	d := NormalizeAngle(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

// AbsAngleDiff returns the unsigned angular deviation between a and b, in [0,180].
func AbsAngleDiff(a, b float64) float64 {
	return math.Abs(AngleDiff(a, b))
}

// Snap rounds v to the nearest multiple of grid. A non-positive grid is a no-op.
func Snap(v, grid float64) float64 {
	if grid <= 0 {
		return v
	}
	return math.Round(v/grid) * grid
}

// SnapVec snaps both coordinates of p to grid.
func SnapVec(p r2.Vec, grid float64) r2.Vec {
	return r2.Vec{X: Snap(p.X, grid), Y: Snap(p.Y, grid)}
}

// RotateVec rotates v counter-clockwise by deg degrees.
// Multiples of 90 degrees are applied exactly.
func RotateVec(v r2.Vec, deg float64) r2.Vec {
	a := NormalizeAngle(deg)
	switch a {
	case 0:
		return v
	case 90:
		return r2.Vec{X: -v.Y, Y: v.X}
	case 180:
		return r2.Vec{X: -v.X, Y: -v.Y}
	case 270:
		return r2.Vec{X: v.Y, Y: -v.X}
	}
	return r2.Rotate(v, ToRadians(a), r2.Vec{})
}

// RotateAbout rotates p around pivot by deg degrees.
func RotateAbout(p, pivot r2.Vec, deg float64) r2.Vec {
	return r2.Add(pivot, RotateVec(r2.Sub(p, pivot), deg))
}

// ExpectedOutput returns the direction a beam should leave a component with
// the given type, port and orientation when it arrives travelling at
// incoming degrees. Sources ignore incoming and emit along their emission
// direction, which callers pass as incoming.
//
// Mirrors reflect about their surface line (2*angle - incoming). Beam
// splitters transmit on the transmitted port and reflect on the reflected
// port. Every other type passes the beam straight through.
func ExpectedOutput(componentType, port string, angle, incoming float64) float64 {
	switch componentType {
	case TypeSource:
		return NormalizeAngle(incoming)
	case TypeMirror:
		return reflect(angle, incoming)
	case TypeBeamSplitter:
		if port == PortReflected {
			return reflect(angle, incoming)
		}
		return NormalizeAngle(incoming)
	default:
		return NormalizeAngle(incoming)
	}
}

func reflect(surface, incoming float64) float64 {
	return NormalizeAngle(2*surface - incoming)
}
