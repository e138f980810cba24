package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const epsilon = 1e-9

// SegmentIntersectsRect reports whether the segment p-q touches the
// axis-aligned rectangle r, using Liang-Barsky parametric clipping.
// Segments parallel to an axis are handled by the p == 0 branch.
func SegmentIntersectsRect(p, q r2.Vec, r Rect) bool {
	dx := q.X - p.X
	dy := q.Y - p.Y

	t0, t1 := 0.0, 1.0
	ps := [4]float64{-dx, dx, -dy, dy}
	qs := [4]float64{p.X - r.Min.X, r.Max.X - p.X, p.Y - r.Min.Y, r.Max.Y - p.Y}

	for i := 0; i < 4; i++ {
		if math.Abs(ps[i]) < epsilon {
			// parallel to this boundary: reject if outside it
			if qs[i] < 0 {
				return false
			}
			continue
		}
		t := qs[i] / ps[i]
		if ps[i] < 0 {
			if t > t1 {
				return false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return false
			}
			if t < t1 {
				t1 = t
			}
		}
	}
	return t0 <= t1
}

// orientation returns 0 for collinear, 1 for clockwise, 2 for counter-clockwise.
func orientation(a, b, c r2.Vec) int {
	v := r2.Cross(r2.Sub(b, a), r2.Sub(c, b))
	if math.Abs(v) < epsilon {
		return 0
	}
	if v < 0 {
		return 1
	}
	return 2
}

// onSegment reports whether b lies on segment a-c, given a, b, c collinear.
func onSegment(a, b, c r2.Vec) bool {
	return b.X <= math.Max(a.X, c.X)+epsilon && b.X >= math.Min(a.X, c.X)-epsilon &&
		b.Y <= math.Max(a.Y, c.Y)+epsilon && b.Y >= math.Min(a.Y, c.Y)-epsilon
}

// SegmentsIntersect reports whether segments p1-q1 and p2-q2 touch,
// including collinear overlap.
func SegmentsIntersect(p1, q1, p2, q2 r2.Vec) bool {
	o1 := orientation(p1, q1, p2)
	o2 := orientation(p1, q1, q2)
	o3 := orientation(p2, q2, p1)
	o4 := orientation(p2, q2, q1)

	if o1 != o2 && o3 != o4 {
		return true
	}

	switch {
	case o1 == 0 && onSegment(p1, p2, q1):
		return true
	case o2 == 0 && onSegment(p1, q2, q1):
		return true
	case o3 == 0 && onSegment(p2, p1, q2):
		return true
	case o4 == 0 && onSegment(p2, q1, q2):
		return true
	}
	return false
}

// PointInPolygon reports whether p lies strictly inside poly (ray casting).
func PointInPolygon(p r2.Vec, poly []r2.Vec) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// SegmentIntersectsPolygon reports whether segment p-q crosses any edge of
// poly or lies entirely inside it.
func SegmentIntersectsPolygon(p, q r2.Vec, poly []r2.Vec) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		if SegmentsIntersect(p, q, poly[i], poly[(i+1)%n]) {
			return true
		}
	}
	return PointInPolygon(p, poly) || PointInPolygon(q, poly)
}

// SegmentIntersectsOriented reports whether segment p-q touches o.
func SegmentIntersectsOriented(p, q r2.Vec, o OrientedRect) bool {
	c := o.Corners()
	return SegmentIntersectsPolygon(p, q, c[:])
}
