package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{-90, 270},
		{725, 5},
		{-1e-15, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		got := NormalizeAngle(tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "NormalizeAngle(%v)", tt.in)
		assert.True(t, got >= 0 && got < 360)
	}
}

func TestAngleDiff(t *testing.T) {
	assert.InDelta(t, 20.0, AngleDiff(350, 10), 1e-9)
	assert.InDelta(t, -20.0, AngleDiff(10, 350), 1e-9)
	assert.InDelta(t, 180.0, AbsAngleDiff(0, 180), 1e-9)
	assert.InDelta(t, 0.0, AbsAngleDiff(45, 405), 1e-9)
}

func TestAngleOf(t *testing.T) {
	a, ok := AngleBetween(r2.Vec{}, r2.Vec{X: 120})
	assert.True(t, ok)
	assert.InDelta(t, 0.0, a, 1e-9)

	a, ok = AngleOf(r2.Vec{X: 0, Y: -3})
	assert.True(t, ok)
	assert.InDelta(t, 270.0, a, 1e-9)

	_, ok = AngleOf(r2.Vec{})
	assert.False(t, ok, "zero vector has no direction")
}

func TestRotateVecQuarterTurnsExact(t *testing.T) {
	v := r2.Vec{X: 35, Y: -10}
	assert.Equal(t, r2.Vec{X: 10, Y: 35}, RotateVec(v, 90))
	assert.Equal(t, r2.Vec{X: -35, Y: 10}, RotateVec(v, 180))
	assert.Equal(t, r2.Vec{X: -10, Y: -35}, RotateVec(v, -90))
	assert.Equal(t, v, RotateVec(v, 720))

	rot := RotateVec(v, 30)
	assert.InDelta(t, r2.Norm(v), r2.Norm(rot), 1e-9)
}

func TestSnap(t *testing.T) {
	assert.Equal(t, 15.0, Snap(13, 5))
	assert.Equal(t, 13.2, Snap(13.2, 0))
	assert.Equal(t, r2.Vec{X: 10, Y: -5}, SnapVec(r2.Vec{X: 11.9, Y: -6.1}, 5))
}

func TestExpectedOutput(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		port     string
		angle    float64
		incoming float64
		want     float64
	}{
		{"source emits", TypeSource, "", 0, 30, 30},
		{"mirror at 45 folds east to north", TypeMirror, "", 45, 0, 90},
		{"mirror at 135 folds east to south", TypeMirror, "", 135, 0, 270},
		{"splitter transmits", TypeBeamSplitter, PortTransmitted, 45, 0, 0},
		{"splitter reflects", TypeBeamSplitter, PortReflected, 45, 0, 90},
		{"lens passes through", TypeLens, "", 90, 180, 180},
		{"unknown passes through", "widget", "", 10, 200, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ExpectedOutput(tt.typ, tt.port, tt.angle, tt.incoming), 1e-9)
		})
	}
}

func TestSegmentIntersectsRect(t *testing.T) {
	box := NewRect(10, 10, 20, 20)
	tests := []struct {
		name string
		p, q r2.Vec
		want bool
	}{
		{"crosses", r2.Vec{X: 0, Y: 15}, r2.Vec{X: 30, Y: 15}, true},
		{"misses above", r2.Vec{X: 0, Y: 25}, r2.Vec{X: 30, Y: 25}, false},
		{"vertical through", r2.Vec{X: 15, Y: 0}, r2.Vec{X: 15, Y: 30}, true},
		{"vertical beside", r2.Vec{X: 5, Y: 0}, r2.Vec{X: 5, Y: 30}, false},
		{"stops short", r2.Vec{X: 0, Y: 15}, r2.Vec{X: 9, Y: 15}, false},
		{"fully inside", r2.Vec{X: 12, Y: 12}, r2.Vec{X: 18, Y: 18}, true},
		{"diagonal corner miss", r2.Vec{X: 0, Y: 29}, r2.Vec{X: 9, Y: 20}, false},
		{"degenerate point inside", r2.Vec{X: 15, Y: 15}, r2.Vec{X: 15, Y: 15}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SegmentIntersectsRect(tt.p, tt.q, box))
		})
	}
}

func TestSegmentsIntersect(t *testing.T) {
	o := r2.Vec{}
	assert.True(t, SegmentsIntersect(o, r2.Vec{X: 10, Y: 10}, r2.Vec{X: 0, Y: 10}, r2.Vec{X: 10, Y: 0}))
	assert.False(t, SegmentsIntersect(o, r2.Vec{X: 10}, r2.Vec{Y: 5}, r2.Vec{X: 10, Y: 5}))
	// collinear overlap
	assert.True(t, SegmentsIntersect(o, r2.Vec{X: 10}, r2.Vec{X: 5}, r2.Vec{X: 15}))
	// collinear disjoint
	assert.False(t, SegmentsIntersect(o, r2.Vec{X: 4}, r2.Vec{X: 5}, r2.Vec{X: 15}))
}

func TestSegmentIntersectsOriented(t *testing.T) {
	diamond := OrientedRect{Center: r2.Vec{X: 50, Y: 0}, Width: 10, Height: 10, Angle: 45}

	assert.True(t, SegmentIntersectsOriented(r2.Vec{}, r2.Vec{X: 100}, diamond))
	assert.False(t, SegmentIntersectsOriented(r2.Vec{Y: 20}, r2.Vec{X: 100, Y: 20}, diamond))
	// enclosed segment touches no edge
	assert.True(t, SegmentIntersectsOriented(r2.Vec{X: 49}, r2.Vec{X: 51}, diamond))
}

func TestOrientedRectOverlaps(t *testing.T) {
	a := OrientedRect{Center: r2.Vec{}, Width: 10, Height: 10}
	b := OrientedRect{Center: r2.Vec{X: 9}, Width: 10, Height: 10}
	c := OrientedRect{Center: r2.Vec{X: 10}, Width: 10, Height: 10}
	d := OrientedRect{Center: r2.Vec{X: 9}, Width: 10, Height: 2, Angle: 45}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c), "touching edges do not overlap")
	assert.True(t, a.Overlaps(d))
	assert.True(t, a.OverlapsRect(NewRect(4, 4, 8, 8)))
	assert.False(t, a.OverlapsRect(NewRect(6, 6, 8, 8)))
}

func TestOrientedRectAABB(t *testing.T) {
	o := OrientedRect{Center: r2.Vec{X: 10, Y: 10}, Width: 20, Height: 4, Angle: 90}
	box := o.AABB()
	assert.InDelta(t, 4.0, box.Width(), 1e-9)
	assert.InDelta(t, 20.0, box.Height(), 1e-9)
	assert.True(t, o.InsideRect(NewRect(0, -5, 20, 25)))
	assert.False(t, o.InsideRect(NewRect(0, 0, 20, 19)))
}

func TestRectDistance(t *testing.T) {
	r := NewRect(0, 0, 10, 10)
	assert.Equal(t, 0.0, r.DistanceSquared(r2.Vec{X: 5, Y: 5}))
	assert.Equal(t, 25.0, r.DistanceSquared(r2.Vec{X: 13, Y: 14}))
	assert.Equal(t, 2.0, r.EdgeDistance(r2.Vec{X: 2, Y: 5}))
	assert.Less(t, r.EdgeDistance(r2.Vec{X: -1, Y: 5}), 0.0)
}
