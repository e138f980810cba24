// Package layout holds the mutable layout state the optimizer works on:
// components keyed by id, the directed beam graph between them and the
// workspace constraints.
//
// State.Components is the only owner of component data. Beam segments,
// overlays and snapshots refer to components by id.
package layout

import (
	"math"

	"github.com/cwbudde/beamlayout/internal/geom"
	"gonum.org/v1/gonum/spatial/r2"
)

// Size is a component's footprint before rotation.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// MountZone is an optional clearance rectangle around a component.
// Padding grows the footprint on every side, Offset shifts it in the
// component's local frame.
type MountZone struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Padding float64 `json:"padding" yaml:"padding"`
	Offset  r2.Vec  `json:"offset" yaml:"offset"`
}

// Component is a placeable item on the workspace.
type Component struct {
	ID            string    `json:"id" yaml:"id"`
	Type          string    `json:"type" yaml:"type"`
	Position      r2.Vec    `json:"position" yaml:"position"`
	Angle         float64   `json:"angle" yaml:"angle"`
	Mass          float64   `json:"mass" yaml:"mass"`
	Size          Size      `json:"size" yaml:"size"`
	EmissionAngle float64   `json:"emissionAngle,omitempty" yaml:"emissionAngle,omitempty"`
	IsFixed       bool      `json:"isFixed,omitempty" yaml:"isFixed,omitempty"`
	IsAngleFixed  bool      `json:"isAngleFixed,omitempty" yaml:"isAngleFixed,omitempty"`
	MountZone     MountZone `json:"mountZone" yaml:"mountZone"`
	ValidAngles   []float64 `json:"validAngles,omitempty" yaml:"validAngles,omitempty"`
}

// Pose is a position and orientation.
type Pose struct {
	Position r2.Vec  `json:"position"`
	Angle    float64 `json:"angle"`
}

// Pose returns the component's live pose.
func (c *Component) Pose() Pose {
	return Pose{Position: c.Position, Angle: c.Angle}
}

// SetPose writes p onto the component, normalizing the angle.
func (c *Component) SetPose(p Pose) {
	c.Position = p.Position
	c.Angle = geom.NormalizeAngle(p.Angle)
}

// IsSource reports whether the component emits a beam.
func (c *Component) IsSource() bool {
	return c.Type == geom.TypeSource
}

// Movable reports whether the optimizer may change the position.
func (c *Component) Movable() bool { return !c.IsFixed }

// Rotatable reports whether the optimizer may change the angle.
func (c *Component) Rotatable() bool { return !c.IsAngleFixed }

// Extent returns the larger side of the footprint.
func (c *Component) Extent() float64 {
	return math.Max(c.Size.Width, c.Size.Height)
}

// EmissionDirection returns the absolute beam direction of a source at pose p.
func (c *Component) EmissionDirection(p Pose) float64 {
	return geom.NormalizeAngle(c.EmissionAngle + p.Angle)
}

// Footprint returns the oriented bounding rectangle at pose p.
func (c *Component) Footprint(p Pose) geom.OrientedRect {
	return geom.OrientedRect{
		Center: p.Position,
		Width:  c.Size.Width,
		Height: c.Size.Height,
		Angle:  p.Angle,
	}
}

// MountFootprint returns the mount-zone rectangle at pose p.
// ok is false when the mount zone is disabled.
func (c *Component) MountFootprint(p Pose) (geom.OrientedRect, bool) {
	if !c.MountZone.Enabled {
		return geom.OrientedRect{}, false
	}
	pad := c.MountZone.Padding
	return geom.OrientedRect{
		Center: r2.Add(p.Position, geom.RotateVec(c.MountZone.Offset, p.Angle)),
		Width:  c.Size.Width + 2*pad,
		Height: c.Size.Height + 2*pad,
		Angle:  p.Angle,
	}, true
}

// Clone returns a deep copy.
func (c *Component) Clone() *Component {
	cp := *c
	if c.ValidAngles != nil {
		cp.ValidAngles = append([]float64(nil), c.ValidAngles...)
	}
	return &cp
}
