package layout

import (
	"sort"

	"github.com/cwbudde/beamlayout/internal/geom"
	"gonum.org/v1/gonum/spatial/r2"
)

// KeepOutZone is a region components and mount zones must stay out of.
type KeepOutZone struct {
	ID       string    `json:"id,omitempty" yaml:"id,omitempty"`
	Bounds   geom.Rect `json:"bounds" yaml:"bounds"`
	IsActive bool      `json:"isActive" yaml:"isActive"`
}

// Constraints bound where components may be placed.
type Constraints struct {
	Workspace    geom.Rect     `json:"workspace" yaml:"workspace"`
	KeepOutZones []KeepOutZone `json:"keepOutZones,omitempty" yaml:"keepOutZones,omitempty"`
	MountingZone *geom.Rect    `json:"mountingZone,omitempty" yaml:"mountingZone,omitempty"`
}

// ActiveKeepOuts returns the keep-out zones currently enforced.
func (c Constraints) ActiveKeepOuts() []KeepOutZone {
	var out []KeepOutZone
	for _, z := range c.KeepOutZones {
		if z.IsActive {
			out = append(out, z)
		}
	}
	return out
}

// State is the layout being optimized.
type State struct {
	Components  map[string]*Component
	Beams       *BeamPath
	Constraints Constraints
}

// NewState builds a state from a component list and beam segments.
// A later component with a duplicate id replaces the earlier one.
func NewState(constraints Constraints, comps []*Component, segs []BeamSegment) *State {
	s := &State{
		Components:  make(map[string]*Component, len(comps)),
		Beams:       NewBeamPath(segs...),
		Constraints: constraints,
	}
	for _, c := range comps {
		c.Angle = geom.NormalizeAngle(c.Angle)
		s.Components[c.ID] = c
	}
	return s
}

// Component returns the component with the given id.
func (s *State) Component(id string) (*Component, bool) {
	c, ok := s.Components[id]
	return c, ok
}

// IDs returns every component id in sorted order. Iteration over the
// component map is unordered, so anything that must be reproducible
// walks this slice instead.
func (s *State) IDs() []string {
	ids := make([]string, 0, len(s.Components))
	for id := range s.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Positions copies every component position.
func (s *State) Positions() map[string]r2.Vec {
	out := make(map[string]r2.Vec, len(s.Components))
	for id, c := range s.Components {
		out[id] = c.Position
	}
	return out
}

// Angles copies every component angle.
func (s *State) Angles() map[string]float64 {
	out := make(map[string]float64, len(s.Components))
	for id, c := range s.Components {
		out[id] = c.Angle
	}
	return out
}

// ApplyPoses writes positions and angles onto live components. Unknown ids
// are ignored.
func (s *State) ApplyPoses(positions map[string]r2.Vec, angles map[string]float64) {
	for id, p := range positions {
		if c, ok := s.Components[id]; ok {
			c.Position = p
		}
	}
	for id, a := range angles {
		if c, ok := s.Components[id]; ok {
			c.Angle = geom.NormalizeAngle(a)
		}
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	cp := &State{
		Components:  make(map[string]*Component, len(s.Components)),
		Beams:       s.Beams.Clone(),
		Constraints: s.Constraints,
	}
	cp.Constraints.KeepOutZones = append([]KeepOutZone(nil), s.Constraints.KeepOutZones...)
	if s.Constraints.MountingZone != nil {
		mz := *s.Constraints.MountingZone
		cp.Constraints.MountingZone = &mz
	}
	for id, c := range s.Components {
		cp.Components[id] = c.Clone()
	}
	return cp
}

// Overlay holds candidate poses layered over a State without mutating it.
type Overlay map[string]Pose

// PoseOf resolves id through the overlay, falling back to the live
// component. ok is false when the id is unknown.
func (s *State) PoseOf(id string, ov Overlay) (Pose, *Component, bool) {
	c, ok := s.Components[id]
	if !ok {
		return Pose{}, nil, false
	}
	if p, ok := ov[id]; ok {
		return p, c, true
	}
	return c.Pose(), c, true
}

// Apply commits every overlay pose onto the live components.
func (s *State) Apply(ov Overlay) {
	for id, p := range ov {
		if c, ok := s.Components[id]; ok {
			c.SetPose(p)
		}
	}
}
