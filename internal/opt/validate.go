package opt

import (
	"github.com/cwbudde/beamlayout/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// WorkspaceMargin is the minimum distance a moved component keeps from
	// the workspace border.
	WorkspaceMargin = 10.0
	// SpacingFactor scales the summed extents into the minimum center
	// distance between two components.
	SpacingFactor = 0.25
)

// validate clamps candidate positions to the workspace and rejects the
// whole candidate if any moved component sits inside the margin or too
// close to another component. Only components whose position changes are
// checked.
func (a *Annealer) validate(ov layout.Overlay) bool {
	ws := a.state.Constraints.Workspace

	for id, p := range ov {
		if clamped := ws.Clamp(p.Position); clamped != p.Position {
			p.Position = clamped
			ov[id] = p
		}
	}

	for _, id := range a.ids {
		p, ok := ov[id]
		c := a.state.Components[id]
		if !ok || p.Position == c.Position {
			continue
		}
		if ws.EdgeDistance(p.Position) < WorkspaceMargin {
			return false
		}
		for _, other := range a.ids {
			if other == id {
				continue
			}
			oc := a.state.Components[other]
			q := oc.Position
			if op, ok := ov[other]; ok {
				q = op.Position
			}
			if r2.Norm(r2.Sub(p.Position, q)) < (c.Extent()+oc.Extent())*SpacingFactor {
				return false
			}
		}
	}
	return true
}
