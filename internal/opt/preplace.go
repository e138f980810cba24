package opt

import (
	"log/slog"
	"math"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/geom"
	"github.com/cwbudde/beamlayout/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// Preplace searches for a coarse global placement of the movable
// components before annealing. Each movable position is encoded as two
// parameters in [0,1] spanning the workspace inside WorkspaceMargin.
// Angles are left alone. It returns the best overlay found and its cost;
// the state is not modified.
func Preplace(s *layout.State, w cost.Weights, o Optimizer) (layout.Overlay, float64) {
	var movable []string
	for _, id := range s.IDs() {
		if s.Components[id].Movable() {
			movable = append(movable, id)
		}
	}
	if len(movable) == 0 {
		return layout.Overlay{}, cost.Evaluate(s, w).Total
	}

	area := innerArea(s.Constraints.Workspace)
	decode := func(x []float64) layout.Overlay {
		ov := make(layout.Overlay, len(movable))
		for i, id := range movable {
			u := clamp01(x[2*i])
			v := clamp01(x[2*i+1])
			ov[id] = layout.Pose{
				Position: r2.Vec{
					X: area.Min.X + u*area.Width(),
					Y: area.Min.Y + v*area.Height(),
				},
				Angle: s.Components[id].Angle,
			}
		}
		return ov
	}

	dim := 2 * len(movable)
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range upper {
		upper[i] = 1
	}

	evals := 0
	best, _ := o.Run(func(x []float64) float64 {
		evals++
		return cost.EvaluateOverlay(s, decode(x), w).Total
	}, lower, upper, dim)

	ov := decode(best)
	total := cost.EvaluateOverlay(s, ov, w).Total
	slog.Debug("Pre-placement finished", "movable", len(movable), "evaluations", evals, "cost", total)
	return ov, total
}

func innerArea(ws geom.Rect) geom.Rect {
	if ws.Width() <= 2*WorkspaceMargin || ws.Height() <= 2*WorkspaceMargin {
		return ws
	}
	return geom.NewRect(
		ws.Min.X+WorkspaceMargin, ws.Min.Y+WorkspaceMargin,
		ws.Max.X-WorkspaceMargin, ws.Max.Y-WorkspaceMargin,
	)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ApplyPreplace runs Preplace and applies the result to s only when it
// lowers the cost. It returns the cost before and after.
func ApplyPreplace(s *layout.State, w cost.Weights, o Optimizer) (before, after float64, applied bool) {
	before = cost.Evaluate(s, w).Total
	ov, total := Preplace(s, w, o)
	if len(ov) == 0 || total >= before {
		slog.Info("Pre-placement kept original layout", "cost", before, "candidate", total)
		return before, before, false
	}
	s.Apply(ov)
	slog.Info("Pre-placement applied", "before", before, "after", total)
	return before, total, true
}
