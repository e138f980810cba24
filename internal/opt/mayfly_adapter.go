package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the Mayfly swarm optimizer as an Optimizer.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a Mayfly optimizer. popSize must be at least 20.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes Mayfly. The library takes scalar bounds, so only lower[0]
// and upper[0] are used; callers normalize their parameters to a common
// range.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly optimization failed, using lower bound", "error", err)
		x := append([]float64(nil), lower...)
		return x, eval(x)
	}
	return result.GlobalBest.Position, result.GlobalBest.Cost
}
