package opt

// Optimizer is a box-constrained global minimizer over a flat parameter
// vector.
type Optimizer interface {
	// Run minimizes eval within [lower, upper] per dimension and returns
	// the best parameters and their cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
