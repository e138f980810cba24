package opt

// Params tunes one annealing run.
type Params struct {
	MaxIterations      int     `json:"maxIterations" toml:"max_iterations"`
	InitialTemperature float64 `json:"initialTemperature" toml:"initial_temperature"`
	MinTemperature     float64 `json:"minTemperature" toml:"min_temperature"`
	CoolingRate        float64 `json:"coolingRate" toml:"cooling_rate"`
	CoolingInterval    int     `json:"coolingInterval" toml:"cooling_interval"`
	StagnationLimit    int     `json:"stagnationLimit" toml:"stagnation_limit"`
	InitialStepSize    float64 `json:"initialStepSize" toml:"initial_step_size"`
	MinStepSize        float64 `json:"minStepSize" toml:"min_step_size"`
	StepDecay          float64 `json:"stepDecay" toml:"step_decay"`
}

const (
	minIterations     = 2000
	maxIterationsCap  = 30000
	iterationsPerPart = 600
	stagnationBase    = 800
	stagnationPerPart = 200
	stagnationCap     = 6000
)

// GetAdaptiveParams scales the schedule with the number of movable
// components n. Larger problems get more iterations, slower cooling and a
// larger stagnation budget. n <= 0 yields the floor.
func GetAdaptiveParams(n int) Params {
	if n < 0 {
		n = 0
	}
	iters := minIterations + iterationsPerPart*n
	if iters > maxIterationsCap {
		iters = maxIterationsCap
	}
	stagnation := stagnationBase + stagnationPerPart*n
	if stagnation > stagnationCap {
		stagnation = stagnationCap
	}
	return Params{
		MaxIterations:      iters,
		InitialTemperature: 100,
		MinTemperature:     0.01,
		CoolingRate:        0.95 + 0.004*float64(min(n, 10)),
		CoolingInterval:    100,
		StagnationLimit:    stagnation,
		InitialStepSize:    50,
		MinStepSize:        5,
		StepDecay:          0.95,
	}
}

// Merge returns p with every non-zero field of o applied on top.
func (p Params) Merge(o Params) Params {
	if o.MaxIterations > 0 {
		p.MaxIterations = o.MaxIterations
	}
	if o.InitialTemperature > 0 {
		p.InitialTemperature = o.InitialTemperature
	}
	if o.MinTemperature > 0 {
		p.MinTemperature = o.MinTemperature
	}
	if o.CoolingRate > 0 {
		p.CoolingRate = o.CoolingRate
	}
	if o.CoolingInterval > 0 {
		p.CoolingInterval = o.CoolingInterval
	}
	if o.StagnationLimit > 0 {
		p.StagnationLimit = o.StagnationLimit
	}
	if o.InitialStepSize > 0 {
		p.InitialStepSize = o.InitialStepSize
	}
	if o.MinStepSize > 0 {
		p.MinStepSize = o.MinStepSize
	}
	if o.StepDecay > 0 {
		p.StepDecay = o.StepDecay
	}
	return p
}
