package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// Status is the lifecycle state of an Annealer.
type Status int

const (
	Idle Status = iota
	Running
	Paused
	Finished
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Finish reasons.
const (
	ReasonMaxIterations = "maxIterations"
	ReasonEarlyStop     = "earlyStop"
	ReasonStopped       = "stopped"
)

// DefaultBatchSize is the number of iterations Run executes per Step.
const DefaultBatchSize = 200

var (
	ErrNotInitialized    = errors.New("annealer not initialized")
	ErrInvalidTransition = errors.New("invalid annealer state transition")
)

// ProgressInfo is reported after every batch.
type ProgressInfo struct {
	Iteration          int     `json:"iteration"`
	Temperature        float64 `json:"temperature"`
	CurrentCost        float64 `json:"currentCost"`
	BestCost           float64 `json:"bestCost"`
	AcceptRate         float64 `json:"acceptRate"`
	StepSize           float64 `json:"stepSize"`
	ImprovementPercent float64 `json:"improvementPercent"`
}

// Summary describes a finished run.
type Summary struct {
	Reason             string         `json:"reason"`
	Iterations         int            `json:"iterations"`
	InitialCost        float64        `json:"initialCost"`
	BestCost           float64        `json:"bestCost"`
	ImprovementPercent float64        `json:"improvementPercent"`
	Breakdown          cost.Breakdown `json:"breakdown"`
}

// Options configures an Annealer.
type Options struct {
	Seed      int64
	BatchSize int
	// Overrides replaces the matching adaptive parameters when non-zero.
	Overrides Params
}

// Annealer is a constrained simulated-annealing optimizer over a
// layout.State. It is not safe for concurrent use; hosts drive it with
// Step or Run from a single goroutine.
type Annealer struct {
	OnProgress func(ProgressInfo)
	OnStep     func(bestPositions map[string]r2.Vec)
	OnComplete func(Summary)

	opts    Options
	rng     *rand.Rand
	state   *layout.State
	weights cost.Weights
	status  Status
	params  Params

	temperature float64
	stepSize    float64
	iteration   int
	accepted    int
	rejected    int
	stagnation  *StagnationTracker

	initialCost   float64
	currentCost   float64
	bestCost      float64
	current       cost.Breakdown
	bestBreakdown cost.Breakdown

	originalPositions map[string]r2.Vec
	originalAngles    map[string]float64
	bestPositions     map[string]r2.Vec
	bestAngles        map[string]float64

	// ids in sorted order, partitioned by what the optimizer may change
	ids       []string
	movable   []string
	rotatable []string

	snapshots []Snapshot
}

// NewAnnealer creates an idle annealer.
func NewAnnealer(opts Options) *Annealer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Annealer{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
	}
}

// Initialize attaches the state to optimize and captures the baseline.
// The annealer keeps a reference to s and mutates its components while
// running.
func (a *Annealer) Initialize(s *layout.State, w cost.Weights) {
	a.state = s
	a.weights = w
	a.status = Idle
	a.captureBaseline()
}

func (a *Annealer) captureBaseline() {
	a.originalPositions = a.state.Positions()
	a.originalAngles = a.state.Angles()
	a.bestPositions = a.state.Positions()
	a.bestAngles = a.state.Angles()

	a.ids = a.state.IDs()
	a.movable = a.movable[:0]
	a.rotatable = a.rotatable[:0]
	for _, id := range a.ids {
		c := a.state.Components[id]
		if c.Movable() {
			a.movable = append(a.movable, id)
		}
		if c.Rotatable() {
			a.rotatable = append(a.rotatable, id)
		}
	}

	a.current = cost.Evaluate(a.state, a.weights)
	a.bestBreakdown = a.current
	a.initialCost = a.current.Total
	a.currentCost = a.initialCost
	a.bestCost = a.initialCost
}

// movableCount is the number of components with any free degree.
func (a *Annealer) movableCount() int {
	n := 0
	for _, c := range a.state.Components {
		if c.Movable() || c.Rotatable() {
			n++
		}
	}
	return n
}

// Start begins a run from Idle or Finished.
func (a *Annealer) Start() error {
	if a.state == nil {
		return ErrNotInitialized
	}
	if a.status != Idle && a.status != Finished {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, a.status)
	}

	a.captureBaseline()
	a.params = GetAdaptiveParams(a.movableCount()).Merge(a.opts.Overrides)
	a.temperature = a.params.InitialTemperature
	a.stepSize = a.params.InitialStepSize
	a.iteration = 0
	a.accepted = 0
	a.rejected = 0
	a.stagnation = NewStagnationTracker(a.params.StagnationLimit)
	a.stagnation.Update(a.bestCost)
	a.snapshots = nil
	a.recordSnapshot()
	a.status = Running

	slog.Info("Annealing started",
		"components", len(a.state.Components),
		"beams", a.state.Beams.Len(),
		"max_iterations", a.params.MaxIterations,
		"cooling_rate", a.params.CoolingRate,
		"initial_cost", a.initialCost,
	)
	return nil
}

// Pause suspends a running annealer.
func (a *Annealer) Pause() error {
	if a.status != Running {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, a.status)
	}
	a.status = Paused
	return nil
}

// Resume continues a paused annealer.
func (a *Annealer) Resume() error {
	if a.status != Paused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, a.status)
	}
	a.status = Running
	return nil
}

// Stop returns to Idle from any state. Components keep their last applied
// poses; OriginalPositions and OriginalAngles allow a revert.
func (a *Annealer) Stop() {
	a.status = Idle
}

// Finish commits the best poses onto the live components and reports the
// summary through OnComplete.
func (a *Annealer) Finish(reason string) Summary {
	if a.state == nil {
		return Summary{Reason: reason}
	}
	a.state.ApplyPoses(a.bestPositions, a.bestAngles)
	a.current = cost.Evaluate(a.state, a.weights)
	a.currentCost = a.current.Total
	a.status = Finished

	sum := Summary{
		Reason:             reason,
		Iterations:         a.iteration,
		InitialCost:        a.initialCost,
		BestCost:           a.bestCost,
		ImprovementPercent: a.improvement(),
		Breakdown:          a.bestBreakdown,
	}
	slog.Info("Annealing finished",
		"reason", reason,
		"iterations", a.iteration,
		"initial_cost", a.initialCost,
		"best_cost", a.bestCost,
		"improvement_pct", sum.ImprovementPercent,
		"accept_rate", a.AcceptRate(),
	)
	if a.OnComplete != nil {
		a.safeCall("onComplete", func() { a.OnComplete(sum) })
	}
	return sum
}

// Step runs up to batch iterations, reports progress and finishes the run
// when a stop condition fires. It returns true while the run wants more
// batches.
func (a *Annealer) Step(batch int) bool {
	switch a.status {
	case Running:
	case Paused:
		return true
	default:
		return false
	}
	if batch <= 0 {
		batch = a.opts.BatchSize
	}

	var reason string
	for i := 0; i < batch && reason == ""; i++ {
		reason = a.iterate()
	}

	a.reportProgress()
	if reason != "" {
		a.Finish(reason)
		return false
	}
	return true
}

// Run drives Step until the run finishes, pauses or ctx is cancelled.
// Cancellation stops the annealer and returns ctx.Err(); the caller may
// then Finish(ReasonStopped) to commit the best state.
func (a *Annealer) Run(ctx context.Context) error {
	if a.status != Running {
		return fmt.Errorf("%w: run from %s", ErrInvalidTransition, a.status)
	}
	for a.status == Running {
		if err := ctx.Err(); err != nil {
			a.Stop()
			return err
		}
		a.Step(a.opts.BatchSize)
	}
	return nil
}

// iterate performs one proposal/validation/acceptance cycle and returns a
// finish reason, or "" to continue.
func (a *Annealer) iterate() string {
	a.iteration++

	ov, ok := a.propose()
	if ok {
		ok = a.validate(ov)
	}
	if !ok {
		a.rejected++
	} else {
		b := cost.EvaluateOverlay(a.state, ov, a.weights)
		if a.accept(b.Total - a.currentCost) {
			a.state.Apply(ov)
			a.current = b
			a.currentCost = b.Total
			a.accepted++
			if b.Total < a.bestCost {
				a.recordBest(b)
			}
		} else {
			a.rejected++
		}
	}
	stagnated := a.stagnation.Update(a.bestCost)

	if a.iteration%a.params.CoolingInterval == 0 {
		a.temperature *= a.params.CoolingRate
		a.stepSize = math.Max(a.params.MinStepSize, a.stepSize*a.params.StepDecay)
	}
	if a.iteration%SnapshotInterval == 0 {
		a.recordSnapshot()
	}

	switch {
	case a.iteration >= a.params.MaxIterations:
		return ReasonMaxIterations
	case a.temperature < a.params.MinTemperature, stagnated:
		return ReasonEarlyStop
	}
	return ""
}

// accept applies the Metropolis criterion.
func (a *Annealer) accept(delta float64) bool {
	if delta < 0 {
		return true
	}
	if a.temperature <= 0 {
		return false
	}
	return a.rng.Float64() < math.Exp(-delta/a.temperature)
}

func (a *Annealer) recordBest(b cost.Breakdown) {
	a.bestCost = b.Total
	a.bestBreakdown = b
	a.bestPositions = a.state.Positions()
	a.bestAngles = a.state.Angles()
}

func (a *Annealer) improvement() float64 {
	if a.initialCost <= 0 {
		return 0
	}
	return (a.initialCost - a.bestCost) / a.initialCost * 100
}

func (a *Annealer) reportProgress() {
	if a.OnProgress != nil {
		info := a.Progress()
		a.safeCall("onProgress", func() { a.OnProgress(info) })
	}
	if a.OnStep != nil {
		best := a.BestPositions()
		a.safeCall("onStep", func() { a.OnStep(best) })
	}
}

// safeCall runs a host callback; a panic is logged and swallowed.
func (a *Annealer) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Annealer callback panicked", "callback", name, "panic", r, "iteration", a.iteration)
		}
	}()
	fn()
}

// Progress returns the current progress report.
func (a *Annealer) Progress() ProgressInfo {
	return ProgressInfo{
		Iteration:          a.iteration,
		Temperature:        a.temperature,
		CurrentCost:        a.currentCost,
		BestCost:           a.bestCost,
		AcceptRate:         a.AcceptRate(),
		StepSize:           a.stepSize,
		ImprovementPercent: a.improvement(),
	}
}

// AcceptRate is accepted / (accepted + rejected), or 0 before any move.
func (a *Annealer) AcceptRate() float64 {
	total := a.accepted + a.rejected
	if total == 0 {
		return 0
	}
	return float64(a.accepted) / float64(total)
}

func (a *Annealer) Status() Status        { return a.status }
func (a *Annealer) Params() Params        { return a.params }
func (a *Annealer) Iteration() int        { return a.iteration }
func (a *Annealer) Accepted() int         { return a.accepted }
func (a *Annealer) Rejected() int         { return a.rejected }
func (a *Annealer) Temperature() float64  { return a.temperature }
func (a *Annealer) StepSize() float64     { return a.stepSize }
func (a *Annealer) InitialCost() float64  { return a.initialCost }
func (a *Annealer) CurrentCost() float64  { return a.currentCost }
func (a *Annealer) BestCost() float64     { return a.bestCost }
func (a *Annealer) State() *layout.State  { return a.state }
func (a *Annealer) Weights() cost.Weights { return a.weights }

// OriginalPositions returns a copy of the positions captured at Start.
func (a *Annealer) OriginalPositions() map[string]r2.Vec { return copyPositions(a.originalPositions) }

// OriginalAngles returns a copy of the angles captured at Start.
func (a *Annealer) OriginalAngles() map[string]float64 { return copyAngles(a.originalAngles) }

// BestPositions returns a copy of the best positions found so far.
func (a *Annealer) BestPositions() map[string]r2.Vec { return copyPositions(a.bestPositions) }

// BestAngles returns a copy of the best angles found so far.
func (a *Annealer) BestAngles() map[string]float64 { return copyAngles(a.bestAngles) }

func copyPositions(m map[string]r2.Vec) map[string]r2.Vec {
	out := make(map[string]r2.Vec, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyAngles(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
