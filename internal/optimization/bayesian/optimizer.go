// Package bayesian implements the sequential Bayesian optimization loop:
// propose a configuration from the surrogate, evaluate it, record it and
// refit the surrogate on the full history.
package bayesian

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/acquisition"
	"github.com/copyleftdev/boxopt/internal/optimization/history"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

// State is the lifecycle state of an Optimizer.
type State int32

const (
	StateInitialized State = iota
	StateRunning
	StatePaused
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Optimizer runs trials sequentially against an objective function.
//
// Run is reentrant: every call works towards the current MaxIterations
// target, counting the trials already in the History, so raising the target
// and calling Run again evaluates only the additional trials.
type Optimizer struct {
	opts   Options
	logger *zap.Logger

	// Owned by the goroutine executing Run.
	rng         *rand.Rand
	model       surrogate.Model
	contextual  bool
	projector   *surrogate.ContextProjector
	acquisition acquisition.Function
	design      []space.Configuration
	seen        map[string]struct{}
	trained     bool

	history *history.History

	mu            sync.Mutex
	state         State
	maxIterations int
	context       []float64
	cancel        context.CancelFunc
}

// NewOptimizer validates opts and builds the surrogate.
func NewOptimizer(opts Options) (*Optimizer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.setDefaults()

	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	o := &Optimizer{
		opts:          opts,
		logger:        opts.Logger.Named("optimizer").With(zap.String("task_id", opts.TaskID)),
		rng:           rand.New(rand.NewSource(seed)),
		contextual:    surrogate.IsContextual(opts.SurrogateType),
		acquisition:   acquisition.NewExpectedImprovement(math.Inf(1), opts.Xi),
		seen:          make(map[string]struct{}),
		history:       history.New(opts.TaskID, opts.Space),
		maxIterations: opts.MaxIterations,
	}

	if err := o.initContext(); err != nil {
		return nil, err
	}

	modelOpts := surrogate.Options{
		Kernel: opts.Kernel,
		Seed:   opts.RandomSeed,
		Logger: opts.Logger,
	}
	if o.contextual {
		modelOpts.ContextDims = o.projector.Dims()
	}
	model, err := surrogate.New(opts.SurrogateType, opts.Space, modelOpts)
	if err != nil {
		return nil, err
	}
	o.model = model

	if opts.Feasibility != nil {
		// surface a feasibility model built for another space now rather than mid-run
		probe := mat.NewDense(1, opts.Space.Len(), opts.Space.Default().Vector())
		if _, err := opts.Feasibility.PFeasible(probe); err != nil {
			return nil, optimization.WrapError(err, "feasibility model rejects the configuration space").WithComponent("optimizer")
		}
	}

	o.logger.Info("optimizer created",
		zap.String("surrogate", opts.SurrogateType),
		zap.Int("dims", opts.Space.Len()),
		zap.Int("max_iterations", opts.MaxIterations),
		zap.Int("initial_points", opts.InitialPoints),
		zap.Int("context_dims", len(o.context)),
		zap.Int("context_pca_components", opts.ContextPCAComponents),
		zap.Bool("feasibility", opts.Feasibility != nil),
	)
	return o, nil
}

func (o *Optimizer) initContext() error {
	c := o.opts.CurrentContext
	if c == nil {
		if o.contextual {
			return optimization.DimensionMismatchf("surrogate %q requires a current context", o.opts.SurrogateType).
				WithComponent("optimizer")
		}
		if o.opts.ContextPCAComponents > 0 {
			return optimization.DimensionMismatchf("context_pca_components=%d set without a context", o.opts.ContextPCAComponents).
				WithComponent("optimizer")
		}
		return nil
	}
	rows, cols := c.Dims()
	if rows != 1 {
		return optimization.DimensionMismatchf("context must have exactly one row, got %d", rows).WithComponent("optimizer")
	}
	projector, err := surrogate.NewContextProjector(cols, o.opts.ContextPCAComponents)
	if err != nil {
		return err
	}
	o.projector = projector
	o.context = mat.Row(nil, 0, c)
	return nil
}

// History returns the live trial record.
func (o *Optimizer) History() *history.History { return o.history }

// TaskID returns the task label.
func (o *Optimizer) TaskID() string { return o.opts.TaskID }

// State returns the current lifecycle state.
func (o *Optimizer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Optimizer) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// MaxIterations returns the current trial target.
func (o *Optimizer) MaxIterations() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxIterations
}

// SetMaxIterations changes the trial target. A running loop picks up the
// new value before its next trial.
func (o *Optimizer) SetMaxIterations(n int) {
	if n < 0 {
		n = 0
	}
	o.mu.Lock()
	o.maxIterations = n
	o.mu.Unlock()
}

// Context returns a copy of the raw context used for upcoming trials.
func (o *Optimizer) Context() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]float64(nil), o.context...)
}

// ResetContext replaces the context used for subsequent trials. The History
// is kept. c must be a 1×d matrix with the raw context width fixed at
// construction.
func (o *Optimizer) ResetContext(c *mat.Dense) error {
	if o.projector == nil {
		return optimization.DimensionMismatchf("optimizer was built without a context").
			WithComponent("optimizer").WithOperation("reset_context")
	}
	if c == nil {
		return optimization.DimensionMismatchf("context is nil").
			WithComponent("optimizer").WithOperation("reset_context")
	}
	rows, cols := c.Dims()
	if rows != 1 || cols != o.projector.RawDims() {
		return optimization.DimensionMismatchf("context is %d×%d, want 1×%d", rows, cols, o.projector.RawDims()).
			WithComponent("optimizer").WithOperation("reset_context")
	}

	o.mu.Lock()
	o.context = mat.Row(nil, 0, c)
	o.mu.Unlock()

	o.logger.Info("context reset", zap.Int("trials", o.history.Len()))
	return nil
}

// Stop cancels a running loop. The loop pauses before its next trial and
// the in-flight trial is discarded.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Run evaluates trials until the History holds MaxIterations of them, the
// MaxRuntime budget is spent, or ctx is done. Cancellation leaves the
// optimizer Paused and returns ctx's error together with the History; a
// later Run resumes from there.
func (o *Optimizer) Run(ctx context.Context) (*history.History, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return o.history, optimization.WrapErrorf(optimization.ErrAlreadyRunning, "task %q", o.opts.TaskID)
	}
	o.state = StateRunning
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
	}()

	o.opts.Metrics.SetRunning(o.opts.TaskID, true)
	defer o.opts.Metrics.SetRunning(o.opts.TaskID, false)

	start := time.Now()
	o.logger.Info("run started",
		zap.Int("completed", o.history.Len()),
		zap.Int("target", o.MaxIterations()),
	)

	for o.history.Len() < o.MaxIterations() {
		if err := runCtx.Err(); err != nil {
			return o.pause(err)
		}
		if o.opts.MaxRuntime > 0 && time.Since(start) >= o.opts.MaxRuntime {
			o.logger.Info("runtime budget exhausted", zap.Duration("max_runtime", o.opts.MaxRuntime))
			break
		}
		if err := o.step(runCtx); err != nil {
			if ctxErr := runCtx.Err(); ctxErr != nil {
				return o.pause(ctxErr)
			}
			o.setState(StatePaused)
			o.logger.Error("run aborted", zap.Error(err))
			return o.history, err
		}
	}

	o.setState(StateCompleted)
	best, _ := o.history.Best()
	o.logger.Info("run completed",
		zap.Int("trials", o.history.Len()),
		zap.Float64("best", best.Objective()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return o.history, nil
}

func (o *Optimizer) pause(err error) (*history.History, error) {
	o.setState(StatePaused)
	o.logger.Info("run paused", zap.Int("trials", o.history.Len()), zap.Error(err))
	return o.history, err
}

// step runs one propose-evaluate-record-retrain iteration.
func (o *Optimizer) step(ctx context.Context) error {
	cfg, err := o.propose()
	if err != nil {
		return err
	}
	raw := o.Context()

	obs, err := o.evaluate(ctx, cfg)
	if err != nil {
		return err
	}
	obs.Context = raw
	if obs.Succeeded() && obs.Feasible {
		feasible, err := o.structurallyFeasible(cfg)
		if err != nil {
			return err
		}
		obs.Feasible = feasible
	}

	stored, err := o.history.Append(obs)
	if err != nil {
		return err
	}
	o.seen[cfg.Key()] = struct{}{}
	o.record(stored)

	return o.train()
}

func (o *Optimizer) structurallyFeasible(cfg space.Configuration) (bool, error) {
	if o.opts.Feasibility == nil {
		return true, nil
	}
	p, err := o.opts.Feasibility.PFeasible(mat.NewDense(1, o.opts.Space.Len(), cfg.Vector()))
	if err != nil {
		return false, err
	}
	return p.At(0, 0) >= 0.5, nil
}

func (o *Optimizer) record(obs history.Observation) {
	fields := []zap.Field{
		zap.Int("trial", obs.Trial),
		zap.String("status", string(obs.Status)),
		zap.Bool("feasible", obs.Feasible),
		zap.Duration("elapsed", obs.Elapsed),
		zap.String("config", obs.Config.Describe()),
	}
	if obs.Succeeded() {
		o.logger.Info("trial finished", append(fields, zap.Float64("objective", obs.Objective()))...)
	} else {
		o.logger.Warn("trial failed", append(fields, zap.String("error", obs.Err))...)
	}

	o.opts.Metrics.ObserveTrial(o.opts.TaskID, obs.Status, obs.Elapsed)
	if best, ok := o.history.Best(); ok && best.Feasible {
		o.opts.Metrics.SetBest(o.opts.TaskID, best.Objective())
	}
}

// train refits the surrogate, and the feasibility model, on every recorded
// trial. Failed trials are imputed with the worst successful objective.
func (o *Optimizer) train() error {
	obs := o.history.Observations()

	worst, anySuccess := math.Inf(-1), false
	ncons := 1
	for _, ob := range obs {
		if !ob.Succeeded() {
			continue
		}
		anySuccess = true
		worst = math.Max(worst, ob.Objective())
		if len(ob.Constraints) > ncons {
			ncons = len(ob.Constraints)
		}
	}
	if !anySuccess {
		return nil
	}

	n, d := len(obs), o.opts.Space.Len()
	X := mat.NewDense(n, d, nil)
	Y := mat.NewVecDense(n, nil)
	cY := mat.NewDense(n, ncons, nil)
	for i, ob := range obs {
		X.SetRow(i, ob.Config.Vector())
		if ob.Succeeded() {
			Y.SetVec(i, ob.Objective())
		} else {
			Y.SetVec(i, worst)
		}
		for j := 0; j < ncons; j++ {
			switch {
			case !ob.Succeeded():
				cY.Set(i, j, 1)
			case j < len(ob.Constraints) && !math.IsNaN(ob.Constraints[j]):
				cY.Set(i, j, ob.Constraints[j])
			case j < len(ob.Constraints):
				cY.Set(i, j, 1)
			}
		}
	}

	var contexts *mat.Dense
	if o.contextual {
		raw := mat.NewDense(n, o.projector.RawDims(), nil)
		for i, ob := range obs {
			raw.SetRow(i, ob.Context)
		}
		if err := o.projector.Fit(raw); err != nil {
			return err
		}
		var err error
		if contexts, err = o.projector.Transform(raw); err != nil {
			return err
		}
	}

	if err := o.model.Train(X, Y, contexts); err != nil {
		return optimization.WrapErrorf(err, "train %s surrogate", o.opts.SurrogateType).WithComponent("optimizer")
	}
	if o.opts.Feasibility != nil {
		if err := o.opts.Feasibility.Train(X, cY, contexts); err != nil {
			return optimization.WrapError(err, "train feasibility model").WithComponent("optimizer")
		}
	}
	o.trained = true

	incumbent := math.Inf(1)
	if best, ok := o.history.Best(); ok {
		incumbent = best.Objective()
	}
	o.acquisition.UpdateBest(incumbent)
	return nil
}
