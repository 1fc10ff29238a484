package server

import (
	"context"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/copyleftdev/boxopt/internal/benchmarks"
	apperrors "github.com/copyleftdev/boxopt/internal/errors"
	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/bayesian"
	"github.com/copyleftdev/boxopt/internal/optimization/history"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

// Task statuses reported by the API.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Task is one optimization job. Its optimizer and History outlive a single
// run so a finished or cancelled task can be extended.
type Task struct {
	ID        string
	Benchmark benchmarks.Benchmark

	optimizer *bayesian.Optimizer

	mu          sync.Mutex
	status      string
	err         string
	startTime   time.Time
	endTime     *time.Time
	lastUpdated time.Time
	cancel      context.CancelFunc
}

func (t *Task) setStatus(status string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.status = status
	t.lastUpdated = now
	t.err = ""
	if err != nil {
		t.err = err.Error()
	}
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		t.endTime = &now
		t.cancel = nil
	default:
		t.endTime = nil
	}
}

// Status returns the task's current status.
func (t *Task) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) finished() bool {
	switch t.Status() {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// reopen moves a finished task back to pending. It reports false when the
// task is not finished.
func (t *Task) reopen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusCompleted, StatusFailed, StatusCancelled:
	default:
		return false
	}
	t.status = StatusPending
	t.err = ""
	t.endTime = nil
	t.lastUpdated = time.Now()
	return true
}

// newTask validates p and builds the optimizer without starting it.
func (s *Server) newTask(id string, p StartParams) (*Task, error) {
	name := p.Benchmark
	if name == "" {
		name = "branin"
	}
	b, ok := benchmarks.Get(name)
	if !ok {
		return nil, apperrors.Errorf("unknown benchmark %q, want one of %v", name, benchmarks.Names()).
			WithStatus(http.StatusBadRequest)
	}

	sp, err := p.buildSpace()
	if err != nil {
		return nil, err
	}
	if sp == nil {
		if sp, err = b.Space(); err != nil {
			return nil, err
		}
	}

	defaults := s.cfg.Optimization
	opts := bayesian.Options{
		Objective:            bayesian.ObjectiveFunction(b.Objective),
		Space:                sp,
		MaxIterations:        p.MaxIterations,
		InitialPoints:        defaults.InitialPoints,
		SurrogateType:        p.SurrogateType,
		TimeLimitPerTrial:    time.Duration(p.TimeLimitPerTrial * float64(time.Second)),
		MaxRuntime:           defaults.MaxRuntime,
		TaskID:               id,
		CurrentContext:       p.context(),
		ContextPCAComponents: p.PCAComponents,
		RandomSeed:           p.Seed,
		NumCandidates:        defaults.NumCandidates,
		Logger:               s.zapLogger(id),
		Metrics:              s.metrics,
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = defaults.MaxIterations
	}
	if opts.SurrogateType == "" {
		opts.SurrogateType = defaults.SurrogateType
	}
	if p.TimeLimitPerTrial == 0 {
		opts.TimeLimitPerTrial = defaults.TrialTimeLimit
	}
	if opts.ContextPCAComponents == 0 && opts.CurrentContext != nil {
		opts.ContextPCAComponents = defaults.PCAComponents
	}
	if p.MaxIterations < 0 || p.TimeLimitPerTrial < 0 || p.Budget < 0 {
		return nil, optimization.InvalidConfigurationf("max_iterations, time_limit_per_trial and budget must not be negative")
	}

	feasibility, err := s.feasibilityFor(sp, b, p, opts)
	if err != nil {
		return nil, err
	}
	if feasibility != nil {
		opts.Feasibility = feasibility
	}

	o, err := bayesian.NewOptimizer(opts)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Task{
		ID:          id,
		Benchmark:   b,
		optimizer:   o,
		status:      StatusPending,
		startTime:   now,
		lastUpdated: now,
	}, nil
}

// feasibilityFor builds the index/cost model for spaces with index
// hyperparameters. Sizes come from the request, then the benchmark, then
// the configured size table. With no table at all construction fails with
// optimization.ErrMissingResourceSize.
func (s *Server) feasibilityFor(sp *space.Space, b benchmarks.Benchmark, p StartParams, opts bayesian.Options) (*surrogate.IndexSpaceModel, error) {
	hasIndex := false
	for _, name := range sp.Names() {
		if strings.HasPrefix(name, surrogate.IndexPrefix) {
			hasIndex = true
			break
		}
	}
	if !hasIndex {
		return nil, nil
	}

	sizes := surrogate.ResourceSizes(p.IndexSizes)
	if len(sizes) == 0 {
		sizes = b.ResourceSizes
	}
	if len(sizes) == 0 {
		sizes = s.indexSizes
	}

	budget := p.Budget
	if budget == 0 {
		budget = b.Budget
	}
	if budget == 0 {
		budget = s.cfg.Optimization.Budget
	}
	return surrogate.NewIndexSpaceModel(sp, budget, sizes, opts.Logger)
}

// launch runs the task's optimizer in the background, holding a worker slot
// for the duration of the run.
func (s *Server) launch(t *Task) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	s.wg.Go(func() {
		defer cancel()

		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-ctx.Done():
			t.setStatus(StatusCancelled, nil)
			return
		}

		t.setStatus(StatusRunning, nil)
		_, err := t.optimizer.Run(ctx)
		switch {
		case err == nil:
			t.setStatus(StatusCompleted, nil)
		case apperrors.Is(err, context.Canceled):
			t.setStatus(StatusCancelled, nil)
		default:
			fields := map[string]interface{}{
				"optimization_id": t.ID,
				"error":           err.Error(),
			}
			if oe, ok := optimization.IsOptimizationError(err); ok {
				fields["component"] = oe.Component
				fields["op"] = oe.Op
			}
			s.logger.Error("optimization failed", fields)
			t.setStatus(StatusFailed, err)
		}
	})
}

// TrialView is the API form of one History entry.
type TrialView struct {
	Trial      int                    `json:"trial"`
	Config     map[string]interface{} `json:"config"`
	Objective  *float64               `json:"objective"`
	Objectives []float64              `json:"objectives,omitempty"`
	Feasible   bool                   `json:"feasible"`
	Status     string                 `json:"status"`
	Error      string                 `json:"error,omitempty"`
	ElapsedMS  float64                `json:"elapsed_ms"`
}

func trialView(obs history.Observation) TrialView {
	return TrialView{
		Trial:      obs.Trial,
		Config:     obs.Config.Map(),
		Objective:  finite(obs.Objective()),
		Objectives: obs.Objectives,
		Feasible:   obs.Feasible,
		Status:     string(obs.Status),
		Error:      obs.Err,
		ElapsedMS:  float64(obs.Elapsed.Microseconds()) / 1000.0,
	}
}

// finite returns nil for values JSON cannot carry or that mark a failure.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || optimization.Failed(v) {
		return nil
	}
	return &v
}

func finiteAll(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = finite(v)
	}
	return out
}

// StatusResult is returned by optimization.status and GET /status/{id}.
type StatusResult struct {
	ID            string      `json:"optimization_id"`
	Benchmark     string      `json:"benchmark"`
	Status        string      `json:"status"`
	Error         string      `json:"error,omitempty"`
	Trials        int         `json:"trials"`
	MaxIterations int         `json:"max_iterations"`
	Progress      float64     `json:"progress"`
	StartTime     string      `json:"start_time"`
	EndTime       string      `json:"end_time,omitempty"`
	LastUpdate    string      `json:"last_update"`
	Context       []float64   `json:"context,omitempty"`
	Best          *TrialView  `json:"best,omitempty"`
	Convergence   []*float64  `json:"convergence"`
	Regret        []*float64  `json:"log10_regret"`
	History       []TrialView `json:"history"`
}

func (t *Task) snapshot() StatusResult {
	h := t.optimizer.History()
	obs := h.Observations()

	t.mu.Lock()
	res := StatusResult{
		ID:         t.ID,
		Benchmark:  t.Benchmark.Name,
		Status:     t.status,
		Error:      t.err,
		StartTime:  t.startTime.Format(time.RFC3339),
		LastUpdate: t.lastUpdated.Format(time.RFC3339),
	}
	if t.endTime != nil {
		res.EndTime = t.endTime.Format(time.RFC3339)
	}
	t.mu.Unlock()

	res.Trials = len(obs)
	res.MaxIterations = t.optimizer.MaxIterations()
	if res.MaxIterations > 0 {
		res.Progress = math.Min(1, float64(res.Trials)/float64(res.MaxIterations))
	}
	res.Context = t.optimizer.Context()
	res.History = make([]TrialView, len(obs))
	for i, o := range obs {
		res.History[i] = trialView(o)
	}
	if best, ok := h.Best(); ok {
		v := trialView(best)
		res.Best = &v
	}
	res.Convergence = finiteAll(h.Convergence())
	res.Regret = finiteAll(h.ConvergenceGap(t.Benchmark.Optimum))
	return res
}
