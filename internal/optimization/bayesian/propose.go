package bayesian

import (
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/acquisition"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

const (
	neighbourIncumbents = 5
	neighboursPerPoint  = 10
	randomRetries       = 100
)

// propose picks the next configuration: the initial design first, then the
// candidate maximizing feasibility-weighted Expected Improvement.
func (o *Optimizer) propose() (space.Configuration, error) {
	n := o.history.Len()
	if n < o.opts.InitialPoints || !o.trained {
		return o.initialDesign(n)
	}
	return o.maximizeAcquisition()
}

func (o *Optimizer) initialDesign(n int) (space.Configuration, error) {
	if o.design == nil {
		sp := o.opts.Space
		o.design = append([]space.Configuration{sp.Default()}, sp.LatinHypercube(o.opts.InitialPoints-1, o.rng)...)
	}
	if n < len(o.design) && !o.isSeen(o.design[n]) {
		cfg := o.design[n]
		err := o.admit(cfg)
		if err == nil {
			return cfg, nil
		}
		o.logger.Warn("proposal rejected", zap.Int("trial", n), zap.Error(err))
	}
	return o.randomUnseen()
}

// admit runs the Validate hook. Its errors always match
// optimization.ErrInvalidConfiguration.
func (o *Optimizer) admit(cfg space.Configuration) error {
	if o.opts.Validate == nil {
		return nil
	}
	err := o.opts.Validate(cfg)
	if err == nil || errors.Is(err, optimization.ErrInvalidConfiguration) {
		return err
	}
	return optimization.WrapErrorf(optimization.ErrInvalidConfiguration, "%s: %v", cfg.Describe(), err)
}

func (o *Optimizer) isSeen(cfg space.Configuration) bool {
	_, ok := o.seen[cfg.Key()]
	return ok
}

// randomUnseen samples until it finds an admissible, unevaluated
// configuration. Small discrete spaces may be exhausted, in which case an
// admissible repeat is returned.
func (o *Optimizer) randomUnseen() (space.Configuration, error) {
	var repeat space.Configuration
	for i := 0; i < randomRetries; i++ {
		cfg := o.opts.Space.Sample(o.rng)
		if o.admit(cfg) != nil {
			continue
		}
		if !o.isSeen(cfg) {
			return cfg, nil
		}
		if repeat.IsZero() {
			repeat = cfg
		}
	}
	if !repeat.IsZero() {
		return repeat, nil
	}
	return space.Configuration{}, optimization.WrapErrorf(optimization.ErrInvalidConfiguration,
		"no admissible configuration in %d random samples", randomRetries).WithComponent("optimizer")
}

func (o *Optimizer) maximizeAcquisition() (space.Configuration, error) {
	sp := o.opts.Space
	d := sp.Len()

	candidates := make([][]float64, 0, o.opts.NumCandidates+neighbourIncumbents*neighboursPerPoint)
	for i := 0; i < o.opts.NumCandidates; i++ {
		candidates = append(candidates, sp.Sample(o.rng).Vector())
	}
	candidates = append(candidates, o.neighbours()...)

	X := mat.NewDense(len(candidates), d, nil)
	for i, c := range candidates {
		X.SetRow(i, c)
	}
	scores, err := o.score(X)
	if err != nil {
		return space.Configuration{}, err
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	rejected := 0
	for k, idx := range order {
		if rejected >= o.opts.MaxProposalAttempts {
			break
		}
		x := candidates[idx]
		if k == 0 {
			x = o.refine(x, scores[idx])
		}
		cfg, err := sp.FromVector(x)
		if err == nil {
			if o.isSeen(cfg) {
				continue
			}
			err = o.admit(cfg)
		}
		if err != nil {
			if !errors.Is(err, optimization.ErrInvalidConfiguration) {
				return space.Configuration{}, err
			}
			rejected++
			o.logger.Warn("proposal rejected", zap.Int("attempt", rejected), zap.Error(err))
			continue
		}
		o.logger.Debug("proposal",
			zap.String("config", cfg.Describe()),
			zap.Float64("acquisition", scores[idx]),
		)
		return cfg, nil
	}

	o.logger.Debug("no new candidate from acquisition, sampling randomly", zap.Int("rejected", rejected))
	return o.randomUnseen()
}

// score returns the feasibility-weighted Expected Improvement of each row
// of X under the current context.
func (o *Optimizer) score(X *mat.Dense) ([]float64, error) {
	n, _ := X.Dims()

	var contexts *mat.Dense
	if o.contextual {
		current := o.Context()
		projected, err := o.projector.Transform(mat.NewDense(1, len(current), current))
		if err != nil {
			return nil, err
		}
		row := mat.Row(nil, 0, projected)
		contexts = mat.NewDense(n, len(row), nil)
		for i := 0; i < n; i++ {
			contexts.SetRow(i, row)
		}
	}

	mean, variance, err := o.model.Predict(X, contexts)
	if err != nil {
		return nil, optimization.WrapErrorf(err, "predict with %s surrogate", o.opts.SurrogateType).WithComponent("optimizer")
	}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = o.acquisition.Compute(mean.AtVec(i), math.Sqrt(math.Max(variance.AtVec(i), 0)))
	}
	if o.opts.Feasibility != nil {
		p, err := o.opts.Feasibility.PFeasible(X)
		if err != nil {
			return nil, err
		}
		acquisition.WeightByFeasibility(scores, mat.Col(nil, 0, p))
	}
	return scores, nil
}

// neighbours perturbs the best successful configurations so the search
// keeps exploiting around incumbents.
func (o *Optimizer) neighbours() [][]float64 {
	sp := o.opts.Space
	successes := o.history.Successful()
	sort.SliceStable(successes, func(a, b int) bool {
		return successes[a].Objective() < successes[b].Objective()
	})
	if len(successes) > neighbourIncumbents {
		successes = successes[:neighbourIncumbents]
	}

	var out [][]float64
	for _, inc := range successes {
		base := inc.Config.Vector()
		for k := 0; k < neighboursPerPoint; k++ {
			x := append([]float64(nil), base...)
			for i, hp := range sp.Hyperparameters() {
				switch hp.Kind {
				case space.KindReal:
					x[i] += o.rng.NormFloat64() * 0.1 * (hp.Upper - hp.Lower)
				case space.KindInt:
					if o.rng.Float64() < 0.3 {
						x[i] += float64(2*o.rng.Intn(2) - 1)
					}
				case space.KindCategorical:
					if o.rng.Float64() < 0.2 {
						x[i] = float64(o.rng.Intn(len(hp.Choices)))
					}
				}
			}
			sp.Snap(x)
			out = append(out, x)
		}
	}
	return out
}

// refine polishes the continuous dimensions of x with Nelder-Mead on the
// unit cube, keeping discrete dimensions fixed. It returns x unchanged when
// nothing better is found.
func (o *Optimizer) refine(x []float64, score float64) []float64 {
	sp := o.opts.Space
	var dims []int
	for i, hp := range sp.Hyperparameters() {
		if hp.Continuous() {
			dims = append(dims, i)
		}
	}
	if len(dims) == 0 {
		return x
	}

	unit := sp.Normalize(x)
	lift := func(z []float64) []float64 {
		y := append([]float64(nil), x...)
		for j, dim := range dims {
			hp := sp.Hyperparameter(dim)
			y[dim] = hp.Lower + z[j]*(hp.Upper-hp.Lower)
		}
		sp.Snap(y)
		return y
	}

	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			s, err := o.score(mat.NewDense(1, len(x), lift(z)))
			if err != nil {
				return 0
			}
			return -s[0]
		},
	}
	start := make([]float64, len(dims))
	for j, dim := range dims {
		start[j] = unit[dim]
	}
	settings := &optimize.Settings{
		FuncEvaluations: 200,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: 50,
		},
	}
	method := &optimize.NelderMead{
		Reflection:  1.0,
		Expansion:   2.0,
		Contraction: 0.5,
		Shrink:      0.5,
		SimplexSize: 0.05,
	}

	result, err := optimize.Minimize(problem, start, settings, method)
	if result == nil || -result.F <= score {
		if err != nil {
			o.logger.Debug("acquisition refinement failed", zap.Error(err))
		}
		return x
	}
	return lift(result.X)
}
