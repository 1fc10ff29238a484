// Package benchmarks provides built-in objective functions with known optima
// for exercising the optimizer.
package benchmarks

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

// Objective evaluates one configuration.
type Objective func(ctx context.Context, cfg space.Configuration) (optimization.Result, error)

// Benchmark is a named test problem.
type Benchmark struct {
	Name        string
	Description string
	// Optimum is the known global minimum.
	Optimum float64
	// Space builds the benchmark's default search space.
	Space func() (*space.Space, error)
	// Objective evaluates a configuration.
	Objective Objective
	// ResourceSizes and Budget are set for problems with an index budget.
	ResourceSizes surrogate.ResourceSizes
	Budget        float64
}

var registry = map[string]Benchmark{}

func register(b Benchmark) { registry[b.Name] = b }

// Get returns the benchmark registered under name.
func Get(name string) (Benchmark, bool) {
	b, ok := registry[strings.ToLower(name)]
	return b, ok
}

// Names lists the built-in benchmarks.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	register(Benchmark{
		Name:        "branin",
		Description: "Branin-Hoo function on x1 in [-5, 10], x2 in [0, 15]",
		Optimum:     BraninMinimum,
		Space:       BraninSpace,
		Objective:   Branin,
	})
	register(Benchmark{
		Name:        "sphere",
		Description: "Sum of squares over every numeric hyperparameter",
		Optimum:     0,
		Space: func() (*space.Space, error) {
			return SphereSpace(4)
		},
		Objective: Sphere,
	})
	register(Benchmark{
		Name:          "index",
		Description:   "Simulated workload latency over candidate indexes under a storage budget",
		Optimum:       IndexSelectionMinimum,
		Space:         IndexSelectionSpace,
		Objective:     IndexSelection,
		ResourceSizes: IndexSizes(),
		Budget:        surrogate.DefaultIndexBudget,
	})
}

// BraninMinimum is the global minimum of the Branin function.
const BraninMinimum = 0.397887

// BraninSpace returns the standard Branin domain.
func BraninSpace() (*space.Space, error) {
	return space.New(
		space.Real("x1", -5, 10, 0),
		space.Real("x2", 0, 15, 0),
	)
}

// Branin evaluates the Branin-Hoo function.
func Branin(ctx context.Context, cfg space.Configuration) (optimization.Result, error) {
	if err := ctx.Err(); err != nil {
		return optimization.Result{}, err
	}
	x1, err := cfg.Float("x1")
	if err != nil {
		return optimization.Result{}, err
	}
	x2, err := cfg.Float("x2")
	if err != nil {
		return optimization.Result{}, err
	}

	const (
		a = 1.0
		r = 6.0
		s = 10.0
	)
	b := 5.1 / (4 * math.Pi * math.Pi)
	c := 5 / math.Pi
	t := 1 / (8 * math.Pi)

	y := a*math.Pow(x2-b*x1*x1+c*x1-r, 2) + s*(1-t)*math.Cos(x1) + s
	return optimization.Result{Objectives: []float64{y}}, nil
}

// SphereSpace returns a dims-dimensional box [-5, 5]^dims with a corner default.
func SphereSpace(dims int) (*space.Space, error) {
	hps := make([]space.Hyperparameter, dims)
	for i := range hps {
		hps[i] = space.Real("x"+strconv.Itoa(i), -5, 5, 5)
	}
	return space.New(hps...)
}

// Sphere sums the squares of every numeric hyperparameter.
func Sphere(ctx context.Context, cfg space.Configuration) (optimization.Result, error) {
	if err := ctx.Err(); err != nil {
		return optimization.Result{}, err
	}
	sum := 0.0
	for _, hp := range cfg.Space().Hyperparameters() {
		if hp.Kind == space.KindCategorical {
			continue
		}
		v, err := cfg.Float(hp.Name)
		if err != nil {
			return optimization.Result{}, err
		}
		sum += v * v
	}
	return optimization.Result{Objectives: []float64{sum}}, nil
}

// indexBenefit is the latency saved by each candidate index, keyed by resource.
var indexBenefit = map[string]float64{
	"orders.customer_id": 40,
	"orders.created_at":  25,
	"items.sku":          30,
	"items.order_id":     15,
}

// IndexSelectionMinimum is the best latency reachable within the default budget:
// orders.customer_id + items.sku + items.order_id with buffer_ratio at 0.3.
const IndexSelectionMinimum = 15.0

// IndexSizes returns the storage cost of each candidate index.
func IndexSizes() surrogate.ResourceSizes {
	return surrogate.ResourceSizes{
		"orders.customer_id": 600,
		"orders.created_at":  500,
		"items.sku":          500,
		"items.order_id":     300,
	}
}

// IndexSelectionSpace returns one binary hyperparameter per candidate index
// plus a buffer tuning knob.
func IndexSelectionSpace() (*space.Space, error) {
	resources := make([]string, 0, len(indexBenefit))
	for r := range indexBenefit {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	hps := make([]space.Hyperparameter, 0, len(resources)+1)
	for _, r := range resources {
		hps = append(hps, space.Int(surrogate.IndexPrefix+r, 0, 1, 0))
	}
	hps = append(hps, space.Real("buffer_ratio", 0, 1, 0.5))
	return space.New(hps...)
}

// IndexSelection simulates workload latency. Every built index saves its
// benefit; the buffer ratio adds a quadratic penalty around 0.3.
func IndexSelection(ctx context.Context, cfg space.Configuration) (optimization.Result, error) {
	if err := ctx.Err(); err != nil {
		return optimization.Result{}, err
	}
	latency := 100.0
	for _, hp := range cfg.Space().Hyperparameters() {
		resource, ok := strings.CutPrefix(hp.Name, surrogate.IndexPrefix)
		if !ok {
			continue
		}
		built, err := cfg.Int(hp.Name)
		if err != nil {
			return optimization.Result{}, err
		}
		latency -= indexBenefit[resource] * float64(built)
	}
	if ratio, err := cfg.Float("buffer_ratio"); err == nil {
		latency += 50 * (ratio - 0.3) * (ratio - 0.3)
	}
	return optimization.Result{Objectives: []float64{latency}}, nil
}
