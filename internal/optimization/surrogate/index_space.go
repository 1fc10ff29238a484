package surrogate

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

const (
	// IndexPrefix marks hyperparameters that build an index whose size is
	// looked up in a ResourceSizes table under the name without the prefix.
	IndexPrefix = "index."

	// DefaultIndexBudget is the storage budget used when none is configured.
	DefaultIndexBudget = 1500.0
)

// ResourceSizes maps a resource identifier ("table.column") to its size.
type ResourceSizes map[string]float64

// LoadResourceSizes reads a JSON object of resource identifier to size.
func LoadResourceSizes(path string) (ResourceSizes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, optimization.WrapErrorf(err, "read resource sizes %s", path).WithComponent("index_space_model")
	}
	var sizes ResourceSizes
	if err := json.Unmarshal(data, &sizes); err != nil {
		return nil, optimization.WrapErrorf(err, "decode resource sizes %s", path).WithComponent("index_space_model")
	}
	return sizes, nil
}

// IndexSpaceModel decides feasibility structurally: a configuration is
// feasible when the total size of the indexes it builds stays strictly
// below the budget. The cost is linear in the configuration vector with
// one weight per hyperparameter, fixed at construction.
type IndexSpaceModel struct {
	budget  float64
	weights *mat.VecDense
	names   []string
	logger  *zap.Logger
}

// NewIndexSpaceModel builds the weight vector from sizes. Every
// hyperparameter named IndexPrefix+<resource> must have <resource> in
// sizes; other hyperparameters carry zero weight.
func NewIndexSpaceModel(sp *space.Space, budget float64, sizes ResourceSizes, logger *zap.Logger) (*IndexSpaceModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	names := sp.Names()
	weights := mat.NewVecDense(len(names), nil)
	for i, name := range names {
		if !strings.HasPrefix(name, IndexPrefix) {
			continue
		}
		resource := strings.TrimPrefix(name, IndexPrefix)
		size, ok := sizes[resource]
		if !ok {
			return nil, optimization.WrapErrorf(optimization.ErrMissingResourceSize,
				"hyperparameter %q references unknown resource %q", name, resource).
				WithComponent("index_space_model")
		}
		weights.SetVec(i, size)
	}

	m := &IndexSpaceModel{
		budget:  budget,
		weights: weights,
		names:   names,
		logger:  logger.Named("index_space_model"),
	}
	m.logger.Debug("All index sizes",
		zap.Strings("hyperparameters", names),
		zap.Float64s("sizes", weights.RawVector().Data),
		zap.Float64("budget", budget),
	)
	return m, nil
}

// Budget returns the cost ceiling.
func (m *IndexSpaceModel) Budget() float64 { return m.budget }

// Weights returns a copy of the per-hyperparameter cost weights.
func (m *IndexSpaceModel) Weights() []float64 {
	return append([]float64(nil), m.weights.RawVector().Data...)
}

// Train is a no-op: the cost model is fixed by construction.
func (m *IndexSpaceModel) Train(X *mat.Dense, cY *mat.Dense, contexts *mat.Dense) error {
	return nil
}

// Cost returns the weighted cost of each row of X.
func (m *IndexSpaceModel) Cost(X *mat.Dense) (*mat.VecDense, error) {
	if X == nil {
		return nil, optimization.DimensionMismatchf("X must not be nil").WithComponent("index_space_model")
	}
	rows, cols := X.Dims()
	if cols != m.weights.Len() {
		return nil, optimization.DimensionMismatchf("X has %d columns, space has %d hyperparameters", cols, m.weights.Len()).
			WithComponent("index_space_model").WithOperation("Cost")
	}
	cost := mat.NewVecDense(rows, nil)
	cost.MulVec(X, m.weights)
	return cost, nil
}

// PFeasible returns an N×1 matrix holding 1 where cost < budget and 0
// otherwise. A cost equal to the budget is infeasible.
func (m *IndexSpaceModel) PFeasible(X *mat.Dense) (*mat.Dense, error) {
	cost, err := m.Cost(X)
	if err != nil {
		return nil, err
	}
	n := cost.Len()
	p := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if cost.AtVec(i) < m.budget {
			p.Set(i, 0, 1)
		}
	}
	return p, nil
}

// String describes the model.
func (m *IndexSpaceModel) String() string {
	return fmt.Sprintf("IndexSpaceModel{budget=%g, indexes=%d}", m.budget, m.indexCount())
}

func (m *IndexSpaceModel) indexCount() int {
	n := 0
	for _, name := range m.names {
		if strings.HasPrefix(name, IndexPrefix) {
			n++
		}
	}
	return n
}
