package surrogate

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

func TestIndexSpaceModelScenario(t *testing.T) {
	sp, err := space.New(space.Int("index.t.c1", 0, 100, 0))
	require.NoError(t, err)

	m, err := NewIndexSpaceModel(sp, 1500, ResourceSizes{"t.c1": 100}, nil)
	require.NoError(t, err)

	p, err := m.PFeasible(mat.NewDense(2, 1, []float64{10, 20}))
	require.NoError(t, err)
	assertMatDimsEqual(t, p, 2, 1)
	assert.Equal(t, 1.0, p.At(0, 0), "cost 1000 is under budget")
	assert.Equal(t, 0.0, p.At(1, 0), "cost 2000 is over budget")
}

func TestIndexSpaceModelBoundaryIsInfeasible(t *testing.T) {
	sp, err := space.New(
		space.Int("index.t.a", 0, 1, 0),
		space.Real("knob", 0, 10, 1),
		space.Int("index.u.b", 0, 1, 0),
	)
	require.NoError(t, err)

	m, err := NewIndexSpaceModel(sp, 1500, ResourceSizes{"t.a": 1000, "u.b": 500, "unused": 9}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 0, 500}, m.Weights())

	X := mat.NewDense(4, 3, []float64{
		1, 10, 1, // 1500 == budget
		1, 10, 0, // 1000
		0, 3, 1, // 500
		0, 0, 0, // 0
	})
	p, err := m.PFeasible(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 1}, mat.Col(nil, 0, p))
}

func TestIndexSpaceModelOutputIsBinary(t *testing.T) {
	sp, err := space.New(
		space.Int("index.a", 0, 5, 0),
		space.Int("index.b", 0, 5, 0),
		space.Real("x", -1, 1, 0),
	)
	require.NoError(t, err)
	m, err := NewIndexSpaceModel(sp, 700, ResourceSizes{"a": 100, "b": 150}, nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	X := mat.NewDense(50, 3, nil)
	for i := 0; i < 50; i++ {
		X.SetRow(i, sp.Sample(rng).Vector())
	}
	p, err := m.PFeasible(X)
	require.NoError(t, err)
	assertMatDimsEqual(t, p, 50, 1)

	cost, err := m.Cost(X)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		v := p.At(i, 0)
		assert.True(t, v == 0 || v == 1, "row %d: %v", i, v)
		assert.Equal(t, cost.AtVec(i) < 700, v == 1, "row %d cost %v", i, cost.AtVec(i))
	}
}

func TestIndexSpaceModelMissingResource(t *testing.T) {
	sp, err := space.New(space.Int("index.t.c2", 0, 1, 0))
	require.NoError(t, err)

	_, err = NewIndexSpaceModel(sp, 1500, ResourceSizes{"t.c1": 100}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, optimization.ErrMissingResourceSize))
}

func TestIndexSpaceModelTrainIsNoop(t *testing.T) {
	sp, err := space.New(space.Int("index.t.c1", 0, 100, 0))
	require.NoError(t, err)
	m, err := NewIndexSpaceModel(sp, 1500, ResourceSizes{"t.c1": 100}, nil)
	require.NoError(t, err)

	X := mat.NewDense(3, 1, []float64{5, 14, 15})
	before, err := m.PFeasible(X)
	require.NoError(t, err)

	require.NoError(t, m.Train(X, mat.NewDense(3, 1, []float64{1, 1, 1}), nil))
	require.NoError(t, m.Train(X, mat.NewDense(3, 1, []float64{1, 1, 1}), nil))

	after, err := m.PFeasible(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(before, after))
	assert.Equal(t, []float64{1, 1, 0}, mat.Col(nil, 0, after))
}

func TestIndexSpaceModelShapeMismatch(t *testing.T) {
	sp, err := space.New(space.Int("index.t.c1", 0, 100, 0))
	require.NoError(t, err)
	m, err := NewIndexSpaceModel(sp, 1500, ResourceSizes{"t.c1": 100}, nil)
	require.NoError(t, err)

	_, err = m.PFeasible(mat.NewDense(1, 2, nil))
	assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))
}

func TestLoadResourceSizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexsize.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"t.c1": 100, "t.c2": 250.5}`), 0o644))

	sizes, err := LoadResourceSizes(path)
	require.NoError(t, err)
	assert.Equal(t, ResourceSizes{"t.c1": 100, "t.c2": 250.5}, sizes)

	_, err = LoadResourceSizes(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[1,2]`), 0o644))
	_, err = LoadResourceSizes(bad)
	assert.Error(t, err)
}
