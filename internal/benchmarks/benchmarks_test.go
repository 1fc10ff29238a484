package benchmarks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization/space"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"branin", "index", "sphere"}, Names())

	b, ok := Get("Branin")
	require.True(t, ok)
	assert.Equal(t, BraninMinimum, b.Optimum)

	_, ok = Get("rosenbrock")
	assert.False(t, ok)
}

func TestBraninKnownMinima(t *testing.T) {
	sp, err := BraninSpace()
	require.NoError(t, err)

	for _, x := range [][]float64{{-3.14159265, 12.275}, {3.14159265, 2.275}, {9.42478, 2.475}} {
		cfg, err := sp.FromVector(x)
		require.NoError(t, err)
		res, err := Branin(context.Background(), cfg)
		require.NoError(t, err)
		assert.InDelta(t, BraninMinimum, res.Objective(), 1e-5, "at %v", x)
	}

	res, err := Branin(context.Background(), sp.Default())
	require.NoError(t, err)
	assert.Greater(t, res.Objective(), BraninMinimum)
}

func TestSphere(t *testing.T) {
	sp, err := SphereSpace(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"x0", "x1", "x2"}, sp.Names())

	cfg, err := sp.FromVector([]float64{1, -2, 0.5})
	require.NoError(t, err)
	res, err := Sphere(context.Background(), cfg)
	require.NoError(t, err)
	assert.InDelta(t, 5.25, res.Objective(), 1e-12)
}

func TestIndexSelection(t *testing.T) {
	b, ok := Get("index")
	require.True(t, ok)
	sp, err := b.Space()
	require.NoError(t, err)

	best, err := sp.NewConfiguration(map[string]interface{}{
		"index.orders.customer_id": 1,
		"index.items.sku":          1,
		"index.items.order_id":     1,
		"buffer_ratio":             0.3,
	})
	require.NoError(t, err)
	res, err := IndexSelection(context.Background(), best)
	require.NoError(t, err)
	assert.InDelta(t, IndexSelectionMinimum, res.Objective(), 1e-12)

	// The optimum fits the budget and adding the last index does not.
	model, err := surrogate.NewIndexSpaceModel(sp, b.Budget, b.ResourceSizes, nil)
	require.NoError(t, err)

	all := best.Vector()
	idx, _ := sp.Index("index.orders.created_at")
	all[idx] = 1
	p, err := model.PFeasible(mat.NewDense(2, sp.Len(), append(best.Vector(), all...)))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, mat.Col(nil, 0, p))
}

func TestObjectivesHonourCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, name := range Names() {
		b, _ := Get(name)
		sp, err := b.Space()
		require.NoError(t, err)
		_, err = b.Objective(ctx, sp.Default())
		assert.ErrorIs(t, err, context.Canceled, name)
	}
}

func TestSphereSkipsCategoricals(t *testing.T) {
	sp, err := space.New(space.Real("x", -1, 1, 1), space.Categorical("c", []string{"a", "b"}, "b"))
	require.NoError(t, err)
	res, err := Sphere(context.Background(), sp.Default())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Objective())
}
