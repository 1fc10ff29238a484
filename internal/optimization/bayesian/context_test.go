package bayesian

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/benchmarks"
	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

// recordingModel is a contextual surrogate that remembers the contexts it is
// called with.
type recordingModel struct {
	mu             sync.Mutex
	trainContexts  *mat.Dense
	predictContext [][]float64
}

func (m *recordingModel) Train(X *mat.Dense, Y *mat.VecDense, contexts *mat.Dense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainContexts = mat.DenseCopyOf(contexts)
	return nil
}

func (m *recordingModel) Predict(X *mat.Dense, contexts *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := X.Dims()
	for i := 0; i < n; i++ {
		m.predictContext = append(m.predictContext, mat.Row(nil, i, contexts))
	}
	variance := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		variance.SetVec(i, 1)
	}
	return mat.NewVecDense(n, nil), variance, nil
}

var recorder = &recordingModel{}

func init() {
	surrogate.Register("recording", true, func(*space.Space, surrogate.Options) (surrogate.Model, error) {
		return recorder, nil
	})
}

func TestResetContextUsesNewContext(t *testing.T) {
	oldCtx := []float64{1, 0, 0}
	newCtx := []float64{0, 5, -5}

	o := newTestOptimizer(t, Options{
		SurrogateType:  "recording",
		MaxIterations:  6,
		CurrentContext: mat.NewDense(1, 3, oldCtx),
	})
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, o.ResetContext(mat.NewDense(1, 3, newCtx)))
	assert.Equal(t, newCtx, o.Context())

	recorder.mu.Lock()
	require.NotEmpty(t, recorder.predictContext)
	recorder.predictContext = nil
	recorder.mu.Unlock()

	o.SetMaxIterations(10)
	h, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, h.Len())

	for _, obs := range h.Observations() {
		want := oldCtx
		if obs.Trial >= 6 {
			want = newCtx
		}
		assert.Equal(t, want, obs.Context, "trial %d", obs.Trial)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	// the last retrain covered every trial with the context it ran under
	rows, cols := recorder.trainContexts.Dims()
	assert.Equal(t, 10, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, newCtx, mat.Row(nil, 9, recorder.trainContexts))
	assert.Equal(t, oldCtx, mat.Row(nil, 0, recorder.trainContexts))

	// every prediction since the reset was made under the new context
	require.NotEmpty(t, recorder.predictContext)
	for _, c := range recorder.predictContext {
		assert.Equal(t, newCtx, c)
	}
}

func TestResetContextValidation(t *testing.T) {
	o := newTestOptimizer(t, Options{
		SurrogateType:        surrogate.TypeContextPRF,
		CurrentContext:       mat.NewDense(1, 4, []float64{1, 2, 3, 4}),
		ContextPCAComponents: 2,
	})

	for _, bad := range []*mat.Dense{nil, mat.NewDense(1, 2, nil), mat.NewDense(2, 4, nil)} {
		err := o.ResetContext(bad)
		assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch), "got %v", err)
	}
	assert.Equal(t, []float64{1, 2, 3, 4}, o.Context())

	plain := newTestOptimizer(t, Options{})
	err := plain.ResetContext(mat.NewDense(1, 4, nil))
	assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))
}

// The quick-start scenario: a contextual forest on Branin with a projected
// ten-dimensional context, a context reset and an extended run.
func TestContextualQuickstart(t *testing.T) {
	sp, err := benchmarks.BraninSpace()
	require.NoError(t, err)

	first := mat.NewDense(1, 10, nil)
	second := mat.NewDense(1, 10, nil)
	for j := 0; j < 10; j++ {
		first.Set(0, j, float64(j))
		second.Set(0, j, float64(10-j)*0.5)
	}

	o := newTestOptimizer(t, Options{
		Objective:            benchmarks.Branin,
		Space:                sp,
		SurrogateType:        surrogate.TypeContextPRF,
		MaxIterations:        10,
		CurrentContext:       first,
		ContextPCAComponents: 4,
	})
	h, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, h.Len())

	require.NoError(t, o.ResetContext(second))
	o.SetMaxIterations(20)
	h, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, h.Len())
	assert.Equal(t, StateCompleted, o.State())

	best, ok := h.Best()
	require.True(t, ok)
	assert.Greater(t, best.Objective(), benchmarks.BraninMinimum-1e-9)
	for _, g := range h.ConvergenceGap(benchmarks.BraninMinimum) {
		assert.False(t, math.IsNaN(g), "the default configuration succeeds first")
	}
}

// spyFeasibility wraps a feasibility model and counts retrains.
type spyFeasibility struct {
	surrogate.FeasibilityModel
	trainRows []int
}

func (s *spyFeasibility) Train(X *mat.Dense, cY *mat.Dense, contexts *mat.Dense) error {
	r, _ := cY.Dims()
	s.trainRows = append(s.trainRows, r)
	return s.FeasibilityModel.Train(X, cY, contexts)
}

func TestFeasibilityConstrainedRun(t *testing.T) {
	b, ok := benchmarks.Get("index")
	require.True(t, ok)
	sp, err := b.Space()
	require.NoError(t, err)

	model, err := surrogate.NewIndexSpaceModel(sp, b.Budget, b.ResourceSizes, nil)
	require.NoError(t, err)
	spy := &spyFeasibility{FeasibilityModel: model}

	o := newTestOptimizer(t, Options{
		Objective:     ObjectiveFunction(b.Objective),
		Space:         sp,
		MaxIterations: 15,
		Feasibility:   spy,
	})
	h, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15, h.Len())

	for _, obs := range h.Observations() {
		cost, err := model.Cost(mat.NewDense(1, sp.Len(), obs.Config.Vector()))
		require.NoError(t, err)
		assert.Equal(t, cost.AtVec(0) < b.Budget, obs.Feasible, "trial %d cost %v", obs.Trial, cost.AtVec(0))
	}

	best, ok := h.Best()
	require.True(t, ok)
	assert.True(t, best.Feasible)
	assert.GreaterOrEqual(t, best.Objective(), benchmarks.IndexSelectionMinimum)

	assert.Len(t, spy.trainRows, 15, "retrained after every trial")
	for i, r := range spy.trainRows {
		assert.Equal(t, i+1, r)
	}
}

func TestFeasibilityModelMustMatchSpace(t *testing.T) {
	other, err := space.New(space.Int("index.t.c1", 0, 10, 0), space.Int("index.t.c2", 0, 10, 0), space.Real("z", 0, 1, 0))
	require.NoError(t, err)
	model, err := surrogate.NewIndexSpaceModel(other, 1500, surrogate.ResourceSizes{"t.c1": 1, "t.c2": 1}, nil)
	require.NoError(t, err)

	_, err = NewOptimizer(Options{Objective: bowl, Space: bowlSpace(t), Feasibility: model})
	assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch), "got %v", err)
}
