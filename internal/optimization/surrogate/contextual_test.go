package surrogate

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization"
)

func TestRegistry(t *testing.T) {
	sp := unitSpace(t, 2)

	assert.Equal(t, []string{"context_gp", "context_prf", "gp", "prf"}, Types())
	assert.True(t, IsContextual(TypeContextPRF))
	assert.False(t, IsContextual(TypeGP))

	for _, tag := range []string{TypeGP, TypePRF} {
		m, err := New(tag, sp, Options{})
		require.NoError(t, err, tag)
		assert.NotNil(t, m)
	}

	_, err := New("tpe", sp, Options{})
	assert.True(t, errors.Is(err, optimization.ErrUnknownSurrogate))

	_, err = New(TypeContextGP, sp, Options{})
	assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch), "contextual models need a context dimension")
}

// The objective flips sign with the context, so only a model that sees the
// context can rank the same configuration correctly in both contexts.
func TestContextualModelsUseContext(t *testing.T) {
	sp := unitSpace(t, 1)
	rng := rand.New(rand.NewSource(4))

	n := 40
	X := mat.NewDense(n, 1, nil)
	C := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x := rng.Float64()
		c := float64(i % 2)
		X.Set(i, 0, x)
		C.Set(i, 0, c)
		if c == 0 {
			y.SetVec(i, x)
		} else {
			y.SetVec(i, 1-x)
		}
	}

	for _, tag := range []string{TypeContextGP, TypeContextPRF} {
		t.Run(tag, func(t *testing.T) {
			m, err := New(tag, sp, Options{ContextDims: 1, NumTrees: 20})
			require.NoError(t, err)
			require.NoError(t, m.Train(X, y, C))

			Xq := mat.NewDense(2, 1, []float64{0.1, 0.1})
			Cq := mat.NewDense(2, 1, []float64{0, 1})
			mean, _, err := m.Predict(Xq, Cq)
			require.NoError(t, err)
			assert.Less(t, mean.AtVec(0), 0.5)
			assert.Greater(t, mean.AtVec(1), 0.5)
		})
	}
}

func TestContextualShapeErrors(t *testing.T) {
	sp := unitSpace(t, 2)
	m, err := New(TypeContextPRF, sp, Options{ContextDims: 3})
	require.NoError(t, err)

	X := mat.NewDense(2, 2, nil)
	y := mat.NewVecDense(2, nil)

	tests := []struct {
		name     string
		X        *mat.Dense
		contexts *mat.Dense
	}{
		{"missing contexts", X, nil},
		{"context columns", X, mat.NewDense(2, 2, nil)},
		{"context rows", X, mat.NewDense(3, 3, nil)},
		{"X columns", mat.NewDense(2, 5, nil), mat.NewDense(2, 3, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Train(tt.X, y, tt.contexts)
			assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch), "got %v", err)
		})
	}
}

func TestContextProjector(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		p, err := NewContextProjector(3, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, p.Dims())

		raw := mat.NewDense(1, 3, []float64{1, 2, 3})
		require.NoError(t, p.Fit(raw))
		out, err := p.Transform(raw)
		require.NoError(t, err)
		assert.True(t, mat.Equal(raw, out))
	})

	t.Run("single_observation", func(t *testing.T) {
		p, err := NewContextProjector(10, 4)
		require.NoError(t, err)
		raw := mat.NewDense(1, 10, nil)
		for j := 0; j < 10; j++ {
			raw.Set(0, j, float64(j))
		}
		require.NoError(t, p.Fit(raw))
		out, err := p.Transform(raw)
		require.NoError(t, err)
		assertMatDimsEqual(t, out, 1, 4)
	})

	t.Run("principal_axis", func(t *testing.T) {
		// points spread along x = y; the first component captures the spread
		p, err := NewContextProjector(2, 1)
		require.NoError(t, err)
		raw := mat.NewDense(4, 2, []float64{0, 0, 1, 1, 2, 2, 3, 3})
		require.NoError(t, p.Fit(raw))

		out, err := p.Transform(raw)
		require.NoError(t, err)
		assertMatDimsEqual(t, out, 4, 1)

		// projected spread preserves the distance between the extremes
		assert.InDelta(t, 3*1.4142135623730951, abs(out.At(3, 0)-out.At(0, 0)), 1e-9)

		// a point off the axis projects onto it
		off, err := p.Transform(mat.NewDense(1, 2, []float64{1.5 + 1, 1.5 - 1}))
		require.NoError(t, err)
		assert.InDelta(t, 0, off.At(0, 0), 1e-9)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := NewContextProjector(3, 4)
		assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))
		_, err = NewContextProjector(0, 0)
		assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))

		p, err := NewContextProjector(3, 2)
		require.NoError(t, err)
		_, err = p.Transform(mat.NewDense(1, 4, nil))
		assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
