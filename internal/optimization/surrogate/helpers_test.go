package surrogate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

// testObjective is a smooth bowl with its minimum at the centre of [0,1]^d
func testObjective(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += (v - 0.5) * (v - 0.5)
	}
	return sum
}

func unitSpace(t testing.TB, dims int) *space.Space {
	t.Helper()
	hps := make([]space.Hyperparameter, dims)
	for i := range hps {
		hps[i] = space.Real(string(rune('a'+i)), 0, 1, 0.5)
	}
	sp, err := space.New(hps...)
	require.NoError(t, err)
	return sp
}

// generateRandomMatrix generates a random matrix with values in [min, max]
func generateRandomMatrix(rng *rand.Rand, rows, cols int, min, max float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = min + rng.Float64()*(max-min)
	}
	return mat.NewDense(rows, cols, data)
}

// objectiveVector evaluates testObjective on every row of X
func objectiveVector(X *mat.Dense) *mat.VecDense {
	rows, _ := X.Dims()
	y := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		y.SetVec(i, testObjective(X.RawRowView(i)))
	}
	return y
}

// assertMatDimsEqual checks if a matrix has the expected dimensions
func assertMatDimsEqual(t *testing.T, got mat.Matrix, rows, cols int) {
	t.Helper()

	rg, cg := got.Dims()
	if rg != rows || cg != cols {
		t.Fatalf("matrix dimensions mismatch: got %dx%d, want %dx%d", rg, cg, rows, cols)
	}
}

// assertFinite checks that every entry of v is a finite number
func assertFinite(t *testing.T, v *mat.VecDense) {
	t.Helper()

	for i := 0; i < v.Len(); i++ {
		if math.IsNaN(v.AtVec(i)) || math.IsInf(v.AtVec(i), 0) {
			t.Fatalf("entry %d is not finite: %v", i, v.AtVec(i))
		}
	}
}
