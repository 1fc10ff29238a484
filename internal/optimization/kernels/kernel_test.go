package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRBFKernel(t *testing.T) {
	tests := []struct {
		name     string
		x1       []float64
		x2       []float64
		ls       float64
		sv       float64
		expected float64
	}{
		{
			name:     "same point",
			x1:       []float64{1.0, 2.0},
			x2:       []float64{1.0, 2.0},
			ls:       1.0,
			sv:       1.0,
			expected: 1.0,
		},
		{
			name:     "different points",
			x1:       []float64{0.0, 0.0},
			x2:       []float64{1.0, 1.0},
			ls:       1.0,
			sv:       1.0,
			expected: math.Exp(-1.0), // exp(-0.5 * (1+1) / 1^2)
		},
		{
			name:     "with different length scale",
			x1:       []float64{0.0, 0.0},
			x2:       []float64{2.0, 2.0},
			ls:       2.0,
			sv:       3.0,
			expected: 3.0 * math.Exp(-1.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kernel, err := NewRBFKernel(len(tt.x1), tt.ls, tt.sv)
			require.NoError(t, err)

			result := kernel.Eval(tt.x1, tt.x2)
			assert.InDelta(t, tt.expected, result, 1e-10)
			assert.InDelta(t, result, kernel.Eval(tt.x2, tt.x1), 1e-10, "kernel is not symmetric")
		})
	}
}

func TestMatern52Kernel(t *testing.T) {
	tests := []struct {
		name           string
		lengthScale    float64
		signalVariance float64
		x1, x2         []float64
		expected       float64
	}{
		{
			name:           "same point",
			lengthScale:    1.0,
			signalVariance: 1.0,
			x1:             []float64{1.0, 2.0},
			x2:             []float64{1.0, 2.0},
			expected:       1.0,
		},
		{
			name:           "different points",
			lengthScale:    1.0,
			signalVariance: 1.0,
			x1:             []float64{0.0, 0.0},
			x2:             []float64{1.0, 1.0},
			expected:       (1.0 + math.Sqrt(5)*math.Sqrt(2) + (5.0/3.0)*2) * math.Exp(-math.Sqrt(5)*math.Sqrt(2)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kernel, err := NewMatern52Kernel(len(tt.x1), tt.lengthScale, tt.signalVariance)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, kernel.Eval(tt.x1, tt.x2), 1e-10)
		})
	}
}

func TestKernelDecaysWithDistance(t *testing.T) {
	for _, name := range []string{"rbf", "matern52"} {
		t.Run(name, func(t *testing.T) {
			k, err := New(name, 1, 0.5, 1.0)
			require.NoError(t, err)

			prev := k.Eval([]float64{0}, []float64{0})
			for d := 0.1; d < 2; d += 0.1 {
				v := k.Eval([]float64{0}, []float64{d})
				assert.Less(t, v, prev)
				assert.Greater(t, v, 0.0)
				prev = v
			}
		})
	}
}

func TestKernelHyperparameters(t *testing.T) {
	k, err := NewMatern52Kernel(2, 1.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, k.Hyperparameters())

	require.NoError(t, k.SetHyperparameters([]float64{0.5, 2, 3}))
	assert.Equal(t, []float64{0.5, 2, 3}, k.Hyperparameters())

	// a longer scale on the second axis makes it matter less
	along1 := k.Eval([]float64{0, 0}, []float64{0.5, 0})
	along2 := k.Eval([]float64{0, 0}, []float64{0, 0.5})
	assert.Greater(t, along2, along1)

	assert.Error(t, k.SetHyperparameters([]float64{1, 1}))
	assert.Error(t, k.SetHyperparameters([]float64{1, -1, 1}))
	assert.Equal(t, []float64{0.5, 2, 3}, k.Hyperparameters())
}

func TestNewKernelValidation(t *testing.T) {
	_, err := New("periodic", 1, 1, 1)
	assert.Error(t, err)
	_, err = NewRBFKernel(0, 1, 1)
	assert.Error(t, err)
	_, err = NewRBFKernel(1, -1, 1)
	assert.Error(t, err)
	_, err = NewMatern52Kernel(1, 1, 0)
	assert.Error(t, err)
}
