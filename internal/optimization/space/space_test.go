package space

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/boxopt/internal/optimization"
)

func braninSpace(t *testing.T) *Space {
	t.Helper()
	s, err := New(
		Real("x1", -5, 10, 0),
		Real("x2", 0, 15, 0),
	)
	require.NoError(t, err)
	return s
}

func TestNewSpace(t *testing.T) {
	tests := []struct {
		name    string
		hps     []Hyperparameter
		wantErr bool
	}{
		{name: "real and int", hps: []Hyperparameter{Real("a", 0, 1, 0.5), Int("b", 1, 8, 2)}},
		{name: "categorical", hps: []Hyperparameter{Categorical("c", []string{"x", "y"}, "y")}},
		{name: "inverted bounds", hps: []Hyperparameter{Real("a", 1, 0, 0.5)}, wantErr: true},
		{name: "default outside", hps: []Hyperparameter{Int("a", 0, 3, 7)}, wantErr: true},
		{name: "duplicate name", hps: []Hyperparameter{Real("a", 0, 1, 0), Real("a", 0, 2, 0)}, wantErr: true},
		{name: "empty choices", hps: []Hyperparameter{Categorical("c", nil, "")}, wantErr: true},
		{name: "unknown categorical default", hps: []Hyperparameter{Categorical("c", []string{"x", "y"}, "z")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.hps...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, optimization.ErrInvalidConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.hps), s.Len())
		})
	}
}

func TestConfigurationAccessors(t *testing.T) {
	s, err := New(
		Real("lr", 0.001, 1, 0.1),
		Int("depth", 1, 10, 3),
		Categorical("algo", []string{"sgd", "adam"}, "adam"),
	)
	require.NoError(t, err)

	cfg := s.Default()
	lr, err := cfg.Float("lr")
	require.NoError(t, err)
	assert.Equal(t, 0.1, lr)

	depth, err := cfg.Int("depth")
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	algo, err := cfg.Choice("algo")
	require.NoError(t, err)
	assert.Equal(t, "adam", algo)

	_, err = cfg.Float("algo")
	assert.Error(t, err)
	_, err = cfg.Get("missing")
	assert.True(t, errors.Is(err, optimization.ErrInvalidConfiguration))

	assert.Equal(t, []float64{0.1, 3, 1}, cfg.Vector())
	assert.Equal(t, "Configuration{lr=0.1, depth=3, algo=adam}", cfg.Describe())

	other, err := s.NewConfiguration(map[string]interface{}{"depth": 5, "algo": "sgd"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 5, 0}, other.Vector())
	assert.False(t, cfg.Equal(other))

	_, err = s.NewConfiguration(map[string]interface{}{"depth": 11})
	assert.True(t, errors.Is(err, optimization.ErrInvalidConfiguration))
	_, err = s.NewConfiguration(map[string]interface{}{"algo": "rmsprop"})
	assert.True(t, errors.Is(err, optimization.ErrInvalidConfiguration))
}

func TestFromVector(t *testing.T) {
	s := braninSpace(t)

	cfg, err := s.FromVector([]float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, "1|2", cfg.Key())

	_, err = s.FromVector([]float64{11, 2})
	assert.True(t, errors.Is(err, optimization.ErrInvalidConfiguration))

	_, err = s.FromVector([]float64{1})
	assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))
}

func TestSamplingStaysInBounds(t *testing.T) {
	s, err := New(
		Real("x", -1, 1, 0),
		Int("n", 0, 4, 0),
		Categorical("c", []string{"a", "b", "c"}, "a"),
	)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		_, err := s.FromVector(s.Sample(rng).Vector())
		require.NoError(t, err)
	}

	lhs := s.LatinHypercube(5, rng)
	require.Len(t, lhs, 5)
	seen := map[int]bool{}
	for _, cfg := range lhs {
		_, err := s.FromVector(cfg.Vector())
		require.NoError(t, err)
		n, _ := cfg.Int("n")
		seen[n] = true
	}
	// five strata over five integer values hit each value once
	assert.Len(t, seen, 5)
}

func TestSnapAndNormalize(t *testing.T) {
	s, err := New(Real("x", 0, 10, 0), Int("n", 0, 4, 0))
	require.NoError(t, err)

	x := []float64{12, 2.6}
	s.Snap(x)
	assert.Equal(t, []float64{10, 3}, x)
	assert.Equal(t, []float64{1, 0.75}, s.Normalize(x))
}
