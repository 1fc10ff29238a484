// Package space defines the hyperparameter search space and the
// configurations drawn from it.
//
// Configurations are encoded as float64 vectors in the space's declared
// order: real and integer hyperparameters keep their raw value, categorical
// hyperparameters are encoded as the index of the chosen value.
package space

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/copyleftdev/boxopt/internal/optimization"
)

// Kind identifies the domain type of a hyperparameter.
type Kind string

const (
	// KindReal is a continuous hyperparameter in [Lower, Upper].
	KindReal Kind = "real"
	// KindInt is an integer hyperparameter in [Lower, Upper].
	KindInt Kind = "int"
	// KindCategorical is one of a fixed list of string choices.
	KindCategorical Kind = "categorical"
)

// Hyperparameter describes one dimension of the search space.
type Hyperparameter struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"type"`
	Lower   float64  `json:"lower,omitempty"`
	Upper   float64  `json:"upper,omitempty"`
	Default float64  `json:"default"`
	Choices []string `json:"choices,omitempty"`
}

// Real returns a continuous hyperparameter.
func Real(name string, lower, upper, def float64) Hyperparameter {
	return Hyperparameter{Name: name, Kind: KindReal, Lower: lower, Upper: upper, Default: def}
}

// Int returns an integer hyperparameter.
func Int(name string, lower, upper, def int) Hyperparameter {
	return Hyperparameter{Name: name, Kind: KindInt, Lower: float64(lower), Upper: float64(upper), Default: float64(def)}
}

// Categorical returns a categorical hyperparameter. A def that is not one of
// choices fails validation when the hyperparameter is added to a Space.
func Categorical(name string, choices []string, def string) Hyperparameter {
	hp := Hyperparameter{Name: name, Kind: KindCategorical, Choices: append([]string(nil), choices...), Default: math.NaN()}
	for i, c := range choices {
		if c == def {
			hp.Default = float64(i)
		}
	}
	hp.Lower = 0
	hp.Upper = float64(len(choices) - 1)
	return hp
}

// Contains reports whether the encoded value v lies in the hyperparameter's domain.
func (hp Hyperparameter) Contains(v float64) bool {
	if math.IsNaN(v) || v < hp.Lower || v > hp.Upper {
		return false
	}
	if hp.Kind != KindReal && v != math.Trunc(v) {
		return false
	}
	return true
}

// Continuous reports whether the hyperparameter is real-valued.
func (hp Hyperparameter) Continuous() bool {
	return hp.Kind == KindReal
}

func (hp Hyperparameter) validate() error {
	if hp.Name == "" {
		return optimization.InvalidConfigurationf("hyperparameter name must not be empty")
	}
	switch hp.Kind {
	case KindReal, KindInt:
		if !(hp.Lower < hp.Upper) {
			return optimization.InvalidConfigurationf("%s: lower bound %v must be below upper bound %v", hp.Name, hp.Lower, hp.Upper)
		}
	case KindCategorical:
		if len(hp.Choices) == 0 {
			return optimization.InvalidConfigurationf("%s: categorical needs at least one choice", hp.Name)
		}
		seen := make(map[string]struct{}, len(hp.Choices))
		for _, c := range hp.Choices {
			if _, dup := seen[c]; dup {
				return optimization.InvalidConfigurationf("%s: duplicate choice %q", hp.Name, c)
			}
			seen[c] = struct{}{}
		}
		if math.IsNaN(hp.Default) {
			return optimization.InvalidConfigurationf("%s: default is not one of %v", hp.Name, hp.Choices)
		}
	default:
		return optimization.InvalidConfigurationf("%s: unknown kind %q", hp.Name, hp.Kind)
	}
	if !hp.Contains(hp.Default) {
		return optimization.InvalidConfigurationf("%s: default %v outside domain", hp.Name, hp.Default)
	}
	return nil
}

// Space is an ordered collection of hyperparameters.
type Space struct {
	hps   []Hyperparameter
	index map[string]int
}

// New creates a space from the given hyperparameters.
func New(hps ...Hyperparameter) (*Space, error) {
	s := &Space{index: make(map[string]int)}
	if err := s.Add(hps...); err != nil {
		return nil, err
	}
	return s, nil
}

// Add appends hyperparameters to the space, preserving order.
func (s *Space) Add(hps ...Hyperparameter) error {
	for _, hp := range hps {
		if err := hp.validate(); err != nil {
			return err
		}
		if _, dup := s.index[hp.Name]; dup {
			return optimization.InvalidConfigurationf("duplicate hyperparameter %q", hp.Name)
		}
		s.index[hp.Name] = len(s.hps)
		s.hps = append(s.hps, hp)
	}
	return nil
}

// Len returns the number of hyperparameters.
func (s *Space) Len() int { return len(s.hps) }

// Names returns hyperparameter names in declared order.
func (s *Space) Names() []string {
	names := make([]string, len(s.hps))
	for i, hp := range s.hps {
		names[i] = hp.Name
	}
	return names
}

// Hyperparameter returns the i-th hyperparameter.
func (s *Space) Hyperparameter(i int) Hyperparameter { return s.hps[i] }

// Hyperparameters returns a copy of all hyperparameters.
func (s *Space) Hyperparameters() []Hyperparameter {
	return append([]Hyperparameter(nil), s.hps...)
}

// Index returns the position of the named hyperparameter.
func (s *Space) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Bounds returns the encoded [lower, upper] bounds of every dimension.
func (s *Space) Bounds() [][2]float64 {
	b := make([][2]float64, len(s.hps))
	for i, hp := range s.hps {
		b[i] = [2]float64{hp.Lower, hp.Upper}
	}
	return b
}

// Default returns the configuration made of every default value.
func (s *Space) Default() Configuration {
	v := make([]float64, len(s.hps))
	for i, hp := range s.hps {
		v[i] = hp.Default
	}
	return Configuration{space: s, values: v}
}

// Sample draws a uniformly random configuration.
func (s *Space) Sample(rng *rand.Rand) Configuration {
	v := make([]float64, len(s.hps))
	for i, hp := range s.hps {
		v[i] = sampleDim(hp, rng.Float64())
	}
	return Configuration{space: s, values: v}
}

// LatinHypercube draws n configurations with one stratified sample per
// interval in every dimension.
func (s *Space) LatinHypercube(n int, rng *rand.Rand) []Configuration {
	if n <= 0 {
		return nil
	}
	samples := make([][]float64, n)
	for j := range samples {
		samples[j] = make([]float64, len(s.hps))
	}
	strata := make([]float64, n)
	for i, hp := range s.hps {
		for j := 0; j < n; j++ {
			strata[j] = (float64(j) + rng.Float64()) / float64(n)
		}
		rng.Shuffle(n, func(k, l int) {
			strata[k], strata[l] = strata[l], strata[k]
		})
		for j := 0; j < n; j++ {
			samples[j][i] = sampleDim(hp, strata[j])
		}
	}
	out := make([]Configuration, n)
	for j, v := range samples {
		out[j] = Configuration{space: s, values: v}
	}
	return out
}

// sampleDim maps u in [0,1) onto the hyperparameter's domain.
func sampleDim(hp Hyperparameter, u float64) float64 {
	switch hp.Kind {
	case KindReal:
		return hp.Lower + u*(hp.Upper-hp.Lower)
	default:
		n := hp.Upper - hp.Lower + 1
		v := hp.Lower + math.Floor(u*n)
		return math.Min(v, hp.Upper)
	}
}

// FromVector builds a configuration from an encoded vector, rejecting values
// outside their declared domain.
func (s *Space) FromVector(x []float64) (Configuration, error) {
	if len(x) != len(s.hps) {
		return Configuration{}, optimization.DimensionMismatchf("vector has %d values, space has %d hyperparameters", len(x), len(s.hps))
	}
	for i, hp := range s.hps {
		if !hp.Contains(x[i]) {
			return Configuration{}, optimization.InvalidConfigurationf("%s=%v outside [%v, %v]", hp.Name, x[i], hp.Lower, hp.Upper)
		}
	}
	return Configuration{space: s, values: append([]float64(nil), x...)}, nil
}

// Snap clamps x into the space's bounds and rounds discrete dimensions in place.
func (s *Space) Snap(x []float64) {
	for i, hp := range s.hps {
		v := math.Max(hp.Lower, math.Min(x[i], hp.Upper))
		if hp.Kind != KindReal {
			v = math.Round(v)
		}
		x[i] = v
	}
}

// Normalize maps an encoded vector into the unit cube.
func (s *Space) Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, hp := range s.hps {
		span := hp.Upper - hp.Lower
		if span <= 0 {
			continue
		}
		out[i] = (x[i] - hp.Lower) / span
	}
	return out
}

// NewConfiguration builds a configuration from named values. Missing names
// take their default. Values may be float64, int, or string for categoricals.
func (s *Space) NewConfiguration(values map[string]interface{}) (Configuration, error) {
	cfg := s.Default()
	for name, raw := range values {
		i, ok := s.index[name]
		if !ok {
			return Configuration{}, optimization.InvalidConfigurationf("unknown hyperparameter %q", name)
		}
		hp := s.hps[i]
		v, err := encode(hp, raw)
		if err != nil {
			return Configuration{}, err
		}
		if !hp.Contains(v) {
			return Configuration{}, optimization.InvalidConfigurationf("%s=%v outside domain", name, raw)
		}
		cfg.values[i] = v
	}
	return cfg, nil
}

func encode(hp Hyperparameter, raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case string:
		if hp.Kind != KindCategorical {
			return 0, optimization.InvalidConfigurationf("%s: string value %q for %s hyperparameter", hp.Name, v, hp.Kind)
		}
		for i, c := range hp.Choices {
			if c == v {
				return float64(i), nil
			}
		}
		return 0, optimization.InvalidConfigurationf("%s: %q is not a valid choice", hp.Name, v)
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, optimization.InvalidConfigurationf("%s: unsupported value type %T", hp.Name, raw)
	}
}

// String renders the space's hyperparameters.
func (s *Space) String() string {
	out := "Space{"
	for i, hp := range s.hps {
		if i > 0 {
			out += ", "
		}
		if hp.Kind == KindCategorical {
			out += fmt.Sprintf("%s:%v", hp.Name, hp.Choices)
		} else {
			out += fmt.Sprintf("%s:%s[%g,%g]", hp.Name, hp.Kind, hp.Lower, hp.Upper)
		}
	}
	return out + "}"
}
