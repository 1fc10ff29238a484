package space

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/copyleftdev/boxopt/internal/optimization"
)

// Configuration is an ordered assignment of a value to every hyperparameter
// of a space. The zero value is empty and belongs to no space.
type Configuration struct {
	space  *Space
	values []float64
}

// Space returns the space the configuration belongs to.
func (c Configuration) Space() *Space { return c.space }

// IsZero reports whether the configuration is empty.
func (c Configuration) IsZero() bool { return c.space == nil }

// Vector returns a copy of the encoded values in declared order.
func (c Configuration) Vector() []float64 {
	return append([]float64(nil), c.values...)
}

func (c Configuration) lookup(name string) (Hyperparameter, float64, error) {
	if c.space == nil {
		return Hyperparameter{}, 0, optimization.InvalidConfigurationf("empty configuration")
	}
	i, ok := c.space.index[name]
	if !ok {
		return Hyperparameter{}, 0, optimization.InvalidConfigurationf("unknown hyperparameter %q", name)
	}
	return c.space.hps[i], c.values[i], nil
}

// Float returns a numeric hyperparameter's value.
func (c Configuration) Float(name string) (float64, error) {
	hp, v, err := c.lookup(name)
	if err != nil {
		return 0, err
	}
	if hp.Kind == KindCategorical {
		return 0, optimization.InvalidConfigurationf("%s is categorical", name)
	}
	return v, nil
}

// Int returns an integer hyperparameter's value.
func (c Configuration) Int(name string) (int, error) {
	hp, v, err := c.lookup(name)
	if err != nil {
		return 0, err
	}
	if hp.Kind != KindInt {
		return 0, optimization.InvalidConfigurationf("%s is %s, not int", name, hp.Kind)
	}
	return int(v), nil
}

// Choice returns a categorical hyperparameter's chosen value.
func (c Configuration) Choice(name string) (string, error) {
	hp, v, err := c.lookup(name)
	if err != nil {
		return "", err
	}
	if hp.Kind != KindCategorical {
		return "", optimization.InvalidConfigurationf("%s is %s, not categorical", name, hp.Kind)
	}
	return hp.Choices[int(v)], nil
}

// Get returns the decoded value: float64, int or string depending on kind.
func (c Configuration) Get(name string) (interface{}, error) {
	hp, v, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return decode(hp, v), nil
}

func decode(hp Hyperparameter, v float64) interface{} {
	switch hp.Kind {
	case KindInt:
		return int(v)
	case KindCategorical:
		return hp.Choices[int(v)]
	default:
		return v
	}
}

// Map returns the decoded values keyed by hyperparameter name.
func (c Configuration) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(c.values))
	if c.space == nil {
		return m
	}
	for i, hp := range c.space.hps {
		m[hp.Name] = decode(hp, c.values[i])
	}
	return m
}

// Key returns a canonical string identifying the configuration's values.
func (c Configuration) Key() string {
	var b strings.Builder
	for i, v := range c.values {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// Equal reports whether two configurations hold the same values.
func (c Configuration) Equal(o Configuration) bool {
	if len(c.values) != len(o.values) {
		return false
	}
	for i := range c.values {
		if c.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// Describe renders the configuration in declared order.
func (c Configuration) Describe() string {
	if c.space == nil {
		return "Configuration{}"
	}
	var b strings.Builder
	b.WriteString("Configuration{")
	for i, hp := range c.space.hps {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", hp.Name, decode(hp, c.values[i]))
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON encodes the configuration as a name to value object.
func (c Configuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}
