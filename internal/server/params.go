package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/copyleftdev/boxopt/internal/errors"
	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

// HyperparameterSpec describes one dimension of a user-supplied space.
type HyperparameterSpec struct {
	Name    string      `json:"name"`
	Type    string      `json:"type"` // real, int or categorical
	Lower   float64     `json:"lower,omitempty"`
	Upper   float64     `json:"upper,omitempty"`
	Default interface{} `json:"default,omitempty"`
	Choices []string    `json:"choices,omitempty"`
}

func (h HyperparameterSpec) build() (space.Hyperparameter, error) {
	switch strings.ToLower(h.Type) {
	case "real", "float", "":
		def := h.Lower + (h.Upper-h.Lower)/2
		if v, ok := h.Default.(float64); ok {
			def = v
		}
		return space.Real(h.Name, h.Lower, h.Upper, def), nil
	case "int", "integer":
		def := h.Lower
		if v, ok := h.Default.(float64); ok {
			def = v
		}
		return space.Int(h.Name, int(h.Lower), int(h.Upper), int(def)), nil
	case "categorical":
		if len(h.Choices) == 0 {
			return space.Hyperparameter{}, optimization.InvalidConfigurationf("categorical %q has no choices", h.Name)
		}
		def := h.Choices[0]
		if v, ok := h.Default.(string); ok {
			def = v
		}
		return space.Categorical(h.Name, h.Choices, def), nil
	default:
		return space.Hyperparameter{}, optimization.InvalidConfigurationf("hyperparameter %q has unknown type %q", h.Name, h.Type)
	}
}

// StartParams are the parameters of optimization.start and POST /optimize.
type StartParams struct {
	// Benchmark names the built-in objective to minimize.
	Benchmark string `json:"benchmark"`
	// Space overrides the benchmark's default space.
	Space         []HyperparameterSpec `json:"space,omitempty"`
	MaxIterations int                  `json:"max_iterations,omitempty"`
	SurrogateType string               `json:"surrogate_type,omitempty"`
	// TimeLimitPerTrial is in seconds.
	TimeLimitPerTrial float64 `json:"time_limit_per_trial,omitempty"`
	// Budget and IndexSizes enable the index/cost feasibility model for
	// spaces with index hyperparameters.
	Budget        float64            `json:"budget,omitempty"`
	IndexSizes    map[string]float64 `json:"index_sizes,omitempty"`
	Context       []float64          `json:"context,omitempty"`
	PCAComponents int                `json:"pca_components,omitempty"`
	Seed          int64              `json:"seed,omitempty"`
}

func (p StartParams) buildSpace() (*space.Space, error) {
	if len(p.Space) == 0 {
		return nil, nil
	}
	hps := make([]space.Hyperparameter, 0, len(p.Space))
	for _, spec := range p.Space {
		hp, err := spec.build()
		if err != nil {
			return nil, err
		}
		hps = append(hps, hp)
	}
	return space.New(hps...)
}

func (p StartParams) context() *mat.Dense {
	if len(p.Context) == 0 {
		return nil
	}
	return mat.NewDense(1, len(p.Context), append([]float64(nil), p.Context...))
}

// TaskParams identify a task.
type TaskParams struct {
	ID string `json:"optimization_id"`
}

// ExtendParams are the parameters of optimization.extend.
type ExtendParams struct {
	ID            string    `json:"optimization_id"`
	MaxIterations int       `json:"max_iterations"`
	Context       []float64 `json:"context,omitempty"`
}

// decodeParams accepts either a params object or a one-element array
// holding it.
func decodeParams(raw json.RawMessage, v interface{}) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return apperrors.New("missing required parameters").WithStatus(http.StatusBadRequest)
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return apperrors.Wrap(err, "invalid parameters").WithStatus(http.StatusBadRequest)
		}
		if len(list) != 1 {
			return apperrors.Errorf("expected one parameter object, got %d", len(list)).WithStatus(http.StatusBadRequest)
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Wrap(err, "invalid parameters").WithStatus(http.StatusBadRequest)
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return apperrors.New("optimization_id is required").WithStatus(http.StatusBadRequest)
	}
	return nil
}

func describeSpace(sp *space.Space) string {
	return fmt.Sprintf("%d hyperparameters %v", sp.Len(), sp.Names())
}
