package surrogate

import (
	"sort"
	"sync"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

// Surrogate type tags understood by New.
const (
	TypeGP         = "gp"
	TypePRF        = "prf"
	TypeContextGP  = "context_gp"
	TypeContextPRF = "context_prf"
)

// Factory builds a model for a space.
type Factory func(sp *space.Space, opts Options) (Model, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]registration{}
)

type registration struct {
	factory    Factory
	contextual bool
}

func init() {
	Register(TypeGP, false, func(sp *space.Space, opts Options) (Model, error) {
		return NewGP(sp, opts)
	})
	Register(TypePRF, false, func(sp *space.Space, opts Options) (Model, error) {
		return NewForest(sp, opts)
	})
	Register(TypeContextGP, true, func(sp *space.Space, opts Options) (Model, error) {
		return newContextual("context_gp", sp, opts, func(dims int, bounds [][2]float64, o Options) (Model, error) {
			return newGP(dims, bounds, o)
		})
	})
	Register(TypeContextPRF, true, func(sp *space.Space, opts Options) (Model, error) {
		return newContextual("context_prf", sp, opts, func(dims int, _ [][2]float64, o Options) (Model, error) {
			return newForest(dims, o), nil
		})
	})
}

// Register adds or replaces the factory for tag. contextual marks models
// that require a context matrix on every call.
func Register(tag string, contextual bool, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = registration{factory: f, contextual: contextual}
}

// New builds the model registered under tag.
func New(tag string, sp *space.Space, opts Options) (Model, error) {
	registryMu.RLock()
	reg, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, optimization.WrapErrorf(optimization.ErrUnknownSurrogate, "%q (known: %v)", tag, Types())
	}
	return reg.factory(sp, opts)
}

// IsContextual reports whether the model registered under tag needs contexts.
func IsContextual(tag string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[tag].contextual
}

// Types lists the registered tags in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
