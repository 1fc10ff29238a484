package surrogate

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

// innerFactory builds a model over an augmented input of dims columns, the
// first len(bounds) of which have declared bounds.
type innerFactory func(dims int, bounds [][2]float64, opts Options) (Model, error)

// Contextual conditions an inner model on context by appending the context
// columns to each configuration row. Contexts are mandatory.
type Contextual struct {
	component   string
	dims        int
	contextDims int
	inner       Model
}

// newContextual wraps a model built by factory over space ⊕ context inputs.
func newContextual(component string, sp *space.Space, opts Options, factory innerFactory) (*Contextual, error) {
	if opts.ContextDims <= 0 {
		return nil, optimization.DimensionMismatchf("contextual surrogate needs a positive context dimension, got %d", opts.ContextDims).
			WithComponent(component)
	}
	inner, err := factory(sp.Len()+opts.ContextDims, sp.Bounds(), opts)
	if err != nil {
		return nil, err
	}
	return &Contextual{
		component:   component,
		dims:        sp.Len(),
		contextDims: opts.ContextDims,
		inner:       inner,
	}, nil
}

// ContextDims returns the context column count the model expects.
func (c *Contextual) ContextDims() int { return c.contextDims }

// Train fits the inner model on [X | contexts].
func (c *Contextual) Train(X *mat.Dense, Y *mat.VecDense, contexts *mat.Dense) error {
	if err := checkTrainShapes(c.component, c.dims, X, Y, contexts); err != nil {
		return err
	}
	if err := c.checkContexts("Train", contexts); err != nil {
		return err
	}
	return c.inner.Train(augment(X, contexts), Y, nil)
}

// Predict predicts at [X | contexts].
func (c *Contextual) Predict(X *mat.Dense, contexts *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	if err := checkPredictShapes(c.component, c.dims, X, contexts); err != nil {
		return nil, nil, err
	}
	if err := c.checkContexts("Predict", contexts); err != nil {
		return nil, nil, err
	}
	return c.inner.Predict(augment(X, contexts), nil)
}

func (c *Contextual) checkContexts(op string, contexts *mat.Dense) error {
	if contexts == nil {
		return optimization.DimensionMismatchf("contexts are required").WithComponent(c.component).WithOperation(op)
	}
	if _, cols := contexts.Dims(); cols != c.contextDims {
		return optimization.DimensionMismatchf("contexts have %d columns, want %d", cols, c.contextDims).
			WithComponent(c.component).WithOperation(op)
	}
	return nil
}
