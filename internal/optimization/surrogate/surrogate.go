// Package surrogate provides cheap predictive stand-ins for an expensive
// objective function, fitted from observed (configuration, context,
// objective) triples, together with feasibility models that score
// candidate configurations against a constraint.
//
// X matrices always hold one encoded configuration per row with columns in
// the configuration space's declared order. Contexts, when present, hold
// one (already projected) context vector per row of X.
package surrogate

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization"
)

// Model is the contract shared by objective surrogates.
//
// Train replaces the fitted state with a full refit on the given data;
// callers pass the complete, growing dataset on every call. Predict returns
// the predictive mean and variance for each row of X. Implementations are
// safe for one writer (Train) and many concurrent readers (Predict).
type Model interface {
	Train(X *mat.Dense, Y *mat.VecDense, contexts *mat.Dense) error
	Predict(X *mat.Dense, contexts *mat.Dense) (mean, variance *mat.VecDense, err error)
}

// FeasibilityModel scores candidate configurations by their probability of
// satisfying a constraint. cY holds one column per constraint.
type FeasibilityModel interface {
	Train(X *mat.Dense, cY *mat.Dense, contexts *mat.Dense) error
	// PFeasible returns an N×1 matrix of probabilities, one per row of X.
	PFeasible(X *mat.Dense) (*mat.Dense, error)
}

// Options carries the construction parameters shared by registered models.
type Options struct {
	// ContextDims is the column count of the context matrices the model
	// will receive. Zero means context-free.
	ContextDims int

	// Kernel names the GP covariance function ("matern52" or "rbf").
	Kernel string

	// NumTrees is the forest size for tree ensembles.
	NumTrees int

	// Seed makes stochastic models reproducible. Zero picks a fixed default.
	Seed int64

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

func (o Options) logger(name string) *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger.Named(name)
}

// checkTrainShapes validates X, Y and contexts against the model dimensions.
func checkTrainShapes(component string, dims int, X *mat.Dense, Y *mat.VecDense, contexts *mat.Dense) error {
	if X == nil || Y == nil {
		return optimization.DimensionMismatchf("X and Y must not be nil").WithComponent(component).WithOperation("Train")
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return optimization.DimensionMismatchf("X has no rows").WithComponent(component).WithOperation("Train")
	}
	if cols != dims {
		return optimization.DimensionMismatchf("X has %d columns, space has %d hyperparameters", cols, dims).
			WithComponent(component).WithOperation("Train")
	}
	if Y.Len() != rows {
		return optimization.DimensionMismatchf("X has %d rows but Y has length %d", rows, Y.Len()).
			WithComponent(component).WithOperation("Train")
	}
	return checkContextRows(component, "Train", rows, contexts)
}

func checkPredictShapes(component string, dims int, X *mat.Dense, contexts *mat.Dense) error {
	if X == nil {
		return optimization.DimensionMismatchf("X must not be nil").WithComponent(component).WithOperation("Predict")
	}
	rows, cols := X.Dims()
	if cols != dims {
		return optimization.DimensionMismatchf("X has %d columns, space has %d hyperparameters", cols, dims).
			WithComponent(component).WithOperation("Predict")
	}
	return checkContextRows(component, "Predict", rows, contexts)
}

func checkContextRows(component, op string, rows int, contexts *mat.Dense) error {
	if contexts == nil {
		return nil
	}
	if r, _ := contexts.Dims(); r != rows {
		return optimization.DimensionMismatchf("contexts have %d rows, X has %d", r, rows).
			WithComponent(component).WithOperation(op)
	}
	return nil
}

// standardize returns (y - mean) / std together with mean and std. A
// constant target yields std 1.
func standardize(y *mat.VecDense) (*mat.VecDense, float64, float64) {
	n := y.Len()
	mean := 0.0
	for i := 0; i < n; i++ {
		mean += y.AtVec(i)
	}
	mean /= float64(n)
	ss := 0.0
	for i := 0; i < n; i++ {
		d := y.AtVec(i) - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n))
	if std < 1e-12 {
		std = 1
	}
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, (y.AtVec(i)-mean)/std)
	}
	return out, mean, std
}

// inputScaler maps inputs into the unit cube. Dimensions with declared
// bounds use them; the remaining dimensions are scaled from training data.
type inputScaler struct {
	lower []float64
	span  []float64
	fixed []bool
}

func newInputScaler(dims int, bounds [][2]float64) *inputScaler {
	s := &inputScaler{
		lower: make([]float64, dims),
		span:  make([]float64, dims),
		fixed: make([]bool, dims),
	}
	for i := 0; i < dims; i++ {
		s.span[i] = 1
		if i < len(bounds) && bounds[i][1] > bounds[i][0] {
			s.lower[i] = bounds[i][0]
			s.span[i] = bounds[i][1] - bounds[i][0]
			s.fixed[i] = true
		}
	}
	return s
}

func (s *inputScaler) fit(X *mat.Dense) {
	rows, _ := X.Dims()
	for j := range s.fixed {
		if s.fixed[j] {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := 0; i < rows; i++ {
			v := X.At(i, j)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		s.lower[j] = lo
		s.span[j] = hi - lo
		if s.span[j] < 1e-12 {
			s.span[j] = 1
		}
	}
}

func (s *inputScaler) transform(X *mat.Dense) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, (X.At(i, j)-s.lower[j])/s.span[j])
		}
	}
	return out
}

// augment appends the context columns to X. A nil contexts returns X.
func augment(X, contexts *mat.Dense) *mat.Dense {
	if contexts == nil {
		return X
	}
	rows, xc := X.Dims()
	_, cc := contexts.Dims()
	out := mat.NewDense(rows, xc+cc, nil)
	out.Slice(0, rows, 0, xc).(*mat.Dense).Copy(X)
	out.Slice(0, rows, xc, xc+cc).(*mat.Dense).Copy(contexts)
	return out
}
