package surrogate

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/kernels"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

const (
	defaultNoiseVar   = 1e-6
	maxJitterAttempts = 10
)

// defaultLengthScales is the grid searched for the isotropic length scale
// on unit-cube inputs, scored by log marginal likelihood.
var defaultLengthScales = []float64{0.05, 0.1, 0.2, 0.35, 0.5, 1.0, 2.0}

// GP implements a zero-mean Gaussian Process regression surrogate over
// unit-cube normalized inputs and standardized targets.
type GP struct {
	mu sync.RWMutex

	dims int

	// Kernel function
	kernel kernels.Kernel

	// Noise variance
	noiseVar float64

	lengthScales []float64

	scaler *inputScaler

	// Training data (normalized)
	X *mat.Dense

	// Precomputed values
	alpha *mat.VecDense
	L     *mat.Cholesky
	yMean float64
	yStd  float64

	// Matrix pool for reusing kernel matrices across the length-scale search
	matrixPool *MatrixPool

	logger *zap.Logger
}

// NewGP creates a context-free Gaussian Process over the given space.
func NewGP(sp *space.Space, opts Options) (*GP, error) {
	return newGP(sp.Len(), sp.Bounds(), opts)
}

func newGP(dims int, bounds [][2]float64, opts Options) (*GP, error) {
	kernel, err := kernels.New(opts.Kernel, dims, 0.5, 1.0)
	if err != nil {
		return nil, optimization.WrapError(err, "gaussian_process: NewGP")
	}
	return &GP{
		dims:         dims,
		kernel:       kernel,
		noiseVar:     defaultNoiseVar,
		lengthScales: defaultLengthScales,
		scaler:       newInputScaler(dims, bounds),
		matrixPool:   NewMatrixPool(),
		logger:       opts.logger("gaussian_process"),
	}, nil
}

// Train fits the GP to the full dataset. contexts are validated but
// otherwise ignored; use the contextual wrapper to condition on them.
func (gp *GP) Train(X *mat.Dense, Y *mat.VecDense, contexts *mat.Dense) error {
	if err := checkTrainShapes("gaussian_process", gp.dims, X, Y, contexts); err != nil {
		return err
	}
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.fit(X, Y)
}

func (gp *GP) fit(X *mat.Dense, Y *mat.VecDense) error {
	const op = "GP.Fit"

	nSamples, nFeatures := X.Dims()
	gp.logger.Debug("Fitting GP model",
		zap.Int("samples", nSamples),
		zap.Int("features", nFeatures),
		zap.Float64("noise_var", gp.noiseVar),
	)

	gp.scaler.fit(X)
	Xn := gp.scaler.transform(X)
	ys, mean, std := standardize(Y)

	var (
		bestL      *mat.Cholesky
		bestAlpha  *mat.VecDense
		bestLML    = math.Inf(-1)
		bestParams []float64
	)
	params := make([]float64, gp.dims+1)
	for _, ls := range gp.lengthScales {
		for i := 0; i < gp.dims; i++ {
			params[i] = ls
		}
		params[gp.dims] = 1.0
		if err := gp.kernel.SetHyperparameters(params); err != nil {
			return optimization.WrapError(err, "gaussian_process: "+op)
		}

		L, alpha, lml, err := gp.factorize(Xn, ys)
		if err != nil {
			gp.logger.Debug("Skipping length scale", zap.Float64("length_scale", ls), zap.Error(err))
			continue
		}
		if lml > bestLML {
			bestL, bestAlpha, bestLML = L, alpha, lml
			bestParams = append(bestParams[:0], params...)
		}
	}
	if bestL == nil {
		err := errors.New("Cholesky decomposition failed: matrix is not positive definite")
		return optimization.WrapError(err, "gaussian_process: "+op)
	}
	if err := gp.kernel.SetHyperparameters(bestParams); err != nil {
		return optimization.WrapError(err, "gaussian_process: "+op)
	}

	gp.X = Xn
	gp.L = bestL
	gp.alpha = bestAlpha
	gp.yMean = mean
	gp.yStd = std

	gp.logger.Debug("Successfully fitted GP model",
		zap.Int("samples", nSamples),
		zap.Float64("length_scale", bestParams[0]),
		zap.Float64("log_marginal_likelihood", bestLML),
	)
	return nil
}

// factorize builds K + (noise + jitter)I, escalating the jitter until the
// Cholesky factorization succeeds, and returns the factor, alpha = K⁻¹y and
// the log marginal likelihood.
func (gp *GP) factorize(X *mat.Dense, y *mat.VecDense) (*mat.Cholesky, *mat.VecDense, float64, error) {
	n, _ := X.Dims()
	K := gp.matrixPool.GetSymDense(n)
	defer gp.matrixPool.PutSymDense(K)

	diag := gp.matrixPool.GetVecDense(n)
	defer gp.matrixPool.PutVecDense(diag)

	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		diag.SetVec(i, gp.kernel.Eval(xi, xi))
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, gp.kernel.Eval(xi, X.RawRowView(j)))
		}
	}

	jitter := 0.0
	for attempt := 0; attempt < maxJitterAttempts; attempt++ {
		for i := 0; i < n; i++ {
			K.SetSym(i, i, diag.AtVec(i)+gp.noiseVar+jitter)
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(K); !ok {
			jitter = math.Max(jitter*10, 1e-10)
			continue
		}

		alpha := mat.NewVecDense(n, nil)
		if err := chol.SolveVecTo(alpha, y); err != nil {
			jitter = math.Max(jitter*10, 1e-10)
			continue
		}

		lml := -0.5*mat.Dot(y, alpha) - 0.5*chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
		if attempt > 0 {
			gp.logger.Debug("Factorized kernel matrix with jitter",
				zap.Int("attempt", attempt+1),
				zap.Float64("jitter", jitter))
		}
		return &chol, alpha, lml, nil
	}
	return nil, nil, 0, fmt.Errorf("kernel matrix not positive definite after %d jitter attempts", maxJitterAttempts)
}

// Predict returns the mean and variance of the posterior predictive
// distribution of the latent function at the rows of X.
func (gp *GP) Predict(X *mat.Dense, contexts *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "GP.Predict"

	if err := checkPredictShapes("gaussian_process", gp.dims, X, contexts); err != nil {
		return nil, nil, err
	}

	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if gp.L == nil {
		return nil, nil, optimization.WrapError(optimization.ErrNotTrained, "gaussian_process: "+op)
	}

	Xn := gp.scaler.transform(X)
	nTest, _ := Xn.Dims()
	nTrain, _ := gp.X.Dims()

	// Compute kernel matrix between test and training points
	Kstar := mat.NewDense(nTest, nTrain, nil)
	for i := 0; i < nTest; i++ {
		xStar := Xn.RawRowView(i)
		for j := 0; j < nTrain; j++ {
			Kstar.Set(i, j, gp.kernel.Eval(xStar, gp.X.RawRowView(j)))
		}
	}

	// mean = K* alpha, then undo target standardization
	mean := mat.NewVecDense(nTest, nil)
	mean.MulVec(Kstar, gp.alpha)

	// variance = k** - diag(K* K⁻¹ K*ᵀ)
	var v mat.Dense
	if err := gp.L.SolveTo(&v, Kstar.T()); err != nil {
		return nil, nil, optimization.WrapError(
			fmt.Errorf("failed to solve linear system: %w", err),
			"gaussian_process: "+op,
		)
	}

	variance := mat.NewVecDense(nTest, nil)
	for i := 0; i < nTest; i++ {
		xStar := Xn.RawRowView(i)
		q := 0.0
		for j := 0; j < nTrain; j++ {
			q += Kstar.At(i, j) * v.At(j, i)
		}
		s2 := math.Max(gp.kernel.Eval(xStar, xStar)-q, 0)
		mean.SetVec(i, mean.AtVec(i)*gp.yStd+gp.yMean)
		variance.SetVec(i, s2*gp.yStd*gp.yStd)
	}

	return mean, variance, nil
}
