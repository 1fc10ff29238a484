package kernels

import (
	"fmt"
	"math"
)

// Kernel represents a covariance function for Gaussian Processes.
type Kernel interface {
	// Eval computes the kernel value between two points x1 and x2
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters: one length
	// scale per dimension followed by the signal variance.
	Hyperparameters() []float64

	// SetHyperparameters sets the kernel's hyperparameters
	SetHyperparameters(params []float64) error
}

// stationary holds the parameters shared by distance-based kernels.
type stationary struct {
	// Per-dimension length scales (larger = smoother along that axis)
	lengthScales []float64
	// Signal variance (controls the amplitude of the function)
	signalVar float64
}

func newStationary(dims int, lengthScale, signalVar float64) (stationary, error) {
	if dims < 1 {
		return stationary{}, fmt.Errorf("dims must be positive, got %d", dims)
	}
	if lengthScale <= 0 {
		return stationary{}, fmt.Errorf("lengthScale must be positive, got %v", lengthScale)
	}
	if signalVar <= 0 {
		return stationary{}, fmt.Errorf("signalVar must be positive, got %v", signalVar)
	}
	ls := make([]float64, dims)
	for i := range ls {
		ls[i] = lengthScale
	}
	return stationary{lengthScales: ls, signalVar: signalVar}, nil
}

// scaledDist returns the length-scale weighted Euclidean distance.
func (s *stationary) scaledDist(x1, x2 []float64) float64 {
	sumSq := 0.0
	for i := range x1 {
		diff := (x1[i] - x2[i]) / s.lengthScales[i]
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq)
}

// Hyperparameters returns the length scales followed by the signal variance.
func (s *stationary) Hyperparameters() []float64 {
	return append(append([]float64(nil), s.lengthScales...), s.signalVar)
}

// SetHyperparameters sets the length scales and signal variance.
func (s *stationary) SetHyperparameters(params []float64) error {
	if len(params) != len(s.lengthScales)+1 {
		return fmt.Errorf("expected %d hyperparameters, got %d", len(s.lengthScales)+1, len(params))
	}
	for _, p := range params {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("hyperparameters must be positive and finite, got %v", params)
		}
	}
	copy(s.lengthScales, params[:len(s.lengthScales)])
	s.signalVar = params[len(params)-1]
	return nil
}

// RBFKernel implements the Radial Basis Function (squared exponential) kernel
type RBFKernel struct {
	stationary
}

// NewRBFKernel creates an RBF kernel over dims dimensions sharing one
// initial length scale.
func NewRBFKernel(dims int, lengthScale, signalVar float64) (*RBFKernel, error) {
	s, err := newStationary(dims, lengthScale, signalVar)
	if err != nil {
		return nil, err
	}
	return &RBFKernel{stationary: s}, nil
}

// Eval computes the RBF kernel value between x1 and x2
func (k *RBFKernel) Eval(x1, x2 []float64) float64 {
	r := k.scaledDist(x1, x2)
	return k.signalVar * math.Exp(-0.5*r*r)
}

// Matern52Kernel implements the Matérn 5/2 kernel
type Matern52Kernel struct {
	stationary
}

// NewMatern52Kernel creates a Matérn 5/2 kernel over dims dimensions
// sharing one initial length scale.
func NewMatern52Kernel(dims int, lengthScale, signalVar float64) (*Matern52Kernel, error) {
	s, err := newStationary(dims, lengthScale, signalVar)
	if err != nil {
		return nil, err
	}
	return &Matern52Kernel{stationary: s}, nil
}

// Eval computes the Matérn 5/2 kernel value between x1 and x2
func (k *Matern52Kernel) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(5) * k.scaledDist(x1, x2)
	return k.signalVar * (1.0 + r + r*r/3.0) * math.Exp(-r)
}

// New returns a kernel by name ("rbf" or "matern52").
func New(name string, dims int, lengthScale, signalVar float64) (Kernel, error) {
	switch name {
	case "rbf":
		return NewRBFKernel(dims, lengthScale, signalVar)
	case "matern52", "":
		return NewMatern52Kernel(dims, lengthScale, signalVar)
	default:
		return nil, fmt.Errorf("unknown kernel %q", name)
	}
}
