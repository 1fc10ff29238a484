// Package acquisition scores candidate configurations from a surrogate's
// predictive distribution.
package acquisition

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Function scores a candidate from its predicted mean and standard
// deviation. Higher is better.
type Function interface {
	Compute(mu, sigma float64) float64
	UpdateBest(best float64)
}

// ExpectedImprovement implements the Expected Improvement acquisition
// function for minimization.
type ExpectedImprovement struct {
	// Best observed value so far
	bestObserved float64
	// Exploration-exploitation trade-off parameter (xi)
	xi float64
}

// NewExpectedImprovement creates a new ExpectedImprovement acquisition function
func NewExpectedImprovement(bestObserved, xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{
		bestObserved: bestObserved,
		xi:           xi,
	}
}

// Compute computes the Expected Improvement for a prediction with mean mu
// and standard deviation sigma. The result is always non-negative.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	if math.IsInf(ei.bestObserved, 1) {
		// nothing observed yet: every point improves, prefer uncertainty
		return sigma
	}
	improvement := ei.bestObserved - mu - ei.xi

	// Certain prediction: EI degenerates to the plain improvement
	if sigma <= 1e-10 {
		return math.Max(improvement, 0)
	}

	// EI = improvement * Φ(z) + sigma * φ(z)
	z := improvement / sigma
	v := improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
	return math.Max(v, 0)
}

// UpdateBest updates the best observed value
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.bestObserved = best
}

// SetXi sets the exploration-exploitation trade-off parameter
func (ei *ExpectedImprovement) SetXi(xi float64) {
	ei.xi = xi
}

// BestObserved returns the best observed value
func (ei *ExpectedImprovement) BestObserved() float64 {
	return ei.bestObserved
}

// WeightByFeasibility multiplies acquisition scores by the probability of
// feasibility of the same candidates (EI with constraints). Both slices
// must have equal length; scores is modified in place and returned.
func WeightByFeasibility(scores, pFeasible []float64) []float64 {
	for i := range scores {
		scores[i] *= pFeasible[i]
	}
	return scores
}
