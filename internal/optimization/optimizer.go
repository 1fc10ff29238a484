package optimization

import (
	"math"
)

// FailedObjective is the sentinel objective value recorded for trials that
// did not produce a result (fault, timeout, invalid proposal).
const FailedObjective = math.MaxFloat64

// TrialStatus describes how a trial ended.
type TrialStatus string

const (
	// TrialSuccess means the objective returned a result.
	TrialSuccess TrialStatus = "success"
	// TrialFailed means the objective returned an error or panicked.
	TrialFailed TrialStatus = "failed"
	// TrialTimeout means the objective exceeded the per-trial time limit.
	TrialTimeout TrialStatus = "timeout"
)

// Result is what an objective function returns for one configuration.
type Result struct {
	// Objectives holds one or more objective values; all are minimized.
	Objectives []float64 `json:"objs"`

	// Constraints holds optional constraint values; a trial is feasible
	// when every constraint is <= 0.
	Constraints []float64 `json:"constraints,omitempty"`
}

// Feasible reports whether every constraint value is satisfied.
func (r Result) Feasible() bool {
	for _, c := range r.Constraints {
		if c > 0 || math.IsNaN(c) {
			return false
		}
	}
	return true
}

// Objective returns the primary (first) objective value, or FailedObjective
// when the result carries none.
func (r Result) Objective() float64 {
	if len(r.Objectives) == 0 {
		return FailedObjective
	}
	return r.Objectives[0]
}

// Failed reports whether v is the failure sentinel.
func Failed(v float64) bool {
	return v == FailedObjective
}
