package bayesian

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/metrics"
	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

// ObjectiveFunction evaluates one configuration. Implementations should
// return once ctx is done; the optimizer stops waiting at the trial deadline
// either way.
type ObjectiveFunction func(ctx context.Context, cfg space.Configuration) (optimization.Result, error)

// Defaults applied by NewOptimizer to zero-valued options.
const (
	DefaultMaxIterations       = 50
	DefaultInitialPoints       = 3
	DefaultNumCandidates       = 500
	DefaultMaxProposalAttempts = 10
	DefaultXi                  = 0.01
	DefaultTaskID              = "default"
)

// Options configures an Optimizer.
type Options struct {
	// Objective is the function being minimized. Required.
	Objective ObjectiveFunction
	// Space is the configuration space searched. Required.
	Space *space.Space

	// MaxIterations is the total number of trials a Run works towards.
	MaxIterations int
	// InitialPoints is the size of the initial design evaluated before the
	// surrogate drives proposals. The default configuration is always first.
	InitialPoints int

	// SurrogateType selects the registered surrogate (see surrogate.Types).
	SurrogateType string
	// Kernel names the GP kernel for GP-backed surrogates.
	Kernel string

	// TimeLimitPerTrial bounds a single objective evaluation. Zero means no limit.
	TimeLimitPerTrial time.Duration
	// MaxRuntime bounds the wall-clock time of one Run. Zero means no limit.
	MaxRuntime time.Duration

	// TaskID labels the run in logs, metrics and the History.
	TaskID string

	// CurrentContext is the initial context, a 1×d matrix. Required by
	// contextual surrogates.
	CurrentContext *mat.Dense
	// ContextPCAComponents reduces contexts to this many principal
	// components before they reach the surrogate. Zero keeps them raw.
	ContextPCAComponents int

	// Feasibility optionally weights the acquisition by the probability
	// that a candidate is feasible.
	Feasibility surrogate.FeasibilityModel

	// Validate optionally rejects a proposed configuration before it is
	// evaluated. Rejected candidates are re-proposed and never reach the
	// objective.
	Validate func(space.Configuration) error

	// RandomSeed makes proposals reproducible. Zero seeds from the clock.
	RandomSeed int64
	// NumCandidates is the number of random candidates scored per proposal.
	NumCandidates int
	// MaxProposalAttempts bounds re-proposals after invalid candidates.
	MaxProposalAttempts int
	// Xi is the Expected Improvement exploration margin.
	Xi float64

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

func (o *Options) setDefaults() {
	if o.MaxIterations < 1 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.InitialPoints < 1 {
		o.InitialPoints = DefaultInitialPoints
	}
	if o.SurrogateType == "" {
		o.SurrogateType = surrogate.TypeGP
	}
	if o.TaskID == "" {
		o.TaskID = DefaultTaskID
	}
	if o.NumCandidates < 1 {
		o.NumCandidates = DefaultNumCandidates
	}
	if o.MaxProposalAttempts < 1 {
		o.MaxProposalAttempts = DefaultMaxProposalAttempts
	}
	if o.Xi <= 0 {
		o.Xi = DefaultXi
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func (o *Options) validate() error {
	if o.Objective == nil {
		return optimization.NewErrorf("objective function is required").WithComponent("optimizer")
	}
	if o.Space == nil || o.Space.Len() == 0 {
		return optimization.InvalidConfigurationf("configuration space is empty").WithComponent("optimizer")
	}
	if o.TimeLimitPerTrial < 0 || o.MaxRuntime < 0 {
		return optimization.NewErrorf("time limits must not be negative").WithComponent("optimizer")
	}
	return nil
}
