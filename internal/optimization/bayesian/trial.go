package bayesian

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/history"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

type trialOutcome struct {
	result optimization.Result
	err    error
}

// evaluate calls the objective under the per-trial deadline. Faults,
// panics and timeouts become failed observations. The only error returned
// is ctx's, when the run itself is cancelled mid-trial.
func (o *Optimizer) evaluate(ctx context.Context, cfg space.Configuration) (history.Observation, error) {
	var (
		trialCtx context.Context
		cancel   context.CancelFunc
	)
	if o.opts.TimeLimitPerTrial > 0 {
		trialCtx, cancel = context.WithTimeout(ctx, o.opts.TimeLimitPerTrial)
	} else {
		trialCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	done := make(chan trialOutcome, 1)
	go func() {
		var out trialOutcome
		var pc panics.Catcher
		pc.Try(func() {
			out.result, out.err = o.opts.Objective(trialCtx, cfg)
		})
		if r := pc.Recovered(); r != nil {
			out.err = r.AsError()
		}
		done <- out
	}()

	var (
		out      trialOutcome
		received bool
	)
	select {
	case out = <-done:
		received = true
	case <-trialCtx.Done():
	}

	obs := history.Observation{Config: cfg, Elapsed: time.Since(start)}
	if err := ctx.Err(); err != nil {
		return obs, err
	}

	timedOut := !received ||
		(errors.Is(out.err, context.DeadlineExceeded) && errors.Is(trialCtx.Err(), context.DeadlineExceeded))
	switch {
	case timedOut:
		obs.Status = optimization.TrialTimeout
		obs.Err = fmt.Errorf("%w after %s", optimization.ErrTrialTimeout, o.opts.TimeLimitPerTrial).Error()
	case out.err != nil:
		obs.Status = optimization.TrialFailed
		obs.Err = fmt.Errorf("%w: %v", optimization.ErrObjectiveFunction, out.err).Error()
	default:
		if err := checkResult(out.result); err != nil {
			obs.Status = optimization.TrialFailed
			obs.Err = err.Error()
			break
		}
		obs.Status = optimization.TrialSuccess
		obs.Objectives = out.result.Objectives
		obs.Constraints = out.result.Constraints
		obs.Feasible = out.result.Feasible()
	}
	return obs, nil
}

func checkResult(r optimization.Result) error {
	if len(r.Objectives) == 0 {
		return fmt.Errorf("%w: no objective values returned", optimization.ErrObjectiveFunction)
	}
	for i, v := range r.Objectives {
		if math.IsNaN(v) || math.IsInf(v, 0) || optimization.Failed(v) {
			return fmt.Errorf("%w: objective %d is %v", optimization.ErrObjectiveFunction, i, v)
		}
	}
	return nil
}
