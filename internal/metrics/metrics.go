// Package metrics exposes Prometheus collectors for optimization tasks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/copyleftdev/boxopt/internal/optimization"
)

// Collector records per-task trial metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	trials   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	best     *prometheus.GaugeVec
	runs     *prometheus.GaugeVec
}

// NewCollector registers the optimization metrics with reg. A nil reg uses
// the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		trials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boxopt",
				Subsystem: "optimizer",
				Name:      "trials_total",
				Help:      "Total number of evaluated trials by outcome",
			},
			[]string{"task", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "boxopt",
				Subsystem: "optimizer",
				Name:      "trial_duration_seconds",
				Help:      "Objective evaluation time in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"task"},
		),
		best: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "boxopt",
				Subsystem: "optimizer",
				Name:      "best_objective",
				Help:      "Best feasible objective value observed so far",
			},
			[]string{"task"},
		),
		runs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "boxopt",
				Subsystem: "optimizer",
				Name:      "running",
				Help:      "Whether the task's optimizer is currently running",
			},
			[]string{"task"},
		),
	}
}

// ObserveTrial records one finished trial.
func (c *Collector) ObserveTrial(task string, status optimization.TrialStatus, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.trials.WithLabelValues(task, string(status)).Inc()
	c.duration.WithLabelValues(task).Observe(elapsed.Seconds())
}

// SetBest records the best objective of a task. Failure sentinels are ignored.
func (c *Collector) SetBest(task string, v float64) {
	if c == nil || optimization.Failed(v) {
		return
	}
	c.best.WithLabelValues(task).Set(v)
}

// SetRunning flags whether a task's loop is active.
func (c *Collector) SetRunning(task string, running bool) {
	if c == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	c.runs.WithLabelValues(task).Set(v)
}

// Forget drops every series of a task.
func (c *Collector) Forget(task string) {
	if c == nil {
		return
	}
	c.trials.DeletePartialMatch(prometheus.Labels{"task": task})
	c.duration.DeleteLabelValues(task)
	c.best.DeleteLabelValues(task)
	c.runs.DeleteLabelValues(task)
}
