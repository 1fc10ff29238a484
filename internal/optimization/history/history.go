// Package history records the trials of an optimization run.
//
// A History is append-only. Readers receive copies, so a snapshot taken
// while the optimizer is running never changes under the caller.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

// Observation is one evaluated trial.
type Observation struct {
	Trial       int
	Config      space.Configuration
	Context     []float64
	Objectives  []float64
	Constraints []float64
	Feasible    bool
	Status      optimization.TrialStatus
	Err         string
	Elapsed     time.Duration
	Time        time.Time
}

// Objective returns the primary objective, or the failure sentinel for
// trials that produced no result.
func (o Observation) Objective() float64 {
	if o.Status != optimization.TrialSuccess || len(o.Objectives) == 0 {
		return optimization.FailedObjective
	}
	return o.Objectives[0]
}

// Succeeded reports whether the objective returned a result.
func (o Observation) Succeeded() bool {
	return o.Status == optimization.TrialSuccess
}

func (o Observation) clone() Observation {
	o.Context = append([]float64(nil), o.Context...)
	o.Objectives = append([]float64(nil), o.Objectives...)
	o.Constraints = append([]float64(nil), o.Constraints...)
	return o
}

// History is the ordered record of a task's trials.
type History struct {
	mu           sync.RWMutex
	taskID       string
	space        *space.Space
	start        time.Time
	observations []Observation
}

// New creates an empty history for a task over sp.
func New(taskID string, sp *space.Space) *History {
	return &History{
		taskID: taskID,
		space:  sp,
		start:  time.Now(),
	}
}

// TaskID returns the task label.
func (h *History) TaskID() string { return h.taskID }

// Space returns the configuration space the trials were drawn from.
func (h *History) Space() *space.Space { return h.space }

// Append records obs as the next trial and returns the stored copy. The
// trial index and timestamp are assigned here.
func (h *History) Append(obs Observation) (Observation, error) {
	if obs.Config.Space() != h.space {
		return Observation{}, optimization.InvalidConfigurationf("configuration does not belong to the space of task %q", h.taskID)
	}
	switch obs.Status {
	case optimization.TrialSuccess, optimization.TrialFailed, optimization.TrialTimeout:
	default:
		return Observation{}, optimization.NewErrorf("unknown trial status %q", obs.Status).WithComponent("history")
	}
	if obs.Time.IsZero() {
		obs.Time = time.Now()
	}
	obs = obs.clone()

	h.mu.Lock()
	defer h.mu.Unlock()
	obs.Trial = len(h.observations)
	h.observations = append(h.observations, obs)
	return obs.clone(), nil
}

// Len returns the number of recorded trials.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observations)
}

// Observations returns a snapshot of every trial in order.
func (h *History) Observations() []Observation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Observation, len(h.observations))
	for i, o := range h.observations {
		out[i] = o.clone()
	}
	return out
}

// Successful returns the trials whose objective returned a result.
func (h *History) Successful() []Observation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Observation
	for _, o := range h.observations {
		if o.Succeeded() {
			out = append(out, o.clone())
		}
	}
	return out
}

// Best returns the successful feasible trial with the lowest objective.
// When no feasible trial exists the best successful trial is returned.
func (h *History) Best() (Observation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	best, found := -1, false
	for _, feasibleOnly := range []bool{true, false} {
		for i, o := range h.observations {
			if !o.Succeeded() || (feasibleOnly && !o.Feasible) {
				continue
			}
			if best < 0 || o.Objective() < h.observations[best].Objective() {
				best = i
			}
		}
		if best >= 0 {
			found = true
			break
		}
	}
	if !found {
		return Observation{}, false
	}
	return h.observations[best].clone(), true
}

// Convergence returns the running best feasible objective after each trial.
// Entries before the first feasible success hold optimization.FailedObjective.
func (h *History) Convergence() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]float64, len(h.observations))
	best := optimization.FailedObjective
	for i, o := range h.observations {
		if o.Succeeded() && o.Feasible && o.Objective() < best {
			best = o.Objective()
		}
		out[i] = best
	}
	return out
}

// ConvergenceGap returns log10 of the regret against a known optimum for
// each entry of Convergence. Entries without a feasible success are NaN and
// a regret of zero or less is clamped to 1e-12.
func (h *History) ConvergenceGap(trueMinimum float64) []float64 {
	curve := h.Convergence()
	out := make([]float64, len(curve))
	for i, v := range curve {
		if optimization.Failed(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log10(math.Max(v-trueMinimum, 1e-12))
	}
	return out
}

// Elapsed returns the time between creation and the last recorded trial.
func (h *History) Elapsed() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.observations) == 0 {
		return 0
	}
	return h.observations[len(h.observations)-1].Time.Sub(h.start)
}

// Table renders the trials as a text table.
func (h *History) Table() (string, error) {
	obs := h.Observations()
	data := pterm.TableData{{"trial", "status", "objective", "feasible", "elapsed", "configuration"}}
	for _, o := range obs {
		objective := "-"
		if o.Succeeded() {
			objective = strconv.FormatFloat(o.Objective(), 'g', 6, 64)
		}
		data = append(data, []string{
			strconv.Itoa(o.Trial),
			string(o.Status),
			objective,
			strconv.FormatBool(o.Feasible),
			o.Elapsed.Round(time.Millisecond).String(),
			o.Config.Describe(),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// String implements fmt.Stringer.
func (h *History) String() string {
	table, err := h.Table()
	if err != nil {
		return fmt.Sprintf("History{task=%s, trials=%d}", h.taskID, h.Len())
	}
	return fmt.Sprintf("History of task %q (%d trials)\n%s", h.taskID, h.Len(), table)
}

type observationRecord struct {
	Trial       int                      `json:"trial"`
	Config      map[string]interface{}   `json:"config"`
	Context     []float64                `json:"context,omitempty"`
	Objectives  []float64                `json:"objs,omitempty"`
	Constraints []float64                `json:"constraints,omitempty"`
	Feasible    bool                     `json:"feasible"`
	Status      optimization.TrialStatus `json:"status"`
	Err         string                   `json:"error,omitempty"`
	ElapsedMS   float64                  `json:"elapsed_ms"`
	Time        time.Time                `json:"time"`
}

type historyRecord struct {
	TaskID       string              `json:"task_id"`
	Start        time.Time           `json:"start"`
	Observations []observationRecord `json:"observations"`
}

// MarshalJSON implements json.Marshaler.
func (h *History) MarshalJSON() ([]byte, error) {
	obs := h.Observations()
	rec := historyRecord{TaskID: h.taskID, Start: h.start, Observations: make([]observationRecord, len(obs))}
	for i, o := range obs {
		rec.Observations[i] = observationRecord{
			Trial:       o.Trial,
			Config:      o.Config.Map(),
			Context:     o.Context,
			Objectives:  o.Objectives,
			Constraints: o.Constraints,
			Feasible:    o.Feasible,
			Status:      o.Status,
			Err:         o.Err,
			ElapsedMS:   float64(o.Elapsed) / float64(time.Millisecond),
			Time:        o.Time,
		}
	}
	return json.Marshal(rec)
}

// Save writes the history as JSON.
func (h *History) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		return optimization.WrapErrorf(err, "save history of task %q", h.taskID)
	}
	return nil
}

// Load reads a history written by Save. Configurations are rebuilt against sp
// and rejected when they fall outside it.
func Load(r io.Reader, sp *space.Space) (*History, error) {
	var rec historyRecord
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, optimization.WrapError(err, "decode history")
	}
	h := &History{taskID: rec.TaskID, space: sp, start: rec.Start}
	for _, orec := range rec.Observations {
		cfg, err := sp.NewConfiguration(orec.Config)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "trial %d", orec.Trial)
		}
		h.observations = append(h.observations, Observation{
			Trial:       len(h.observations),
			Config:      cfg,
			Context:     orec.Context,
			Objectives:  orec.Objectives,
			Constraints: orec.Constraints,
			Feasible:    orec.Feasible,
			Status:      orec.Status,
			Err:         orec.Err,
			Elapsed:     time.Duration(orec.ElapsedMS * float64(time.Millisecond)),
			Time:        orec.Time,
		})
	}
	return h, nil
}
