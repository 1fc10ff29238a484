package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/benchmarks"
	"github.com/copyleftdev/boxopt/internal/optimization/bayesian"
	"github.com/copyleftdev/boxopt/internal/optimization/history"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

type quickstartFlags struct {
	maxRuns     int
	extraRuns   int
	surrogate   string
	contextDim  int
	pca         int
	timeLimit   time.Duration
	trueMinimum float64
	seed        int64
	save        string
}

var qsFlags quickstartFlags

var quickstartCmd = &cobra.Command{
	Use:   "quickstart",
	Short: "Optimize Branin under one context, reset the context and extend the run",
	Long: `quickstart minimizes the Branin function with a contextual surrogate.

It runs --max-runs trials under a random context, switches to a second
random context, raises the target by --extra-runs and runs again. Only the
new trials are evaluated. The History table and the log10 regret against
--true-minimum are printed at the end.`,
	RunE: runQuickstart,
}

func init() {
	f := quickstartCmd.Flags()
	f.IntVar(&qsFlags.maxRuns, "max-runs", 10, "trials in the first run")
	f.IntVar(&qsFlags.extraRuns, "extra-runs", 10, "trials added after the context reset")
	f.StringVar(&qsFlags.surrogate, "surrogate", surrogate.TypeContextPRF, "surrogate type")
	f.IntVar(&qsFlags.contextDim, "context-dim", 10, "raw context dimensionality")
	f.IntVar(&qsFlags.pca, "pca", 4, "principal components kept from the context (0 keeps it raw)")
	f.DurationVar(&qsFlags.timeLimit, "time-limit", 30*time.Second, "time limit per trial")
	f.Float64Var(&qsFlags.trueMinimum, "true-minimum", benchmarks.BraninMinimum, "known minimum used for the regret curve")
	f.Int64Var(&qsFlags.seed, "seed", 1, "random seed for contexts and proposals")
	f.StringVar(&qsFlags.save, "save", "", "write the History as JSON to this path")
}

// randomContext draws a 1×dims context uniformly from [0, 1).
func randomContext(rng *rand.Rand, dims int) *mat.Dense {
	c := mat.NewDense(1, dims, nil)
	for j := 0; j < dims; j++ {
		c.Set(0, j, rng.Float64())
	}
	return c
}

func runQuickstart(cmd *cobra.Command, args []string) error {
	if qsFlags.contextDim < 1 {
		return fmt.Errorf("--context-dim must be positive")
	}
	sp, err := benchmarks.BraninSpace()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(qsFlags.seed))
	o, err := bayesian.NewOptimizer(bayesian.Options{
		Objective:            benchmarks.Branin,
		Space:                sp,
		MaxIterations:        qsFlags.maxRuns,
		InitialPoints:        cfg.Optimization.InitialPoints,
		SurrogateType:        qsFlags.surrogate,
		TimeLimitPerTrial:    qsFlags.timeLimit,
		TaskID:               "quickstart",
		CurrentContext:       randomContext(rng, qsFlags.contextDim),
		ContextPCAComponents: qsFlags.pca,
		RandomSeed:           qsFlags.seed,
		NumCandidates:        cfg.Optimization.NumCandidates,
		Logger:               zapLogger(map[string]interface{}{"task": "quickstart"}),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	pterm.DefaultSection.Printfln("Branin, %s surrogate, %d trials", qsFlags.surrogate, qsFlags.maxRuns)
	if h, err := o.Run(ctx); err != nil {
		return interrupted(h, err)
	}
	first, _ := o.History().Best()
	pterm.Info.Printfln("best after %d trials: %.6f", o.History().Len(), first.Objective())

	if err := o.ResetContext(randomContext(rng, qsFlags.contextDim)); err != nil {
		return err
	}
	o.SetMaxIterations(qsFlags.maxRuns + qsFlags.extraRuns)

	pterm.DefaultSection.Printfln("New context, extending to %d trials", o.MaxIterations())
	h, err := o.Run(ctx)
	if err != nil {
		return interrupted(h, err)
	}

	return report(h, qsFlags.trueMinimum, qsFlags.save)
}

// interrupted reports the partial History of a cancelled run.
func interrupted(h *history.History, err error) error {
	if !errors.Is(err, context.Canceled) {
		return err
	}
	pterm.Warning.Printfln("interrupted after %d trials", h.Len())
	if rerr := report(h, qsFlags.trueMinimum, qsFlags.save); rerr != nil {
		return rerr
	}
	return err
}

// report prints the History table and regret curve and optionally saves
// the History.
func report(h *history.History, trueMinimum float64, save string) error {
	table, err := h.Table()
	if err != nil {
		return err
	}
	pterm.DefaultSection.Println("History")
	pterm.Println(table)

	if err := printRegret(h, trueMinimum); err != nil {
		return err
	}

	if best, ok := h.Best(); ok {
		pterm.Success.Printfln("best %.6f at trial %d: %s", best.Objective(), best.Trial, best.Config.Describe())
	} else {
		pterm.Warning.Println("no trial succeeded")
	}

	if save != "" {
		if err := saveHistory(h, save); err != nil {
			return err
		}
		pterm.Info.Printfln("history written to %s", save)
	}
	return nil
}

func printRegret(h *history.History, trueMinimum float64) error {
	gaps := h.ConvergenceGap(trueMinimum)
	curve := h.Convergence()
	rows := [][]string{{"trial", "best so far", "log10 regret"}}
	for i, g := range gaps {
		best, regret := "-", "-"
		if !math.IsNaN(g) {
			best = fmt.Sprintf("%.6f", curve[i])
			regret = fmt.Sprintf("%.3f", g)
		}
		rows = append(rows, []string{fmt.Sprint(i), best, regret})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	pterm.DefaultSection.Printfln("Regret against %.6f", trueMinimum)
	pterm.Println(out)
	return nil
}

func saveHistory(h *history.History, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := h.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
