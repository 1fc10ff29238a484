package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/copyleftdev/boxopt/internal/benchmarks"
	"github.com/copyleftdev/boxopt/internal/optimization/bayesian"
	"github.com/copyleftdev/boxopt/internal/optimization/history"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

type runFlags struct {
	benchmark string
	maxRuns   int
	surrogate string
	timeLimit time.Duration
	budget    float64
	sizesPath string
	seed      int64
	save      string
}

var rFlags runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Minimize a built-in benchmark",
	Long: `run minimizes one of the built-in benchmarks without a context.

Benchmarks with index hyperparameters are constrained by the index/cost
feasibility model; --budget and --index-sizes override the benchmark's own
budget and size table.`,
	RunE: runBenchmark,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&rFlags.benchmark, "benchmark", "b", "branin", "benchmark name, see boxopt benchmarks")
	f.IntVar(&rFlags.maxRuns, "max-runs", 0, "trials to run (default OPT_MAX_ITERATIONS)")
	f.StringVar(&rFlags.surrogate, "surrogate", "", "surrogate type (default OPT_SURROGATE_TYPE)")
	f.DurationVar(&rFlags.timeLimit, "time-limit", 0, "time limit per trial (default OPT_TRIAL_TIME_LIMIT)")
	f.Float64Var(&rFlags.budget, "budget", 0, "index storage budget")
	f.StringVar(&rFlags.sizesPath, "index-sizes", "", "JSON file of resource sizes (default OPT_INDEX_SIZES_PATH)")
	f.Int64Var(&rFlags.seed, "seed", 0, "random seed (0 seeds from the clock)")
	f.StringVar(&rFlags.save, "save", "", "write the History as JSON to this path")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	b, ok := benchmarks.Get(rFlags.benchmark)
	if !ok {
		return fmt.Errorf("unknown benchmark %q, want one of %s", rFlags.benchmark, strings.Join(benchmarks.Names(), ", "))
	}
	sp, err := b.Space()
	if err != nil {
		return err
	}

	opts := bayesian.Options{
		Objective:         bayesian.ObjectiveFunction(b.Objective),
		Space:             sp,
		MaxIterations:     rFlags.maxRuns,
		InitialPoints:     cfg.Optimization.InitialPoints,
		SurrogateType:     rFlags.surrogate,
		TimeLimitPerTrial: rFlags.timeLimit,
		MaxRuntime:        cfg.Optimization.MaxRuntime,
		TaskID:            b.Name,
		RandomSeed:        rFlags.seed,
		NumCandidates:     cfg.Optimization.NumCandidates,
		Logger:            zapLogger(map[string]interface{}{"task": b.Name}),
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = cfg.Optimization.MaxIterations
	}
	if opts.SurrogateType == "" {
		opts.SurrogateType = cfg.Optimization.SurrogateType
	}
	if opts.TimeLimitPerTrial == 0 {
		opts.TimeLimitPerTrial = cfg.Optimization.TrialTimeLimit
	}

	if b.ResourceSizes != nil || rFlags.sizesPath != "" {
		model, err := feasibilityModel(b, opts)
		if err != nil {
			return err
		}
		opts.Feasibility = model
	}

	o, err := bayesian.NewOptimizer(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	pterm.DefaultSection.Printfln("%s, %s surrogate, %d trials", b.Name, opts.SurrogateType, opts.MaxIterations)
	h, err := o.Run(ctx)
	if err != nil {
		pterm.Warning.Printfln("run stopped after %d trials: %v", h.Len(), err)
	}
	if rerr := report(h, b.Optimum, rFlags.save); rerr != nil {
		return rerr
	}
	return err
}

func feasibilityModel(b benchmarks.Benchmark, opts bayesian.Options) (*surrogate.IndexSpaceModel, error) {
	sizes := b.ResourceSizes
	path := rFlags.sizesPath
	if path == "" && sizes == nil {
		path = cfg.Optimization.IndexSizesPath
	}
	if path != "" {
		loaded, err := surrogate.LoadResourceSizes(path)
		if err != nil {
			return nil, err
		}
		sizes = loaded
	}

	budget := rFlags.budget
	if budget == 0 {
		budget = b.Budget
	}
	if budget == 0 {
		budget = cfg.Optimization.Budget
	}
	return surrogate.NewIndexSpaceModel(opts.Space, budget, sizes, opts.Logger)
}

var showCmd = &cobra.Command{
	Use:   "show <history.json>",
	Short: "Render a saved History",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, ok := benchmarks.Get(showBenchmark)
		if !ok {
			return fmt.Errorf("unknown benchmark %q", showBenchmark)
		}
		sp, err := b.Space()
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		h, err := history.Load(f, sp)
		if err != nil {
			return err
		}
		pterm.Info.Printfln("task %q, %d trials, %s elapsed", h.TaskID(), h.Len(), h.Elapsed().Round(time.Millisecond))
		return report(h, b.Optimum, "")
	},
}

var showBenchmark string

var benchmarksCmd = &cobra.Command{
	Use:   "benchmarks",
	Short: "List the built-in benchmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := [][]string{{"name", "optimum", "space", "description"}}
		for _, name := range benchmarks.Names() {
			b, _ := benchmarks.Get(name)
			sp, err := b.Space()
			if err != nil {
				return err
			}
			rows = append(rows, []string{
				b.Name,
				strconv.FormatFloat(b.Optimum, 'g', 6, 64),
				strings.Join(sp.Names(), ", "),
				b.Description,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	showCmd.Flags().StringVarP(&showBenchmark, "benchmark", "b", "branin", "benchmark whose space the History was recorded in")
}
