package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/boxopt/internal/config"
	"github.com/copyleftdev/boxopt/internal/logging"
)

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	LogLevel  string
	LogFormat string
	LogOutput string
}

var (
	globalFlags GlobalFlags
	cfg         *config.Config
	logger      *logging.Logger
	logCloser   io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "boxopt",
	Short: "Contextual, feasibility-constrained Bayesian optimization",
	Long: `boxopt runs Bayesian optimization over built-in benchmark objectives.

Defaults for iterations, surrogate type and trial time limits come from the
same OPT_* environment variables the server reads; flags override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg.Logging.Level = globalFlags.LogLevel
		cfg.Logging.Format = globalFlags.LogFormat
		cfg.Logging.Output = globalFlags.LogOutput

		logger, logCloser, err = logging.NewLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "warn", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFormat, "log-format", "text", "log format: json|text")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogOutput, "log-output", "stderr", "stderr, stdout or a file path (rotated)")

	rootCmd.AddCommand(quickstartCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(benchmarksCmd)
}

func zapLogger(fields map[string]interface{}) *zap.Logger {
	return logging.NewZapLogger(logger.WithFields(fields))
}
