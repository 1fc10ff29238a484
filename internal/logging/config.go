package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is the minimum log level to output (DEBUG, INFO, WARN, ERROR, FATAL)
	Level string `env:"LEVEL" envDefault:"info"`
	// Format is the output format (json, text)
	Format string `env:"FORMAT" envDefault:"json"`
	// Output is the output destination (stdout, stderr, or file path)
	Output string `env:"OUTPUT" envDefault:"stderr"`

	// File rotation, used only when Output is a path.
	MaxSizeMB  int  `env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int  `env:"MAX_BACKUPS" envDefault:"3"`
	MaxAgeDays int  `env:"MAX_AGE_DAYS" envDefault:"28"`
	Compress   bool `env:"COMPRESS" envDefault:"true"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		Output:     "stderr",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// NewLogger creates a new logger with the given configuration. The returned
// closer releases a rotated log file and is a no-op for standard streams.
func NewLogger(cfg *Config) (*Logger, io.Closer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, nil, err
	}

	output, closer, err := getOutput(cfg)
	if err != nil {
		return nil, nil, err
	}

	return New(parseLevel(cfg.Level), output).WithFormat(format), closer, nil
}

// parseLevel converts a string log level to LogLevel.
func parseLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func parseFormat(format string) (Format, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return FormatJSON, nil
	case "text", "console":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown log format %q", format)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// getOutput returns the writer for cfg.Output. Paths are written through a
// size-rotated lumberjack logger.
func getOutput(cfg *Config) (io.Writer, io.Closer, error) {
	switch cfg.Output {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	default:
		if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 || cfg.MaxAgeDays < 0 {
			return nil, nil, fmt.Errorf("log rotation settings must be non-negative")
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		return lj, lj, nil
	}
}
