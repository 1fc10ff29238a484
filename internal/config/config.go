package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/boxopt/internal/logging"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// OptimizationConfig holds the defaults applied to tasks that do not set
// their own values.
type OptimizationConfig struct {
	// WorkerCount caps the number of tasks running at once.
	WorkerCount    int           `env:"WORKER_COUNT" envDefault:"10"`
	MaxIterations  int           `env:"MAX_ITERATIONS" envDefault:"50"`
	InitialPoints  int           `env:"INITIAL_POINTS" envDefault:"3"`
	SurrogateType  string        `env:"SURROGATE_TYPE" envDefault:"gp"`
	TrialTimeLimit time.Duration `env:"TRIAL_TIME_LIMIT" envDefault:"30s"`
	MaxRuntime     time.Duration `env:"MAX_RUNTIME" envDefault:"0s"`
	NumCandidates  int           `env:"NUM_CANDIDATES" envDefault:"500"`
	PCAComponents  int           `env:"PCA_COMPONENTS" envDefault:"0"`
	// Budget and IndexSizesPath configure the index/cost feasibility model
	// for tasks that ask for it without their own size table.
	Budget         float64 `env:"BUDGET" envDefault:"1500"`
	IndexSizesPath string  `env:"INDEX_SIZES_PATH"`
}

type Config struct {
	Environment  string             `env:"ENV" envDefault:"development"`
	HTTP         HTTPConfig         `envPrefix:"HTTP_"`
	Logging      logging.Config     `envPrefix:"LOG_"`
	Optimization OptimizationConfig `envPrefix:"OPT_"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(environ map[string]string) (*Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}

	// Development defaults to verbose logs unless the level was set.
	if cfg.Environment == "development" {
		if _, set := lookup(opts, "LOG_LEVEL"); !set {
			cfg.Logging.Level = "debug"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func lookup(opts env.Options, key string) (string, bool) {
	if opts.Environment != nil {
		v, ok := opts.Environment[key]
		return v, ok
	}
	return os.LookupEnv(key)
}

// Validate checks the values env cannot check on its own.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.HTTP.Port)
	}
	o := c.Optimization
	if o.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", o.WorkerCount)
	}
	if o.MaxIterations <= 0 || o.InitialPoints <= 0 || o.NumCandidates <= 0 {
		return fmt.Errorf("max iterations, initial points and candidates must be positive")
	}
	if o.PCAComponents < 0 {
		return fmt.Errorf("PCA components must not be negative, got %d", o.PCAComponents)
	}
	if o.TrialTimeLimit < 0 || o.MaxRuntime < 0 {
		return fmt.Errorf("time limits must not be negative")
	}
	if o.Budget <= 0 {
		return fmt.Errorf("feasibility budget must be positive, got %g", o.Budget)
	}
	for _, t := range surrogate.Types() {
		if t == o.SurrogateType {
			return nil
		}
	}
	return fmt.Errorf("unknown surrogate type %q, want one of %v", o.SurrogateType, surrogate.Types())
}

// IndexSizes loads the configured resource size table, or returns nil when
// no path is set.
func (c *Config) IndexSizes() (surrogate.ResourceSizes, error) {
	if c.Optimization.IndexSizesPath == "" {
		return nil, nil
	}
	return surrogate.LoadResourceSizes(c.Optimization.IndexSizesPath)
}
