package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level, "development logs verbosely")
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, 100, cfg.Logging.MaxSizeMB)

	o := cfg.Optimization
	assert.Equal(t, 10, o.WorkerCount)
	assert.Equal(t, 50, o.MaxIterations)
	assert.Equal(t, 3, o.InitialPoints)
	assert.Equal(t, "gp", o.SurrogateType)
	assert.Equal(t, 30*time.Second, o.TrialTimeLimit)
	assert.Equal(t, 1500.0, o.Budget)
	assert.Empty(t, o.IndexSizesPath)

	sizes, err := cfg.IndexSizes()
	require.NoError(t, err)
	assert.Nil(t, sizes)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"ENV":                  "production",
		"HTTP_PORT":            "9090",
		"LOG_FORMAT":           "text",
		"LOG_MAX_BACKUPS":      "7",
		"OPT_SURROGATE_TYPE":   "context_prf",
		"OPT_PCA_COMPONENTS":   "4",
		"OPT_TRIAL_TIME_LIMIT": "5s",
		"OPT_BUDGET":           "250.5",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 7, cfg.Logging.MaxBackups)
	assert.Equal(t, "context_prf", cfg.Optimization.SurrogateType)
	assert.Equal(t, 4, cfg.Optimization.PCAComponents)
	assert.Equal(t, 5*time.Second, cfg.Optimization.TrialTimeLimit)
	assert.Equal(t, 250.5, cfg.Optimization.Budget)
}

func TestLoadValidation(t *testing.T) {
	tests := map[string]map[string]string{
		"bad port":          {"HTTP_PORT": "0"},
		"unknown surrogate": {"OPT_SURROGATE_TYPE": "tpe"},
		"zero workers":      {"OPT_WORKER_COUNT": "0"},
		"negative pca":      {"OPT_PCA_COMPONENTS": "-1"},
		"zero budget":       {"OPT_BUDGET": "0"},
		"negative timeout":  {"OPT_TRIAL_TIME_LIMIT": "-1s"},
		"unparsable":        {"OPT_MAX_ITERATIONS": "many"},
	}
	for name, environ := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(environ)
			assert.Error(t, err)
		})
	}
}

func TestIndexSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items.sku": 400, "orders.created_at": 900}`), 0o644))

	cfg, err := LoadFrom(map[string]string{"OPT_INDEX_SIZES_PATH": path})
	require.NoError(t, err)
	sizes, err := cfg.IndexSizes()
	require.NoError(t, err)
	assert.Equal(t, 400.0, sizes["items.sku"])
	assert.Len(t, sizes, 2)

	cfg.Optimization.IndexSizesPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = cfg.IndexSizes()
	assert.Error(t, err)
}
