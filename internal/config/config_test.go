package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 100, cfg.Solver.DefaultReads)
	assert.Equal(t, 10, cfg.Solver.HistogramBins)
	assert.Equal(t, 30*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, 4, cfg.Solver.SQA.Trotter)
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, Version, cfg.Version)
	assert.False(t, cfg.Solver.QAConfigured())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SOLVER_WORKER_COUNT", "2")
	t.Setenv("SOLVER_SEED", "42")
	t.Setenv("FRONTEND_ORIGIN", "https://anneal.example.com")
	t.Setenv("DWAVE_API_ENDPOINT", "https://cloud.example.com/sapi")
	t.Setenv("DWAVE_API_TOKEN", "token")
	t.Setenv("DWAVE_SOLVER_NAME", "Advantage_system4.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Solver.WorkerCount)
	assert.Equal(t, int64(42), cfg.Solver.Seed)
	assert.Contains(t, cfg.CORS.AllowedOrigins, "https://anneal.example.com")
	assert.True(t, cfg.Solver.QAConfigured())
}

func TestLoadRejectsInvalidSolverSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero workers", "SOLVER_WORKER_COUNT", "0"},
		{"reads above max", "SOLVER_DEFAULT_READS", "20000"},
		{"single trotter slice", "SQA_TROTTER", "1"},
		{"no histogram", "SOLVER_HISTOGRAM_BINS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDefaultMatchesEmptyEnvironment(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1000, cfg.Solver.SA.Sweeps)
	assert.Equal(t, 5.0, cfg.Solver.SQA.Beta)
	assert.Equal(t, 10000, cfg.Solver.MaxReads)
	require.NoError(t, cfg.Solver.validate())
}
