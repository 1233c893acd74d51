package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Version is stamped at build time with -ldflags "-X .../config.Version=...".
var Version = "0.1.0"

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	Version     string `env:"SERVICE_VERSION"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		MaxBodyBytes    int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"4194304"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	CORS struct {
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
		FrontendOrigin string   `env:"FRONTEND_ORIGIN"`
	}
	Solver Solver
}

// Solver configures the sampling pipeline.
type Solver struct {
	// WorkerCount bounds concurrent backend invocations.
	WorkerCount int `env:"SOLVER_WORKER_COUNT" envDefault:"4"`
	// Timeout is applied when a request does not ask for one.
	Timeout time.Duration `env:"SOLVER_TIMEOUT" envDefault:"30s"`
	// MaxTimeout caps a request-supplied timeout.
	MaxTimeout time.Duration `env:"SOLVER_MAX_TIMEOUT" envDefault:"110s"`
	// DefaultReads is used when a request omits num_reads.
	DefaultReads int `env:"SOLVER_DEFAULT_READS" envDefault:"100"`
	MaxReads     int `env:"SOLVER_MAX_READS" envDefault:"10000"`
	// MaxVariables rejects instances whose dense QUBO would be too large.
	MaxVariables int `env:"SOLVER_MAX_VARIABLES" envDefault:"2500"`
	// HistogramBins truncates the reported energy histogram.
	HistogramBins int `env:"SOLVER_HISTOGRAM_BINS" envDefault:"10"`
	// EvalLimit bounds how many distinct samples are decoded; 0 means all.
	EvalLimit int `env:"SOLVER_EVAL_LIMIT" envDefault:"0"`
	// Seed makes sampling reproducible; 0 seeds from the clock.
	Seed int64 `env:"SOLVER_SEED" envDefault:"0"`

	SA struct {
		Sweeps int `env:"SA_SWEEPS" envDefault:"1000"`
	}
	SQA struct {
		Sweeps  int     `env:"SQA_SWEEPS" envDefault:"1000"`
		Trotter int     `env:"SQA_TROTTER" envDefault:"4"`
		Beta    float64 `env:"SQA_BETA" envDefault:"5.0"`
		Gamma   float64 `env:"SQA_GAMMA" envDefault:"1.0"`
	}
	QA struct {
		Endpoint   string        `env:"DWAVE_API_ENDPOINT"`
		Token      string        `env:"DWAVE_API_TOKEN"`
		SolverName string        `env:"DWAVE_SOLVER_NAME"`
		Timeout    time.Duration `env:"DWAVE_HTTP_TIMEOUT" envDefault:"60s"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Version == "" {
		cfg.Version = Version
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if cfg.CORS.FrontendOrigin != "" {
		cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, cfg.CORS.FrontendOrigin)
	}

	if err := cfg.Solver.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration Load would produce from an empty
// environment. The CLI and tests start from it.
func Default() *Config {
	cfg := &Config{}
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	cfg.Version = Version
	return cfg
}

func (s *Solver) validate() error {
	switch {
	case s.WorkerCount < 1:
		return fmt.Errorf("SOLVER_WORKER_COUNT must be at least 1, got %d", s.WorkerCount)
	case s.DefaultReads < 1 || s.DefaultReads > s.MaxReads:
		return fmt.Errorf("SOLVER_DEFAULT_READS must be within [1, %d], got %d", s.MaxReads, s.DefaultReads)
	case s.Timeout <= 0 || s.MaxTimeout < s.Timeout:
		return fmt.Errorf("SOLVER_TIMEOUT must be positive and not exceed SOLVER_MAX_TIMEOUT")
	case s.HistogramBins < 1:
		return fmt.Errorf("SOLVER_HISTOGRAM_BINS must be at least 1, got %d", s.HistogramBins)
	case s.SQA.Trotter < 2:
		return fmt.Errorf("SQA_TROTTER must be at least 2, got %d", s.SQA.Trotter)
	}
	return nil
}

// QAConfigured reports whether the remote annealer has all its settings.
func (s *Solver) QAConfigured() bool {
	return s.QA.Endpoint != "" && s.QA.Token != "" && s.QA.SolverName != ""
}
