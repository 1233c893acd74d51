package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/anneal/internal/config"
	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/logging"
	"github.com/copyleftdev/anneal/internal/optimization/solve"
)

// app holds the persistent flags shared by every subcommand.
type app struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	// rootCmd is the base command for the CLI
	rootCmd := &cobra.Command{
		Use:           "annealctl",
		Short:         "Solve assignment and knapsack problems by QUBO annealing",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "console", "Log format (console, json)")

	rootCmd.AddCommand(
		newAssignmentCmd(a),
		newKnapsackCmd(a),
	)
	return rootCmd
}

// engine builds a solve engine from the environment. Logs go to stderr so
// that stdout carries only the result.
func (a *app) engine() (*solve.Engine, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "load configuration").WithComponent("annealctl")
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  a.logLevel,
		Format: a.logFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, nil, err
	}
	logger = logger.Named("annealctl")
	return solve.NewFromConfig(cfg.Solver, logger.Zap()), logger, nil
}

// exitCode maps request errors to 2 and everything else to 1.
func exitCode(err error) int {
	if apperrors.HTTPStatus(err) == http.StatusBadRequest {
		return 2
	}
	return 1
}
