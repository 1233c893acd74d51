package solve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// solvesTotal counts finished solves by problem, solver and outcome
	// (feasible, infeasible or the error kind).
	solvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anneal_solves_total",
		Help: "Total solve requests by problem, solver and outcome",
	}, []string{"problem", "solver", "outcome"})

	// solveDuration tracks end-to-end solve latency
	solveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anneal_solve_duration_seconds",
		Help:    "Solve duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
	}, []string{"problem", "solver"})

	// quboVariables tracks encoded problem sizes
	quboVariables = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anneal_qubo_variables",
		Help:    "Number of binary variables per encoded problem",
		Buckets: []float64{4, 16, 64, 256, 1024, 4096},
	}, []string{"problem"})

	// candidatesEvaluated tracks how many distinct samples were decoded
	// before a result was chosen
	candidatesEvaluated = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anneal_candidates_evaluated",
		Help:    "Distinct samples decoded per solve",
		Buckets: []float64{1, 2, 5, 10, 50, 100, 1000},
	})
)
