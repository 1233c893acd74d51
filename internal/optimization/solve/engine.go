// Package solve wires encoding, sampling and aggregation into the two
// request/response operations the service exposes.
package solve

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/anneal/internal/config"
	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization"
	"github.com/copyleftdev/anneal/internal/optimization/aggregate"
	"github.com/copyleftdev/anneal/internal/optimization/assignment"
	"github.com/copyleftdev/anneal/internal/optimization/knapsack"
	"github.com/copyleftdev/anneal/internal/optimization/qubo"
	"github.com/copyleftdev/anneal/internal/optimization/sampler"
)

const component = "solve"

// Summary holds the fields every result carries.
type Summary struct {
	SolveID         string                         `json:"solve_id" yaml:"solve_id"`
	Solver          string                         `json:"solver" yaml:"solver"`
	Feasible        bool                           `json:"feasible" yaml:"feasible"`
	Constraints     []optimization.ConstraintCheck `json:"constraints" yaml:"constraints"`
	EnergyHistogram []optimization.EnergyBin       `json:"energy_histogram" yaml:"energy_histogram"`
	// Energy is the QUBO energy of the reported candidate; BestEnergy is the
	// lowest energy sampled, which may belong to an infeasible read.
	Energy     float64 `json:"energy" yaml:"energy"`
	BestEnergy float64 `json:"best_energy" yaml:"best_energy"`
	NumReads   int     `json:"num_reads" yaml:"num_reads"`
	Variables  int     `json:"num_variables" yaml:"num_variables"`
	ElapsedMS  float64 `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// AssignmentResult is the answer to an AssignmentRequest.
type AssignmentResult struct {
	Assignments []assignment.Pair `json:"assignments" yaml:"assignments"`
	TotalCost   float64           `json:"total_cost" yaml:"total_cost"`
	Summary     `yaml:",inline"`
}

// KnapsackResult is the answer to a KnapsackRequest.
type KnapsackResult struct {
	ChosenItems []int   `json:"chosen_items" yaml:"chosen_items"`
	TotalWeight int     `json:"total_weight" yaml:"total_weight"`
	TotalValue  float64 `json:"total_value" yaml:"total_value"`
	Summary     `yaml:",inline"`
}

// Engine runs solves. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	adapter *sampler.Adapter
	cfg     config.Solver
	logger  *zap.Logger
}

// New returns an engine sampling through adapter.
func New(cfg config.Solver, adapter *sampler.Adapter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{adapter: adapter, cfg: cfg, logger: logger.Named("solve")}
}

// NewFromConfig builds the sa, sqa and qa backends from cfg and returns an
// engine over them.
func NewFromConfig(cfg config.Solver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapter := sampler.NewAdapter(cfg.WorkerCount, cfg.Timeout, cfg.Seed, logger,
		sampler.NewSimulatedAnnealing(cfg.SA.Sweeps, logger.Named("sa")),
		sampler.NewSimulatedQuantumAnnealing(cfg.SQA.Sweeps, cfg.SQA.Trotter, cfg.SQA.Beta, cfg.SQA.Gamma, logger.Named("sqa")),
		sampler.NewRemoteAnnealer(sampler.RemoteConfig{
			Endpoint:   cfg.QA.Endpoint,
			Token:      cfg.QA.Token,
			SolverName: cfg.QA.SolverName,
			Timeout:    cfg.QA.Timeout,
		}, nil, logger.Named("qa")),
	)
	return New(cfg, adapter, logger)
}

// Backends reports every registered solver and whether it can currently be
// used.
func (e *Engine) Backends() map[string]bool {
	out := make(map[string]bool)
	for _, name := range e.adapter.Names() {
		b, _ := e.adapter.Backend(name)
		avail := true
		if a, ok := b.(interface{ Available() bool }); ok {
			avail = a.Available()
		}
		out[name] = avail
	}
	return out
}

// SolveAssignment encodes, samples and decodes an assignment problem.
func (e *Engine) SolveAssignment(ctx context.Context, req AssignmentRequest) (*AssignmentResult, error) {
	const op = "SolveAssignment"
	start := time.Now()
	opts, solver, reads, err := e.prepare(&req, req.Options)
	if err == nil {
		err = e.checkSize(len(req.Costs)*len(req.Costs), "costs")
	}
	if err != nil {
		return nil, e.fail(optimization.ProblemAssignment, solver, start, err, op)
	}

	in, err := assignment.Encode(req.Costs, penaltyOr(req.PenaltyRow), penaltyOr(req.PenaltyCol))
	if err != nil {
		return nil, e.fail(optimization.ProblemAssignment, solver, start, err, op)
	}

	best, summary, err := run(ctx, e, optimization.ProblemAssignment, in.Matrix, solver, reads, opts, in.Evaluate)
	if err != nil {
		return nil, e.fail(optimization.ProblemAssignment, solver, start, err, op)
	}

	res := &AssignmentResult{
		Assignments: best.Solution.Pairs,
		TotalCost:   best.Solution.TotalCost,
		Summary:     summary,
	}
	e.done(optimization.ProblemAssignment, &res.Summary, start,
		zap.Int("workers", in.N()),
		zap.Float64("total_cost", res.TotalCost),
	)
	return res, nil
}

// SolveKnapsack encodes, samples and decodes a 0/1 knapsack problem.
func (e *Engine) SolveKnapsack(ctx context.Context, req KnapsackRequest) (*KnapsackResult, error) {
	const op = "SolveKnapsack"
	start := time.Now()
	opts, solver, reads, err := e.prepare(&req, req.Options)
	if err != nil {
		return nil, e.fail(optimization.ProblemKnapsack, solver, start, err, op)
	}

	// Shape errors come before value errors.
	if len(req.Weights) != len(req.Values) {
		err := apperrors.InvalidShape("values",
			"weights and values must have the same length, got %d and %d", len(req.Weights), len(req.Values))
		return nil, e.fail(optimization.ProblemKnapsack, solver, start, err, op)
	}

	weights, err := wholeNumbers("weights", req.Weights)
	if err != nil {
		return nil, e.fail(optimization.ProblemKnapsack, solver, start, err, op)
	}
	capacity, err := wholeNumber("capacity", req.Capacity)
	if err != nil {
		return nil, e.fail(optimization.ProblemKnapsack, solver, start, err, op)
	}
	if err := e.checkSize(len(weights)+len(knapsack.SlackWeights(capacity)), "weights"); err != nil {
		return nil, e.fail(optimization.ProblemKnapsack, solver, start, err, op)
	}

	in, err := knapsack.Encode(weights, req.Values, capacity, penaltyOr(req.Penalty))
	if err != nil {
		return nil, e.fail(optimization.ProblemKnapsack, solver, start, err, op)
	}

	best, summary, err := run(ctx, e, optimization.ProblemKnapsack, in.Matrix, solver, reads, opts, in.Evaluate)
	if err != nil {
		return nil, e.fail(optimization.ProblemKnapsack, solver, start, err, op)
	}

	res := &KnapsackResult{
		ChosenItems: best.Solution.ChosenItems,
		TotalWeight: best.Solution.TotalWeight,
		TotalValue:  best.Solution.TotalValue,
		Summary:     summary,
	}
	e.done(optimization.ProblemKnapsack, &res.Summary, start,
		zap.Int("items", len(weights)),
		zap.Int("total_weight", res.TotalWeight),
		zap.Float64("total_value", res.TotalValue),
	)
	return res, nil
}

// prepare validates the request and resolves defaults.
func (e *Engine) prepare(req any, o Options) (sampler.Options, string, int, error) {
	solver := strings.ToLower(strings.TrimSpace(o.Solver))
	if solver == "" {
		solver = DefaultSolver
	}
	if err := checkStruct(req); err != nil {
		return sampler.Options{}, solver, 0, err
	}

	reads := e.cfg.DefaultReads
	if o.NumReads != nil {
		reads = *o.NumReads
	}
	if reads > e.cfg.MaxReads {
		return sampler.Options{}, solver, 0, apperrors.InvalidParameter("num_reads",
			"num_reads must not exceed %d, got %d", e.cfg.MaxReads, reads)
	}

	opts := sampler.Options{Greedy: o.UseGreedy, Seed: o.Seed}
	if o.TimeoutMS > 0 {
		opts.Timeout = min(time.Duration(o.TimeoutMS)*time.Millisecond, e.cfg.MaxTimeout)
	}
	return opts, solver, reads, nil
}

func (e *Engine) checkSize(n int, field string) error {
	if e.cfg.MaxVariables > 0 && n > e.cfg.MaxVariables {
		return apperrors.InvalidShape(field, "problem needs %d binary variables, the limit is %d", n, e.cfg.MaxVariables)
	}
	return nil
}

// run is the shared encode-independent half of a solve: sample, select,
// summarise.
func run[T any](
	ctx context.Context,
	e *Engine,
	problem optimization.Problem,
	m *qubo.Matrix,
	solver string,
	reads int,
	opts sampler.Options,
	evaluate func([]uint8) optimization.Candidate[T],
) (optimization.Candidate[T], Summary, error) {
	quboVariables.WithLabelValues(string(problem)).Observe(float64(m.Size()))

	samples, err := e.adapter.Sample(ctx, m, solver, reads, opts)
	if err != nil {
		return optimization.Candidate[T]{}, Summary{}, err
	}

	best, evaluated := aggregate.Select(samples, evaluate, e.cfg.EvalLimit)
	candidatesEvaluated.Observe(float64(evaluated))

	return best, Summary{
		SolveID:         uuid.NewString(),
		Solver:          solver,
		Feasible:        best.Feasible,
		Constraints:     best.Constraints,
		EnergyHistogram: aggregate.Histogram(samples, e.cfg.HistogramBins),
		Energy:          best.Energy,
		BestEnergy:      samples[0].Energy,
		NumReads:        aggregate.Reads(samples),
		Variables:       m.Size(),
	}, nil
}

func (e *Engine) done(problem optimization.Problem, s *Summary, start time.Time, fields ...zap.Field) {
	elapsed := time.Since(start)
	s.ElapsedMS = float64(elapsed.Microseconds()) / 1000

	outcome := "infeasible"
	if s.Feasible {
		outcome = "feasible"
	}
	solvesTotal.WithLabelValues(string(problem), s.Solver, outcome).Inc()
	solveDuration.WithLabelValues(string(problem), s.Solver).Observe(elapsed.Seconds())

	e.logger.Info("solve completed", append([]zap.Field{
		zap.String("solve_id", s.SolveID),
		zap.String("problem", string(problem)),
		zap.String("solver", s.Solver),
		zap.Bool("feasible", s.Feasible),
		zap.Float64("energy", s.Energy),
		zap.Int("num_reads", s.NumReads),
		zap.Duration("elapsed", elapsed),
	}, fields...)...)
}

func (e *Engine) fail(problem optimization.Problem, solver string, start time.Time, err error, op string) error {
	kind := apperrors.KindOf(err)
	if _, ok := e.adapter.Backend(solver); !ok {
		solver = "unknown"
	}
	solvesTotal.WithLabelValues(string(problem), solver, strings.ToLower(string(kind))).Inc()

	e.logger.Warn("solve failed",
		zap.String("problem", string(problem)),
		zap.String("solver", solver),
		zap.String("kind", string(kind)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)

	var ae *apperrors.Error
	if apperrors.As(err, &ae) {
		if ae.Operation == "" {
			ae.WithOperation(op)
		}
		if ae.Component == "" {
			ae.WithComponent(component)
		}
		return ae
	}
	return apperrors.Wrap(err, "solve failed").WithOperation(op).WithComponent(component)
}
