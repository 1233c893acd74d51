package solve

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/anneal/internal/config"
	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization"
	"github.com/copyleftdev/anneal/internal/optimization/assignment"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default().Solver
	cfg.Seed = 1
	cfg.SA.Sweeps = 300
	cfg.SQA.Sweeps = 300
	return NewFromConfig(cfg, nil)
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// bruteForceAssignment returns the minimum total cost over all permutations.
func bruteForceAssignment(costs [][]float64) float64 {
	n := len(costs)
	used := make([]bool, n)
	best := math.Inf(1)
	var rec func(w int, acc float64)
	rec = func(w int, acc float64) {
		if w == n {
			best = math.Min(best, acc)
			return
		}
		for j := 0; j < n; j++ {
			if !used[j] {
				used[j] = true
				rec(w+1, acc+costs[w][j])
				used[j] = false
			}
		}
	}
	rec(0, 0)
	return best
}

// bruteForceKnapsack returns the best value over subsets that fit.
func bruteForceKnapsack(weights []int, values []float64, capacity int) float64 {
	best := 0.0
	for mask := 0; mask < 1<<len(weights); mask++ {
		w, v := 0, 0.0
		for k := range weights {
			if mask>>k&1 == 1 {
				w += weights[k]
				v += values[k]
			}
		}
		if w <= capacity && v > best {
			best = v
		}
	}
	return best
}

func assertConsistent(t *testing.T, s Summary) {
	t.Helper()
	all := true
	for _, c := range s.Constraints {
		all = all && c.Satisfied
	}
	assert.Equal(t, all, s.Feasible, "feasible must equal the AND of all constraints")

	total := 0
	for _, b := range s.EnergyHistogram {
		total += b.Count
	}
	assert.Equal(t, s.NumReads, total, "histogram must account for every read")
	assert.LessOrEqual(t, s.BestEnergy, s.Energy)
	assert.NotEmpty(t, s.SolveID)
}

func TestSolveAssignmentFindsOptimum(t *testing.T) {
	costs := [][]float64{{3, 1, 2}, {2, 3, 3}, {2, 1, 2}}
	want := bruteForceAssignment(costs)
	require.Equal(t, 5.0, want)

	res, err := testEngine(t).SolveAssignment(context.Background(), AssignmentRequest{Costs: costs})
	require.NoError(t, err)

	assert.True(t, res.Feasible)
	assert.Equal(t, want, res.TotalCost)
	assert.Equal(t, want, res.Energy, "penalties vanish on a feasible assignment")
	assert.Equal(t, "sa", res.Solver)
	assert.Equal(t, 100, res.NumReads)
	assert.Equal(t, 9, res.Variables)
	require.Len(t, res.Assignments, 3)
	assert.Len(t, res.Constraints, 6)

	var cost float64
	jobs := map[int]bool{}
	for w, p := range res.Assignments {
		assert.Equal(t, w, p.Worker)
		jobs[p.Job] = true
		cost += costs[p.Worker][p.Job]
	}
	assert.Len(t, jobs, 3)
	assert.Equal(t, res.TotalCost, cost)
	assertConsistent(t, res.Summary)
}

func TestSolveAssignmentWithSQAAndGreedy(t *testing.T) {
	costs := [][]float64{{3, 1, 2}, {2, 3, 3}, {2, 1, 2}}

	res, err := testEngine(t).SolveAssignment(context.Background(), AssignmentRequest{
		Costs:   costs,
		Options: Options{Solver: "sqa", NumReads: intPtr(20), UseGreedy: true},
	})
	require.NoError(t, err)

	// Greedy descent from any state lands on a permutation when the
	// penalties exceed every cost.
	assert.True(t, res.Feasible)
	assert.Equal(t, "sqa", res.Solver)
	assert.Equal(t, 20, res.NumReads)
	assertConsistent(t, res.Summary)
}

func TestSolveKnapsackFindsOptimum(t *testing.T) {
	weights := []int{2, 3, 4, 5}
	values := []float64{3, 4, 5, 8}
	want := bruteForceKnapsack(weights, values, 5)
	require.Equal(t, 8.0, want)

	res, err := testEngine(t).SolveKnapsack(context.Background(), KnapsackRequest{
		Weights:  []float64{2, 3, 4, 5},
		Values:   values,
		Capacity: 5,
		Options:  Options{NumReads: intPtr(200)},
	})
	require.NoError(t, err)

	assert.True(t, res.Feasible)
	assert.Equal(t, want, res.TotalValue)
	assert.Equal(t, []int{3}, res.ChosenItems)
	assert.Equal(t, 5, res.TotalWeight)
	assert.Equal(t, -want, res.Energy)
	assert.Equal(t, 200, res.NumReads)
	assert.Equal(t, 7, res.Variables)

	require.Len(t, res.Constraints, 1)
	assert.Equal(t, "capacity", res.Constraints[0].Name)
	assertConsistent(t, res.Summary)
}

func TestSolveSeedIsReproducible(t *testing.T) {
	e := testEngine(t)
	req := AssignmentRequest{
		Costs:   [][]float64{{4, 1, 3, 2}, {2, 0, 5, 3}, {3, 2, 2, 1}, {1, 4, 3, 2}},
		Options: Options{NumReads: intPtr(30), Seed: 1234},
	}

	a, err := e.SolveAssignment(context.Background(), req)
	require.NoError(t, err)
	b, err := e.SolveAssignment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a.Assignments, b.Assignments)
	assert.Equal(t, a.EnergyHistogram, b.EnergyHistogram)
	assert.NotEqual(t, a.SolveID, b.SolveID)
}

func TestSolveErrors(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	square := [][]float64{{1, 2}, {3, 4}}

	tests := []struct {
		name  string
		solve func() error
		kind  apperrors.Kind
		field string
	}{
		{
			name: "unknown solver",
			solve: func() error {
				_, err := e.SolveAssignment(ctx, AssignmentRequest{Costs: square, Options: Options{Solver: "dwave9000"}})
				return err
			},
			kind:  apperrors.KindUnknownSolver,
			field: "solver",
		},
		{
			name: "zero reads",
			solve: func() error {
				_, err := e.SolveAssignment(ctx, AssignmentRequest{Costs: square, Options: Options{NumReads: intPtr(0)}})
				return err
			},
			kind:  apperrors.KindInvalidParameter,
			field: "num_reads",
		},
		{
			name: "too many reads",
			solve: func() error {
				_, err := e.SolveAssignment(ctx, AssignmentRequest{Costs: square, Options: Options{NumReads: intPtr(1 << 30)}})
				return err
			},
			kind:  apperrors.KindInvalidParameter,
			field: "num_reads",
		},
		{
			name: "negative timeout",
			solve: func() error {
				_, err := e.SolveAssignment(ctx, AssignmentRequest{Costs: square, Options: Options{TimeoutMS: -1}})
				return err
			},
			kind:  apperrors.KindInvalidParameter,
			field: "timeout_ms",
		},
		{
			name: "explicit zero penalty",
			solve: func() error {
				_, err := e.SolveAssignment(ctx, AssignmentRequest{Costs: square, PenaltyRow: floatPtr(0)})
				return err
			},
			kind:  apperrors.KindInvalidParameter,
			field: "penalty_row",
		},
		{
			name: "non-square costs",
			solve: func() error {
				_, err := e.SolveAssignment(ctx, AssignmentRequest{Costs: [][]float64{{1, 2, 3}, {4, 5, 6}}})
				return err
			},
			kind:  apperrors.KindInvalidProblemShape,
			field: "costs",
		},
		{
			name: "too many variables",
			solve: func() error {
				costs := make([][]float64, 60)
				for i := range costs {
					costs[i] = make([]float64, 60)
				}
				_, err := e.SolveAssignment(ctx, AssignmentRequest{Costs: costs})
				return err
			},
			kind:  apperrors.KindInvalidProblemShape,
			field: "costs",
		},
		{
			name: "mismatched knapsack lengths",
			solve: func() error {
				_, err := e.SolveKnapsack(ctx, KnapsackRequest{Weights: []float64{1, 2}, Values: []float64{1}, Capacity: 3})
				return err
			},
			kind:  apperrors.KindInvalidProblemShape,
			field: "values",
		},
		{
			name: "mismatched lengths before fractional weight",
			solve: func() error {
				_, err := e.SolveKnapsack(ctx, KnapsackRequest{Weights: []float64{1.5, 2}, Values: []float64{1}, Capacity: 3})
				return err
			},
			kind:  apperrors.KindInvalidProblemShape,
			field: "values",
		},
		{
			name: "overflowing assignment penalties",
			solve: func() error {
				_, err := e.SolveAssignment(ctx, AssignmentRequest{
					Costs: square, PenaltyRow: floatPtr(1e308), PenaltyCol: floatPtr(1e308),
				})
				return err
			},
			kind:  apperrors.KindInvalidParameter,
			field: "penalty_row",
		},
		{
			name: "overflowing knapsack penalty",
			solve: func() error {
				_, err := e.SolveKnapsack(ctx, KnapsackRequest{
					Weights: []float64{1}, Values: []float64{1}, Capacity: 3, Penalty: floatPtr(1e308),
				})
				return err
			},
			kind:  apperrors.KindInvalidParameter,
			field: "penalty",
		},
		{
			name: "fractional weight",
			solve: func() error {
				_, err := e.SolveKnapsack(ctx, KnapsackRequest{Weights: []float64{1, 2.5}, Values: []float64{1, 1}, Capacity: 3})
				return err
			},
			kind:  apperrors.KindInvalidParameter,
			field: "weights[1]",
		},
		{
			name: "negative penalty",
			solve: func() error {
				_, err := e.SolveKnapsack(ctx, KnapsackRequest{
					Weights: []float64{1}, Values: []float64{1}, Capacity: 3, Penalty: floatPtr(-2),
				})
				return err
			},
			kind:  apperrors.KindInvalidParameter,
			field: "penalty",
		},
		{
			name: "qa not configured",
			solve: func() error {
				_, err := e.SolveKnapsack(ctx, KnapsackRequest{
					Weights: []float64{1}, Values: []float64{1}, Capacity: 1, Options: Options{Solver: "qa"},
				})
				return err
			},
			kind:  apperrors.KindSolverUnavailable,
			field: "solver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.solve()
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err), err.Error())
			assert.Equal(t, tt.field, apperrors.FieldOf(err))
		})
	}
}

func TestSolveInfeasibleIsNotAnError(t *testing.T) {
	// A penalty far below the cost scale makes the empty assignment the
	// ground state; the engine must still answer, flagged infeasible.
	res, err := testEngine(t).SolveAssignment(context.Background(), AssignmentRequest{
		Costs:      [][]float64{{100, 100}, {100, 100}},
		PenaltyRow: floatPtr(0.01),
		PenaltyCol: floatPtr(0.01),
		Options:    Options{NumReads: intPtr(10)},
	})
	require.NoError(t, err)

	assert.False(t, res.Feasible)
	assert.Empty(t, res.Assignments)
	assertConsistent(t, res.Summary)
}

func TestBackends(t *testing.T) {
	got := testEngine(t).Backends()
	assert.Equal(t, map[string]bool{"sa": true, "sqa": true, "qa": false}, got)
}

func TestResultJSONIsFlat(t *testing.T) {
	res := AssignmentResult{
		Assignments: []assignment.Pair{{Worker: 0, Job: 1}},
		TotalCost:   1,
		Summary: Summary{
			SolveID:     "id",
			Solver:      "sa",
			Feasible:    true,
			Constraints: []optimization.ConstraintCheck{{Name: "worker_0", Satisfied: true, Value: 1, Bound: optimization.Bound(1)}},
		},
	}

	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, key := range []string{"assignments", "total_cost", "solve_id", "solver", "feasible", "constraints", "energy_histogram", "num_reads"} {
		assert.Contains(t, m, key)
	}
	assert.NotContains(t, m, "Summary")
}
