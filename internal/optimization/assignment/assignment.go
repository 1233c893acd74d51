// Package assignment encodes the linear assignment problem as a QUBO and
// maps annealer bitstrings back to worker/job pairs.
package assignment

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization"
	"github.com/copyleftdev/anneal/internal/optimization/qubo"
)

const component = "assignment"

// Instance is an encoded assignment problem.
type Instance struct {
	Costs      [][]float64
	PenaltyRow float64
	PenaltyCol float64

	Matrix *qubo.Matrix
	Index  *qubo.IndexMap
}

// N returns the number of workers (and jobs).
func (in *Instance) N() int {
	return len(in.Costs)
}

// Encode builds the QUBO for a square cost matrix.
//
// Each worker row and each job column carries the one-hot penalty
// P·(Σ x - 1)². Expanded, that contributes -P to every diagonal entry of the
// row, +2P to every pair inside it, and +P to the offset, so a permutation's
// energy equals its total cost exactly.
func Encode(costs [][]float64, penaltyRow, penaltyCol float64) (*Instance, error) {
	if err := validate(costs, penaltyRow, penaltyCol); err != nil {
		return nil, err.WithOperation("Encode").WithComponent(component)
	}

	n := len(costs)
	idx := qubo.NewIndexMap(n * n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			idx.Add(qubo.Key{Kind: qubo.KindAssign, A: i, B: j})
		}
	}

	b := qubo.NewBuilder(n * n)
	v := func(i, j int) int { return idx.MustIndex(qubo.Key{Kind: qubo.KindAssign, A: i, B: j}) }

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			b.AddLinear(v(i, j), costs[i][j]-penaltyRow-penaltyCol)
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := j + 1; k < n; k++ {
				// same worker, different jobs
				b.AddQuadratic(v(i, j), v(i, k), 2*penaltyRow)
				// same job, different workers
				b.AddQuadratic(v(j, i), v(k, i), 2*penaltyCol)
			}
		}
	}

	b.AddOffset(float64(n) * (penaltyRow + penaltyCol))

	m := b.Build()
	if !m.Finite() {
		field, p := "penalty_row", penaltyRow
		if penaltyCol > penaltyRow {
			field, p = "penalty_col", penaltyCol
		}
		return nil, apperrors.InvalidParameter(field,
			"penalty %v is too large for a %dx%d instance: QUBO energies overflow", p, n, n).
			WithOperation("Encode").WithComponent(component)
	}

	return &Instance{
		Costs:      costs,
		PenaltyRow: penaltyRow,
		PenaltyCol: penaltyCol,
		Matrix:     m,
		Index:      idx,
	}, nil
}

func validate(costs [][]float64, penaltyRow, penaltyCol float64) *apperrors.Error {
	if len(costs) == 0 {
		return apperrors.InvalidShape("costs", "cost matrix is empty")
	}
	n := len(costs)
	for i, row := range costs {
		if len(row) != n {
			return apperrors.InvalidShape("costs",
				"cost matrix must be square: row %d has %d columns, expected %d", i, len(row), n)
		}
		for j, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
				return apperrors.InvalidParameter(fmt.Sprintf("costs[%d][%d]", i, j),
					"cost must be a finite non-negative number, got %v", c)
			}
		}
	}
	if !(penaltyRow > 0) || math.IsInf(penaltyRow, 0) {
		return apperrors.InvalidParameter("penalty_row", "penalty must be a finite positive number, got %v", penaltyRow)
	}
	if !(penaltyCol > 0) || math.IsInf(penaltyCol, 0) {
		return apperrors.InvalidParameter("penalty_col", "penalty must be a finite positive number, got %v", penaltyCol)
	}
	return nil
}

// Pair is one decoded worker→job assignment. On the wire it is the
// two-element array [worker, job].
type Pair struct {
	Worker int
	Job    int
}

// MarshalJSON implements json.Marshaler.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Worker, p.Job})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return p.set(v)
}

// MarshalYAML implements yaml.Marshaler.
func (p Pair) MarshalYAML() (interface{}, error) {
	return []int{p.Worker, p.Job}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Pair) UnmarshalYAML(node *yaml.Node) error {
	var v []int
	if err := node.Decode(&v); err != nil {
		return err
	}
	return p.set(v)
}

func (p *Pair) set(v []int) error {
	if len(v) != 2 {
		return fmt.Errorf("assignment pair must be [worker, job], got %d elements", len(v))
	}
	p.Worker, p.Job = v[0], v[1]
	return nil
}

// Decoded is the domain view of a bitstring.
type Decoded struct {
	// Pairs holds one entry per assigned worker, in worker order.
	Pairs     []Pair
	TotalCost float64
	// RowCounts[i] and ColCounts[j] count set variables per worker and job.
	RowCounts []int
	ColCounts []int
}

// Decode maps a bitstring to assignments. A worker with several set
// variables keeps the first one; a worker with none is left unassigned.
// Decoding never fails; Validate reports what is wrong.
func (in *Instance) Decode(bits []uint8) Decoded {
	n := in.N()
	d := Decoded{
		Pairs:     make([]Pair, 0, n),
		RowCounts: make([]int, n),
		ColCounts: make([]int, n),
	}
	for i := 0; i < n; i++ {
		assigned := false
		for j := 0; j < n; j++ {
			if bits[in.Index.MustIndex(qubo.Key{Kind: qubo.KindAssign, A: i, B: j})] == 0 {
				continue
			}
			d.RowCounts[i]++
			d.ColCounts[j]++
			if !assigned {
				d.Pairs = append(d.Pairs, Pair{Worker: i, Job: j})
				d.TotalCost += in.Costs[i][j]
				assigned = true
			}
		}
	}
	return d
}

// Validate checks the one-to-one constraints: one check per worker, then one
// per job.
func (in *Instance) Validate(d Decoded) []optimization.ConstraintCheck {
	n := in.N()
	checks := make([]optimization.ConstraintCheck, 0, 2*n)
	for i, c := range d.RowCounts {
		checks = append(checks, optimization.ConstraintCheck{
			Name:      fmt.Sprintf("worker_%d", i),
			Satisfied: c == 1,
			Value:     float64(c),
			Bound:     optimization.Bound(1),
			Detail:    fmt.Sprintf("assigned to %d jobs", c),
		})
	}
	for j, c := range d.ColCounts {
		checks = append(checks, optimization.ConstraintCheck{
			Name:      fmt.Sprintf("job_%d", j),
			Satisfied: c == 1,
			Value:     float64(c),
			Bound:     optimization.Bound(1),
			Detail:    fmt.Sprintf("assigned to %d workers", c),
		})
	}
	return checks
}

// Evaluate decodes and validates bits in one step; it is the aggregator's
// evaluation hook.
func (in *Instance) Evaluate(bits []uint8) optimization.Candidate[Decoded] {
	d := in.Decode(bits)
	checks := in.Validate(d)
	return optimization.Candidate[Decoded]{
		Solution:    d,
		Feasible:    optimization.AllSatisfied(checks),
		Constraints: checks,
	}
}

// EncodePairs returns the bitstring that represents pairs. It is the inverse of
// Decode for feasible assignments.
func (in *Instance) EncodePairs(pairs []Pair) []uint8 {
	bits := make([]uint8, in.Index.Len())
	for _, p := range pairs {
		bits[in.Index.MustIndex(qubo.Key{Kind: qubo.KindAssign, A: p.Worker, B: p.Job})] = 1
	}
	return bits
}
