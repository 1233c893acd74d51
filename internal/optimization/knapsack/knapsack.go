// Package knapsack encodes the 0/1 knapsack problem as a QUBO with a binary
// slack register for the capacity inequality.
package knapsack

import (
	"fmt"
	"math"
	"math/bits"

	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization"
	"github.com/copyleftdev/anneal/internal/optimization/qubo"
)

const component = "knapsack"

// Instance is an encoded knapsack problem.
type Instance struct {
	Weights  []int
	Values   []float64
	Capacity int
	Penalty  float64

	// SlackWeights[b] is the weight of slack bit b. They sum to Capacity.
	SlackWeights []int

	Matrix *qubo.Matrix
	Index  *qubo.IndexMap
}

// SlackWeights returns the slack register for capacity: powers of two with
// the top bit clipped so the register covers exactly 0..capacity.
func SlackWeights(capacity int) []int {
	if capacity <= 0 {
		return nil
	}
	m := bits.Len(uint(capacity)) // ceil(log2(capacity+1))
	w := make([]int, m)
	for b := 0; b < m-1; b++ {
		w[b] = 1 << b
	}
	w[m-1] = capacity - (1<<(m-1) - 1)
	return w
}

// Encode builds the QUBO
//
//	H = -Σ v_k x_k + P·(Σ w_k x_k + Σ s_b y_b - C)²
//
// where y is the slack register. The constant P·C² goes to the offset so a
// feasible selection with matching slack has energy -Σ v_k x_k.
func Encode(weights []int, values []float64, capacity int, penalty float64) (*Instance, error) {
	if err := validate(weights, values, capacity, penalty); err != nil {
		return nil, err.WithOperation("Encode").WithComponent(component)
	}

	slack := SlackWeights(capacity)
	n := len(weights) + len(slack)

	idx := qubo.NewIndexMap(n)
	coef := make([]float64, 0, n)
	for k, w := range weights {
		idx.Add(qubo.Key{Kind: qubo.KindItem, A: k})
		coef = append(coef, float64(w))
	}
	for b, w := range slack {
		idx.Add(qubo.Key{Kind: qubo.KindSlack, A: b})
		coef = append(coef, float64(w))
	}

	c := float64(capacity)
	qb := qubo.NewBuilder(n)
	for k, v := range values {
		qb.AddLinear(k, -v)
	}
	for u := 0; u < n; u++ {
		qb.AddLinear(u, penalty*(coef[u]*coef[u]-2*c*coef[u]))
		for v := u + 1; v < n; v++ {
			if q := 2 * penalty * coef[u] * coef[v]; q != 0 {
				qb.AddQuadratic(u, v, q)
			}
		}
	}
	qb.AddOffset(penalty * c * c)

	m := qb.Build()
	if !m.Finite() {
		return nil, apperrors.InvalidParameter("penalty",
			"penalty %v is too large for capacity %d: QUBO energies overflow", penalty, capacity).
			WithOperation("Encode").WithComponent(component)
	}

	return &Instance{
		Weights:      weights,
		Values:       values,
		Capacity:     capacity,
		Penalty:      penalty,
		SlackWeights: slack,
		Matrix:       m,
		Index:        idx,
	}, nil
}

func validate(weights []int, values []float64, capacity int, penalty float64) *apperrors.Error {
	if len(weights) != len(values) {
		return apperrors.InvalidShape("values",
			"weights and values must have the same length, got %d and %d", len(weights), len(values))
	}
	if len(weights) == 0 {
		return apperrors.InvalidShape("weights", "at least one item is required")
	}
	for k, w := range weights {
		if w < 0 {
			return apperrors.InvalidParameter(fmt.Sprintf("weights[%d]", k), "weight must be non-negative, got %d", w)
		}
	}
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return apperrors.InvalidParameter(fmt.Sprintf("values[%d]", k), "value must be a finite non-negative number, got %v", v)
		}
	}
	if capacity < 0 {
		return apperrors.InvalidParameter("capacity", "capacity must be non-negative, got %d", capacity)
	}
	if !(penalty > 0) || math.IsInf(penalty, 0) {
		return apperrors.InvalidParameter("penalty", "penalty must be a finite positive number, got %v", penalty)
	}
	return nil
}

// Decoded is the domain view of a bitstring.
type Decoded struct {
	ChosenItems []int
	TotalWeight int
	TotalValue  float64
}

// Decode returns the selected items in index order. Slack bits are ignored.
func (in *Instance) Decode(bits []uint8) Decoded {
	d := Decoded{ChosenItems: make([]int, 0, len(in.Weights))}
	for k := range in.Weights {
		if bits[in.Index.MustIndex(qubo.Key{Kind: qubo.KindItem, A: k})] == 0 {
			continue
		}
		d.ChosenItems = append(d.ChosenItems, k)
		d.TotalWeight += in.Weights[k]
		d.TotalValue += in.Values[k]
	}
	return d
}

// Validate checks the physical capacity bound. Slack consistency is not
// reported: only the real weight matters.
func (in *Instance) Validate(d Decoded) []optimization.ConstraintCheck {
	return []optimization.ConstraintCheck{{
		Name:      "capacity",
		Satisfied: d.TotalWeight <= in.Capacity,
		Value:     float64(d.TotalWeight),
		Bound:     optimization.Bound(float64(in.Capacity)),
		Detail:    fmt.Sprintf("total weight %d / capacity %d", d.TotalWeight, in.Capacity),
	}}
}

// Evaluate decodes and validates bits in one step.
func (in *Instance) Evaluate(bits []uint8) optimization.Candidate[Decoded] {
	d := in.Decode(bits)
	checks := in.Validate(d)
	return optimization.Candidate[Decoded]{
		Solution:    d,
		Feasible:    optimization.AllSatisfied(checks),
		Constraints: checks,
	}
}

// EncodeItems returns the bitstring selecting items, with the slack register
// set to absorb the unused capacity. The selection must fit.
func (in *Instance) EncodeItems(items []int) []uint8 {
	out := make([]uint8, in.Index.Len())
	used := 0
	for _, k := range items {
		out[in.Index.MustIndex(qubo.Key{Kind: qubo.KindItem, A: k})] = 1
		used += in.Weights[k]
	}
	rest := in.Capacity - used
	// Greedy from the top bit: every value in 0..capacity is reachable
	// because each lower bit-prefix covers 0..2^b-1.
	for b := len(in.SlackWeights) - 1; b >= 0 && rest > 0; b-- {
		if in.SlackWeights[b] <= rest {
			out[in.Index.MustIndex(qubo.Key{Kind: qubo.KindSlack, A: b})] = 1
			rest -= in.SlackWeights[b]
		}
	}
	return out
}
