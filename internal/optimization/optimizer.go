// Package optimization defines the types shared by the encode, sample,
// decode and aggregate stages of a solve.
package optimization

// Problem names the supported problem families.
type Problem string

const (
	ProblemAssignment Problem = "assignment"
	ProblemKnapsack   Problem = "knapsack"
)

// Sample is one annealer read: a full bitstring, its exact QUBO energy, and
// how many identical reads it stands for.
type Sample struct {
	Bits        []uint8
	Energy      float64
	Occurrences int
}

// ConstraintCheck reports one hard constraint evaluated on a decoded
// candidate, independent of the penalty weights used for sampling.
type ConstraintCheck struct {
	Name      string   `json:"name" yaml:"name"`
	Satisfied bool     `json:"satisfied" yaml:"satisfied"`
	Value     float64  `json:"value" yaml:"value"`
	Bound     *float64 `json:"bound,omitempty" yaml:"bound,omitempty"`
	Detail    string   `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// AllSatisfied is the feasibility rule: every check must hold.
func AllSatisfied(checks []ConstraintCheck) bool {
	for _, c := range checks {
		if !c.Satisfied {
			return false
		}
	}
	return true
}

// EnergyBin is one histogram bucket. A Tail bin also counts every sample
// with a higher energy that did not fit in the reported bins.
type EnergyBin struct {
	Energy float64 `json:"energy" yaml:"energy"`
	Count  int     `json:"count" yaml:"count"`
	Tail   bool    `json:"tail,omitempty" yaml:"tail,omitempty"`
}

// Candidate is a decoded and validated sample.
type Candidate[T any] struct {
	Solution    T
	Energy      float64
	Feasible    bool
	Constraints []ConstraintCheck
	Bits        []uint8
}

// Bound returns a pointer suitable for ConstraintCheck.Bound.
func Bound(v float64) *float64 {
	return &v
}
