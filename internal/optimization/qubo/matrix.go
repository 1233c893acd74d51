// Package qubo holds the dense coefficient model shared by every encoder and
// sampler.
//
// A Matrix stores linear coefficients on the diagonal and pairwise
// coefficients off the diagonal. An off-diagonal entry (i, j) is the full
// coefficient of x_i*x_j and is counted once per unordered pair, so
//
//	E(x) = offset + Σ_i Q[i][i]·x_i + Σ_{i<j} Q[i][j]·x_i·x_j
package qubo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix is an immutable symmetric QUBO. Build one with a Builder.
type Matrix struct {
	q      *mat.SymDense
	offset float64
}

// Term is a single non-zero upper-triangular coefficient.
type Term struct {
	I, J  int
	Value float64
}

// Size returns the number of binary variables.
func (m *Matrix) Size() int {
	return m.q.SymmetricDim()
}

// At returns coefficient (i, j). At(i, j) == At(j, i).
func (m *Matrix) At(i, j int) float64 {
	return m.q.At(i, j)
}

// Offset returns the constant term.
func (m *Matrix) Offset() float64 {
	return m.offset
}

// Energy evaluates the QUBO at x. x must have Size() entries, each 0 or 1.
//
// The summation order is fixed so the same bitstring always yields the
// bit-identical energy; histogram grouping relies on that.
func (m *Matrix) Energy(x []uint8) float64 {
	n := m.Size()
	if len(x) != n {
		panic(fmt.Sprintf("qubo: bitstring has %d entries, matrix has %d variables", len(x), n))
	}
	e := m.offset
	for i := 0; i < n; i++ {
		if x[i] == 0 {
			continue
		}
		e += m.q.At(i, i)
		for j := i + 1; j < n; j++ {
			if x[j] != 0 {
				e += m.q.At(i, j)
			}
		}
	}
	return e
}

// LocalField returns Q[i][i] + Σ_{j≠i} Q[i][j]·x_j, the energy gained by
// setting bit i with every other bit held fixed.
func (m *Matrix) LocalField(x []uint8, i int) float64 {
	h := m.q.At(i, i)
	for j, v := range x {
		if v != 0 && j != i {
			h += m.q.At(i, j)
		}
	}
	return h
}

// FlipDelta returns E(x with bit i flipped) - E(x).
func (m *Matrix) FlipDelta(x []uint8, i int) float64 {
	h := m.LocalField(x, i)
	if x[i] == 0 {
		return h
	}
	return -h
}

// MaxAbsCoefficient returns the largest absolute coefficient, ignoring the offset.
func (m *Matrix) MaxAbsCoefficient() float64 {
	n := m.Size()
	var max float64
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := math.Abs(m.q.At(i, j)); v > max {
				max = v
			}
		}
	}
	return max
}

// Finite reports whether every energy the matrix can produce is a finite
// number. It holds when |offset| + Σ|Q[i][j]| does not overflow, which bounds
// every partial sum Energy computes.
func (m *Matrix) Finite() bool {
	n := m.Size()
	total := math.Abs(m.offset)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			total += math.Abs(m.q.At(i, j))
		}
	}
	return !math.IsInf(total, 0) && !math.IsNaN(total)
}

// Terms lists the non-zero coefficients with I <= J, ordered by I then J.
func (m *Matrix) Terms() []Term {
	n := m.Size()
	var terms []Term
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := m.q.At(i, j); v != 0 {
				terms = append(terms, Term{I: i, J: j, Value: v})
			}
		}
	}
	return terms
}

// Sym returns a copy of the coefficients as a gonum symmetric matrix.
func (m *Matrix) Sym() *mat.SymDense {
	n := m.Size()
	c := mat.NewSymDense(n, nil)
	c.CopySym(m.q)
	return c
}

// Builder accumulates coefficients. The zero value is not usable; call
// NewBuilder.
type Builder struct {
	q      *mat.SymDense
	offset float64
	built  bool
}

// NewBuilder returns a builder over n variables.
func NewBuilder(n int) *Builder {
	if n <= 0 {
		panic(fmt.Sprintf("qubo: variable count must be positive, got %d", n))
	}
	return &Builder{q: mat.NewSymDense(n, nil)}
}

// AddLinear adds v to the diagonal coefficient of variable i.
func (b *Builder) AddLinear(i int, v float64) {
	b.mustOpen()
	b.q.SetSym(i, i, b.q.At(i, i)+v)
}

// AddQuadratic adds v to the pairwise coefficient of (i, j). i must differ from j.
func (b *Builder) AddQuadratic(i, j int, v float64) {
	b.mustOpen()
	if i == j {
		panic(fmt.Sprintf("qubo: quadratic term on diagonal (%d, %d)", i, j))
	}
	b.q.SetSym(i, j, b.q.At(i, j)+v)
}

// AddOffset adds v to the constant term.
func (b *Builder) AddOffset(v float64) {
	b.mustOpen()
	b.offset += v
}

// Build freezes the builder and returns the matrix. The builder can not be
// used afterwards.
func (b *Builder) Build() *Matrix {
	b.mustOpen()
	b.built = true
	return &Matrix{q: b.q, offset: b.offset}
}

func (b *Builder) mustOpen() {
	if b.built {
		panic("qubo: builder used after Build")
	}
}

// FromTerms builds a matrix directly from upper-triangular terms. Duplicate
// (i, j) entries are summed, matching how dimod and SAPI canonicalise problems.
func FromTerms(n int, terms []Term, offset float64) *Matrix {
	b := NewBuilder(n)
	for _, t := range terms {
		if t.I == t.J {
			b.AddLinear(t.I, t.Value)
		} else {
			b.AddQuadratic(t.I, t.J, t.Value)
		}
	}
	b.AddOffset(offset)
	return b.Build()
}
