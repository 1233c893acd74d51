package qubo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(rng *rand.Rand, n int) *Matrix {
	b := NewBuilder(n)
	for i := 0; i < n; i++ {
		b.AddLinear(i, float64(rng.Intn(21)-10))
		for j := i + 1; j < n; j++ {
			if rng.Intn(2) == 0 {
				b.AddQuadratic(i, j, float64(rng.Intn(21)-10))
			}
		}
	}
	b.AddOffset(3)
	return b.Build()
}

func TestBuilderSymmetric(t *testing.T) {
	b := NewBuilder(3)
	b.AddLinear(0, 1.5)
	b.AddQuadratic(0, 2, 4)
	b.AddQuadratic(2, 0, 1)
	b.AddOffset(7)
	m := b.Build()

	assert.Equal(t, 3, m.Size())
	assert.Equal(t, 1.5, m.At(0, 0))
	assert.Equal(t, 5.0, m.At(0, 2))
	assert.Equal(t, m.At(0, 2), m.At(2, 0))
	assert.Equal(t, 7.0, m.Offset())

	assert.Panics(t, func() { b.AddLinear(0, 1) }, "builder must be frozen after Build")
	assert.Panics(t, func() { NewBuilder(2).AddQuadratic(1, 1, 1) })
}

func TestEnergy(t *testing.T) {
	m := FromTerms(3, []Term{
		{0, 0, -1}, {1, 1, -2}, {2, 2, 3},
		{0, 1, 4}, {1, 2, -5},
	}, 10)

	tests := []struct {
		x    []uint8
		want float64
	}{
		{[]uint8{0, 0, 0}, 10},
		{[]uint8{1, 0, 0}, 9},
		{[]uint8{1, 1, 0}, 11},
		{[]uint8{0, 1, 1}, 6},
		{[]uint8{1, 1, 1}, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Energy(tt.x), "x=%v", tt.x)
	}

	assert.Panics(t, func() { m.Energy([]uint8{1}) })
}

func TestEnergyMatchesQuadraticForm(t *testing.T) {
	// x'Qx counts every off-diagonal pair twice and every diagonal entry once.
	rng := rand.New(rand.NewSource(7))
	m := randomMatrix(rng, 8)
	sym := m.Sym()

	for trial := 0; trial < 50; trial++ {
		x := make([]uint8, 8)
		xf := make([]float64, 8)
		var diag float64
		for i := range x {
			x[i] = uint8(rng.Intn(2))
			xf[i] = float64(x[i])
			diag += sym.At(i, i) * xf[i]
		}
		v := mat.NewVecDense(8, xf)
		want := m.Offset() + (mat.Inner(v, sym, v)+diag)/2
		assert.InDelta(t, want, m.Energy(x), 1e-9)
	}
}

func TestFlipDelta(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := randomMatrix(rng, 10)

	for trial := 0; trial < 100; trial++ {
		x := make([]uint8, 10)
		for i := range x {
			x[i] = uint8(rng.Intn(2))
		}
		i := rng.Intn(10)
		before := m.Energy(x)
		delta := m.FlipDelta(x, i)
		x[i] ^= 1
		assert.InDelta(t, m.Energy(x)-before, delta, 1e-9)
	}
}

func TestTermsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := randomMatrix(rng, 6)

	rebuilt := FromTerms(m.Size(), m.Terms(), m.Offset())
	assert.True(t, mat.Equal(m.Sym(), rebuilt.Sym()))
	assert.Equal(t, m.Offset(), rebuilt.Offset())

	for _, term := range m.Terms() {
		require.LessOrEqual(t, term.I, term.J)
		require.NotZero(t, term.Value)
	}
}

func TestMaxAbsCoefficient(t *testing.T) {
	m := FromTerms(2, []Term{{0, 0, 3}, {0, 1, -8}}, 100)
	assert.Equal(t, 8.0, m.MaxAbsCoefficient())
}

func TestFinite(t *testing.T) {
	assert.True(t, randomMatrix(rand.New(rand.NewSource(3)), 6).Finite())

	// Each coefficient is finite but their sum is not.
	assert.False(t, FromTerms(2, []Term{{0, 0, 1e308}, {1, 1, 1e308}}, 0).Finite())
	assert.False(t, FromTerms(1, []Term{{0, 0, 1}}, math.Inf(1)).Finite())
	assert.False(t, FromTerms(2, []Term{{0, 1, math.NaN()}}, 0).Finite())
}

func TestIndexMap(t *testing.T) {
	idx := NewIndexMap(4)
	a := idx.Add(Key{Kind: KindItem, A: 0})
	b := idx.Add(Key{Kind: KindItem, A: 1})
	s := idx.Add(Key{Kind: KindSlack, A: 0})

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 2, s)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.Count(KindItem))
	assert.Equal(t, Key{Kind: KindSlack, A: 0}, idx.Key(2))

	got, ok := idx.Index(Key{Kind: KindItem, A: 1})
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	_, ok = idx.Index(Key{Kind: KindAssign, A: 0, B: 0})
	assert.False(t, ok)

	assert.Panics(t, func() { idx.Add(Key{Kind: KindItem, A: 0}) })
	assert.Equal(t, "x[3,4]", Key{Kind: KindAssign, A: 3, B: 4}.String())
}
