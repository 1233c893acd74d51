package sampler

import "github.com/copyleftdev/anneal/internal/optimization/qubo"

// SteepestDescent flips, one at a time, the bit with the most negative
// energy delta until no single flip improves x. x is modified in place and
// the number of flips is returned. Ties go to the lowest index.
func SteepestDescent(m *qubo.Matrix, x []uint8) int {
	n := m.Size()
	h := make([]float64, n)
	for i := range h {
		h[i] = m.LocalField(x, i)
	}

	flips := 0
	for {
		best, bestDelta := -1, 0.0
		for i := 0; i < n; i++ {
			d := h[i]
			if x[i] == 1 {
				d = -d
			}
			if d < bestDelta {
				best, bestDelta = i, d
			}
		}
		if best < 0 {
			return flips
		}

		sign := 1.0
		if x[best] == 1 {
			sign = -1.0
		}
		x[best] ^= 1
		for j := 0; j < n; j++ {
			if j != best {
				h[j] += sign * m.At(best, j)
			}
		}
		flips++
	}
}
