package sampler

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/copyleftdev/anneal/internal/optimization/qubo"
)

// SimulatedAnnealing is a classical single-flip Metropolis annealer with a
// geometric inverse-temperature schedule.
type SimulatedAnnealing struct {
	// Sweeps is the number of full passes over the variables per read.
	Sweeps int
	// BetaMin and BetaMax bound the schedule. Zero derives them from the
	// coefficients.
	BetaMin, BetaMax float64

	logger *zap.Logger
}

// NewSimulatedAnnealing returns an SA backend running sweeps passes per read.
func NewSimulatedAnnealing(sweeps int, logger *zap.Logger) *SimulatedAnnealing {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedAnnealing{Sweeps: sweeps, logger: logger}
}

// Name implements Backend.
func (s *SimulatedAnnealing) Name() string { return SA }

// Sample implements Backend. Reads run in parallel, each with its own RNG
// seeded from rng up front so the result does not depend on scheduling.
func (s *SimulatedAnnealing) Sample(ctx context.Context, m *qubo.Matrix, reads int, rng *rand.Rand) ([]Read, error) {
	sweeps := s.Sweeps
	if sweeps < 1 {
		sweeps = 1
	}
	bMin, bMax := s.BetaMin, s.BetaMax
	if bMin <= 0 || bMax <= 0 {
		bMin, bMax = betaRange(m)
	}
	betas := geometricSchedule(bMin, bMax, sweeps)

	q := denseOf(m)
	n := m.Size()

	seeds := make([]int64, reads)
	for r := range seeds {
		seeds[r] = rng.Int63()
	}

	s.logger.Debug("annealing",
		zap.Int("reads", reads),
		zap.Int("sweeps", sweeps),
		zap.Float64("beta_min", bMin),
		zap.Float64("beta_max", bMax),
	)

	out := make([]Read, reads)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for r := 0; r < reads; r++ {
		g.Go(func() error {
			bits, err := anneal(gctx, q, n, betas, rand.New(rand.NewSource(seeds[r])))
			if err != nil {
				return err
			}
			out[r] = Read{Bits: bits, Occurrences: 1}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// anneal runs one read. q is the row-major n×n coefficient matrix.
func anneal(ctx context.Context, q []float64, n int, betas []float64, rng *rand.Rand) ([]uint8, error) {
	x := make([]uint8, n)
	for i := range x {
		x[i] = uint8(rng.Intn(2))
	}
	h := localFields(q, n, x)

	for s, beta := range betas {
		if s%16 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for i := 0; i < n; i++ {
			d := h[i]
			if x[i] == 1 {
				d = -d
			}
			if d > 0 && rng.Float64() >= math.Exp(-beta*d) {
				continue
			}
			flip(q, n, x, h, i)
		}
	}
	return x, nil
}

// flip toggles x[i] and updates the local fields of every other variable.
func flip(q []float64, n int, x []uint8, h []float64, i int) {
	sign := 1.0
	if x[i] == 1 {
		sign = -1.0
	}
	x[i] ^= 1
	row := q[i*n : (i+1)*n]
	for j, v := range row {
		if j != i && v != 0 {
			h[j] += sign * v
		}
	}
}

func localFields(q []float64, n int, x []uint8) []float64 {
	h := make([]float64, n)
	for i := 0; i < n; i++ {
		v := q[i*n+i]
		for j := 0; j < n; j++ {
			if j != i && x[j] == 1 {
				v += q[i*n+j]
			}
		}
		h[i] = v
	}
	return h
}

// denseOf copies m into a row-major slice for tight inner loops.
func denseOf(m *qubo.Matrix) []float64 {
	n := m.Size()
	q := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			q[i*n+j] = m.At(i, j)
		}
	}
	return q
}

// betaRange picks a schedule that starts hot enough to accept the largest
// single-flip uphill move with probability 1/2 and ends cold enough to
// reject the smallest one with probability 0.99.
func betaRange(m *qubo.Matrix) (float64, float64) {
	n := m.Size()
	maxDelta, minDelta := 0.0, math.Inf(1)
	for i := 0; i < n; i++ {
		d := 0.0
		for j := 0; j < n; j++ {
			v := math.Abs(m.At(i, j))
			d += v
			if v > 0 && v < minDelta {
				minDelta = v
			}
		}
		if d > maxDelta {
			maxDelta = d
		}
	}
	if maxDelta == 0 {
		return 1, 1
	}
	bMin := math.Ln2 / maxDelta
	bMax := math.Log(100) / minDelta
	if bMax < bMin {
		bMax = bMin
	}
	return bMin, bMax
}

func geometricSchedule(bMin, bMax float64, sweeps int) []float64 {
	betas := make([]float64, sweeps)
	if sweeps == 1 {
		betas[0] = bMax
		return betas
	}
	ratio := math.Pow(bMax/bMin, 1/float64(sweeps-1))
	b := bMin
	for s := range betas {
		betas[s] = b
		b *= ratio
	}
	return betas
}
