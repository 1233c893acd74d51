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

// SimulatedQuantumAnnealing is a path-integral Monte Carlo annealer. Each
// read evolves Trotter coupled replicas of the classical state while the
// transverse field decays linearly from Gamma towards zero.
type SimulatedQuantumAnnealing struct {
	Sweeps  int
	Trotter int
	// Beta is the inverse temperature in units of the largest coefficient.
	Beta float64
	// Gamma is the initial transverse field.
	Gamma float64

	logger *zap.Logger
}

// NewSimulatedQuantumAnnealing returns an SQA backend.
func NewSimulatedQuantumAnnealing(sweeps, trotter int, beta, gamma float64, logger *zap.Logger) *SimulatedQuantumAnnealing {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedQuantumAnnealing{
		Sweeps:  sweeps,
		Trotter: trotter,
		Beta:    beta,
		Gamma:   gamma,
		logger:  logger,
	}
}

// Name implements Backend.
func (s *SimulatedQuantumAnnealing) Name() string { return SQA }

// Sample implements Backend. Each read reports its lowest-energy replica.
func (s *SimulatedQuantumAnnealing) Sample(ctx context.Context, m *qubo.Matrix, reads int, rng *rand.Rand) ([]Read, error) {
	p := s.params()
	scale := m.MaxAbsCoefficient()
	if scale == 0 {
		scale = 1
	}
	p.beta /= scale

	q := denseOf(m)
	n := m.Size()

	seeds := make([]int64, reads)
	for r := range seeds {
		seeds[r] = rng.Int63()
	}

	s.logger.Debug("quantum annealing",
		zap.Int("reads", reads),
		zap.Int("sweeps", p.sweeps),
		zap.Int("trotter", p.trotter),
		zap.Float64("beta", p.beta),
		zap.Float64("gamma", p.gamma),
	)

	out := make([]Read, reads)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for r := 0; r < reads; r++ {
		g.Go(func() error {
			bits, err := p.run(gctx, m, q, n, rand.New(rand.NewSource(seeds[r])))
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

type sqaParams struct {
	sweeps, trotter int
	beta, gamma     float64
}

func (s *SimulatedQuantumAnnealing) params() sqaParams {
	p := sqaParams{sweeps: s.Sweeps, trotter: s.Trotter, beta: s.Beta, gamma: s.Gamma}
	if p.sweeps < 1 {
		p.sweeps = 1
	}
	if p.trotter < 2 {
		p.trotter = 2
	}
	if p.beta <= 0 {
		p.beta = 5
	}
	if p.gamma <= 0 {
		p.gamma = 1
	}
	return p
}

// run performs one read and returns the replica with the lowest classical
// energy.
func (p sqaParams) run(ctx context.Context, m *qubo.Matrix, q []float64, n int, rng *rand.Rand) ([]uint8, error) {
	P := p.trotter
	replicas := make([][]uint8, P)
	fields := make([][]float64, P)
	for k := range replicas {
		x := make([]uint8, n)
		for i := range x {
			x[i] = uint8(rng.Intn(2))
		}
		replicas[k] = x
		fields[k] = localFields(q, n, x)
	}

	bSlice := p.beta / float64(P)
	for s := 0; s < p.sweeps; s++ {
		if s%16 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		gamma := p.gamma * (1 - float64(s+1)/float64(p.sweeps+1))
		jPerp := -0.5 * math.Log(math.Tanh(bSlice*gamma))

		for k := 0; k < P; k++ {
			x, h := replicas[k], fields[k]
			up, down := replicas[(k+P-1)%P], replicas[(k+1)%P]
			for i := 0; i < n; i++ {
				d := h[i]
				if x[i] == 1 {
					d = -d
				}
				spin := spinOf(x[i])
				logAccept := -bSlice*d - 2*jPerp*spin*(spinOf(up[i])+spinOf(down[i]))
				if logAccept < 0 && rng.Float64() >= math.Exp(logAccept) {
					continue
				}
				flip(q, n, x, h, i)
			}
		}
	}

	best, bestE := 0, math.Inf(1)
	for k, x := range replicas {
		if e := m.Energy(x); e < bestE {
			best, bestE = k, e
		}
	}
	return replicas[best], nil
}

func spinOf(b uint8) float64 {
	return 2*float64(b) - 1
}
