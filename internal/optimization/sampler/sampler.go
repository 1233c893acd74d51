// Package sampler runs annealing backends behind one contract: the caller
// asks for N reads of a QUBO by solver name and gets back exactly N reads,
// each with an exactly recomputed energy, sorted by ascending energy.
package sampler

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization"
	"github.com/copyleftdev/anneal/internal/optimization/qubo"
)

const component = "sampler"

// Names of the built-in backends.
const (
	SA  = "sa"
	SQA = "sqa"
	QA  = "qa"
)

// Read is one raw backend result. Occurrences > 1 means the backend merged
// identical reads.
type Read struct {
	Bits        []uint8
	Occurrences int
}

// Backend is a search strategy. Implementations must honour ctx
// cancellation and may run reads concurrently; they must not mutate m.
type Backend interface {
	Name() string
	Sample(ctx context.Context, m *qubo.Matrix, reads int, rng *rand.Rand) ([]Read, error)
}

// Options tune a single Sample call.
type Options struct {
	// Greedy runs steepest descent on every read before energies are computed.
	Greedy bool
	// Seed overrides the adapter seed when non-zero.
	Seed int64
	// Timeout overrides the adapter timeout when positive.
	Timeout time.Duration
}

// Adapter owns the registry of backends and the sampling discipline shared
// by all of them.
type Adapter struct {
	mu       sync.RWMutex
	backends map[string]Backend

	sem     *semaphore.Weighted
	timeout time.Duration
	seed    int64
	logger  *zap.Logger
}

// NewAdapter returns an adapter that allows at most workers concurrent
// backend calls. seed 0 seeds each call from the clock.
func NewAdapter(workers int, timeout time.Duration, seed int64, logger *zap.Logger, backends ...Backend) *Adapter {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		backends: make(map[string]Backend, len(backends)),
		sem:      semaphore.NewWeighted(int64(workers)),
		timeout:  timeout,
		seed:     seed,
		logger:   logger.Named("sampler"),
	}
	for _, b := range backends {
		a.Register(b)
	}
	return a
}

// Register adds or replaces a backend under its name.
func (a *Adapter) Register(b Backend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backends[b.Name()] = b
}

// Backend looks up a backend by name.
func (a *Adapter) Backend(name string) (Backend, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.backends[name]
	return b, ok
}

// Names lists the registered backends in sorted order.
func (a *Adapter) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.backends))
	for n := range a.backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sample draws reads samples of m from the named backend.
//
// Failures are classified: an unknown name is UnknownSolver, an expired
// deadline is SolverTimeout, anything else from the backend is
// SolverUnavailable. A batch that comes back short is unusable and reported
// as SolverUnavailable; there is no partial result and no retry.
func (a *Adapter) Sample(ctx context.Context, m *qubo.Matrix, name string, reads int, opts Options) ([]optimization.Sample, error) {
	const op = "Adapter.Sample"

	backend, ok := a.Backend(name)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindUnknownSolver,
			"unknown solver %q, expected one of %v", name, a.Names()).
			WithField("solver").WithOperation(op).WithComponent(component)
	}
	if reads < 1 {
		return nil, apperrors.InvalidParameter("num_reads", "num_reads must be positive, got %d", reads).
			WithOperation(op).WithComponent(component)
	}

	timeout := a.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, classify(ctx, err, name).WithOperation(op).WithComponent(component)
	}
	defer a.sem.Release(1)

	seed := opts.Seed
	if seed == 0 {
		seed = a.seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	start := time.Now()
	raw, err := backend.Sample(ctx, m, reads, rand.New(rand.NewSource(seed)))
	if err == nil {
		// A backend that ignored ctx and returned late still missed the deadline.
		err = ctx.Err()
	}
	if err != nil {
		return nil, classify(ctx, err, name).WithOperation(op).WithComponent(component)
	}

	samples, err := a.finish(ctx, m, raw, reads, opts)
	if err != nil {
		return nil, classify(ctx, err, name).WithOperation(op).WithComponent(component)
	}

	a.logger.Debug("sampled",
		zap.String("solver", name),
		zap.Int("reads", reads),
		zap.Int("variables", m.Size()),
		zap.Bool("greedy", opts.Greedy),
		zap.Float64("best_energy", samples[0].Energy),
		zap.Duration("elapsed", time.Since(start)),
	)

	return samples, nil
}

// finish validates raw reads, applies post-processing, recomputes energies
// and sorts.
func (a *Adapter) finish(ctx context.Context, m *qubo.Matrix, raw []Read, reads int, opts Options) ([]optimization.Sample, error) {
	n := m.Size()
	total := 0
	samples := make([]optimization.Sample, 0, len(raw))
	for i, r := range raw {
		if len(r.Bits) != n {
			return nil, fmt.Errorf("read %d has %d variables, expected %d", i, len(r.Bits), n)
		}
		if r.Occurrences < 1 {
			return nil, fmt.Errorf("read %d has occurrence count %d", i, r.Occurrences)
		}
		bits := make([]uint8, n)
		for j, v := range r.Bits {
			if v > 1 {
				return nil, fmt.Errorf("read %d variable %d is %d, not binary", i, j, v)
			}
			bits[j] = v
		}
		if opts.Greedy {
			SteepestDescent(m, bits)
		}
		total += r.Occurrences
		samples = append(samples, optimization.Sample{
			Bits:        bits,
			Energy:      m.Energy(bits),
			Occurrences: r.Occurrences,
		})
		if i%64 == 63 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if total != reads {
		return nil, fmt.Errorf("backend returned %d reads, requested %d", total, reads)
	}

	slices.SortStableFunc(samples, func(x, y optimization.Sample) int {
		if c := cmp.Compare(x.Energy, y.Energy); c != 0 {
			return c
		}
		return bytes.Compare(x.Bits, y.Bits)
	})
	return samples, nil
}

// classify maps a sampling failure onto the error taxonomy.
func classify(ctx context.Context, err error, name string) *apperrors.Error {
	var e *apperrors.Error
	if apperrors.As(err, &e) && e.Kind != apperrors.KindInternal && e.Kind != "" {
		return e
	}
	if apperrors.Is(err, context.DeadlineExceeded) || apperrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.WrapKind(err, apperrors.KindSolverTimeout,
			fmt.Sprintf("solver %q did not finish before the deadline", name))
	}
	return apperrors.WrapKind(err, apperrors.KindSolverUnavailable,
		fmt.Sprintf("solver %q failed", name))
}
