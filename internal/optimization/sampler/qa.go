package sampler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization/qubo"
)

// RemoteConfig locates a hosted quantum annealer.
type RemoteConfig struct {
	Endpoint   string
	Token      string
	SolverName string
	Timeout    time.Duration
}

// Configured reports whether every connection setting is present.
func (c RemoteConfig) Configured() bool {
	return c.Endpoint != "" && c.Token != "" && c.SolverName != ""
}

// RemoteAnnealer submits problems to a hosted annealer over HTTP. Without
// configuration every call fails with SolverUnavailable.
type RemoteAnnealer struct {
	cfg    RemoteConfig
	client *http.Client
	logger *zap.Logger
}

// NewRemoteAnnealer returns a QA backend. client may be nil.
func NewRemoteAnnealer(cfg RemoteConfig, client *http.Client, logger *zap.Logger) *RemoteAnnealer {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteAnnealer{cfg: cfg, client: client, logger: logger}
}

// Name implements Backend.
func (r *RemoteAnnealer) Name() string { return QA }

// Available reports whether the backend can be called at all.
func (r *RemoteAnnealer) Available() bool { return r.cfg.Configured() }

type remoteProblem struct {
	Solver       string      `json:"solver"`
	Type         string      `json:"type"`
	NumVariables int         `json:"num_variables"`
	Terms        [][3]any    `json:"terms"`
	Offset       float64     `json:"offset"`
	Params       remoteParam `json:"params"`
}

type remoteParam struct {
	NumReads int `json:"num_reads"`
}

type remoteAnswer struct {
	Samples        [][]int `json:"samples"`
	NumOccurrences []int   `json:"num_occurrences"`
	Error          string  `json:"error,omitempty"`
}

// Sample implements Backend. The remote side may merge identical reads; the
// occurrence counts are passed through for the adapter to check.
func (r *RemoteAnnealer) Sample(ctx context.Context, m *qubo.Matrix, reads int, _ *rand.Rand) ([]Read, error) {
	if !r.Available() {
		return nil, apperrors.Newf(apperrors.KindSolverUnavailable,
			"qa backend is not configured: set DWAVE_API_ENDPOINT, DWAVE_API_TOKEN and DWAVE_SOLVER_NAME").
			WithField("solver")
	}

	terms := m.Terms()
	problem := remoteProblem{
		Solver:       r.cfg.SolverName,
		Type:         "qubo",
		NumVariables: m.Size(),
		Terms:        make([][3]any, len(terms)),
		Offset:       m.Offset(),
		Params:       remoteParam{NumReads: reads},
	}
	for k, t := range terms {
		problem.Terms[k] = [3]any{t.I, t.J, t.Value}
	}

	body, err := json.Marshal(problem)
	if err != nil {
		return nil, fmt.Errorf("encode problem: %w", err)
	}

	url := strings.TrimRight(r.cfg.Endpoint, "/") + "/problems"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", r.cfg.Token)

	r.logger.Debug("submitting problem",
		zap.String("solver_name", r.cfg.SolverName),
		zap.Int("variables", m.Size()),
		zap.Int("terms", len(terms)),
		zap.Int("reads", reads),
	)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit problem: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote annealer returned %s: %s", resp.Status, snippet(raw))
	}

	var answer remoteAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	if answer.Error != "" {
		return nil, fmt.Errorf("remote annealer: %s", answer.Error)
	}
	if len(answer.NumOccurrences) != 0 && len(answer.NumOccurrences) != len(answer.Samples) {
		return nil, fmt.Errorf("answer has %d samples but %d occurrence counts",
			len(answer.Samples), len(answer.NumOccurrences))
	}

	out := make([]Read, len(answer.Samples))
	for k, s := range answer.Samples {
		occ := 1
		if len(answer.NumOccurrences) > 0 {
			occ = answer.NumOccurrences[k]
		}
		bits := make([]uint8, len(s))
		for i, v := range s {
			if v != 0 && v != 1 {
				return nil, fmt.Errorf("sample %d variable %d is %d, not binary", k, i, v)
			}
			bits[i] = uint8(v)
		}
		out[k] = Read{Bits: bits, Occurrences: occ}
	}
	return out, nil
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
