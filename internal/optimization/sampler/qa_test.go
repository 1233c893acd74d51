package sampler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization/qubo"
)

func twoVarMatrix() *qubo.Matrix {
	b := qubo.NewBuilder(2)
	b.AddLinear(0, -1)
	b.AddLinear(1, -1)
	b.AddQuadratic(0, 1, 3)
	b.AddOffset(0.5)
	return b.Build()
}

func TestRemoteAnnealerNotConfigured(t *testing.T) {
	qa := NewRemoteAnnealer(RemoteConfig{Endpoint: "http://example.invalid"}, nil, nil)
	assert.False(t, qa.Available())

	a := NewAdapter(1, time.Second, 1, nil, qa)
	_, err := a.Sample(context.Background(), twoVarMatrix(), QA, 10, Options{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindSolverUnavailable, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "DWAVE_API_TOKEN")
}

func TestRemoteAnnealerRoundTrip(t *testing.T) {
	var got remoteProblem
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sapi/problems", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"samples":         [][]int{{1, 0}, {1, 1}, {0, 1}},
			"num_occurrences": []int{6, 1, 3},
			// reported energies are ignored in favour of local recomputation
			"energies": []float64{100, 100, 100},
		})
	}))
	defer srv.Close()

	qa := NewRemoteAnnealer(RemoteConfig{
		Endpoint:   srv.URL + "/sapi/",
		Token:      "secret",
		SolverName: "Advantage_system4.1",
	}, srv.Client(), nil)
	require.True(t, qa.Available())

	m := twoVarMatrix()
	a := NewAdapter(1, 5*time.Second, 1, nil, qa)
	samples, err := a.Sample(context.Background(), m, QA, 10, Options{})
	require.NoError(t, err)

	assert.Equal(t, "Advantage_system4.1", got.Solver)
	assert.Equal(t, "qubo", got.Type)
	assert.Equal(t, 2, got.NumVariables)
	assert.Equal(t, 10, got.Params.NumReads)
	assert.Equal(t, 0.5, got.Offset)
	assert.Len(t, got.Terms, 3)

	require.Len(t, samples, 3)
	assert.Equal(t, []uint8{0, 1}, samples[0].Bits)
	assert.Equal(t, -0.5, samples[0].Energy)
	assert.Equal(t, 3, samples[0].Occurrences)
	assert.Equal(t, []uint8{1, 0}, samples[1].Bits)
	assert.Equal(t, 6, samples[1].Occurrences)
	assert.Equal(t, 1.5, samples[2].Energy)
}

func TestRemoteAnnealerFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    apperrors.Kind
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "solver offline", http.StatusServiceUnavailable)
			},
			kind: apperrors.KindSolverUnavailable,
		},
		{
			name: "remote error field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
			},
			kind: apperrors.KindSolverUnavailable,
		},
		{
			name: "too few reads",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"samples":[[0,1]],"num_occurrences":[4]}`))
			},
			kind: apperrors.KindSolverUnavailable,
		},
		{
			name: "non-binary sample",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"samples":[[0,-1]],"num_occurrences":[10]}`))
			},
			kind: apperrors.KindSolverUnavailable,
		},
		{
			name: "slow",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			kind: apperrors.KindSolverTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			qa := NewRemoteAnnealer(RemoteConfig{Endpoint: srv.URL, Token: "t", SolverName: "s"}, srv.Client(), nil)
			a := NewAdapter(1, 100*time.Millisecond, 1, nil, qa)

			_, err := a.Sample(context.Background(), twoVarMatrix(), QA, 10, Options{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}
