package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/anneal/internal/config"
	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/logging"
	"github.com/copyleftdev/anneal/internal/optimization/solve"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Solver is the solving capability the server exposes. *solve.Engine
// implements it.
type Solver interface {
	SolveAssignment(ctx context.Context, req solve.AssignmentRequest) (*solve.AssignmentResult, error)
	SolveKnapsack(ctx context.Context, req solve.KnapsackRequest) (*solve.KnapsackResult, error)
	Backends() map[string]bool
}

// Health is the body of GET /health.
type Health struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Version   string          `json:"version"`
	Detail    string          `json:"detail,omitempty"`
	Solvers   map[string]bool `json:"solvers"`
}

// Server implements the HTTP and JSON-RPC endpoints of the solver service.
// Every request is an independent synchronous solve; the server keeps no
// state between requests.
type Server struct {
	cfg    *config.Config
	logger Logger
	solver Solver
	now    func() time.Time
}

// NewServer creates a new server instance with the given config, logger and
// solver.
func NewServer(cfg *config.Config, logger Logger, solver Solver) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		solver: solver,
		now:    time.Now,
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/solve", func(r chi.Router) {
		r.Post("/assignment", s.handleAssignment)
		r.Post("/knapsack", s.handleKnapsack)
	})
	r.Get("/health", s.handleHealth)

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// handleAssignment handles POST /solve/assignment.
func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	var req solve.AssignmentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.solver.SolveAssignment(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// handleKnapsack handles POST /solve/knapsack.
func (s *Server) handleKnapsack(w http.ResponseWriter, r *http.Request) {
	var req solve.KnapsackRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.solver.SolveKnapsack(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// handleHealth handles GET /health. A missing backend degrades the service
// but does not take it down: the remaining solvers keep working.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.health())
}

func (s *Server) health() Health {
	h := Health{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Version:   s.cfg.Version,
		Solvers:   s.solver.Backends(),
	}

	var missing []string
	for name, ok := range h.Solvers {
		if !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	switch {
	case len(missing) == len(h.Solvers):
		h.Status = "down"
		h.Detail = "no solver backend is available"
	case len(missing) > 0:
		h.Status = "degraded"
		h.Detail = fmt.Sprintf("unavailable solvers: %v", missing)
	}
	return h
}

// decode reads a JSON body bounded by HTTP.MaxBodyBytes.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if s.cfg.HTTP.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if apperrors.As(err, &tooLarge) {
			return apperrors.Newf(apperrors.KindInvalidProblemShape,
				"request body exceeds %d bytes", tooLarge.Limit).WithField("body")
		}
		return apperrors.WrapKind(err, apperrors.KindInvalidProblemShape, "malformed request body").WithField("body")
	}
	return nil
}

// respondJSON encodes v before writing the header, so an unencodable value
// becomes a 500 instead of a success status with an empty body.
func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{"error": err.Error()})
		apperrors.WriteJSON(w, apperrors.Wrap(err, "failed to encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// requestLogger returns the request-scoped logger installed by
// logging.Middleware, which already carries the request id, or the server
// logger when there is none.
func (s *Server) requestLogger(r *http.Request) Logger {
	if l, ok := logging.Lookup(r.Context()); ok {
		return l.Logger
	}
	return s.logger
}

// respondError writes err with the status its kind maps to.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.requestLogger(r).Warn("Solve request failed", map[string]interface{}{
		"status": apperrors.HTTPStatus(err),
		"kind":   string(apperrors.KindOf(err)),
		"field":  apperrors.FieldOf(err),
		"error":  err.Error(),
	})
	apperrors.WriteJSON(w, err)
}

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	if err := s.decode(w, r, &request); err != nil {
		s.respondWithError(w, r, rpcParseError, "Parse error", nil, nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, r, rpcInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	params, err := firstParam(request.Params)
	if err != nil {
		s.respondWithError(w, r, rpcInvalidParams, "Invalid params", request.ID, apperrors.BodyOf(err))
		return
	}

	// Route to appropriate handler
	var result interface{}

	switch request.Method {
	case "solve.assignment":
		var req solve.AssignmentRequest
		if err = unmarshalParams(params, &req); err == nil {
			result, err = s.solver.SolveAssignment(r.Context(), req)
		}
	case "solve.knapsack":
		var req solve.KnapsackRequest
		if err = unmarshalParams(params, &req); err == nil {
			result, err = s.solver.SolveKnapsack(r.Context(), req)
		}
	case "health":
		result = s.health()
	default:
		s.respondWithError(w, r, rpcMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		code, message := rpcServerError, "Server error"
		if apperrors.HTTPStatus(err) == http.StatusBadRequest {
			code, message = rpcInvalidParams, "Invalid params"
		}
		s.respondWithError(w, r, code, message, request.ID, apperrors.BodyOf(err))
		return
	}

	// Send successful response
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// firstParam accepts both by-name params ({...}) and the positional form
// ([{...}]) and returns the request object.
func firstParam(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return raw, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindInvalidProblemShape, "params must be an object or an array").
			WithField("params")
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func unmarshalParams(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return apperrors.InvalidShape("params", "missing required parameters")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.WrapKind(err, apperrors.KindInvalidProblemShape, "invalid parameter format").WithField("params")
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, code int, message string, id interface{}, data interface{}) {
	s.requestLogger(r).Warn("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	rpcErr := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		rpcErr["data"] = data
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcErr,
		"id":      id,
	})
}
