package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/copyleftdev/anneal/internal/logging"
)

// Body is the JSON error envelope returned by the HTTP API.
type Body struct {
	Error string `json:"error"`
	Kind  Kind   `json:"kind"`
	Field string `json:"field,omitempty"`
}

// BodyOf builds the JSON error envelope for err.
func BodyOf(err error) Body {
	return Body{
		Error: err.Error(),
		Kind:  KindOf(err),
		Field: FieldOf(err),
	}
}

// WriteJSON writes err as a JSON body with the status from HTTPStatus.
func WriteJSON(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(BodyOf(err))
}

// RecoveryMiddleware returns a middleware that recovers from panics.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}

					fields := map[string]interface{}{
						"error": fmt.Sprint(rec),
						"stack": string(debug.Stack()),
					}
					if r != nil {
						fields["method"] = r.Method
						fields["path"] = r.URL.Path
						fields["query"] = r.URL.RawQuery
					}

					logger.Error("Recovered from panic", fields)

					WriteJSON(w, Errorf("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrorHandler is a middleware that logs requests answered with an error status.
func ErrorHandler(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			if rw.status >= http.StatusBadRequest {
				logger.Warn("Request error", map[string]interface{}{
					"status": rw.status,
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
					"ip":     r.RemoteAddr,
				})
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code before writing the header.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
