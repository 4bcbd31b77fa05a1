package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/auth"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// LoggingMiddleware injects logger into each request context and logs the
// request and its response status.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := logger.WithContext(r.Context())
			r = r.WithContext(ctx)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			zerolog.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("Incoming request")

			next.ServeHTTP(rw, r)

			zerolog.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", rw.statusCode).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

// RecoverInvariant turns a provider contract violation raised by a handler
// into a 500 and reports it to onViolation. Other panics propagate.
func RecoverInvariant(onViolation func(*auth.InvariantViolation)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				err, _ := v.(error)
				var violation *auth.InvariantViolation
				if !errors.As(err, &violation) {
					panic(v)
				}

				zerolog.Ctx(r.Context()).Error().Err(violation).Msg("Sign-in broke the provider contract")
				if onViolation != nil {
					onViolation(violation)
				}
				errorResponse(w, r, http.StatusInternalServerError, violation.Error())
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// jsonResponse writes a JSON response
func jsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// errorResponse logs the failure and writes an error JSON response
func errorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	zerolog.Ctx(r.Context()).Warn().
		Str("path", r.URL.Path).
		Int("status_code", statusCode).
		Str("reason", message).
		Msg("Request failed")
	jsonResponse(w, statusCode, ErrorResponse{Error: message})
}
