// HTTP middleware for the operator surface.
//
// DESIGN: Middleware chain (applied in order):
//  1. panicRecovery:      Catch panics, return 500, log stack trace
//  2. requestContext:     Assign request id, restore correlation identity
//  3. loggingMiddleware:  Log request/response with timing
package gateway

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxlane/audio-gateway/internal/correlation"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code before writing it.
func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush implements http.Flusher to support streaming responses.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// panicRecovery catches panics from downstream handlers.
func panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("path", r.URL.Path).
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("panic_recovered")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestContext assigns a request id and restores the correlation
// identity from inbound headers. The request id doubles as the correlation
// fallback when no X-Correlation-ID was provided.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(correlation.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := correlation.WithRequestID(r.Context(), requestID)
		if corrID := r.Header.Get(correlation.HeaderCorrelationID); corrID != "" {
			ctx = correlation.WithCorrelationID(ctx, corrID)
		}

		w.Header().Set(correlation.HeaderRequestID, requestID)
		if id := correlation.CorrelationID(ctx); id != "" {
			w.Header().Set(correlation.HeaderCorrelationID, id)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each request with timing and status.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("latency", time.Since(start)).
			Str("request_id", correlation.RequestID(r.Context())).
			Msg("http_request")
	})
}
