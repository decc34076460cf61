// Package middleware provides the chi-compatible HTTP middleware for the
// thin envelope transport of §6: request logging, metrics, rate limiting,
// and panic recovery. Adapted from the teacher's infrastructure/middleware.
package middleware

import (
	"net/http"
	"time"

	"powerauth-server/internal/observability/logging"
	"powerauth-server/internal/security"
)

// Logging logs HTTP requests with a trace ID, attaching it to the request
// context and echoing it back on the response.
func Logging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = logging.NewTraceID()
			}

			ctx := logging.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			r.Header.Set("X-Trace-ID", traceID)
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			logger.WithContext(ctx).WithField("status", wrapped.statusCode).
				WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("duration_ms", duration.Milliseconds()).
				WithField("headers", security.SanitizeHeaders(r.Header)).
				Info("http request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
