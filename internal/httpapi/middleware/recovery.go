package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/httpapi/envelope"
	"powerauth-server/internal/observability/logging"
	"powerauth-server/internal/security"
)

// Recovery recovers from panics in handlers, logs the stack trace, and
// returns a generic ERROR envelope instead of crashing the process.
type Recovery struct {
	logger *logging.Logger
}

// NewRecovery creates a panic-recovery middleware.
func NewRecovery(logger *logging.Logger) *Recovery {
	return &Recovery{logger: logger}
}

// Handler returns the recovery middleware handler.
func (m *Recovery) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				m.logger.WithContext(r.Context()).
					WithField("panic", security.SanitizeString(fmt.Sprintf("%v", rec))).
					WithField("stack", string(stack)).
					WithField("path", r.URL.Path).
					WithField("method", r.Method).
					Error("panic recovered")

				envelope.WriteAppError(w, r, apperr.Internal(fmt.Errorf("panic: %v", rec)))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
