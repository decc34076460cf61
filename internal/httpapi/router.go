// Package httpapi is the thin REST transport of §6: a chi router that
// decodes `{ "requestObject": <T> }` envelopes, dispatches to the
// service façade, and re-wraps the result as `{ "status", "responseObject" }`.
// Per §1's non-goals this is a deliberately thin shell — no business logic
// lives here, only decode/dispatch/encode and the admin HTTP-Basic gate of
// §6 ("Authentication of admin callers").
package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/httpapi/envelope"
	"powerauth-server/internal/httpapi/middleware"
	"powerauth-server/internal/metrics"
	"powerauth-server/internal/observability/logging"
	"powerauth-server/internal/service"
)

// AdminCredentials is one (username, password) pair from the pa_integration
// table (§6 "Authentication of admin callers"). Looking these up is outside
// this spec's scope (§1 non-goals: "administrative endpoints"); the router
// accepts a small static set injected at startup so the admin surface is
// reachable without inventing an integration-management API.
type AdminCredentials struct {
	Username string
	Password string
}

// Router bundles the service façade and the collaborators the thin
// transport needs to build chi.Router.
type Router struct {
	Services *service.Services
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
	Health   *middleware.HealthChecker

	// RestrictAccess gates the admin sub-router behind HTTP Basic,
	// mirroring Config.Security.RestrictAccess (§6).
	RestrictAccess bool
	AdminAuth      []AdminCredentials

	// DefaultLimiter throttles the bulk of the /v3 and /v2 surface by
	// client IP; StrictLimiter applies a tighter budget to the
	// signature-verification and vault-unlock endpoints, which are the
	// ones an attacker would hammer to brute-force a lockout window.
	DefaultLimiter *middleware.RateLimiter
	StrictLimiter  *middleware.RateLimiter
}

// New builds the full chi.Router: core v3 endpoints, the legacy v2
// create-activation endpoint, the admin sub-router, and liveness/
// readiness/metrics probes.
func (rt *Router) New() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.NewRecovery(rt.Logger).Handler)
	r.Use(middleware.Logging(rt.Logger))
	if rt.Metrics != nil {
		r.Use(middleware.Metrics("powerauth-server", rt.Metrics))
	}

	r.Get("/livez", middleware.LivenessHandler())
	if rt.Health != nil {
		r.Get("/healthz", rt.Health.Handler())
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v3", func(r chi.Router) {
		if rt.DefaultLimiter != nil {
			r.Use(rt.DefaultLimiter.Handler)
		}
		r.Post("/activation/init", rt.initActivation)
		r.Post("/activation/prepare", rt.prepareActivation)
		r.Post("/activation/commit", rt.commitActivation)
		r.Post("/activation/status", rt.activationStatus)
		r.Post("/activation/remove", rt.removeActivation)
		r.Post("/activation/block", rt.blockActivation)
		r.Post("/activation/unblock", rt.unblockActivation)
		r.Post("/activation/otp/update", rt.updateActivationOtp)

		r.Group(func(r chi.Router) {
			if rt.StrictLimiter != nil {
				r.Use(rt.StrictLimiter.Handler)
			}
			r.Post("/signature/verify", rt.verifySignature)
			r.Post("/signature/ecdsa/verify", rt.verifyECDSASignature)
			r.Post("/signature/offline/verify", rt.verifyOfflineSignature)
			r.Post("/vault/unlock", rt.unlockVault)
		})
		r.Post("/signature/offline/personalized/create", rt.createPersonalizedOfflineSignature)
		r.Post("/signature/offline/non-personalized/create", rt.createNonPersonalizedOfflineSignature)

		r.Post("/token/create", rt.createToken)
		r.Post("/token/validate", rt.validateToken)
		r.Post("/token/remove", rt.removeToken)

		r.Post("/upgrade/start", rt.startUpgrade)
		r.Post("/upgrade/commit", rt.commitUpgrade)

		r.Post("/recovery/create", rt.createRecoveryCode)
		r.Post("/recovery/confirm", rt.confirmRecovery)
		r.Post("/recovery/lookup", rt.lookupRecovery)
		r.Post("/recovery/revoke", rt.revokeRecovery)
		r.Get("/recovery/config/detail", rt.recoveryConfigDetail)
		r.Post("/recovery/config/update", rt.recoveryConfigUpdate)

		r.Post("/ecies/decryptor", rt.eciesDecryptor)
	})

	r.Route("/v2", func(r chi.Router) {
		if rt.DefaultLimiter != nil {
			r.Use(rt.DefaultLimiter.Handler)
		}
		r.Post("/activation/create", rt.createActivationV2)
	})

	r.Group(func(r chi.Router) {
		if rt.RestrictAccess {
			r.Use(rt.basicAuth)
		}
		r.Get("/v3/activation/list", rt.listActivations)
		r.Get("/v3/activation/lookup", rt.lookupActivation)
		r.Get("/v3/activation/history", rt.activationHistory)
	})

	return r
}

// basicAuth is the §6 "HTTP Basic over TLS" gate for the admin surface,
// checked against the static AdminCredentials set with constant-time
// comparison to avoid timing side channels on the password check.
func (rt *Router) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok {
			for _, cred := range rt.AdminAuth {
				userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(cred.Username)) == 1
				passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(cred.Password)) == 1
				if userMatch && passMatch {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="powerauth-admin"`)
		envelope.WriteAppError(w, r, apperr.Unauthorized("missing or invalid admin credentials"))
	})
}
