package middleware

import (
	"time"

	"powerauth-server/internal/observability/logging"
)

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate limit (default: 50).
	RequestsPerSecond int

	// Burst is the maximum burst size (default: 100).
	Burst int

	// Window is the time window for fixed-window rate limiting (default: 1 second).
	Window time.Duration

	// MaxLimiters is the maximum number of per-key limiters to keep in memory (default: 10000).
	MaxLimiters int

	// LimiterTTL is stored on the limiter (default: 24 hours); idle limiters
	// are not expired by it, Cleanup drops all limiters once MaxLimiters is exceeded.
	LimiterTTL time.Duration

	// CleanupInterval is how often to run cleanup (default: 5 minutes).
	CleanupInterval time.Duration

	// Logger for rate limit events (optional).
	Logger *logging.Logger
}

// DefaultRateLimiterConfig returns sane defaults for the unauthenticated
// activation endpoints (init/prepare/create): 50 req/s, burst 100.
func DefaultRateLimiterConfig(logger *logging.Logger) RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 50,
		Burst:             100,
		Window:            time.Second,
		MaxLimiters:       10000,
		LimiterTTL:        24 * time.Hour,
		CleanupInterval:   5 * time.Minute,
		Logger:            logger,
	}
}

// StrictRateLimiterConfig is a more restrictive configuration for
// sensitive endpoints such as signature/verify and vault/unlock: 10 req/s,
// burst 20.
func StrictRateLimiterConfig(logger *logging.Logger) RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		Window:            time.Second,
		MaxLimiters:       10000,
		LimiterTTL:        24 * time.Hour,
		CleanupInterval:   5 * time.Minute,
		Logger:            logger,
	}
}

// LenientRateLimiterConfig is a more permissive configuration for the
// admin sub-router's internal callers: 100 req/s, burst 200.
func LenientRateLimiterConfig(logger *logging.Logger) RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		Window:            time.Second,
		MaxLimiters:       10000,
		LimiterTTL:        24 * time.Hour,
		CleanupInterval:   5 * time.Minute,
		Logger:            logger,
	}
}

// NewRateLimiterFromConfig creates a rate limiter from configuration.
func NewRateLimiterFromConfig(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerSecond * 2
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}

	var rl *RateLimiter
	if cfg.Window > 0 && cfg.Window != time.Second {
		limit := int(float64(cfg.RequestsPerSecond) * cfg.Window.Seconds())
		if limit < 1 {
			limit = 1
		}
		rl = NewRateLimiterWithWindow(limit, cfg.Window, cfg.Burst, cfg.Logger)
	} else {
		rl = NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.Logger)
	}

	if cfg.MaxLimiters > 0 {
		rl.SetMaxSize(cfg.MaxLimiters)
	}
	if cfg.LimiterTTL > 0 {
		rl.SetLimiterTTL(cfg.LimiterTTL)
	}

	return rl
}

// StartCleanupFromConfig starts the background cleanup goroutine using
// config values and returns a stop function for shutdown.
func StartCleanupFromConfig(rl *RateLimiter, cfg RateLimiterConfig) func() {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return rl.StartCleanup(interval)
}
