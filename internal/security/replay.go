package security

import (
	"sync"
	"time"
)

// NonceCache provides thread-safe replay protection for the key-exchange
// envelopes of §4.1: a v2 activationNonce or a v3 ECIES ephemeral public
// key must never be accepted twice for the same activation, closing the
// window an attacker gets by recording and replaying a captured
// prepareActivation/createActivation request. Adapted from the teacher's
// infrastructure/security.ReplayProtection, renamed from generic
// "request IDs" to the envelope nonces this protocol actually carries.
type NonceCache struct {
	window  time.Duration
	maxSize int
	mu      sync.Mutex
	seen    map[string]time.Time
}

// NewNonceCache creates a cache remembering nonces for window (defaulting
// to 5 minutes, matching the default activation validity of §6).
func NewNonceCache(window time.Duration, maxSize int) *NonceCache {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &NonceCache{window: window, maxSize: maxSize, seen: make(map[string]time.Time)}
}

// ValidateAndMark reports whether nonce has not been seen within the
// window, and marks it seen. A nonce is scoped by the caller (typically
// activationId||nonce) so that two different activations never collide.
func (c *NonceCache) ValidateAndMark(nonce string) bool {
	if nonce == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.seen)%100 == 0 {
		c.cleanupExpired()
	}

	if seenAt, ok := c.seen[nonce]; ok {
		if time.Since(seenAt) < c.window {
			return false
		}
		delete(c.seen, nonce)
	}

	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		c.cleanupExpired()
		if len(c.seen) >= c.maxSize {
			return false
		}
	}

	c.seen[nonce] = time.Now()
	return true
}

func (c *NonceCache) cleanupExpired() {
	now := time.Now()
	for id, seenAt := range c.seen {
		if now.Sub(seenAt) > c.window {
			delete(c.seen, id)
		}
	}
}

// Size returns the number of tracked nonces, for tests and metrics.
func (c *NonceCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
