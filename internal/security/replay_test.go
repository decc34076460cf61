package security

import (
	"testing"
	"time"
)

func TestNonceCache_RejectsReplay(t *testing.T) {
	c := NewNonceCache(100*time.Millisecond, 0)

	if !c.ValidateAndMark("act-1|nonce-a") {
		t.Fatal("first use of a nonce must be accepted")
	}
	if c.ValidateAndMark("act-1|nonce-a") {
		t.Fatal("replayed nonce must be rejected within the window")
	}
}

func TestNonceCache_ExpiresAfterWindow(t *testing.T) {
	c := NewNonceCache(20*time.Millisecond, 0)

	c.ValidateAndMark("act-1|nonce-a")
	time.Sleep(40 * time.Millisecond)

	if !c.ValidateAndMark("act-1|nonce-a") {
		t.Fatal("nonce should be accepted again once the window has elapsed")
	}
}

func TestNonceCache_EmptyNonceRejected(t *testing.T) {
	c := NewNonceCache(time.Minute, 0)
	if c.ValidateAndMark("") {
		t.Fatal("empty nonce must never validate")
	}
}

func TestNonceCache_ScopedByActivation(t *testing.T) {
	c := NewNonceCache(time.Minute, 0)

	if !c.ValidateAndMark("act-1|nonce-a") {
		t.Fatal("act-1's nonce should validate")
	}
	if !c.ValidateAndMark("act-2|nonce-a") {
		t.Fatal("the same raw nonce under a different activation must not collide")
	}
}

func TestNonceCache_MaxSizeEnforced(t *testing.T) {
	c := NewNonceCache(time.Minute, 2)

	if !c.ValidateAndMark("n1") || !c.ValidateAndMark("n2") {
		t.Fatal("first two nonces should fit under the cap")
	}
	if c.ValidateAndMark("n3") {
		t.Fatal("third nonce should be rejected once at capacity")
	}
}
