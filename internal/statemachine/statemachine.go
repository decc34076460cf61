// Package statemachine implements the activation lifecycle of §4.5:
// CREATED -> PENDING_COMMIT -> ACTIVE -> (BLOCKED|REMOVED), plus the
// expiration sweep's CREATED/PENDING_COMMIT -> REMOVED edge.
//
// Per the design notes (§9 "Behavior-per-concern split -> message-style
// dispatch"), transition validation here is a pure function of
// (fromStatus, toStatus) -> error; the service façade is the only layer
// that touches repositories, so every transition it drives is combined
// with the same read-modify-write that updates counters/failed attempts.
package statemachine

import (
	"fmt"
	"time"

	"powerauth-server/internal/domain"
)

var allowed = map[domain.Status]map[domain.Status]bool{
	domain.StatusCreated: {
		domain.StatusPendingCommit: true,
		domain.StatusRemoved:       true,
	},
	domain.StatusPendingCommit: {
		domain.StatusActive:  true,
		domain.StatusRemoved: true,
	},
	domain.StatusActive: {
		domain.StatusBlocked: true,
		domain.StatusRemoved: true,
	},
	domain.StatusBlocked: {
		domain.StatusActive:  true,
		domain.StatusRemoved: true,
	},
}

// CanTransition reports whether the lifecycle permits from -> to directly
// (I4: no transition skips states).
func CanTransition(from, to domain.Status) bool {
	if from == to {
		return false
	}
	targets, ok := allowed[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Apply validates and performs a transition on rec, returning an error if
// the edge is not permitted from rec's current status. It only mutates
// Status; callers are responsible for any field changes the edge implies
// (DevicePublicKey, BlockedReason, tombstoning, ...) before or after
// calling Apply.
func Apply(rec *domain.ActivationRecord, to domain.Status) error {
	if rec == nil {
		return fmt.Errorf("statemachine: nil record")
	}
	from := rec.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("statemachine: illegal transition %s -> %s", from, to)
	}
	rec.Status = to
	return nil
}

// IsExpired reports whether rec is a non-terminal, non-committed
// activation whose expiry instant has passed as of now (§4.5 "now >
// timestampActivationExpire").
func IsExpired(rec *domain.ActivationRecord, now time.Time) bool {
	if rec == nil {
		return false
	}
	if rec.Status != domain.StatusCreated && rec.Status != domain.StatusPendingCommit {
		return false
	}
	return now.After(rec.TimestampActivationExpire)
}

// WouldLockout reports whether incrementing failedAttempts would reach
// maxFailedAttempts, the guard driving the atomic ACTIVE -> BLOCKED edge
// of §4.5/I3.
func WouldLockout(rec *domain.ActivationRecord) bool {
	if rec == nil {
		return false
	}
	return rec.FailedAttempts+1 >= rec.MaxFailedAttempts
}
