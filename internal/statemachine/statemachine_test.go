package statemachine

import (
	"testing"
	"time"

	"powerauth-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_AllowedEdges(t *testing.T) {
	allowedEdges := []struct {
		from, to domain.Status
	}{
		{domain.StatusCreated, domain.StatusPendingCommit},
		{domain.StatusCreated, domain.StatusRemoved},
		{domain.StatusPendingCommit, domain.StatusActive},
		{domain.StatusPendingCommit, domain.StatusRemoved},
		{domain.StatusActive, domain.StatusBlocked},
		{domain.StatusActive, domain.StatusRemoved},
		{domain.StatusBlocked, domain.StatusActive},
		{domain.StatusBlocked, domain.StatusRemoved},
	}
	for _, e := range allowedEdges {
		assert.True(t, CanTransition(e.from, e.to), "expected %s -> %s to be allowed", e.from, e.to)
	}
}

func TestCanTransition_RejectsSkippedStates(t *testing.T) {
	disallowed := []struct {
		from, to domain.Status
	}{
		{domain.StatusCreated, domain.StatusActive}, // skips PENDING_COMMIT (I4).
		{domain.StatusCreated, domain.StatusBlocked},
		{domain.StatusRemoved, domain.StatusActive}, // terminal.
		{domain.StatusPendingCommit, domain.StatusBlocked},
		{domain.StatusActive, domain.StatusCreated},
	}
	for _, e := range disallowed {
		assert.False(t, CanTransition(e.from, e.to), "expected %s -> %s to be rejected", e.from, e.to)
	}
}

func TestCanTransition_RejectsSelfLoop(t *testing.T) {
	assert.False(t, CanTransition(domain.StatusActive, domain.StatusActive), "a transition to the same status must be rejected")
}

func TestApply_MutatesStatusOnLegalEdge(t *testing.T) {
	rec := &domain.ActivationRecord{Status: domain.StatusPendingCommit}
	require.NoError(t, Apply(rec, domain.StatusActive))
	assert.Equal(t, domain.StatusActive, rec.Status)
}

func TestApply_RejectsIllegalEdge(t *testing.T) {
	rec := &domain.ActivationRecord{Status: domain.StatusCreated}
	err := Apply(rec, domain.StatusActive)
	assert.Error(t, err, "expected an error for an illegal transition")
	assert.Equal(t, domain.StatusCreated, rec.Status, "status must not change on a rejected transition")
}

func TestApply_NilRecord(t *testing.T) {
	assert.Error(t, Apply(nil, domain.StatusActive))
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	created := &domain.ActivationRecord{
		Status:                    domain.StatusCreated,
		TimestampActivationExpire: now.Add(-time.Second),
	}
	assert.True(t, IsExpired(created, now), "a CREATED record past its expiry must be expired")

	notYet := &domain.ActivationRecord{
		Status:                    domain.StatusCreated,
		TimestampActivationExpire: now.Add(time.Minute),
	}
	assert.False(t, IsExpired(notYet, now), "a CREATED record before its expiry must not be expired")

	active := &domain.ActivationRecord{
		Status:                    domain.StatusActive,
		TimestampActivationExpire: now.Add(-time.Hour),
	}
	assert.False(t, IsExpired(active, now), "an ACTIVE record is never subject to the expiration sweep")
}

func TestWouldLockout(t *testing.T) {
	rec := &domain.ActivationRecord{FailedAttempts: 2, MaxFailedAttempts: 3}
	assert.True(t, WouldLockout(rec), "incrementing failedAttempts to 3 with max 3 must trigger lockout")

	rec2 := &domain.ActivationRecord{FailedAttempts: 0, MaxFailedAttempts: 3}
	assert.False(t, WouldLockout(rec2), "incrementing failedAttempts to 1 with max 3 must not trigger lockout")
}
