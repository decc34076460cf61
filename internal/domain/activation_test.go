package domain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return priv
}

func TestIsTerminal(t *testing.T) {
	rec := &ActivationRecord{Status: StatusRemoved}
	assert.True(t, rec.IsTerminal(), "REMOVED must be terminal")

	rec.Status = StatusBlocked
	assert.False(t, rec.IsTerminal(), "BLOCKED is not terminal — it can still reach ACTIVE again")
}

func TestIsNonTerminal(t *testing.T) {
	for _, s := range []Status{StatusCreated, StatusPendingCommit} {
		rec := &ActivationRecord{Status: s}
		assert.True(t, rec.IsNonTerminal(), "%s must occupy the activation code uniqueness space (I5)", s)
	}
	for _, s := range []Status{StatusActive, StatusBlocked, StatusRemoved} {
		rec := &ActivationRecord{Status: s}
		assert.False(t, rec.IsNonTerminal(), "%s must not occupy the activation code uniqueness space", s)
	}
}

func TestTombstone_ClearsKeyMaterial(t *testing.T) {
	priv := testKeyPair(t)
	rec := &ActivationRecord{
		Status:              StatusActive,
		ServerPublicKey:     &priv.PublicKey,
		ServerPrivateKeyEnc: []byte("encrypted-private-key"),
		DevicePublicKey:     &priv.PublicKey,
		ActivationOTP:       "12345",
	}

	rec.Tombstone()

	assert.Equal(t, StatusRemoved, rec.Status)
	assert.Nil(t, rec.ServerPublicKey, "all key material must be nil after tombstoning (I6)")
	assert.Nil(t, rec.ServerPrivateKeyEnc)
	assert.Nil(t, rec.DevicePublicKey)
	assert.Empty(t, rec.ActivationOTP, "OTP must be cleared after tombstoning")
}
