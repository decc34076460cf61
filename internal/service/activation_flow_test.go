package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"testing"
	"time"

	"powerauth-server/internal/activationcode"
	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
	"powerauth-server/internal/callback"
	"powerauth-server/internal/config"
	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/security"
	"powerauth-server/internal/signature"
	"powerauth-server/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests control the wall clock deterministically, the same
// injected-clock pattern the façade itself relies on for expiry checks.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// testHarness wires an in-memory Services bundle and one registered
// application/master keypair, mirroring what cmd/appserver assembles at
// startup but scoped to a single test.
type testHarness struct {
	svc            *Services
	clock          *fakeClock
	applicationID  string
	applicationKey string
	appSecret      []byte
	masterKeyPair  *domain.MasterKeyPair
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	activations := memory.NewActivationStore()
	appVersions := memory.NewApplicationVersionStore()
	masterKeys := memory.NewMasterKeyPairStore()
	audit := memory.NewSignatureAuditStore()
	history := memory.NewActivationHistoryStore()
	tokens := memory.NewTokenStore()
	recovery := memory.NewRecoveryStore()

	appID := "app-1"
	appKey := "application-key-base64"
	appSecret := []byte("application-secret16")

	appVersions.Put(&domain.ApplicationVersion{
		ApplicationID:     appID,
		ApplicationKey:    appKey,
		ApplicationSecret: string(appSecret),
		Supported:         true,
	})

	masterKP, err := pacrypto.GenerateKeyPair()
	require.NoError(t, err)
	stored := masterKeys.Put(&domain.MasterKeyPair{
		ApplicationID: appID,
		PublicKey:     masterKP.PublicKey,
		PrivateKey:    masterKP.PrivateKey,
		CreatedAt:     time.Now().UTC(),
	})

	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	cfg := config.New()

	svc := &Services{
		Activations: activations,
		AppVersions: appVersions,
		MasterKeys:  masterKeys,
		Audit:       audit,
		History:     history,
		Recovery:    recovery,
		Tokens:      tokens,
		Clock:       clock,
		Config:      cfg,
		Nonces:      security.NewNonceCache(5*time.Minute, 1000),
	}
	svc.Notifier = callback.NotifierFunc(func(context.Context, callback.Event) {})

	return &testHarness{
		svc:            svc,
		clock:          clock,
		applicationID:  appID,
		applicationKey: appKey,
		appSecret:      appSecret,
		masterKeyPair:  stored,
	}
}

// activateDevice drives initActivation -> prepareActivation -> commit for a
// freshly generated device keypair and returns everything a client would
// need to start signing requests (scenario 1 of §8).
func (h *testHarness) activateDevice(t *testing.T, ctx context.Context) (*domain.ActivationRecord, *activationcrypto.FactorKeys) {
	t.Helper()

	initResp, err := h.svc.InitActivation(ctx, InitActivationRequest{
		ApplicationID: h.applicationID,
		UserID:        "user-1",
	})
	require.NoError(t, err)

	deviceKP, err := pacrypto.GenerateKeyPair()
	require.NoError(t, err)

	plaintext, err := json.Marshal(preparePayload{
		DevicePublicKey: pacrypto.PublicKeyToUncompressed(deviceKP.PublicKey),
	})
	require.NoError(t, err)

	env, err := activationcrypto.EciesEncrypt(h.masterKeyPair.PublicKey, plaintext, []byte(eciesSharedInfoPrepare))
	require.NoError(t, err)

	prepResp, err := h.svc.PrepareActivation(ctx, PrepareActivationRequest{
		ActivationCode:     initResp.ActivationCode,
		ApplicationKey:     h.applicationKey,
		EphemeralPublicKey: env.EphemeralPublicKey,
		EncryptedData:      env.EncryptedData,
		MAC:                env.MAC,
		IV:                 env.IV,
	})
	require.NoError(t, err)
	require.Equal(t, string(domain.StatusPendingCommit), prepResp.ActivationStatus)

	respPlain, err := activationcrypto.EciesDecrypt(deviceKP.PrivateKey, &activationcrypto.EciesEnvelope{
		EphemeralPublicKey: prepResp.EphemeralPublicKey,
		EncryptedData:      prepResp.EncryptedData,
		MAC:                prepResp.MAC,
	}, []byte(eciesSharedInfoPrepare+"_response"))
	require.NoError(t, err)
	var serverPayload serverKeyPayload
	require.NoError(t, json.Unmarshal(respPlain, &serverPayload))
	serverPub, err := pacrypto.PublicKeyFromBytes(serverPayload.ServerPublicKey)
	require.NoError(t, err)

	commitResp, err := h.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initResp.ActivationID})
	require.NoError(t, err)
	require.Equal(t, string(domain.StatusActive), commitResp.ActivationStatus)

	rec, err := h.svc.Activations.Get(ctx, initResp.ActivationID)
	require.NoError(t, err)

	keys, err := activationcrypto.DeriveFactorKeys(deviceKP.PrivateKey, serverPub)
	require.NoError(t, err)
	return rec, keys
}

// signFor builds a client-side signature string over data at the given
// ctrData, for POSSESSION_KNOWLEDGE (the common two-factor case).
func signFor(t *testing.T, keys *activationcrypto.FactorKeys, appSecret, data []byte, ctrData [16]byte) string {
	t.Helper()
	base := signature.BaseStringV3(data, ctrData, appSecret)
	sig, err := signature.Compute(signature.TypePossessionKnowledge, signature.FactorKeys{
		Possession: keys.Possession,
		Knowledge:  keys.Knowledge,
	}, base)
	require.NoError(t, err)
	return sig
}

func TestHappyPathV3_ActivateAndVerifyFirstSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, keys := h.activateDevice(t, ctx)
	require.Zero(t, rec.Counter, "expected stored counter 0 right after commit")

	data := []byte("request-payload")
	sig := signFor(t, keys, h.appSecret, data, rec.CtrData)

	resp, err := h.svc.VerifySignature(ctx, VerifySignatureRequest{
		ActivationID:   rec.ActivationID,
		ApplicationKey: h.applicationKey,
		Data:           data,
		Signature:      sig,
		SignatureType:  string(signature.TypePossessionKnowledge),
	})
	require.NoError(t, err)
	assert.True(t, resp.SignatureValid, "expected the first signature at counter 0 to verify")
	assert.Equal(t, uint64(1), resp.Counter, "expected stored counter to advance to 1")
}

func TestLookahead_ClientSkippedCounterValuesStillVerifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, keys := h.activateDevice(t, ctx)

	data := []byte("request-payload")
	_, err := h.svc.VerifySignature(ctx, VerifySignatureRequest{
		ActivationID:   rec.ActivationID,
		ApplicationKey: h.applicationKey,
		Data:           data,
		Signature:      signFor(t, keys, h.appSecret, data, rec.CtrData),
		SignatureType:  string(signature.TypePossessionKnowledge),
	})
	require.NoError(t, err)

	// Client skips ahead 4 counter steps (lost responses), scenario 2 of §8.
	ctr := pacrypto.AdvanceCtrData(rec.CtrData)
	for i := 0; i < 4; i++ {
		ctr = pacrypto.AdvanceCtrData(ctr)
	}
	resp, err := h.svc.VerifySignature(ctx, VerifySignatureRequest{
		ActivationID:   rec.ActivationID,
		ApplicationKey: h.applicationKey,
		Data:           data,
		Signature:      signFor(t, keys, h.appSecret, data, ctr),
		SignatureType:  string(signature.TypePossessionKnowledge),
	})
	require.NoError(t, err)
	assert.True(t, resp.SignatureValid, "a signature within the lookahead window must still verify")
	assert.Equal(t, uint64(6), resp.Counter, "expected stored counter 6 (match at counter 5, plus one)")

	status, err := h.svc.GetActivationStatus(ctx, rec.ActivationID)
	require.NoError(t, err)
	assert.Zero(t, status.FailedAttempts, "lookahead success must not count as a failed attempt")
}

func TestLockout_ThreeBadSignaturesBlockTheActivation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, _ := h.activateDevice(t, ctx)

	// Force maxFailedAttempts=3 for this test's activation.
	_, err := h.svc.Activations.WithLock(ctx, rec.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		cur.MaxFailedAttempts = 3
		return cur, nil
	})
	require.NoError(t, err)

	wantRemaining := []uint32{2, 1, 0}
	for i, want := range wantRemaining {
		resp, err := h.svc.VerifySignature(ctx, VerifySignatureRequest{
			ActivationID:   rec.ActivationID,
			ApplicationKey: h.applicationKey,
			Data:           []byte("data"),
			Signature:      "00000000-00000000",
			SignatureType:  string(signature.TypePossessionKnowledge),
		})
		require.NotNilf(t, resp, "attempt %d: expected a response even on failure (err=%v)", i, err)
		assert.Falsef(t, resp.SignatureValid, "attempt %d: a bogus signature must never verify", i)
		assert.Equalf(t, want, resp.RemainingAttempts, "attempt %d: unexpected remainingAttempts", i)
	}

	status, err := h.svc.GetActivationStatus(ctx, rec.ActivationID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusBlocked), status.ActivationStatus, "expected BLOCKED after exhausting failed attempts")
}

func TestExpiration_PrepareAfterExpiryRemovesActivation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expire := h.clock.Now().Add(time.Second)
	initResp, err := h.svc.InitActivation(ctx, InitActivationRequest{
		ApplicationID:    h.applicationID,
		UserID:           "user-1",
		ActivationExpire: &expire,
	})
	require.NoError(t, err)

	h.clock.now = h.clock.now.Add(2 * time.Second)

	deviceKP, err := pacrypto.GenerateKeyPair()
	require.NoError(t, err)
	plaintext, _ := json.Marshal(preparePayload{DevicePublicKey: pacrypto.PublicKeyToUncompressed(deviceKP.PublicKey)})
	env, err := activationcrypto.EciesEncrypt(h.masterKeyPair.PublicKey, plaintext, []byte(eciesSharedInfoPrepare))
	require.NoError(t, err)

	_, err = h.svc.PrepareActivation(ctx, PrepareActivationRequest{
		ActivationCode:     initResp.ActivationCode,
		ApplicationKey:     h.applicationKey,
		EphemeralPublicKey: env.EphemeralPublicKey,
		EncryptedData:      env.EncryptedData,
		MAC:                env.MAC,
		IV:                 env.IV,
	})
	require.Error(t, err, "expected prepareActivation past expiry to fail")
	require.NotNil(t, apperr.As(err))
	assert.Equal(t, apperr.CodeActivationExpired, apperr.As(err).Code)

	status, err := h.svc.GetActivationStatus(ctx, initResp.ActivationID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusRemoved), status.ActivationStatus, "expected REMOVED after expiry sweep")
}

func TestOTPOnCommit_WrongThenRightOTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	initResp, err := h.svc.InitActivation(ctx, InitActivationRequest{
		ApplicationID: h.applicationID,
		UserID:        "user-1",
		ActivationOTP: "12345",
		OTPValidation: domain.OTPValidationOnCommit,
	})
	require.NoError(t, err)

	deviceKP, err := pacrypto.GenerateKeyPair()
	require.NoError(t, err)
	plaintext, _ := json.Marshal(preparePayload{DevicePublicKey: pacrypto.PublicKeyToUncompressed(deviceKP.PublicKey)})
	env, err := activationcrypto.EciesEncrypt(h.masterKeyPair.PublicKey, plaintext, []byte(eciesSharedInfoPrepare))
	require.NoError(t, err)
	_, err = h.svc.PrepareActivation(ctx, PrepareActivationRequest{
		ActivationCode:     initResp.ActivationCode,
		ApplicationKey:     h.applicationKey,
		EphemeralPublicKey: env.EphemeralPublicKey,
		EncryptedData:      env.EncryptedData,
		MAC:                env.MAC,
		IV:                 env.IV,
	})
	require.NoError(t, err)

	_, err = h.svc.CommitActivation(ctx, CommitActivationRequest{
		ActivationID:  initResp.ActivationID,
		ActivationOTP: "54321",
	})
	require.Error(t, err, "expected commit with the wrong OTP to fail")

	status, err := h.svc.GetActivationStatus(ctx, initResp.ActivationID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.FailedAttempts, "expected failedAttempts=1 after the wrong OTP")
	assert.Equal(t, string(domain.StatusPendingCommit), status.ActivationStatus, "expected to remain PENDING_COMMIT")

	commitResp, err := h.svc.CommitActivation(ctx, CommitActivationRequest{
		ActivationID:  initResp.ActivationID,
		ActivationOTP: "12345",
	})
	require.NoError(t, err, "commit with correct OTP")
	assert.Equal(t, string(domain.StatusActive), commitResp.ActivationStatus, "expected ACTIVE after the correct OTP")
}

func TestCommitActivation_IdempotentOnActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, _ := h.activateDevice(t, ctx)

	resp, err := h.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: rec.ActivationID})
	require.NoError(t, err, "commit on an already-ACTIVE activation must succeed (P3)")
	assert.Equal(t, string(domain.StatusActive), resp.ActivationStatus)
}

func TestCommitActivation_InvalidStateOnCreated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	initResp, err := h.svc.InitActivation(ctx, InitActivationRequest{
		ApplicationID: h.applicationID,
		UserID:        "user-1",
	})
	require.NoError(t, err)

	_, err = h.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initResp.ActivationID})
	require.Error(t, err, "expected commit on a CREATED (not yet PENDING_COMMIT) activation to fail")
	require.NotNil(t, apperr.As(err))
	assert.Equal(t, apperr.CodeInvalidActivationState, apperr.As(err).Code)
}

func TestVaultUnlock_BadSignatureReturnsNoKeyAndAdvancesCounterOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, _ := h.activateDevice(t, ctx)

	resp, err := h.svc.UnlockVault(ctx, UnlockVaultRequest{VerifySignatureRequest: VerifySignatureRequest{
		ActivationID:   rec.ActivationID,
		ApplicationKey: h.applicationKey,
		Data:           []byte("data"),
		Signature:      "00000000-00000000",
		SignatureType:  string(signature.TypePossessionKnowledge),
	}})
	require.Error(t, err, "expected an error for a bad signature on vault unlock")
	assert.False(t, resp.SignatureValid, "signatureValid must be false for a bad signature")
	assert.Nil(t, resp.EncryptedVaultEncryptionKey, "encryptedVaultEncryptionKey must be nil when the signature is invalid")

	status, err := h.svc.GetActivationStatus(ctx, rec.ActivationID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.Counter, "expected the counter to have advanced by exactly one")
}

func TestVaultUnlock_GoodSignatureReturnsKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, keys := h.activateDevice(t, ctx)
	data := []byte("vault-unlock-request")
	sig := signFor(t, keys, h.appSecret, data, rec.CtrData)

	resp, err := h.svc.UnlockVault(ctx, UnlockVaultRequest{VerifySignatureRequest: VerifySignatureRequest{
		ActivationID:   rec.ActivationID,
		ApplicationKey: h.applicationKey,
		Data:           data,
		Signature:      sig,
		SignatureType:  string(signature.TypePossessionKnowledge),
	}})
	require.NoError(t, err)
	assert.True(t, resp.SignatureValid, "expected signatureValid=true for a correctly signed request")
	assert.NotEmpty(t, resp.EncryptedVaultEncryptionKey, "expected a non-empty encrypted vault key on success")
}

func TestActivationCodeUniqueness_AcrossNonTerminalRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp1, err := h.svc.InitActivation(ctx, InitActivationRequest{ApplicationID: h.applicationID, UserID: "user-1"})
	require.NoError(t, err)
	resp2, err := h.svc.InitActivation(ctx, InitActivationRequest{ApplicationID: h.applicationID, UserID: "user-2"})
	require.NoError(t, err)
	assert.NotEqual(t, resp1.ActivationCode, resp2.ActivationCode, "two live (CREATED) activations must not share an activationCode (I5)")
	assert.True(t, activationcode.VerifyChecksum(activationcode.StripDashes(resp1.ActivationCode)), "generated activation code must carry a valid checksum: %s", resp1.ActivationCode)
}

func TestOfflineSignature_GoodSignatureVerifiesAndAdvancesCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, keys := h.activateDevice(t, ctx)

	payload, err := h.svc.CreatePersonalizedOfflineSignaturePayload(ctx, CreatePersonalizedOfflineSignaturePayloadRequest{
		ActivationID: rec.ActivationID,
		Data:         "confirm-payment",
	})
	require.NoError(t, err)

	nonce, err := unb64(payload.Nonce)
	require.NoError(t, err)
	base := signature.BaseStringV3([]byte(payload.Data), rec.CtrData, nonce)
	sig, err := signature.Compute(signature.TypePossessionKnowledge, signature.FactorKeys{
		Possession: keys.Possession,
		Knowledge:  keys.Knowledge,
	}, base)
	require.NoError(t, err)

	resp, err := h.svc.VerifyOfflineSignature(ctx, VerifyOfflineSignatureRequest{
		ActivationID:  rec.ActivationID,
		Data:          payload.Data,
		Nonce:         payload.Nonce,
		Signature:     sig,
		SignatureType: string(signature.TypePossessionKnowledge),
	})
	require.NoError(t, err)
	assert.True(t, resp.SignatureValid, "expected the correctly computed offline signature to verify")

	updated, err := h.svc.Activations.Get(ctx, rec.ActivationID)
	require.NoError(t, err)
	assert.Equal(t, rec.Counter+1, updated.Counter, "expected counter to advance by 1")
}

func TestOfflineSignature_WrongSignatureStillAdvancesCounterOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, _ := h.activateDevice(t, ctx)

	payload, err := h.svc.CreatePersonalizedOfflineSignaturePayload(ctx, CreatePersonalizedOfflineSignaturePayloadRequest{
		ActivationID: rec.ActivationID,
		Data:         "confirm-payment",
	})
	require.NoError(t, err)

	resp, err := h.svc.VerifyOfflineSignature(ctx, VerifyOfflineSignatureRequest{
		ActivationID: rec.ActivationID,
		Data:         payload.Data,
		Nonce:        payload.Nonce,
		Signature:    "00000000-00000000",
	})
	require.Error(t, err, "expected an error for a mismatched offline signature")
	assert.False(t, resp.SignatureValid, "expected signatureValid=false for a mismatched offline signature")

	updated, err := h.svc.Activations.Get(ctx, rec.ActivationID)
	require.NoError(t, err)
	assert.Equal(t, rec.Counter+1, updated.Counter, "expected counter to advance by exactly 1 on failure")
}

// activateDeviceV2 plants an already-ACTIVE v2 activation directly in the
// store, bypassing CreateActivationV2's envelope decryption (which is
// exercised on its own) so upgrade tests can focus on StartUpgrade/
// CommitUpgrade in isolation.
func (h *testHarness) activateDeviceV2(t *testing.T, ctx context.Context) (*domain.ActivationRecord, *ecdsa.PrivateKey, *ecdsa.PrivateKey) {
	t.Helper()

	serverKP, err := pacrypto.GenerateKeyPair()
	require.NoError(t, err)
	deviceKP, err := pacrypto.GenerateKeyPair()
	require.NoError(t, err)

	activationID, err := activationcode.GenerateActivationID(10, func(string) (bool, error) { return false, nil })
	require.NoError(t, err)

	rec := &domain.ActivationRecord{
		ActivationID:              activationID,
		ApplicationID:             h.applicationID,
		UserID:                    "user-v2",
		MasterKeyPairRef:          h.masterKeyPair.ID,
		ServerPublicKey:           serverKP.PublicKey,
		ServerPrivateKeyEnc:       serverKP.PrivateKey.D.Bytes(),
		EncMode:                   domain.PrivateKeyNoEncryption,
		DevicePublicKey:           deviceKP.PublicKey,
		Status:                    domain.StatusActive,
		MaxFailedAttempts:         5,
		Version:                   domain.ProtocolV2,
		TimestampCreated:          h.clock.Now(),
		TimestampActivationExpire: h.clock.Now().Add(time.Hour),
	}
	require.NoError(t, h.svc.Activations.Create(ctx, rec))
	return rec, serverKP.PrivateKey, deviceKP.PrivateKey
}

func TestUpgrade_GoodSignatureFlipsToV3AndResetsCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, serverPriv, devicePriv := h.activateDeviceV2(t, ctx)

	startResp, err := h.svc.StartUpgrade(ctx, StartUpgradeRequest{
		ActivationID:   rec.ActivationID,
		ApplicationKey: h.applicationKey,
	})
	require.NoError(t, err)

	ctrSeed, err := activationcrypto.EciesDecrypt(devicePriv, startResp.CtrData, []byte(h.applicationKey))
	require.NoError(t, err)
	var ctrData [16]byte
	copy(ctrData[:], ctrSeed)

	keys, err := activationcrypto.DeriveFactorKeys(serverPriv, rec.DevicePublicKey)
	require.NoError(t, err)

	data := []byte("upgrade-confirmation")
	sig := signFor(t, keys, h.appSecret, data, ctrData)

	commitResp, err := h.svc.CommitUpgrade(ctx, CommitUpgradeRequest{
		VerifySignatureRequest: VerifySignatureRequest{
			ActivationID:   rec.ActivationID,
			ApplicationKey: h.applicationKey,
			Data:           data,
			Signature:      sig,
			SignatureType:  string(signature.TypePossessionKnowledge),
		},
		CtrData: ctrData,
	})
	require.NoError(t, err)
	assert.True(t, commitResp.Committed, "expected commitUpgrade to report committed=true for a correctly signed request")

	updated, err := h.svc.Activations.Get(ctx, rec.ActivationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolV3, updated.Version, "expected version to flip to v3")
	assert.Equal(t, uint64(1), updated.Counter, "expected the counter to restart on the new chain: match at 0, stored 1")
}

func TestUpgrade_BadSignatureDoesNotFlipVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, _, _ := h.activateDeviceV2(t, ctx)

	_, err := h.svc.StartUpgrade(ctx, StartUpgradeRequest{
		ActivationID:   rec.ActivationID,
		ApplicationKey: h.applicationKey,
	})
	require.NoError(t, err)

	var ctrData [16]byte
	_, err = h.svc.CommitUpgrade(ctx, CommitUpgradeRequest{
		VerifySignatureRequest: VerifySignatureRequest{
			ActivationID:   rec.ActivationID,
			ApplicationKey: h.applicationKey,
			Data:           []byte("upgrade-confirmation"),
			Signature:      "00000000-00000000",
			SignatureType:  string(signature.TypePossessionKnowledge),
		},
		CtrData: ctrData,
	})
	require.Error(t, err, "expected an error for an unsigned/forged upgrade commit")

	updated, err := h.svc.Activations.Get(ctx, rec.ActivationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolV2, updated.Version, "a forged commitUpgrade must not flip the activation's pinned version")
}
