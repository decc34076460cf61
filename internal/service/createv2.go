package service

import (
	"context"
	"encoding/base64"

	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/statemachine"
)

// CreateActivationV2 is the legacy /v2/activation/create key exchange
// (§4.1 "v2 (legacy, still supported)"): it opens the V2Envelope under
// the application master private key, verifying the application
// signature before trusting anything inside, records the device public
// key, and transitions CREATED -> PENDING_COMMIT exactly like
// PrepareActivation does for v3. The protocol version recorded at
// initActivation time is never touched by this path — a v2 activation
// stays v2 for its whole life (§4.1 "version is frozen at init").
func (s *Services) CreateActivationV2(ctx context.Context, req CreateActivationV2Request) (*CreateActivationV2Response, error) {
	if req.ActivationIDShort == "" {
		return nil, apperr.InvalidInput("activationIdShort", "required")
	}

	appVersion, err := s.AppVersions.GetByApplicationKey(ctx, req.ApplicationKey)
	if err != nil {
		return nil, apperr.ApplicationNotFound(req.ApplicationKey)
	}

	rec, err := s.Activations.GetByActivationIDShort(ctx, req.ActivationIDShort)
	if err != nil {
		return nil, apperr.ActivationNotFound(req.ActivationIDShort)
	}

	if statemachine.IsExpired(rec, s.Clock.Now()) {
		return nil, s.expireAndReport(ctx, rec.ActivationID)
	}
	if rec.Status != domain.StatusCreated {
		return nil, apperr.InvalidState(rec.ActivationID, "createActivationV2", string(rec.Status))
	}
	if rec.ActivationOTPValidation == domain.OTPValidationOnKeyExchange {
		if !constantTimeEqualString(rec.ActivationOTP, req.ActivationOTP) {
			return nil, apperr.InvalidInput("activationOtp", "mismatch")
		}
	}

	masterKeyPair, err := s.MasterKeys.GetByID(ctx, rec.MasterKeyPairRef)
	if err != nil {
		return nil, apperr.Config("master keypair for activation not found")
	}

	nonceKey := rec.ActivationID + "|" + base64.StdEncoding.EncodeToString(req.ActivationNonce)
	if !s.nonces().ValidateAndMark(nonceKey) {
		return nil, apperr.ReplayDetected(rec.ActivationID)
	}

	env := &activationcrypto.V2Envelope{
		EphemeralPublicKey:    req.EphemeralPublicKey,
		EncryptedDevicePubKey: req.EncryptedDevicePubKey,
		ActivationNonce:       req.ActivationNonce,
		ApplicationSignature:  req.ApplicationSignature,
	}

	devicePublicKey, err := activationcrypto.DecryptV2DevicePublicKey(
		masterKeyPair.PrivateKey, env, req.ActivationIDShort, req.ActivationOTP,
		[]byte(appVersion.ApplicationKey), []byte(appVersion.ApplicationSecret))
	if err != nil {
		return nil, s.crashToRemoved(ctx, rec.ActivationID, "decrypt v2 device public key", err)
	}

	updated, err := s.Activations.WithLock(ctx, rec.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if cur.Status != domain.StatusCreated {
			return nil, apperr.InvalidState(cur.ActivationID, "createActivationV2", string(cur.Status))
		}
		cur.DevicePublicKey = devicePublicKey
		if err := statemachine.Apply(cur, domain.StatusPendingCommit); err != nil {
			return nil, apperr.Internal(err)
		}
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransitionSideEffects(ctx, updated, domain.StatusCreated)

	encServerPub, err := activationcrypto.EncryptV2DevicePublicKey(
		masterKeyPair.PublicKey, updated.ServerPublicKey, req.ActivationIDShort, req.ActivationOTP,
		[]byte(appVersion.ApplicationKey), []byte(appVersion.ApplicationSecret))
	if err != nil {
		fallback, ferr := activationcrypto.FallbackSignature()
		if ferr != nil {
			return nil, apperr.CryptoFailure("seal v2 server public key", err)
		}
		return &CreateActivationV2Response{
			ActivationID:          updated.ActivationID,
			EphemeralPublicKey:    nil,
			EncryptedServerPubKey: fallback,
			ActivationStatus:      string(updated.Status),
		}, nil
	}

	return &CreateActivationV2Response{
		ActivationID:          updated.ActivationID,
		EphemeralPublicKey:    encServerPub.EphemeralPublicKey,
		EncryptedServerPubKey: encServerPub.EncryptedDevicePubKey,
		ActivationStatus:      string(updated.Status),
	}, nil
}
