package service

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/keyenc"
	"powerauth-server/internal/statemachine"
)

const eciesSharedInfoPrepare = "activation_prepare"

// PrepareActivation performs the v3 key exchange (§4.1): it opens the
// client's ECIES envelope under the application master private key,
// checks that the application key is registered, records the
// device public key, transitions CREATED -> PENDING_COMMIT, and returns
// an ECIES envelope (sealed to the now-known device public key)
// carrying the server's public key and v3 ctrData seed.
func (s *Services) PrepareActivation(ctx context.Context, req PrepareActivationRequest) (*PrepareActivationResponse, error) {
	if req.ActivationCode == "" {
		return nil, apperr.InvalidInput("activationCode", "required")
	}

	appVersion, err := s.AppVersions.GetByApplicationKey(ctx, req.ApplicationKey)
	if err != nil {
		return nil, apperr.ApplicationNotFound(req.ApplicationKey)
	}

	rec, err := s.Activations.GetByActivationCode(ctx, req.ActivationCode)
	if err != nil {
		return nil, apperr.ActivationNotFound(req.ActivationCode)
	}

	if statemachine.IsExpired(rec, s.Clock.Now()) {
		return nil, s.expireAndReport(ctx, rec.ActivationID)
	}
	if rec.Status != domain.StatusCreated {
		return nil, apperr.InvalidState(rec.ActivationID, "prepareActivation", string(rec.Status))
	}

	masterKeyPair, err := s.MasterKeys.GetByID(ctx, rec.MasterKeyPairRef)
	if err != nil {
		return nil, apperr.Config("master keypair for activation not found")
	}

	nonceKey := rec.ActivationID + "|" + base64.StdEncoding.EncodeToString(req.EphemeralPublicKey)
	if !s.nonces().ValidateAndMark(nonceKey) {
		return nil, apperr.ReplayDetected(rec.ActivationID)
	}

	envelope := &activationcrypto.EciesEnvelope{
		EphemeralPublicKey: req.EphemeralPublicKey,
		IV:                 req.IV,
		EncryptedData:      req.EncryptedData,
		MAC:                req.MAC,
	}
	plaintext, err := activationcrypto.EciesDecrypt(masterKeyPair.PrivateKey, envelope, []byte(eciesSharedInfoPrepare))
	if err != nil {
		return nil, s.crashToRemoved(ctx, rec.ActivationID, "decrypt prepareActivation envelope", err)
	}

	var payload preparePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, s.crashToRemoved(ctx, rec.ActivationID, "decode prepareActivation payload", err)
	}

	devicePublicKey, err := pacrypto.PublicKeyFromBytes(payload.DevicePublicKey)
	if err != nil {
		return nil, s.crashToRemoved(ctx, rec.ActivationID, "parse device public key", err)
	}

	if rec.ActivationOTPValidation == domain.OTPValidationOnKeyExchange {
		if !constantTimeEqualString(rec.ActivationOTP, payload.ActivationOTP) {
			return nil, apperr.InvalidInput("activationOtp", "mismatch")
		}
	}

	_ = appVersion // resolved to assert the applicationKey is registered; secret unused here (no application signature on the v3 ECIES envelope).

	updated, err := s.Activations.WithLock(ctx, rec.ActivationID, func(current *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if current.Status != domain.StatusCreated {
			return nil, apperr.InvalidState(current.ActivationID, "prepareActivation", string(current.Status))
		}
		current.DevicePublicKey = devicePublicKey
		if err := statemachine.Apply(current, domain.StatusPendingCommit); err != nil {
			return nil, apperr.Internal(err)
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransitionSideEffects(ctx, updated, domain.StatusCreated)

	serverPubBytes := pacrypto.PublicKeyToUncompressed(updated.ServerPublicKey)
	respPayload, err := json.Marshal(serverKeyPayload{
		ServerPublicKey: serverPubBytes,
		CtrData:         updated.CtrData[:],
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	respEnvelope, err := activationcrypto.EciesEncrypt(devicePublicKey, respPayload, []byte(eciesSharedInfoPrepare+"_response"))
	if err != nil {
		return nil, apperr.CryptoFailure("seal prepareActivation response", err)
	}

	return &PrepareActivationResponse{
		ActivationID:       updated.ActivationID,
		EphemeralPublicKey: respEnvelope.EphemeralPublicKey,
		EncryptedData:      respEnvelope.EncryptedData,
		MAC:                respEnvelope.MAC,
		ActivationStatus:   string(updated.Status),
	}, nil
}

// decryptServerPrivateKey reverses the at-rest protection Init applied,
// when serverPrivateKeyEncryption=AES_HMAC (§6).
func (s *Services) decryptServerPrivateKey(rec *domain.ActivationRecord) ([]byte, error) {
	if rec.EncMode != domain.PrivateKeyAESHMAC {
		return rec.ServerPrivateKeyEnc, nil
	}
	plain, err := keyenc.Open(s.MasterDBEncryptionKey, rec.UserID, rec.ActivationID, rec.ServerPrivateKeyEnc)
	if err != nil {
		return nil, apperr.Config("server private key decryption failed")
	}
	return plain, nil
}

// expireAndReport lazily sweeps a single expired activation found on the
// read path (§4.5 "lazy check") and reports ACTIVATION_EXPIRED.
func (s *Services) expireAndReport(ctx context.Context, activationID string) error {
	_, _ = s.Activations.WithLock(ctx, activationID, func(current *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if current.Status != domain.StatusCreated && current.Status != domain.StatusPendingCommit {
			return nil, nil
		}
		from := current.Status
		if err := statemachine.Apply(current, domain.StatusRemoved); err != nil {
			return nil, err
		}
		current.Tombstone()
		s.recordTransitionSideEffects(ctx, current, from)
		return current, nil
	})
	return apperr.Expired(activationID)
}

// crashToRemoved implements §7's crypto-failure policy: "Crypto errors on
// a specific activation set that activation to REMOVED and return
// ACTIVATION_EXPIRED to the client (generic, to avoid oracles)."
func (s *Services) crashToRemoved(ctx context.Context, activationID, operation string, cause error) error {
	s.logger().WithContext(ctx).WithField("activation_id", activationID).
		WithField("operation", operation).WithField("error", cause.Error()).
		Warn("crypto failure, tombstoning activation")

	_, _ = s.Activations.WithLock(ctx, activationID, func(current *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if current.Status == domain.StatusRemoved {
			return nil, nil
		}
		from := current.Status
		if err := statemachine.Apply(current, domain.StatusRemoved); err != nil {
			return nil, err
		}
		current.Tombstone()
		s.recordTransitionSideEffects(ctx, current, from)
		return current, nil
	})
	return apperr.Expired(activationID)
}

func constantTimeEqualString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
