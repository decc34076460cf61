package service

import (
	"context"
	"encoding/base64"

	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/signature"
	"powerauth-server/internal/statemachine"
)

// CreatePersonalizedOfflineSignaturePayloadRequest is the
// /v3/signature/offline/personalized/create request payload: the
// operation data the mobile app will present to the user and sign
// offline against a specific, already-ACTIVE activation.
type CreatePersonalizedOfflineSignaturePayloadRequest struct {
	ActivationID string `json:"activationId"`
	Data         string `json:"data"`
}

// OfflineSignaturePayloadResponse carries the nonce the client must fold
// into its offline signature base string, matching VerifyV3/VerifyV2's
// BaseString shape. QR payload rendering itself is out of scope — this
// is only the data the client needs to build one.
type OfflineSignaturePayloadResponse struct {
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// CreatePersonalizedOfflineSignaturePayload issues a fresh nonce for an
// offline signature tied to one activation, which must be ACTIVE.
func (s *Services) CreatePersonalizedOfflineSignaturePayload(ctx context.Context, req CreatePersonalizedOfflineSignaturePayloadRequest) (*OfflineSignaturePayloadResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}
	rec, err := s.Activations.Get(ctx, req.ActivationID)
	if err != nil {
		return nil, apperr.ActivationNotFound(req.ActivationID)
	}
	if rec.Status != domain.StatusActive {
		return nil, apperr.InvalidState(rec.ActivationID, "createPersonalizedOfflineSignaturePayload", string(rec.Status))
	}

	return newOfflineNonce(req.Data)
}

// CreateNonPersonalizedOfflineSignaturePayloadRequest is the
// /v3/signature/offline/non-personalized/create request payload: a
// challenge not tied to any one activation, verified only by
// application-wide key material (no device keypair involved).
type CreateNonPersonalizedOfflineSignaturePayloadRequest struct {
	ApplicationID string `json:"applicationId"`
	Data          string `json:"data"`
}

// CreateNonPersonalizedOfflineSignaturePayload issues a fresh nonce for an
// application-wide offline signature challenge.
func (s *Services) CreateNonPersonalizedOfflineSignaturePayload(ctx context.Context, req CreateNonPersonalizedOfflineSignaturePayloadRequest) (*OfflineSignaturePayloadResponse, error) {
	if req.ApplicationID == "" {
		return nil, apperr.InvalidInput("applicationId", "required")
	}
	if _, err := s.MasterKeys.GetCurrent(ctx, req.ApplicationID); err != nil {
		return nil, apperr.ApplicationNotFound(req.ApplicationID)
	}

	return newOfflineNonce(req.Data)
}

func newOfflineNonce(data string) (*OfflineSignaturePayloadResponse, error) {
	raw, err := pacrypto.GenerateRandomBytes(16)
	if err != nil {
		return nil, apperr.CryptoFailure("generate offline signature nonce", err)
	}
	return &OfflineSignaturePayloadResponse{
		Nonce: base64.StdEncoding.EncodeToString(raw),
		Data:  data,
	}, nil
}

// VerifyOfflineSignature checks the decimal signature a user reads off
// their device against a personalized offline challenge. There is no live
// device round trip here, so the per-challenge nonce issued by
// CreatePersonalizedOfflineSignaturePayload takes the application secret's
// slot in the base string instead — the same nonce can never be replayed
// against a second signature because VerifyV3 still advances the stored
// counter/ctrData on every call, matching it to the current lookahead
// window exactly like the online path. Offline signing never proves
// biometry (there is no device present to confirm a biometric prompt
// happened), so an explicit SignatureType is restricted to POSSESSION or
// POSSESSION_KNOWLEDGE.
func (s *Services) VerifyOfflineSignature(ctx context.Context, req VerifyOfflineSignatureRequest) (*VerifyOfflineSignatureResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}
	if req.Signature == "" {
		return nil, apperr.InvalidInput("signature", "required")
	}
	nonce, err := unb64(req.Nonce)
	if err != nil {
		return nil, apperr.InvalidInput("nonce", "must be base64-encoded")
	}

	sigType := signature.Type(req.SignatureType)
	if sigType == "" {
		sigType = signature.TypePossessionKnowledge
	}
	if sigType != signature.TypePossession && sigType != signature.TypePossessionKnowledge {
		return nil, apperr.InvalidInput("signatureType", "offline signatures support only POSSESSION or POSSESSION_KNOWLEDGE")
	}

	var (
		fromStatus domain.Status
		lockedOut  bool
		expiredNow bool
		valid      bool
		remaining  uint32
		matchErr   error
	)

	rec, fnErr := s.Activations.WithLock(ctx, req.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if statemachine.IsExpired(cur, s.Clock.Now()) {
			fromStatus = cur.Status
			if err := statemachine.Apply(cur, domain.StatusRemoved); err != nil {
				return nil, err
			}
			cur.Tombstone()
			expiredNow = true
			matchErr = apperr.Expired(req.ActivationID)
			return cur, matchErr
		}
		if cur.Status != domain.StatusActive {
			return nil, apperr.InvalidState(cur.ActivationID, "verifyOfflineSignature", string(cur.Status))
		}

		privKey, err := s.decryptServerPrivateKey(cur)
		if err != nil {
			return cur, err
		}
		serverPrivateKey := reconstructServerPrivateKey(cur, privKey)

		fullKeys, err := activationcrypto.DeriveFactorKeys(serverPrivateKey, cur.DevicePublicKey)
		if err != nil {
			return cur, apperr.CryptoFailure("derive factor keys", err)
		}
		defer fullKeys.Zero()

		keys := signature.FactorKeys{Possession: fullKeys.Possession, Knowledge: fullKeys.Knowledge}

		lookahead := s.Config.Signature.ValidationLookahead
		var result signature.VerifyResult
		switch cur.Version {
		case domain.ProtocolV2:
			result, err = signature.VerifyV2(sigType, keys, []byte(req.Data), nonce, cur.Counter, lookahead, req.Signature)
		default:
			result, err = signature.VerifyV3(sigType, keys, []byte(req.Data), nonce, cur.Counter, cur.CtrData, lookahead, req.Signature)
		}
		if err != nil {
			return cur, apperr.CryptoFailure("compute offline signature", err)
		}

		cur.Counter = result.NextCounter
		if cur.Version != domain.ProtocolV2 {
			cur.CtrData = result.NextCtrData
		}
		cur.TimestampLastUsed = s.Clock.Now()

		if result.Matched {
			valid = true
			cur.FailedAttempts = 0
			return cur, nil
		}

		cur.FailedAttempts++
		remaining = 0
		if cur.FailedAttempts < cur.MaxFailedAttempts {
			remaining = cur.MaxFailedAttempts - cur.FailedAttempts
		} else {
			fromStatus = cur.Status
			if err := statemachine.Apply(cur, domain.StatusBlocked); err == nil {
				lockedOut = true
			}
		}
		matchErr = apperr.SignatureInvalid(cur.ActivationID, remaining)
		return cur, matchErr
	})

	if rec == nil {
		return nil, fnErr
	}

	if expiredNow {
		s.recordTransitionSideEffects(ctx, rec, fromStatus)
		return nil, fnErr
	}

	s.appendAudit(ctx, rec, sigType, valid)

	if lockedOut {
		s.recordLockout()
		s.recordTransitionSideEffects(ctx, rec, fromStatus)
	}

	if fnErr != nil && !valid {
		return &VerifyOfflineSignatureResponse{
			SignatureValid:    false,
			ActivationID:      rec.ActivationID,
			ActivationStatus:  string(rec.Status),
			RemainingAttempts: remaining,
		}, fnErr
	}

	return &VerifyOfflineSignatureResponse{
		SignatureValid:    valid,
		ActivationID:      rec.ActivationID,
		ActivationStatus:  string(rec.Status),
		RemainingAttempts: rec.MaxFailedAttempts - rec.FailedAttempts,
	}, nil
}
