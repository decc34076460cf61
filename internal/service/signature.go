package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"time"

	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/signature"
	"powerauth-server/internal/statemachine"
	"powerauth-server/internal/store"
)

// reconstructServerPrivateKey rebuilds an *ecdsa.PrivateKey from the raw
// scalar stored on the record (ServerPrivateKeyEnc, decrypted) and the
// record's already-known public point; Init never persists a PEM/DER
// encoding, just D.Bytes().
func reconstructServerPrivateKey(rec *domain.ActivationRecord, dBytes []byte) *ecdsa.PrivateKey {
	return &ecdsa.PrivateKey{
		PublicKey: *rec.ServerPublicKey,
		D:         new(big.Int).SetBytes(dBytes),
	}
}

// VerifySignature is the core of §4.2: it recomputes the expected
// signature for the stored counter (and its lookahead window), advances
// the counter/ctrData by exactly one step whether or not the candidate
// matched, and — only on a match — advances it to matchedCounter+1
// instead, absorbing any lookahead steps the client skipped. A run of
// consecutive failures that reaches maxFailedAttempts transitions
// ACTIVE -> BLOCKED atomically with the failing write (I3).
func (s *Services) VerifySignature(ctx context.Context, req VerifySignatureRequest) (*VerifySignatureResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}
	if req.Signature == "" {
		return nil, apperr.InvalidInput("signature", "required")
	}

	sigType := signature.Type(req.SignatureType)
	start := s.Clock.Now()

	appVersion, err := s.AppVersions.GetByApplicationKey(ctx, req.ApplicationKey)
	if err != nil {
		return nil, apperr.ApplicationNotFound(req.ApplicationKey)
	}
	applicationSecret := []byte(appVersion.ApplicationSecret)

	var (
		fromStatus domain.Status
		lockedOut  bool
		expiredNow bool
		valid      bool
		remaining  uint32
		counterOut uint64
		userID     string
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
			return nil, apperr.InvalidState(cur.ActivationID, "verifySignature", string(cur.Status))
		}

		version := cur.Version
		if req.ForcedSignatureVersion != nil {
			version = domain.ProtocolVersion(*req.ForcedSignatureVersion)
		}

		privKey, err := s.decryptServerPrivateKey(cur)
		if err != nil {
			matchErr = err
			return cur, err
		}
		serverPrivateKey := reconstructServerPrivateKey(cur, privKey)

		fullKeys, err := activationcrypto.DeriveFactorKeys(serverPrivateKey, cur.DevicePublicKey)
		if err != nil {
			matchErr = apperr.CryptoFailure("derive factor keys", err)
			return cur, matchErr
		}
		defer fullKeys.Zero()

		keys := signature.FactorKeys{
			Possession: fullKeys.Possession,
			Knowledge:  fullKeys.Knowledge,
			Biometry:   fullKeys.Biometry,
		}

		lookahead := s.Config.Signature.ValidationLookahead

		var result signature.VerifyResult
		var verr error
		switch version {
		case domain.ProtocolV2:
			result, verr = signature.VerifyV2(sigType, keys, req.Data, applicationSecret, cur.Counter, lookahead, req.Signature)
		default:
			result, verr = signature.VerifyV3(sigType, keys, req.Data, applicationSecret, cur.Counter, cur.CtrData, lookahead, req.Signature)
		}
		if verr != nil {
			matchErr = apperr.CryptoFailure("compute signature", verr)
			return cur, matchErr
		}

		cur.Counter = result.NextCounter
		if version != domain.ProtocolV2 {
			cur.CtrData = result.NextCtrData
		}
		cur.TimestampLastUsed = s.Clock.Now()

		if result.Matched {
			valid = true
			cur.FailedAttempts = 0
			userID = cur.UserID
			counterOut = cur.Counter
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
		counterOut = cur.Counter
		matchErr = apperr.SignatureInvalid(cur.ActivationID, remaining)
		return cur, matchErr
	})

	if rec == nil {
		if errors.Is(fnErr, store.ErrNotFound) {
			return nil, apperr.ActivationNotFound(req.ActivationID)
		}
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
		return &VerifySignatureResponse{
			SignatureValid:    false,
			ActivationID:      rec.ActivationID,
			ActivationStatus:  string(rec.Status),
			RemainingAttempts: remaining,
			Counter:           counterOut,
		}, fnErr
	}

	s.recordSignatureVerification(string(sigType), valid, s.Clock.Now().Sub(start))

	return &VerifySignatureResponse{
		SignatureValid:    valid,
		ActivationID:      rec.ActivationID,
		ActivationStatus:  string(rec.Status),
		RemainingAttempts: rec.MaxFailedAttempts - rec.FailedAttempts,
		Counter:           counterOut,
		UserID:            userID,
	}, nil
}

// appendAudit records one signature-verification attempt (§3.2). A
// failure to append never fails the caller's request — the audit log
// is an observability concern, not a correctness one.
func (s *Services) appendAudit(ctx context.Context, rec *domain.ActivationRecord, sigType signature.Type, valid bool) {
	result := domain.SignatureResultFailed
	if valid {
		result = domain.SignatureResultSucceeded
	}
	entry := &domain.SignatureAuditEntry{
		ActivationID:  rec.ActivationID,
		ApplicationID: rec.ApplicationID,
		UserID:        rec.UserID,
		SignatureType: string(sigType),
		Result:        result,
		Counter:       rec.Counter,
		Timestamp:     s.Clock.Now(),
	}
	if err := s.Audit.Append(ctx, entry); err != nil {
		s.logger().WithContext(ctx).WithField("activation_id", rec.ActivationID).
			WithField("error", err.Error()).Warn("failed to append signature audit entry")
	}
}

// VerifyECDSASignature implements the independent ECDSA signature check
// of §4.3: it verifies the client's device-key ECDSA signature directly,
// without touching the counter/factor-key machinery VerifySignature owns.
func (s *Services) VerifyECDSASignature(ctx context.Context, req VerifyECDSASignatureRequest) (*VerifyECDSASignatureResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}

	rec, err := s.Activations.Get(ctx, req.ActivationID)
	if err != nil {
		return nil, apperr.ActivationNotFound(req.ActivationID)
	}
	if rec.Status != domain.StatusActive || rec.DevicePublicKey == nil {
		return nil, apperr.InvalidState(rec.ActivationID, "verifyECDSASignature", string(rec.Status))
	}

	valid := pacrypto.Verify(rec.DevicePublicKey, req.Data, req.Signature)
	return &VerifyECDSASignatureResponse{SignatureValid: valid}, nil
}
