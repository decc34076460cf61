package service

import (
	"context"

	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
	"powerauth-server/internal/domain"
)

// UnlockVault implements §4.4: it first re-runs the exact signature
// verification VerifySignature performs (so the vault key never releases
// without a fresh proof of possession, and the failure/lockout
// bookkeeping stays identical), then derives the vault-unlock key from
// the already-verified factor keys.
//
// Per §9 open question (a), an unknown activationId returns the same
// shape a client sees for a signature failure — userId "UNKNOWN" and
// status REMOVED — rather than a distinguishable NOT_FOUND, so callers
// cannot use vault unlock as an activation-existence oracle. This is
// deliberately NOT generalized to getActivationStatus, which still
// returns a real NOT_FOUND.
func (s *Services) UnlockVault(ctx context.Context, req UnlockVaultRequest) (*UnlockVaultResponse, error) {
	sigResp, err := s.VerifySignature(ctx, req.VerifySignatureRequest)
	if err != nil {
		if apperr.As(err) != nil && apperr.As(err).Code == apperr.CodeActivationNotFound {
			return &UnlockVaultResponse{
				ActivationID:     req.ActivationID,
				SignatureValid:   false,
				ActivationStatus: string(domain.StatusRemoved),
				UserID:           "UNKNOWN",
			}, nil
		}
		if sigResp == nil {
			return nil, err
		}
		return &UnlockVaultResponse{
			ActivationID:      sigResp.ActivationID,
			SignatureValid:    false,
			RemainingAttempts: sigResp.RemainingAttempts,
			ActivationStatus:  sigResp.ActivationStatus,
			Counter:           sigResp.Counter,
		}, err
	}

	rec, getErr := s.Activations.Get(ctx, req.ActivationID)
	if getErr != nil {
		return &UnlockVaultResponse{
			ActivationID:     req.ActivationID,
			SignatureValid:   false,
			ActivationStatus: string(domain.StatusRemoved),
			UserID:           "UNKNOWN",
		}, nil
	}

	privKey, err := s.decryptServerPrivateKey(rec)
	if err != nil {
		return nil, err
	}
	serverPrivateKey := reconstructServerPrivateKey(rec, privKey)

	fullKeys, err := activationcrypto.DeriveFactorKeys(serverPrivateKey, rec.DevicePublicKey)
	if err != nil {
		return nil, apperr.CryptoFailure("derive factor keys for vault unlock", err)
	}
	defer fullKeys.Zero()

	vaultKey, err := activationcrypto.VaultUnlockKey(fullKeys.Transport, fullKeys.EncryptedVaultKey)
	if err != nil {
		return nil, apperr.CryptoFailure("derive vault unlock key", err)
	}

	return &UnlockVaultResponse{
		ActivationID:                rec.ActivationID,
		SignatureValid:              true,
		EncryptedVaultEncryptionKey: vaultKey,
		RemainingAttempts:           sigResp.RemainingAttempts,
		ActivationStatus:            sigResp.ActivationStatus,
		UserID:                      sigResp.UserID,
		Counter:                     sigResp.Counter,
	}, nil
}
