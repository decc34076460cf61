package service

import (
	"context"

	"powerauth-server/internal/activationcode"
	"powerauth-server/internal/apperr"
	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/keyenc"
)

// InitActivation provisions a new activation record in status CREATED:
// it generates the activationId, the v3 activationCode, a fresh server EC
// keypair, and snapshots the application's current MasterKeyPair (§4.5,
// §4.6).
func (s *Services) InitActivation(ctx context.Context, req InitActivationRequest) (*InitActivationResponse, error) {
	log := s.logger().WithContext(ctx)

	if req.ApplicationID == "" {
		return nil, apperr.InvalidInput("applicationId", "required")
	}
	if req.UserID == "" {
		return nil, apperr.InvalidInput("userId", "required")
	}

	masterKeyPair, err := s.MasterKeys.GetCurrent(ctx, req.ApplicationID)
	if err != nil {
		return nil, apperr.ApplicationNotFound(req.ApplicationID)
	}

	idIterations := s.Config.Activation.GenerateActivationIDIterations
	codeIterations := s.Config.Activation.GenerateShortIDIterations

	activationID, err := activationcode.GenerateActivationID(idIterations, func(id string) (bool, error) {
		return s.Activations.ActivationIDExists(ctx, id)
	})
	if err != nil {
		return nil, apperr.LimitExceeded("activationId", idIterations)
	}

	activationCode, err := activationcode.GenerateActivationCode(codeIterations, func(code string) (bool, error) {
		return s.Activations.ActivationCodeExists(ctx, code)
	})
	if err != nil {
		return nil, apperr.LimitExceeded("activationCode", codeIterations)
	}

	serverKeyPair, err := pacrypto.GenerateKeyPair()
	if err != nil {
		return nil, apperr.CryptoFailure("generate server keypair", err)
	}

	now := s.Clock.Now()
	expire := now.Add(s.Config.Activation.Validity())
	if req.ActivationExpire != nil {
		expire = *req.ActivationExpire
	}

	maxFailed := req.MaxFailedAttempts
	if maxFailed == 0 {
		maxFailed = uint32(s.Config.Signature.MaxFailedAttempts)
	}

	otpValidation := req.OTPValidation
	if otpValidation == "" {
		otpValidation = domain.OTPValidationNone
	}

	privKeyBytes := serverKeyPair.PrivateKey.D.Bytes()
	encMode := encModeFromConfig(s.Config.Security.ServerPrivateKeyEncMode)
	storedPrivateKey := privKeyBytes
	if encMode == domain.PrivateKeyAESHMAC {
		sealed, err := keyenc.Seal(s.MasterDBEncryptionKey, req.UserID, activationID, privKeyBytes)
		if err != nil {
			return nil, apperr.Config("server private key encryption unavailable")
		}
		storedPrivateKey = sealed
	}

	rec := &domain.ActivationRecord{
		ActivationID:              activationID,
		ActivationCode:            activationCode,
		ApplicationID:             req.ApplicationID,
		UserID:                    req.UserID,
		ExternalUserID:            req.ExternalUserID,
		MasterKeyPairRef:          masterKeyPair.ID,
		ServerPublicKey:           serverKeyPair.PublicKey,
		ServerPrivateKeyEnc:       storedPrivateKey,
		EncMode:                   encMode,
		Counter:                   0,
		FailedAttempts:            0,
		MaxFailedAttempts:         maxFailed,
		Status:                    domain.StatusCreated,
		TimestampCreated:          now,
		TimestampActivationExpire: expire,
		ActivationOTP:             req.ActivationOTP,
		ActivationOTPValidation:   otpValidation,
		Version:                   domain.ProtocolV3,
		ActivationFlags:           req.Flags,
	}

	if err := s.Activations.Create(ctx, rec); err != nil {
		return nil, apperr.Internal(err)
	}

	s.recordTransitionSideEffects(ctx, rec, "")

	sig, err := pacrypto.Sign(masterKeyPair.PrivateKey, []byte(activationCode))
	if err != nil {
		return nil, apperr.CryptoFailure("sign activation code", err)
	}

	log.WithField("activation_id", activationID).Debug("initActivation")

	return &InitActivationResponse{
		ActivationID:        activationID,
		ActivationCode:      activationCode,
		ActivationSignature: b64(sig),
		UserID:              req.UserID,
		ApplicationID:       req.ApplicationID,
	}, nil
}
