package service

import (
	"context"

	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
)

// EciesDecryptorRequest is the /v3/ecies/decryptor request payload: a
// generic ECIES envelope the mobile SDK wants decrypted server-side,
// scoped either to an application (decrypted under the master keypair,
// used before an activation exists) or to an activation (decrypted
// under the activation's server private key, used after).
type EciesDecryptorRequest struct {
	Scope              string `json:"scope"` // "APPLICATION" or "ACTIVATION"
	ApplicationID      string `json:"applicationId,omitempty"`
	ActivationID       string `json:"activationId,omitempty"`
	EphemeralPublicKey []byte `json:"ephemeralPublicKey"`
	EncryptedData      []byte `json:"encryptedData"`
	MAC                []byte `json:"mac"`
	SharedInfo         []byte `json:"sharedInfo,omitempty"`
}

// EciesDecryptorResponse carries the recovered plaintext.
type EciesDecryptorResponse struct {
	Decrypted []byte `json:"decryptedData"`
}

// EciesDecryptor resolves the right private key for the requested scope
// and opens the envelope, reusing the same EciesDecrypt primitive
// PrepareActivation already exercises.
func (s *Services) EciesDecryptor(ctx context.Context, req EciesDecryptorRequest) (*EciesDecryptorResponse, error) {
	env := &activationcrypto.EciesEnvelope{
		EphemeralPublicKey: req.EphemeralPublicKey,
		EncryptedData:      req.EncryptedData,
		MAC:                req.MAC,
	}

	switch req.Scope {
	case "ACTIVATION":
		if req.ActivationID == "" {
			return nil, apperr.InvalidInput("activationId", "required for ACTIVATION scope")
		}
		rec, err := s.Activations.Get(ctx, req.ActivationID)
		if err != nil {
			return nil, apperr.ActivationNotFound(req.ActivationID)
		}
		privKey, err := s.decryptServerPrivateKey(rec)
		if err != nil {
			return nil, err
		}
		serverPrivateKey := reconstructServerPrivateKey(rec, privKey)
		plaintext, err := activationcrypto.EciesDecrypt(serverPrivateKey, env, req.SharedInfo)
		if err != nil {
			return nil, apperr.CryptoFailure("decrypt activation-scoped envelope", err)
		}
		return &EciesDecryptorResponse{Decrypted: plaintext}, nil

	case "APPLICATION":
		if req.ApplicationID == "" {
			return nil, apperr.InvalidInput("applicationId", "required for APPLICATION scope")
		}
		masterKeyPair, err := s.MasterKeys.GetCurrent(ctx, req.ApplicationID)
		if err != nil {
			return nil, apperr.ApplicationNotFound(req.ApplicationID)
		}
		plaintext, err := activationcrypto.EciesDecrypt(masterKeyPair.PrivateKey, env, req.SharedInfo)
		if err != nil {
			return nil, apperr.CryptoFailure("decrypt application-scoped envelope", err)
		}
		return &EciesDecryptorResponse{Decrypted: plaintext}, nil

	default:
		return nil, apperr.InvalidInput("scope", "must be APPLICATION or ACTIVATION")
	}
}
