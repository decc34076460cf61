package service

import (
	"context"
	"time"

	"powerauth-server/internal/activationcode"
	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
)

// CreateTokenRequest is the /v3/token/create request payload. It embeds
// the same verified-signature precondition as vault unlock: a token may
// only be minted against a fresh, successful signature check, never
// against a bare activationId.
type CreateTokenRequest struct {
	VerifySignatureRequest
}

// CreateTokenResponse is the /v3/token/create response payload.
type CreateTokenResponse struct {
	TokenID     string `json:"tokenId"`
	TokenSecret []byte `json:"tokenSecret"`
}

// CreateToken mints a pa_token row: a random tokenId and a tokenSecret
// derived via KDF_INTERNAL(masterSecret, KeyIndexToken), fanned out of the
// same per-activation master secret every other v3 subkey derives from
// (§4.1 "every other subkey fans out from it").
func (s *Services) CreateToken(ctx context.Context, req CreateTokenRequest) (*CreateTokenResponse, error) {
	sigResp, err := s.VerifySignature(ctx, req.VerifySignatureRequest)
	if err != nil {
		return nil, err
	}
	if !sigResp.SignatureValid {
		return nil, apperr.SignatureInvalid(req.ActivationID, sigResp.RemainingAttempts)
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

	fullKeys, err := activationcrypto.DeriveFactorKeys(serverPrivateKey, rec.DevicePublicKey)
	if err != nil {
		return nil, apperr.CryptoFailure("derive factor keys for token create", err)
	}
	defer fullKeys.Zero()

	tokenSecret, err := pacrypto.DeriveInternal(fullKeys.MasterSecret, pacrypto.KeyIndexToken)
	if err != nil {
		return nil, apperr.CryptoFailure("derive token secret", err)
	}

	tokenID, err := activationcode.GenerateActivationID(10, func(id string) (bool, error) {
		_, err := s.Tokens.Get(ctx, id)
		return err == nil, nil
	})
	if err != nil {
		return nil, apperr.LimitExceeded("tokenId", 10)
	}

	token := &domain.Token{
		TokenID:       tokenID,
		ActivationID:  rec.ActivationID,
		ApplicationID: rec.ApplicationID,
		UserID:        rec.UserID,
		TokenSecret:   tokenSecret,
		SignatureType: req.SignatureType,
		CreatedAt:     s.Clock.Now(),
	}
	if err := s.Tokens.Create(ctx, token); err != nil {
		return nil, apperr.Internal(err)
	}

	return &CreateTokenResponse{TokenID: tokenID, TokenSecret: tokenSecret}, nil
}

// ValidateTokenRequest is the /v3/token/validate request payload: the
// client presents tokenId plus an HMAC digest over (tokenId, nonce,
// timestamp) keyed by its copy of tokenSecret, avoiding the counter machinery a full
// signature verification requires.
type ValidateTokenRequest struct {
	TokenID   string `json:"tokenId"`
	Nonce     []byte `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	TokenDigest []byte `json:"tokenDigest"`
}

// ValidateTokenResponse is the /v3/token/validate response payload.
type ValidateTokenResponse struct {
	TokenValid   bool   `json:"tokenValid"`
	ActivationID string `json:"activationId,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

const tokenDigestWindow = 5 * time.Minute

// ValidateToken recomputes the expected digest over (tokenId, nonce,
// timestamp) under the stored tokenSecret, rejecting anything outside a
// 5-minute window to bound replay of a captured digest.
func (s *Services) ValidateToken(ctx context.Context, req ValidateTokenRequest) (*ValidateTokenResponse, error) {
	if req.TokenID == "" {
		return nil, apperr.InvalidInput("tokenId", "required")
	}

	token, err := s.Tokens.Get(ctx, req.TokenID)
	if err != nil {
		return &ValidateTokenResponse{TokenValid: false}, nil
	}

	ts := time.UnixMilli(req.Timestamp)
	if s.Clock.Now().Sub(ts) > tokenDigestWindow || ts.Sub(s.Clock.Now()) > tokenDigestWindow {
		return &ValidateTokenResponse{TokenValid: false}, nil
	}

	base := buildTokenBase(req.TokenID, req.Nonce, req.Timestamp)
	if !pacrypto.HMACVerify(token.TokenSecret, base, req.TokenDigest) {
		return &ValidateTokenResponse{TokenValid: false}, nil
	}

	return &ValidateTokenResponse{TokenValid: true, ActivationID: token.ActivationID, UserID: token.UserID}, nil
}

func buildTokenBase(tokenID string, nonce []byte, timestamp int64) []byte {
	base := make([]byte, 0, len(tokenID)+len(nonce)+8)
	base = append(base, []byte(tokenID)...)
	base = append(base, nonce...)
	var ts [8]byte
	for i := 0; i < 8; i++ {
		ts[7-i] = byte(timestamp >> (8 * i))
	}
	base = append(base, ts[:]...)
	return base
}

// RemoveTokenRequest is the /v3/token/remove request payload.
type RemoveTokenRequest struct {
	TokenID string `json:"tokenId"`
}

// RemoveToken deletes a pa_token row.
func (s *Services) RemoveToken(ctx context.Context, req RemoveTokenRequest) error {
	if req.TokenID == "" {
		return apperr.InvalidInput("tokenId", "required")
	}
	if err := s.Tokens.Delete(ctx, req.TokenID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
