package service

import (
	"context"
	"crypto/subtle"

	"powerauth-server/internal/activationcode"
	"powerauth-server/internal/apperr"
	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
)

const recoveryPUKDigits = 10

// RecoveryConfigResponse is the /recovery/config/detail response and the
// /recovery/config/update request and response. Per SPEC_FULL.md's Non-goals, PUK rotation
// cadence and delivery channel policy stay out of scope — only the
// toggle row itself is modeled.
type RecoveryConfigResponse struct {
	ApplicationID              string `json:"applicationId"`
	Activated                  bool   `json:"activationRecoveryEnabled"`
	RecoveryPostcardEnabled    bool   `json:"recoveryPostcardEnabled"`
	AllowMultipleRecoveryCodes bool   `json:"allowMultipleRecoveryCodes"`
}

// GetRecoveryConfig backs /recovery/config/detail.
func (s *Services) GetRecoveryConfig(ctx context.Context, applicationID string) (*RecoveryConfigResponse, error) {
	if applicationID == "" {
		return nil, apperr.InvalidInput("applicationId", "required")
	}
	cfg, err := s.Recovery.GetConfig(ctx, applicationID)
	if err != nil {
		return &RecoveryConfigResponse{ApplicationID: applicationID}, nil
	}
	return &RecoveryConfigResponse{
		ApplicationID:              cfg.ApplicationID,
		Activated:                  cfg.Activated,
		RecoveryPostcardEnabled:    cfg.RecoveryPostcardEnabled,
		AllowMultipleRecoveryCodes: cfg.AllowMultipleRecoveryCodes,
	}, nil
}

// UpdateRecoveryConfig backs /recovery/config/update.
func (s *Services) UpdateRecoveryConfig(ctx context.Context, cfg RecoveryConfigResponse) (*RecoveryConfigResponse, error) {
	if cfg.ApplicationID == "" {
		return nil, apperr.InvalidInput("applicationId", "required")
	}
	rec := &domain.RecoveryConfig{
		ApplicationID:              cfg.ApplicationID,
		Activated:                  cfg.Activated,
		RecoveryPostcardEnabled:    cfg.RecoveryPostcardEnabled,
		AllowMultipleRecoveryCodes: cfg.AllowMultipleRecoveryCodes,
	}
	if err := s.Recovery.SaveConfig(ctx, rec); err != nil {
		return nil, apperr.Internal(err)
	}
	return &cfg, nil
}

// CreateRecoveryCodeRequest is the /recovery/create request payload.
type CreateRecoveryCodeRequest struct {
	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`
	ActivationID  string `json:"activationId,omitempty"`
	PUKCount      int    `json:"pukCount,omitempty"`
}

// CreateRecoveryCodeResponse is the /recovery/create response payload.
type CreateRecoveryCodeResponse struct {
	RecoveryCodeID string `json:"recoveryCodeId"`
	RecoveryCode   string `json:"recoveryCode"`
	PUKs           []struct {
		PUKIndex int    `json:"pukIndex"`
		PUK      string `json:"puk"`
	} `json:"puks"`
}

const defaultPUKCount = 1

// CreateRecoveryCode issues a fresh recovery code with pukCount single-use
// PUKs (default 1), reusing the activation code alphabet/checksum for the
// recovery code itself so it is as typo-resistant as an activation code.
func (s *Services) CreateRecoveryCode(ctx context.Context, req CreateRecoveryCodeRequest) (*CreateRecoveryCodeResponse, error) {
	if req.ApplicationID == "" {
		return nil, apperr.InvalidInput("applicationId", "required")
	}
	if req.UserID == "" {
		return nil, apperr.InvalidInput("userId", "required")
	}

	cfg, err := s.Recovery.GetConfig(ctx, req.ApplicationID)
	if err == nil && !cfg.Activated {
		return nil, apperr.InvalidState(req.ApplicationID, "createRecoveryCode", "RECOVERY_DISABLED")
	}

	pukCount := req.PUKCount
	if pukCount <= 0 {
		pukCount = defaultPUKCount
	}

	code, err := activationcode.GenerateActivationCode(10, func(string) (bool, error) { return false, nil })
	if err != nil {
		return nil, apperr.LimitExceeded("recoveryCode", 10)
	}

	recoveryCodeID, err := activationcode.GenerateActivationID(10, func(string) (bool, error) { return false, nil })
	if err != nil {
		return nil, apperr.LimitExceeded("recoveryCodeId", 10)
	}

	resp := &CreateRecoveryCodeResponse{RecoveryCodeID: recoveryCodeID, RecoveryCode: code}
	puks := make([]domain.RecoveryPUK, 0, pukCount)
	for i := 0; i < pukCount; i++ {
		raw, err := activationcode.GenerateOTP(recoveryPUKDigits)
		if err != nil {
			return nil, apperr.CryptoFailure("generate recovery puk", err)
		}
		puks = append(puks, domain.RecoveryPUK{PUKIndex: i, PUKHash: pacrypto.Hash256([]byte(raw)), Status: "VALID"})
		resp.PUKs = append(resp.PUKs, struct {
			PUKIndex int    `json:"pukIndex"`
			PUK      string `json:"puk"`
		}{PUKIndex: i, PUK: raw})
	}

	rc := &domain.RecoveryCode{
		RecoveryCodeID: recoveryCodeID,
		ApplicationID:  req.ApplicationID,
		UserID:         req.UserID,
		ActivationID:   req.ActivationID,
		Code:           code,
		Status:         "ACTIVE",
		PUKs:           puks,
	}
	if err := s.Recovery.Create(ctx, rc); err != nil {
		return nil, apperr.Internal(err)
	}

	return resp, nil
}

// ConfirmRecoveryRequest is the /recovery/confirm request payload.
type ConfirmRecoveryRequest struct {
	RecoveryCode string `json:"recoveryCode"`
	PUK          string `json:"puk"`
}

// ConfirmRecoveryResponse is the /recovery/confirm response payload.
type ConfirmRecoveryResponse struct {
	Confirmed               bool `json:"confirmed"`
	CurrentRecoveryPUKIndex int  `json:"currentRecoveryPukIndex"`
}

// ConfirmRecovery validates a presented PUK against the stored recovery
// code, consuming it on success (§7 ERR_RECOVERY carries
// currentRecoveryPukIndex when a valid PUK other than the next unused one
// is presented — that PUK stays unused, and the client should retry with
// the PUK at the reported index instead).
func (s *Services) ConfirmRecovery(ctx context.Context, req ConfirmRecoveryRequest) (*ConfirmRecoveryResponse, error) {
	if req.RecoveryCode == "" || req.PUK == "" {
		return nil, apperr.InvalidInput("recoveryCode/puk", "required")
	}

	rc, err := s.Recovery.GetByCode(ctx, req.RecoveryCode)
	if err != nil {
		return nil, apperr.InvalidInput("recoveryCode", "not found")
	}

	hash := pacrypto.Hash256([]byte(req.PUK))

	var matched bool
	var matchedIndex int
	var nextValidIndex = -1
	updated, err := s.Recovery.WithLock(ctx, rc.RecoveryCodeID, func(cur *domain.RecoveryCode) (*domain.RecoveryCode, error) {
		for i := range cur.PUKs {
			if cur.PUKs[i].Status != "VALID" {
				continue
			}
			if nextValidIndex == -1 {
				nextValidIndex = cur.PUKs[i].PUKIndex
			}
			if subtle.ConstantTimeCompare(cur.PUKs[i].PUKHash, hash) == 1 {
				matched = true
				matchedIndex = cur.PUKs[i].PUKIndex
				if matchedIndex == nextValidIndex {
					cur.PUKs[i].Status = "USED"
				}
				break
			}
		}
		return cur, nil
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if !matched {
		return nil, apperr.InvalidInput("puk", "mismatch")
	}
	if matchedIndex != nextValidIndex {
		return nil, apperr.Recovery(nextValidIndex)
	}

	_ = updated
	return &ConfirmRecoveryResponse{Confirmed: true, CurrentRecoveryPUKIndex: matchedIndex}, nil
}

// LookupRecoveryRequest is the /recovery/lookup request payload.
type LookupRecoveryRequest struct {
	ApplicationID string `json:"applicationId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	ActivationID  string `json:"activationId,omitempty"`
	RecoveryCode  string `json:"recoveryCode,omitempty"`
}

// LookupRecoveryResponse is the /recovery/lookup response payload.
type LookupRecoveryResponse struct {
	RecoveryCodeID string `json:"recoveryCodeId"`
	Status         string `json:"status"`
	ValidPUKs      int    `json:"validPuks"`
}

// LookupRecovery resolves a recovery code by activationId or by the code
// itself, reporting its status and remaining valid PUK count.
func (s *Services) LookupRecovery(ctx context.Context, req LookupRecoveryRequest) (*LookupRecoveryResponse, error) {
	var rc *domain.RecoveryCode
	var err error
	switch {
	case req.RecoveryCode != "":
		rc, err = s.Recovery.GetByCode(ctx, req.RecoveryCode)
	case req.ActivationID != "":
		rc, err = s.Recovery.GetByActivation(ctx, req.ActivationID)
	default:
		return nil, apperr.InvalidInput("recoveryCode/activationId", "one is required")
	}
	if err != nil {
		return nil, apperr.InvalidInput("recoveryCode", "not found")
	}

	valid := 0
	for _, p := range rc.PUKs {
		if p.Status == "VALID" {
			valid++
		}
	}
	return &LookupRecoveryResponse{RecoveryCodeID: rc.RecoveryCodeID, Status: rc.Status, ValidPUKs: valid}, nil
}

// RevokeRecoveryRequest is the /recovery/revoke request payload.
type RevokeRecoveryRequest struct {
	RecoveryCodeID string `json:"recoveryCodeId"`
}

// RevokeRecovery marks a recovery code REVOKED and invalidates every
// remaining PUK on it, backing /recovery/revoke. RemoveActivation does not
// call it: removing an activation leaves its recovery codes unchanged.
func (s *Services) RevokeRecovery(ctx context.Context, req RevokeRecoveryRequest) error {
	if req.RecoveryCodeID == "" {
		return apperr.InvalidInput("recoveryCodeId", "required")
	}
	_, err := s.Recovery.WithLock(ctx, req.RecoveryCodeID, func(cur *domain.RecoveryCode) (*domain.RecoveryCode, error) {
		cur.Status = "REVOKED"
		for i := range cur.PUKs {
			if cur.PUKs[i].Status == "VALID" {
				cur.PUKs[i].Status = "INVALID"
			}
		}
		return cur, nil
	})
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
