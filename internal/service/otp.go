package service

import (
	"context"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/domain"
)

// UpdateActivationOtpRequest is the /v3/activation/otp/update request
// payload.
type UpdateActivationOtpRequest struct {
	ActivationID  string `json:"activationId"`
	ActivationOTP string `json:"activationOtp"`
}

// UpdateActivationOtpResponse is the /v3/activation/otp/update response
// payload.
type UpdateActivationOtpResponse struct {
	ActivationID string `json:"activationId"`
	Updated      bool   `json:"updated"`
}

// UpdateActivationOtp replaces the activation's stored OTP (§4.7). Only
// legal before the OTP has had a chance to be checked: the activation
// must still be CREATED or PENDING_COMMIT, and its frozen validation
// mode must be ON_COMMIT (an OTP checked ON_KEY_EXCHANGE has already
// been consumed by prepareActivation/createActivation by the time any
// caller could reach this operation).
func (s *Services) UpdateActivationOtp(ctx context.Context, req UpdateActivationOtpRequest) (*UpdateActivationOtpResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}
	if req.ActivationOTP == "" {
		return nil, apperr.InvalidInput("activationOtp", "required")
	}

	rec, err := s.Activations.WithLock(ctx, req.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if cur.Status != domain.StatusCreated && cur.Status != domain.StatusPendingCommit {
			return nil, apperr.InvalidState(cur.ActivationID, "updateActivationOtp", string(cur.Status))
		}
		if cur.ActivationOTPValidation != domain.OTPValidationOnCommit {
			return nil, apperr.InvalidState(cur.ActivationID, "updateActivationOtp", string(cur.ActivationOTPValidation))
		}
		cur.ActivationOTP = req.ActivationOTP
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	return &UpdateActivationOtpResponse{ActivationID: rec.ActivationID, Updated: true}, nil
}
