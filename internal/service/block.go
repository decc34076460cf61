package service

import (
	"context"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/statemachine"
)

// BlockActivationRequest is the /v3/activation/block request payload.
type BlockActivationRequest struct {
	ActivationID  string `json:"activationId"`
	BlockedReason string `json:"blockedReason,omitempty"`
}

// BlockActivationResponse is the /v3/activation/block response payload.
type BlockActivationResponse struct {
	ActivationID     string `json:"activationId"`
	ActivationStatus string `json:"activationStatus"`
}

// BlockActivation transitions ACTIVE -> BLOCKED administratively (not a
// failed-attempt lockout — that path lives in VerifySignature/
// CommitActivation). Blocking an already-BLOCKED activation is
// idempotent; any other status is INVALID_STATE.
func (s *Services) BlockActivation(ctx context.Context, req BlockActivationRequest) (*BlockActivationResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}

	var fromStatus domain.Status
	var transitioned bool

	rec, err := s.Activations.WithLock(ctx, req.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if cur.Status == domain.StatusBlocked {
			return cur, nil
		}
		if cur.Status != domain.StatusActive {
			return nil, apperr.InvalidState(cur.ActivationID, "blockActivation", string(cur.Status))
		}
		fromStatus = cur.Status
		if err := statemachine.Apply(cur, domain.StatusBlocked); err != nil {
			return nil, err
		}
		cur.BlockedReason = req.BlockedReason
		transitioned = true
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.recordTransitionSideEffects(ctx, rec, fromStatus)
	}

	return &BlockActivationResponse{ActivationID: rec.ActivationID, ActivationStatus: string(rec.Status)}, nil
}

// UnblockActivationRequest is the /v3/activation/unblock request payload.
type UnblockActivationRequest struct {
	ActivationID string `json:"activationId"`
}

// UnblockActivationResponse is the /v3/activation/unblock response payload.
type UnblockActivationResponse struct {
	ActivationID     string `json:"activationId"`
	ActivationStatus string `json:"activationStatus"`
}

// UnblockActivation transitions BLOCKED -> ACTIVE and resets
// failedAttempts to 0, matching the behavior of a successful signature
// verification (§4.5 "unblocking resets the failure counter").
func (s *Services) UnblockActivation(ctx context.Context, req UnblockActivationRequest) (*UnblockActivationResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}

	var fromStatus domain.Status
	var transitioned bool

	rec, err := s.Activations.WithLock(ctx, req.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if cur.Status == domain.StatusActive {
			return cur, nil
		}
		if cur.Status != domain.StatusBlocked {
			return nil, apperr.InvalidState(cur.ActivationID, "unblockActivation", string(cur.Status))
		}
		fromStatus = cur.Status
		if err := statemachine.Apply(cur, domain.StatusActive); err != nil {
			return nil, err
		}
		cur.FailedAttempts = 0
		cur.BlockedReason = ""
		transitioned = true
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.recordTransitionSideEffects(ctx, rec, fromStatus)
	}

	return &UnblockActivationResponse{ActivationID: rec.ActivationID, ActivationStatus: string(rec.Status)}, nil
}
