package service

import (
	"context"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/statemachine"
)

// RemoveActivationRequest is the /v3/activation/remove request payload.
type RemoveActivationRequest struct {
	ActivationID   string `json:"activationId"`
	ExternalUserID string `json:"externalUserId,omitempty"`
}

// RemoveActivationResponse is the /v3/activation/remove response payload.
type RemoveActivationResponse struct {
	ActivationID string `json:"activationId"`
	Removed      bool   `json:"removed"`
}

// RemoveActivation transitions any non-REMOVED activation to REMOVED and
// tombstones its key material (I6). Removing an already-REMOVED
// activation is idempotent and reports removed=true without a second
// transition/history entry.
func (s *Services) RemoveActivation(ctx context.Context, req RemoveActivationRequest) (*RemoveActivationResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}

	var fromStatus domain.Status
	var transitioned bool

	rec, err := s.Activations.WithLock(ctx, req.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if cur.Status == domain.StatusRemoved {
			return cur, nil
		}
		fromStatus = cur.Status
		if err := statemachine.Apply(cur, domain.StatusRemoved); err != nil {
			return nil, err
		}
		if req.ExternalUserID != "" {
			cur.ExternalUserID = req.ExternalUserID
		}
		cur.Tombstone()
		transitioned = true
		return cur, nil
	})
	if err != nil {
		return nil, apperr.ActivationNotFound(req.ActivationID)
	}

	if transitioned {
		s.recordTransitionSideEffects(ctx, rec, fromStatus)
	}

	return &RemoveActivationResponse{ActivationID: rec.ActivationID, Removed: true}, nil
}
