package service

import (
	"context"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/domain"
)

// GetActivationStatus is a read-only lookup (§2 "Service façade"). Unlike
// UnlockVault's deliberate oracle-avoidance (§9 open question (a)), an
// unknown activationId here is a genuine NOT_FOUND — there is no
// signature attempt to hide the shape of.
func (s *Services) GetActivationStatus(ctx context.Context, activationID string) (*ActivationStatusResponse, error) {
	if activationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}

	rec, err := s.Activations.Get(ctx, activationID)
	if err != nil {
		return nil, apperr.ActivationNotFound(activationID)
	}

	return &ActivationStatusResponse{
		ActivationID:      rec.ActivationID,
		ActivationStatus:  string(rec.Status),
		BlockedReason:     rec.BlockedReason,
		ApplicationID:     rec.ApplicationID,
		UserID:            rec.UserID,
		Counter:           rec.Counter,
		FailedAttempts:    rec.FailedAttempts,
		MaxFailedAttempts: rec.MaxFailedAttempts,
		Version:           int(rec.Version),
		ActivationFlags:   rec.ActivationFlags,
		TimestampCreated:  rec.TimestampCreated,
		TimestampLastUsed: rec.TimestampLastUsed,
	}, nil
}

// ListActivations backs /activation/list: every activation for a given
// (applicationId, userId) pair, admin-surface only (§6).
func (s *Services) ListActivations(ctx context.Context, applicationID, userID string) ([]*ActivationStatusResponse, error) {
	recs, err := s.Activations.ListByUser(ctx, applicationID, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]*ActivationStatusResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &ActivationStatusResponse{
			ActivationID:      rec.ActivationID,
			ActivationStatus:  string(rec.Status),
			BlockedReason:     rec.BlockedReason,
			ApplicationID:     rec.ApplicationID,
			UserID:            rec.UserID,
			Counter:           rec.Counter,
			FailedAttempts:    rec.FailedAttempts,
			MaxFailedAttempts: rec.MaxFailedAttempts,
			Version:           int(rec.Version),
			ActivationFlags:   rec.ActivationFlags,
			TimestampCreated:  rec.TimestampCreated,
			TimestampLastUsed: rec.TimestampLastUsed,
		})
	}
	return out, nil
}

// LookupActivation resolves an activationCode or activationIdShort to its
// activationId, backing /activation/lookup without exposing key material.
func (s *Services) LookupActivation(ctx context.Context, codeOrShortID string) (*ActivationStatusResponse, error) {
	rec, err := s.Activations.GetByActivationCode(ctx, codeOrShortID)
	if err != nil {
		rec, err = s.Activations.GetByActivationIDShort(ctx, codeOrShortID)
	}
	if err != nil {
		return nil, apperr.ActivationNotFound(codeOrShortID)
	}
	return s.GetActivationStatus(ctx, rec.ActivationID)
}

// HistoryEntry is one row of /activation/history.
type HistoryEntry struct {
	Status         domain.Status `json:"status"`
	Timestamp      string        `json:"timestamp"`
	ExternalUserID string        `json:"externalUserId,omitempty"`
}

// ActivationHistory returns the append-only transition log for an
// activation (§3.2, §6 "/activation/history").
func (s *Services) ActivationHistory(ctx context.Context, activationID string) ([]HistoryEntry, error) {
	entries, err := s.History.ListByActivation(ctx, activationID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			Status:         e.Status,
			Timestamp:      e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			ExternalUserID: e.ExternalUserID,
		})
	}
	return out, nil
}
