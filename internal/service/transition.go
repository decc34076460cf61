package service

import (
	"context"

	"powerauth-server/internal/callback"
	"powerauth-server/internal/domain"
)

// recordTransitionSideEffects appends the ActivationHistoryEntry for a
// status change and enqueues the outbound callback notification. Per §5
// ordering guarantee (c), the history append happens before the
// notification is enqueued; the notification itself is fire-and-forget
// (delivery retries happen out of band, §7).
func (s *Services) recordTransitionSideEffects(ctx context.Context, rec *domain.ActivationRecord, from domain.Status) {
	entry := &domain.ActivationHistoryEntry{
		ActivationID:   rec.ActivationID,
		Status:         rec.Status,
		Timestamp:      s.Clock.Now(),
		ExternalUserID: rec.ExternalUserID,
	}
	if s.History != nil {
		if err := s.History.Append(ctx, entry); err != nil {
			s.logger().WithContext(ctx).WithField("error", err.Error()).
				WithField("activation_id", rec.ActivationID).
				Warn("append activation history failed")
		}
	}

	s.logger().LogTransition(ctx, rec.ActivationID, string(from), string(rec.Status))
	s.recordTransition(string(from), string(rec.Status))

	s.notify().Notify(ctx, callback.Event{
		ActivationID:   rec.ActivationID,
		ApplicationID:  rec.ApplicationID,
		ExternalUserID: rec.ExternalUserID,
		FromStatus:     from,
		ToStatus:       rec.Status,
		Timestamp:      entry.Timestamp,
	})
}
