package service

import (
	"context"

	"powerauth-server/internal/domain"
	"powerauth-server/internal/statemachine"
)

// SweepExpired implements sweep.Expirer: it finds up to limit non-terminal
// activations whose expiry has passed and tombstones each one to REMOVED
// under its own write lock (§5 "periodic sweep"). A candidate that lost a
// race with a concurrent request — already terminal by the time its lock
// is acquired — is simply skipped rather than treated as an error, since
// that race is exactly what the per-activation lock exists to resolve.
func (s *Services) SweepExpired(ctx context.Context, limit int) (int, error) {
	candidates, err := s.Activations.ListExpirable(ctx, limit)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, candidate := range candidates {
		var fromStatus domain.Status
		var transitioned bool

		rec, err := s.Activations.WithLock(ctx, candidate.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
			if !statemachine.IsExpired(cur, s.Clock.Now()) {
				return cur, nil
			}
			fromStatus = cur.Status
			if err := statemachine.Apply(cur, domain.StatusRemoved); err != nil {
				return nil, err
			}
			cur.Tombstone()
			transitioned = true
			return cur, nil
		})
		if err != nil {
			continue
		}
		if transitioned {
			s.recordTransitionSideEffects(ctx, rec, fromStatus)
			removed++
		}
	}
	return removed, nil
}
