package service

import (
	"context"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/statemachine"
)

// CommitActivation transitions PENDING_COMMIT -> ACTIVE (§4.5). When the
// activation's frozen OTP validation mode is ON_COMMIT, the supplied OTP
// must match (constant-time); a mismatch increments failedAttempts and
// may cross into BLOCKED in the same atomic write as any other failed
// attempt (I3). Per P3, calling commit on an already-ACTIVE activation is
// idempotent; any other non-PENDING_COMMIT status is INVALID_STATE.
func (s *Services) CommitActivation(ctx context.Context, req CommitActivationRequest) (*CommitActivationResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}

	var fromStatus domain.Status
	var lockedOut, noop, expiredNow bool

	rec, fnErr := s.Activations.WithLock(ctx, req.ActivationID, func(rec *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if statemachine.IsExpired(rec, s.Clock.Now()) {
			fromStatus = rec.Status
			if err := statemachine.Apply(rec, domain.StatusRemoved); err != nil {
				return nil, err
			}
			rec.Tombstone()
			expiredNow = true
			return rec, nil
		}

		if rec.Status == domain.StatusActive {
			noop = true
			return rec, nil
		}
		if rec.Status != domain.StatusPendingCommit {
			return nil, apperr.InvalidState(rec.ActivationID, "commitActivation", string(rec.Status))
		}

		if rec.ActivationOTPValidation == domain.OTPValidationOnCommit {
			if !constantTimeEqualString(rec.ActivationOTP, req.ActivationOTP) {
				rec.FailedAttempts++
				if rec.FailedAttempts >= rec.MaxFailedAttempts {
					fromStatus = rec.Status
					if err := statemachine.Apply(rec, domain.StatusBlocked); err == nil {
						lockedOut = true
					}
				}
				return rec, apperr.InvalidInput("activationOtp", "mismatch")
			}
		}

		fromStatus = rec.Status
		if err := statemachine.Apply(rec, domain.StatusActive); err != nil {
			return nil, err
		}
		return rec, nil
	})

	if rec == nil {
		return nil, fnErr
	}

	if lockedOut {
		s.recordLockout()
		s.recordTransitionSideEffects(ctx, rec, fromStatus)
	}
	if fnErr != nil {
		return nil, fnErr
	}

	if expiredNow {
		s.recordTransitionSideEffects(ctx, rec, fromStatus)
		return nil, apperr.Expired(req.ActivationID)
	}

	if noop {
		return &CommitActivationResponse{ActivationID: rec.ActivationID, ActivationStatus: string(rec.Status)}, nil
	}

	s.recordTransitionSideEffects(ctx, rec, fromStatus)

	return &CommitActivationResponse{
		ActivationID:     rec.ActivationID,
		ActivationStatus: string(rec.Status),
	}, nil
}
