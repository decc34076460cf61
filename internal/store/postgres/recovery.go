package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"powerauth-server/internal/domain"
	"powerauth-server/internal/store"
)

// RecoveryStore implements store.RecoveryRepository over
// pa_recovery_config/pa_recovery_code/pa_recovery_puk.
type RecoveryStore struct {
	db *sqlx.DB
}

type recoveryConfigRow struct {
	ApplicationID              string `db:"application_id"`
	Activated                  bool   `db:"activated"`
	RecoveryPostcardEnabled    bool   `db:"recovery_postcard_enabled"`
	AllowMultipleRecoveryCodes bool   `db:"allow_multiple_recovery_codes"`
}

func (row *recoveryConfigRow) toDomain() *domain.RecoveryConfig {
	return &domain.RecoveryConfig{
		ApplicationID:              row.ApplicationID,
		Activated:                  row.Activated,
		RecoveryPostcardEnabled:    row.RecoveryPostcardEnabled,
		AllowMultipleRecoveryCodes: row.AllowMultipleRecoveryCodes,
	}
}

func (s *RecoveryStore) GetConfig(ctx context.Context, applicationID string) (*domain.RecoveryConfig, error) {
	var row recoveryConfigRow
	err := s.db.GetContext(ctx, &row, `
		SELECT application_id, activated, recovery_postcard_enabled, allow_multiple_recovery_codes
		FROM pa_recovery_config WHERE application_id = $1`, applicationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select recovery config: %w", err)
	}
	return row.toDomain(), nil
}

func (s *RecoveryStore) SaveConfig(ctx context.Context, cfg *domain.RecoveryConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pa_recovery_config (application_id, activated, recovery_postcard_enabled, allow_multiple_recovery_codes)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (application_id) DO UPDATE SET
			activated = EXCLUDED.activated,
			recovery_postcard_enabled = EXCLUDED.recovery_postcard_enabled,
			allow_multiple_recovery_codes = EXCLUDED.allow_multiple_recovery_codes`,
		cfg.ApplicationID, cfg.Activated, cfg.RecoveryPostcardEnabled, cfg.AllowMultipleRecoveryCodes,
	)
	if err != nil {
		return fmt.Errorf("upsert recovery config: %w", err)
	}
	return nil
}

type recoveryCodeRow struct {
	RecoveryCodeID string         `db:"recovery_code_id"`
	ApplicationID  string         `db:"application_id"`
	UserID         string         `db:"user_id"`
	ActivationID   sql.NullString `db:"activation_id"`
	Code           string         `db:"code"`
	Status         string         `db:"status"`
}

type recoveryPUKRow struct {
	RecoveryCodeID string `db:"recovery_code_id"`
	PUKIndex       int    `db:"puk_index"`
	PUKHash        []byte `db:"puk_hash"`
	Status         string `db:"status"`
}

func (s *RecoveryStore) Create(ctx context.Context, code *domain.RecoveryCode) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pa_recovery_code (recovery_code_id, application_id, user_id, activation_id, code, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		code.RecoveryCodeID, code.ApplicationID, code.UserID,
		sql.NullString{String: code.ActivationID, Valid: code.ActivationID != ""}, code.Code, code.Status,
	)
	if err != nil {
		return fmt.Errorf("insert recovery code: %w", err)
	}

	for _, puk := range code.PUKs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pa_recovery_puk (recovery_code_id, puk_index, puk_hash, status)
			VALUES ($1,$2,$3,$4)`,
			code.RecoveryCodeID, puk.PUKIndex, puk.PUKHash, puk.Status,
		)
		if err != nil {
			return fmt.Errorf("insert recovery puk: %w", err)
		}
	}

	return tx.Commit()
}

func (s *RecoveryStore) loadByWhere(ctx context.Context, q sqlx.QueryerContext, where string, arg string) (*domain.RecoveryCode, error) {
	var row recoveryCodeRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT recovery_code_id, application_id, user_id, activation_id, code, status
		FROM pa_recovery_code WHERE `+where+` = $1`, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select recovery code: %w", err)
	}

	var pukRows []recoveryPUKRow
	err = sqlx.SelectContext(ctx, q, &pukRows, `
		SELECT recovery_code_id, puk_index, puk_hash, status
		FROM pa_recovery_puk WHERE recovery_code_id = $1 ORDER BY puk_index`, row.RecoveryCodeID)
	if err != nil {
		return nil, fmt.Errorf("select recovery puks: %w", err)
	}

	return rowToRecoveryCode(row, pukRows), nil
}

func rowToRecoveryCode(row recoveryCodeRow, pukRows []recoveryPUKRow) *domain.RecoveryCode {
	rc := &domain.RecoveryCode{
		RecoveryCodeID: row.RecoveryCodeID,
		ApplicationID:  row.ApplicationID,
		UserID:         row.UserID,
		ActivationID:   row.ActivationID.String,
		Code:           row.Code,
		Status:         row.Status,
		PUKs:           make([]domain.RecoveryPUK, 0, len(pukRows)),
	}
	for _, p := range pukRows {
		rc.PUKs = append(rc.PUKs, domain.RecoveryPUK{
			PUKIndex: p.PUKIndex,
			PUKHash:  p.PUKHash,
			Status:   p.Status,
		})
	}
	return rc
}

func (s *RecoveryStore) GetByActivation(ctx context.Context, activationID string) (*domain.RecoveryCode, error) {
	return s.loadByWhere(ctx, s.db, "activation_id", activationID)
}

func (s *RecoveryStore) GetByCode(ctx context.Context, code string) (*domain.RecoveryCode, error) {
	return s.loadByWhere(ctx, s.db, "code", code)
}

// WithLock mirrors ActivationStore.WithLock: it locks the recovery code
// row (and, transitively, its PUKs) for the duration of a confirm/revoke
// operation so concurrent PUK consumption cannot double-spend a PUK.
func (s *RecoveryStore) WithLock(ctx context.Context, recoveryCodeID string, fn func(*domain.RecoveryCode) (*domain.RecoveryCode, error)) (*domain.RecoveryCode, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var row recoveryCodeRow
	err = tx.GetContext(ctx, &row, `
		SELECT recovery_code_id, application_id, user_id, activation_id, code, status
		FROM pa_recovery_code WHERE recovery_code_id = $1 FOR UPDATE`, recoveryCodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select recovery code for update: %w", err)
	}

	var pukRows []recoveryPUKRow
	err = tx.SelectContext(ctx, &pukRows, `
		SELECT recovery_code_id, puk_index, puk_hash, status
		FROM pa_recovery_puk WHERE recovery_code_id = $1 ORDER BY puk_index FOR UPDATE`, recoveryCodeID)
	if err != nil {
		return nil, fmt.Errorf("select recovery puks for update: %w", err)
	}

	current := rowToRecoveryCode(row, pukRows)
	updated, fnErr := fn(current)
	if updated == nil {
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, fmt.Errorf("commit read-only lock tx: %w", commitErr)
		}
		return nil, fnErr
	}

	_, execErr := tx.ExecContext(ctx, `UPDATE pa_recovery_code SET status = $2 WHERE recovery_code_id = $1`,
		updated.RecoveryCodeID, updated.Status)
	if execErr != nil {
		return nil, fmt.Errorf("update recovery code: %w", execErr)
	}

	for _, puk := range updated.PUKs {
		_, execErr = tx.ExecContext(ctx, `
			UPDATE pa_recovery_puk SET status = $3 WHERE recovery_code_id = $1 AND puk_index = $2`,
			updated.RecoveryCodeID, puk.PUKIndex, puk.Status)
		if execErr != nil {
			return nil, fmt.Errorf("update recovery puk: %w", execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, fmt.Errorf("commit recovery update: %w", commitErr)
	}

	return updated, fnErr
}

var _ store.RecoveryRepository = (*RecoveryStore)(nil)
