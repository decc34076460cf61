package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/store"
)

// ActivationStore is the production ActivationRepository: every mutating
// method that needs I2/I3/I4's atomicity guarantee runs inside a single
// `SELECT ... FOR UPDATE` / `UPDATE` transaction (§5 "Per-activation
// serialization").
type ActivationStore struct {
	db *sqlx.DB
}

type activationRow struct {
	ActivationID              string         `db:"activation_id"`
	ActivationCode            sql.NullString `db:"activation_code"`
	ActivationIDShort         sql.NullString `db:"activation_id_short"`
	ApplicationID             string         `db:"application_id"`
	UserID                    string         `db:"user_id"`
	ExternalUserID            sql.NullString `db:"external_user_id"`
	MasterKeyPairRef          int64          `db:"master_keypair_ref"`
	ServerPublicKey           []byte         `db:"server_public_key"`
	ServerPrivateKeyEnc       []byte         `db:"server_private_key_enc"`
	EncMode                   string         `db:"enc_mode"`
	DevicePublicKey           []byte         `db:"device_public_key"`
	Counter                   int64          `db:"counter"`
	CtrData                   []byte         `db:"ctr_data"`
	FailedAttempts            int32          `db:"failed_attempts"`
	MaxFailedAttempts         int32          `db:"max_failed_attempts"`
	Status                    string         `db:"status"`
	TimestampCreated          sql.NullTime   `db:"timestamp_created"`
	TimestampActivationExpire sql.NullTime   `db:"timestamp_activation_expire"`
	TimestampLastUsed         sql.NullTime   `db:"timestamp_last_used"`
	ActivationOTP             sql.NullString `db:"activation_otp"`
	ActivationOTPValidation   string         `db:"activation_otp_validation"`
	Version                   int16          `db:"version"`
	ActivationFlags           pq.StringArray `db:"activation_flags"`
	BlockedReason             sql.NullString `db:"blocked_reason"`
}

func (row *activationRow) toDomain() (*domain.ActivationRecord, error) {
	rec := &domain.ActivationRecord{
		ActivationID:              row.ActivationID,
		ActivationCode:            row.ActivationCode.String,
		ActivationIDShort:         row.ActivationIDShort.String,
		ApplicationID:             row.ApplicationID,
		UserID:                    row.UserID,
		ExternalUserID:            row.ExternalUserID.String,
		MasterKeyPairRef:          row.MasterKeyPairRef,
		ServerPrivateKeyEnc:       row.ServerPrivateKeyEnc,
		EncMode:                   domain.PrivateKeyEncryption(row.EncMode),
		Counter:                   uint64(row.Counter),
		FailedAttempts:            uint32(row.FailedAttempts),
		MaxFailedAttempts:         uint32(row.MaxFailedAttempts),
		Status:                    domain.Status(row.Status),
		TimestampCreated:          row.TimestampCreated.Time,
		TimestampActivationExpire: row.TimestampActivationExpire.Time,
		TimestampLastUsed:         row.TimestampLastUsed.Time,
		ActivationOTP:             row.ActivationOTP.String,
		ActivationOTPValidation:   domain.OTPValidation(row.ActivationOTPValidation),
		Version:                   domain.ProtocolVersion(row.Version),
		ActivationFlags:           append([]string(nil), row.ActivationFlags...),
		BlockedReason:             row.BlockedReason.String,
	}
	if len(row.ServerPublicKey) > 0 {
		pub, err := pacrypto.PublicKeyFromBytes(row.ServerPublicKey)
		if err != nil {
			return nil, fmt.Errorf("decode server public key: %w", err)
		}
		rec.ServerPublicKey = pub
	}
	if len(row.DevicePublicKey) > 0 {
		pub, err := pacrypto.PublicKeyFromBytes(row.DevicePublicKey)
		if err != nil {
			return nil, fmt.Errorf("decode device public key: %w", err)
		}
		rec.DevicePublicKey = pub
	}
	if len(row.CtrData) == 16 {
		copy(rec.CtrData[:], row.CtrData)
	}
	return rec, nil
}

func fromDomain(rec *domain.ActivationRecord) *activationRow {
	row := &activationRow{
		ActivationID:            rec.ActivationID,
		ActivationCode:          sql.NullString{String: rec.ActivationCode, Valid: rec.ActivationCode != ""},
		ActivationIDShort:       sql.NullString{String: rec.ActivationIDShort, Valid: rec.ActivationIDShort != ""},
		ApplicationID:           rec.ApplicationID,
		UserID:                  rec.UserID,
		ExternalUserID:          sql.NullString{String: rec.ExternalUserID, Valid: rec.ExternalUserID != ""},
		MasterKeyPairRef:        rec.MasterKeyPairRef,
		ServerPrivateKeyEnc:     rec.ServerPrivateKeyEnc,
		EncMode:                 string(rec.EncMode),
		Counter:                 int64(rec.Counter),
		CtrData:                 append([]byte(nil), rec.CtrData[:]...),
		FailedAttempts:          int32(rec.FailedAttempts),
		MaxFailedAttempts:       int32(rec.MaxFailedAttempts),
		Status:                  string(rec.Status),
		TimestampCreated:        sql.NullTime{Time: rec.TimestampCreated, Valid: !rec.TimestampCreated.IsZero()},
		TimestampActivationExpire: sql.NullTime{Time: rec.TimestampActivationExpire, Valid: !rec.TimestampActivationExpire.IsZero()},
		TimestampLastUsed:       sql.NullTime{Time: rec.TimestampLastUsed, Valid: !rec.TimestampLastUsed.IsZero()},
		ActivationOTP:           sql.NullString{String: rec.ActivationOTP, Valid: rec.ActivationOTP != ""},
		ActivationOTPValidation: string(rec.ActivationOTPValidation),
		Version:                 int16(rec.Version),
		ActivationFlags:         pq.StringArray(rec.ActivationFlags),
		BlockedReason:           sql.NullString{String: rec.BlockedReason, Valid: rec.BlockedReason != ""},
	}
	if rec.ServerPublicKey != nil {
		row.ServerPublicKey = pacrypto.PublicKeyToUncompressed(rec.ServerPublicKey)
	}
	if rec.DevicePublicKey != nil {
		row.DevicePublicKey = pacrypto.PublicKeyToUncompressed(rec.DevicePublicKey)
	}
	return row
}

const activationColumns = `activation_id, activation_code, activation_id_short, application_id, user_id,
	external_user_id, master_keypair_ref, server_public_key, server_private_key_enc, enc_mode,
	device_public_key, counter, ctr_data, failed_attempts, max_failed_attempts, status,
	timestamp_created, timestamp_activation_expire, timestamp_last_used, activation_otp,
	activation_otp_validation, version, activation_flags, blocked_reason`

func (s *ActivationStore) Create(ctx context.Context, rec *domain.ActivationRecord) error {
	row := fromDomain(rec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pa_activation (`+activationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		row.ActivationID, row.ActivationCode, row.ActivationIDShort, row.ApplicationID, row.UserID,
		row.ExternalUserID, row.MasterKeyPairRef, row.ServerPublicKey, row.ServerPrivateKeyEnc, row.EncMode,
		row.DevicePublicKey, row.Counter, row.CtrData, row.FailedAttempts, row.MaxFailedAttempts, row.Status,
		row.TimestampCreated, row.TimestampActivationExpire, row.TimestampLastUsed, row.ActivationOTP,
		row.ActivationOTPValidation, row.Version, row.ActivationFlags, row.BlockedReason,
	)
	if err != nil {
		return fmt.Errorf("insert activation: %w", err)
	}
	return nil
}

func (s *ActivationStore) Get(ctx context.Context, activationID string) (*domain.ActivationRecord, error) {
	var row activationRow
	err := s.db.GetContext(ctx, &row, `SELECT `+activationColumns+` FROM pa_activation WHERE activation_id = $1`, activationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select activation: %w", err)
	}
	return row.toDomain()
}

func (s *ActivationStore) GetByActivationCode(ctx context.Context, code string) (*domain.ActivationRecord, error) {
	var row activationRow
	err := s.db.GetContext(ctx, &row, `SELECT `+activationColumns+` FROM pa_activation WHERE activation_code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select activation by code: %w", err)
	}
	return row.toDomain()
}

func (s *ActivationStore) GetByActivationIDShort(ctx context.Context, idShort string) (*domain.ActivationRecord, error) {
	var row activationRow
	err := s.db.GetContext(ctx, &row, `SELECT `+activationColumns+` FROM pa_activation WHERE activation_id_short = $1`, idShort)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select activation by short id: %w", err)
	}
	return row.toDomain()
}

// WithLock is the single choke point enforcing I2/I3/I4: it opens a
// transaction, takes the row-level write lock with `SELECT ... FOR
// UPDATE`, invokes fn, and persists every mutable field back in the same
// transaction before committing — matching the teacher's jam/store_pg.go
// `FOR UPDATE` pattern.
func (s *ActivationStore) WithLock(ctx context.Context, activationID string, fn func(rec *domain.ActivationRecord) (*domain.ActivationRecord, error)) (*domain.ActivationRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var row activationRow
	err = tx.GetContext(ctx, &row, `SELECT `+activationColumns+` FROM pa_activation WHERE activation_id = $1 FOR UPDATE`, activationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select activation for update: %w", err)
	}

	current, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	updated, fnErr := fn(current)
	if updated == nil {
		// Even on a rejected fn, commit the transaction so any prior
		// SELECT ... FOR UPDATE lock acquisition cost isn't wasted on a
		// spurious rollback-driven retry; there is nothing to persist.
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, fmt.Errorf("commit read-only lock tx: %w", commitErr)
		}
		return nil, fnErr
	}

	newRow := fromDomain(updated)
	_, execErr := tx.ExecContext(ctx, `
		UPDATE pa_activation SET
			activation_code = $2, activation_id_short = $3, server_public_key = $4,
			server_private_key_enc = $5, enc_mode = $6, device_public_key = $7, counter = $8,
			ctr_data = $9, failed_attempts = $10, max_failed_attempts = $11, status = $12,
			timestamp_last_used = $13, activation_otp = $14, activation_otp_validation = $15,
			activation_flags = $16, blocked_reason = $17, external_user_id = $18, version = $19
		WHERE activation_id = $1`,
		newRow.ActivationID, newRow.ActivationCode, newRow.ActivationIDShort, newRow.ServerPublicKey,
		newRow.ServerPrivateKeyEnc, newRow.EncMode, newRow.DevicePublicKey, newRow.Counter,
		newRow.CtrData, newRow.FailedAttempts, newRow.MaxFailedAttempts, newRow.Status,
		newRow.TimestampLastUsed, newRow.ActivationOTP, newRow.ActivationOTPValidation,
		newRow.ActivationFlags, newRow.BlockedReason, newRow.ExternalUserID, newRow.Version,
	)
	if execErr != nil {
		return nil, fmt.Errorf("update activation: %w", execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, fmt.Errorf("commit activation update: %w", commitErr)
	}

	return updated, fnErr
}

func (s *ActivationStore) ActivationCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM pa_activation WHERE activation_code = $1 AND status IN ('CREATED','PENDING_COMMIT'))`, code)
	if err != nil {
		return false, fmt.Errorf("check activation code exists: %w", err)
	}
	return exists, nil
}

func (s *ActivationStore) ActivationIDExists(ctx context.Context, activationID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM pa_activation WHERE activation_id = $1)`, activationID)
	if err != nil {
		return false, fmt.Errorf("check activation id exists: %w", err)
	}
	return exists, nil
}

func (s *ActivationStore) ListExpirable(ctx context.Context, limit int) ([]*domain.ActivationRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []activationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+activationColumns+` FROM pa_activation
		WHERE status IN ('CREATED','PENDING_COMMIT') AND timestamp_activation_expire < now()
		ORDER BY timestamp_activation_expire
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable activations: %w", err)
	}
	return rowsToDomain(rows)
}

func (s *ActivationStore) ListByUser(ctx context.Context, applicationID, userID string) ([]*domain.ActivationRecord, error) {
	var rows []activationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+activationColumns+` FROM pa_activation WHERE application_id = $1 AND user_id = $2
		ORDER BY timestamp_created DESC`, applicationID, userID)
	if err != nil {
		return nil, fmt.Errorf("list activations by user: %w", err)
	}
	return rowsToDomain(rows)
}

func rowsToDomain(rows []activationRow) ([]*domain.ActivationRecord, error) {
	out := make([]*domain.ActivationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

var _ store.ActivationRepository = (*ActivationStore)(nil)
