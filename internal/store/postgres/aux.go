package postgres

import (
	"context"
	"crypto/ecdsa"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/jmoiron/sqlx"

	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/store"
)

// ApplicationVersionStore implements store.ApplicationVersionRepository
// over pa_application_version.
type ApplicationVersionStore struct {
	db *sqlx.DB
}

type applicationVersionRow struct {
	ApplicationID     string `db:"application_id"`
	ApplicationKey    string `db:"application_key"`
	ApplicationSecret string `db:"application_secret"`
	Supported         bool   `db:"supported"`
}

func (row *applicationVersionRow) toDomain() *domain.ApplicationVersion {
	return &domain.ApplicationVersion{
		ApplicationID:     row.ApplicationID,
		ApplicationKey:    row.ApplicationKey,
		ApplicationSecret: row.ApplicationSecret,
		Supported:         row.Supported,
	}
}

func (s *ApplicationVersionStore) GetByApplicationKey(ctx context.Context, applicationKey string) (*domain.ApplicationVersion, error) {
	var row applicationVersionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT application_id, application_key, application_secret, supported
		FROM pa_application_version WHERE application_key = $1`, applicationKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select application version: %w", err)
	}
	return row.toDomain(), nil
}

var _ store.ApplicationVersionRepository = (*ApplicationVersionStore)(nil)

// MasterKeyPairStore implements store.MasterKeyPairRepository over
// pa_master_keypair. Private keys are stored as raw 32-byte scalars
// (ecdsa.PrivateKey.D); the public point is recomputed from the curve
// rather than trusted from storage, matching crypto.GenerateKeyPair's
// invariant that D and the point always agree.
type MasterKeyPairStore struct {
	db *sqlx.DB
}

type masterKeyPairRow struct {
	ID            int64     `db:"id"`
	ApplicationID string    `db:"application_id"`
	PublicKey     []byte    `db:"public_key"`
	PrivateKey    []byte    `db:"private_key"`
	CreatedAt     sql.NullTime `db:"created_at"`
}

func (row *masterKeyPairRow) toDomain() (*domain.MasterKeyPair, error) {
	pub, err := pacrypto.PublicKeyFromBytes(row.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode master public key: %w", err)
	}
	priv := &ecdsa.PrivateKey{
		PublicKey: *pub,
		D:         new(big.Int).SetBytes(row.PrivateKey),
	}
	return &domain.MasterKeyPair{
		ID:            row.ID,
		ApplicationID: row.ApplicationID,
		PublicKey:     pub,
		PrivateKey:    priv,
		CreatedAt:     row.CreatedAt.Time,
	}, nil
}

func (s *MasterKeyPairStore) GetCurrent(ctx context.Context, applicationID string) (*domain.MasterKeyPair, error) {
	var row masterKeyPairRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, application_id, public_key, private_key, created_at
		FROM pa_master_keypair WHERE application_id = $1
		ORDER BY created_at DESC LIMIT 1`, applicationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select current master keypair: %w", err)
	}
	return row.toDomain()
}

func (s *MasterKeyPairStore) GetByID(ctx context.Context, id int64) (*domain.MasterKeyPair, error) {
	var row masterKeyPairRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, application_id, public_key, private_key, created_at
		FROM pa_master_keypair WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select master keypair by id: %w", err)
	}
	return row.toDomain()
}

var _ store.MasterKeyPairRepository = (*MasterKeyPairStore)(nil)

// SignatureAuditStore implements store.SignatureAuditRepository over the
// append-only pa_signature_audit table.
type SignatureAuditStore struct {
	db *sqlx.DB
}

type signatureAuditRow struct {
	ID              int64     `db:"id"`
	ActivationID    string    `db:"activation_id"`
	ApplicationID   string    `db:"application_id"`
	UserID          string    `db:"user_id"`
	SignatureType   string    `db:"signature_type"`
	DataFingerprint string    `db:"data_fingerprint"`
	Result          string    `db:"result"`
	Notes           sql.NullString `db:"notes"`
	Counter         int64     `db:"counter"`
	Timestamp       sql.NullTime `db:"timestamp"`
}

func (row *signatureAuditRow) toDomain() *domain.SignatureAuditEntry {
	return &domain.SignatureAuditEntry{
		ID:              row.ID,
		ActivationID:    row.ActivationID,
		ApplicationID:   row.ApplicationID,
		UserID:          row.UserID,
		SignatureType:   row.SignatureType,
		DataFingerprint: row.DataFingerprint,
		Result:          domain.SignatureResult(row.Result),
		Notes:           row.Notes.String,
		Counter:         uint64(row.Counter),
		Timestamp:       row.Timestamp.Time,
	}
}

func (s *SignatureAuditStore) Append(ctx context.Context, entry *domain.SignatureAuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pa_signature_audit
			(activation_id, application_id, user_id, signature_type, data_fingerprint, result, notes, counter, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ActivationID, entry.ApplicationID, entry.UserID, entry.SignatureType,
		entry.DataFingerprint, string(entry.Result), sql.NullString{String: entry.Notes, Valid: entry.Notes != ""},
		int64(entry.Counter), entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert signature audit: %w", err)
	}
	return nil
}

func (s *SignatureAuditStore) ListByActivation(ctx context.Context, activationID string, limit int) ([]*domain.SignatureAuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []signatureAuditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, activation_id, application_id, user_id, signature_type, data_fingerprint, result, notes, counter, timestamp
		FROM pa_signature_audit WHERE activation_id = $1
		ORDER BY timestamp DESC LIMIT $2`, activationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list signature audit: %w", err)
	}
	out := make([]*domain.SignatureAuditEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

var _ store.SignatureAuditRepository = (*SignatureAuditStore)(nil)

// ActivationHistoryStore implements store.ActivationHistoryRepository
// over the append-only pa_activation_history table.
type ActivationHistoryStore struct {
	db *sqlx.DB
}

type activationHistoryRow struct {
	ID              int64        `db:"id"`
	ActivationID    string       `db:"activation_id"`
	Status          string       `db:"status"`
	Timestamp       sql.NullTime `db:"timestamp"`
	ExternalUserID  sql.NullString `db:"external_user_id"`
}

func (row *activationHistoryRow) toDomain() *domain.ActivationHistoryEntry {
	return &domain.ActivationHistoryEntry{
		ID:             row.ID,
		ActivationID:   row.ActivationID,
		Status:         domain.Status(row.Status),
		Timestamp:      row.Timestamp.Time,
		ExternalUserID: row.ExternalUserID.String,
	}
}

func (s *ActivationHistoryStore) Append(ctx context.Context, entry *domain.ActivationHistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pa_activation_history (activation_id, status, timestamp, external_user_id)
		VALUES ($1,$2,$3,$4)`,
		entry.ActivationID, string(entry.Status), entry.Timestamp,
		sql.NullString{String: entry.ExternalUserID, Valid: entry.ExternalUserID != ""},
	)
	if err != nil {
		return fmt.Errorf("insert activation history: %w", err)
	}
	return nil
}

func (s *ActivationHistoryStore) ListByActivation(ctx context.Context, activationID string) ([]*domain.ActivationHistoryEntry, error) {
	var rows []activationHistoryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, activation_id, status, timestamp, external_user_id
		FROM pa_activation_history WHERE activation_id = $1 ORDER BY timestamp`, activationID)
	if err != nil {
		return nil, fmt.Errorf("list activation history: %w", err)
	}
	out := make([]*domain.ActivationHistoryEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

var _ store.ActivationHistoryRepository = (*ActivationHistoryStore)(nil)
