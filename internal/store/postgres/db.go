// Package postgres is the production repository catalogue of §6
// "Persisted state": a lib/pq-backed database/sql connection, golang-migrate
// schema management, and one concrete implementation per store.*Repository
// interface, using SELECT ... FOR UPDATE for the atomic read-modify-write
// §5 demands of ActivationRepository.WithLock. Grounded on the teacher's
// internal/platform/database.Open and pkg/storage/postgres/base_store.go.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Open establishes a PostgreSQL connection using dsn and verifies
// connectivity with a ping, exactly like the teacher's
// internal/platform/database.Open.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store bundles every pa_* repository over one connection pool. cmd/
// appserver constructs one Store and assigns its methods directly
// onto service.Services's repository fields.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-open *sql.DB (see Open) with sqlx for the ergonomic
// struct-scanning the audit/history repositories use, matching the
// teacher's reason for carrying jmoiron/sqlx alongside database/sql.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Activations returns the ActivationRepository implementation.
func (s *Store) Activations() *ActivationStore { return &ActivationStore{db: s.db} }

// AppVersions returns the ApplicationVersionRepository implementation.
func (s *Store) AppVersions() *ApplicationVersionStore { return &ApplicationVersionStore{db: s.db} }

// MasterKeys returns the MasterKeyPairRepository implementation.
func (s *Store) MasterKeys() *MasterKeyPairStore { return &MasterKeyPairStore{db: s.db} }

// Audit returns the SignatureAuditRepository implementation.
func (s *Store) Audit() *SignatureAuditStore { return &SignatureAuditStore{db: s.db} }

// History returns the ActivationHistoryRepository implementation.
func (s *Store) History() *ActivationHistoryStore { return &ActivationHistoryStore{db: s.db} }

// Tokens returns the TokenRepository implementation.
func (s *Store) Tokens() *TokenStore { return &TokenStore{db: s.db} }

// Recovery returns the RecoveryRepository implementation.
func (s *Store) Recovery() *RecoveryStore { return &RecoveryStore{db: s.db} }
