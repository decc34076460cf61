package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"powerauth-server/internal/domain"
)

func newMockStore(t *testing.T) (*ActivationStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	sdb := sqlx.NewDb(db, "postgres")
	return &ActivationStore{db: sdb}, mock, func() { db.Close() }
}

func activationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"activation_id", "activation_code", "activation_id_short", "application_id", "user_id",
		"external_user_id", "master_keypair_ref", "server_public_key", "server_private_key_enc", "enc_mode",
		"device_public_key", "counter", "ctr_data", "failed_attempts", "max_failed_attempts", "status",
		"timestamp_created", "timestamp_activation_expire", "timestamp_last_used", "activation_otp",
		"activation_otp_validation", "version", "activation_flags", "blocked_reason",
	})
}

// TestWithLockUsesForUpdate asserts the locking read takes a row-level
// write lock and the mutation is persisted in the same transaction,
// matching the teacher's migrations_test.go sqlmock style.
func TestWithLockUsesForUpdate(t *testing.T) {
	store, mock, closeDB := newMockStore(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("act-1").
		WillReturnRows(activationRows().AddRow(
			"act-1", "AAAAA-AAAAA-AAAAA-AAAAA", nil, "app-1", "user-1",
			nil, int64(1), nil, nil, "NO_ENCRYPTION",
			nil, int64(0), nil, int32(0), int32(5), "CREATED",
			now, now.Add(time.Hour), nil, nil,
			"NONE", int16(3), nil, nil,
		))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pa_activation SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := store.WithLock(context.Background(), "act-1", func(rec *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		rec.Status = domain.StatusPendingCommit
		return rec, nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if updated.Status != domain.StatusPendingCommit {
		t.Fatalf("expected status PENDING_COMMIT, got %s", updated.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// TestWithLockRejectedTransitionCommitsWithoutUpdate asserts a nil
// return from fn still commits the read-only lock instead of leaving
// the transaction open, but issues no UPDATE.
func TestWithLockRejectedTransitionCommitsWithoutUpdate(t *testing.T) {
	store, mock, closeDB := newMockStore(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("act-1").
		WillReturnRows(activationRows().AddRow(
			"act-1", nil, "12345678", "app-1", "user-1",
			nil, int64(1), nil, nil, "NO_ENCRYPTION",
			nil, int64(0), nil, int32(5), int32(5), "BLOCKED",
			now, now.Add(time.Hour), nil, nil,
			"NONE", int16(2), nil, "too many failed attempts",
		))
	mock.ExpectCommit()

	_, err := store.WithLock(context.Background(), "act-1", func(rec *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		return nil, errors.New("invalid transition")
	})
	if err == nil {
		t.Fatalf("expected error from rejected transition")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestActivationCodeExists(t *testing.T) {
	store, mock, closeDB := newMockStore(t)
	defer closeDB()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM pa_activation WHERE activation_code")).
		WithArgs("AAAAA-AAAAA-AAAAA-AAAAA").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.ActivationCodeExists(context.Background(), "AAAAA-AAAAA-AAAAA-AAAAA")
	if err != nil {
		t.Fatalf("ActivationCodeExists: %v", err)
	}
	if !exists {
		t.Fatalf("expected exists=true")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
