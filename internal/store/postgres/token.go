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

// TokenStore implements store.TokenRepository over pa_token.
type TokenStore struct {
	db *sqlx.DB
}

type tokenRow struct {
	TokenID       string       `db:"token_id"`
	ActivationID  string       `db:"activation_id"`
	ApplicationID string       `db:"application_id"`
	UserID        string       `db:"user_id"`
	TokenSecret   []byte       `db:"token_secret"`
	SignatureType string       `db:"signature_type"`
	CreatedAt     sql.NullTime `db:"created_at"`
}

func (row *tokenRow) toDomain() *domain.Token {
	return &domain.Token{
		TokenID:       row.TokenID,
		ActivationID:  row.ActivationID,
		ApplicationID: row.ApplicationID,
		UserID:        row.UserID,
		TokenSecret:   row.TokenSecret,
		SignatureType: row.SignatureType,
		CreatedAt:     row.CreatedAt.Time,
	}
}

func (s *TokenStore) Create(ctx context.Context, token *domain.Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pa_token (token_id, activation_id, application_id, user_id, token_secret, signature_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		token.TokenID, token.ActivationID, token.ApplicationID, token.UserID,
		token.TokenSecret, token.SignatureType, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, tokenID string) (*domain.Token, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row, `
		SELECT token_id, activation_id, application_id, user_id, token_secret, signature_type, created_at
		FROM pa_token WHERE token_id = $1`, tokenID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select token: %w", err)
	}
	return row.toDomain(), nil
}

func (s *TokenStore) Delete(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pa_token WHERE token_id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

var _ store.TokenRepository = (*TokenStore)(nil)
