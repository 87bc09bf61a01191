package repository

import (
	"context"
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// RevokedTokenRepository persists the revocation ledger.
type RevokedTokenRepository interface {
	// Insert records the token. Inserting an existing token is a no-op.
	Insert(ctx context.Context, token *domain.RevokedToken) error
	Exists(ctx context.Context, token string) (bool, error)
	// DeleteExpired removes entries whose token expiry is at or before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type revokedTokenRepository struct {
	db DB
}

// NewRevokedTokenRepository constructs repository.
func NewRevokedTokenRepository(db DB) RevokedTokenRepository {
	return &revokedTokenRepository{db: db}
}

func (r *revokedTokenRepository) Insert(ctx context.Context, token *domain.RevokedToken) error {
	const query = `
        INSERT INTO revoked_tokens (token, user_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (token) DO NOTHING`
	_, err := r.db.Exec(ctx, query, token.Token, token.UserID, token.ExpiresAt)
	return err
}

func (r *revokedTokenRepository) Exists(ctx context.Context, token string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token=$1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *revokedTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM revoked_tokens WHERE expires_at <= $1`
	cmd, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
