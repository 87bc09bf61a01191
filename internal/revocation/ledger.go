// Package revocation keeps the set of tokens that were invalidated before
// their natural expiry.
//
// The repository is the source of truth. When a Redis client is supplied,
// every revocation is also written there with a TTL ending at the token's
// expiry, and lookups consult Redis first. Entries past their expiry are
// unnecessary because the token no longer verifies, so Prune removes them.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
)

const cacheKeyPrefix = "revoked:"

// Ledger records and answers revocations.
type Ledger struct {
	store  repository.RevokedTokenRepository
	cache  *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithCache enables the Redis read-through cache. A nil client is ignored.
func WithCache(client *redis.Client) Option {
	return func(l *Ledger) { l.cache = client }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger builds a ledger over store.
func NewLedger(store repository.RevokedTokenRepository, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Revoke records token as invalid until expiresAt. Revoking the same token
// again is a no-op, and a token already past expiresAt is not recorded.
func (l *Ledger) Revoke(ctx context.Context, token, userID string, expiresAt time.Time) error {
	if token == "" {
		return errors.New("empty token")
	}
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}

	entry := &domain.RevokedToken{Token: token, UserID: userID, ExpiresAt: expiresAt}
	if err := l.store.Insert(ctx, entry); err != nil {
		return err
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, cacheKey(token), userID, ttl).Err(); err != nil {
			l.logger.Warn("revocation cache write failed", zap.Error(err))
		}
	}
	return nil
}

// IsRevoked reports whether token has been revoked.
func (l *Ledger) IsRevoked(ctx context.Context, token string) (bool, error) {
	if l.cache != nil {
		n, err := l.cache.Exists(ctx, cacheKey(token)).Result()
		switch {
		case err != nil:
			l.logger.Warn("revocation cache read failed", zap.Error(err))
		case n > 0:
			return true, nil
		}
	}
	return l.store.Exists(ctx, token)
}

// Prune deletes entries whose token has expired and returns how many were removed.
func (l *Ledger) Prune(ctx context.Context) (int64, error) {
	return l.store.DeleteExpired(ctx, l.now())
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
