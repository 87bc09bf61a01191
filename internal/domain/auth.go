package domain

import "time"

// RevokedToken is a ledger entry for a token invalidated before its natural expiry.
type RevokedToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// Expired reports whether the embedded token expiry has passed, after which
// the entry is no longer needed.
func (r RevokedToken) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
