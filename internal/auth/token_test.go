package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTokenManager_IssueAndVerify(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tm := NewTokenManager("test-secret").WithClock(fixedClock(issuedAt))

	token, expiresAt, err := tm.Issue("user-123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, issuedAt.Add(24*time.Hour), expiresAt)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "user-123", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())
}

func TestTokenManager_IssueIsUniquePerCall(t *testing.T) {
	tm := NewTokenManager("test-secret").WithClock(fixedClock(time.Now()))

	first, _, err := tm.Issue("user-123")
	require.NoError(t, err)
	second, _, err := tm.Issue("user-123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenManager_Verify(t *testing.T) {
	issuedAt := time.Now()
	tm := NewTokenManager("test-secret").WithClock(fixedClock(issuedAt))
	valid, _, err := tm.Issue("user-123")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID:           "user-123",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: "user-123"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour))},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		verifier *TokenManager
		token    string
	}{
		{"expired after 24 hours", tm.WithClock(fixedClock(issuedAt.Add(24*time.Hour + time.Second))), valid},
		{"wrong secret", NewTokenManager("other-secret").WithClock(fixedClock(issuedAt)), valid},
		{"malformed", tm, "not-a-jwt"},
		{"empty", tm, ""},
		{"tampered", tm, valid + "x"},
		{"alg none", tm, noneToken},
		{"missing expiry", tm, noExpiry},
		{"missing user id", tm, noUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tt.verifier.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestTokenManager_VerifyJustBeforeExpiry(t *testing.T) {
	issuedAt := time.Now()
	tm := NewTokenManager("test-secret").WithClock(fixedClock(issuedAt))
	token, _, err := tm.Issue("user-123")
	require.NoError(t, err)

	_, err = tm.WithClock(fixedClock(issuedAt.Add(23 * time.Hour))).Verify(token)
	assert.NoError(t, err)
}
