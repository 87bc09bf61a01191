package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/account-service/pkg/util"
)

type stubRevocations struct {
	revoked map[string]bool
	err     error
	calls   int
}

func (s *stubRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.revoked[token], nil
}

func newGateApp(t *testing.T, gate *Gate) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code, "message": de.Message})
		},
	})
	app.Get("/me", gate.Handle, func(c *fiber.Ctx) error {
		id, ok := UserIDFromContext(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.JSON(fiber.Map{"id": id})
	})
	return app
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestGate(t *testing.T) {
	now := time.Now()
	tm := NewTokenManager("test-secret").WithClock(fixedClock(now))
	token, _, err := tm.Issue("user-1")
	require.NoError(t, err)
	revokedToken, _, err := tm.Issue("user-1")
	require.NoError(t, err)

	revocations := &stubRevocations{revoked: map[string]bool{revokedToken: true}}
	app := newGateApp(t, NewGate(tm, revocations))

	t.Run("cookie token binds identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "user-1", decode(t, resp)["id"])
	})

	t.Run("bearer header fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		req.Header.Set("Authorization", "Bearer "+revokedToken)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	cases := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing token", "", apperrors.CodeMissingToken},
		{"non bearer scheme", "Basic " + token, apperrors.CodeMissingToken},
		{"revoked token", "Bearer " + revokedToken, apperrors.CodeTokenRevoked},
		{"garbage token", "Bearer abc.def.ghi", apperrors.CodeInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tc.wantCode, decode(t, resp)["code"])
		})
	}
}

func TestGate_ExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-25 * time.Hour)
	token, _, err := NewTokenManager("test-secret").WithClock(fixedClock(issuedAt)).Issue("user-1")
	require.NoError(t, err)

	app := newGateApp(t, NewGate(NewTokenManager("test-secret"), &stubRevocations{}))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperrors.CodeInvalidToken, decode(t, resp)["code"])
}

func TestGate_RevocationCheckedBeforeVerify(t *testing.T) {
	revocations := &stubRevocations{revoked: map[string]bool{"forged": true}}
	app := newGateApp(t, NewGate(NewTokenManager("test-secret"), revocations))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer forged")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, apperrors.CodeTokenRevoked, decode(t, resp)["code"])
	assert.Equal(t, 1, revocations.calls)
}

func TestGate_LedgerFailure(t *testing.T) {
	tm := NewTokenManager("test-secret")
	token, _, err := tm.Issue("user-1")
	require.NoError(t, err)

	app := newGateApp(t, NewGate(tm, &stubRevocations{err: errors.New("db down")}))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, apperrors.CodeInternal, decode(t, resp)["code"])
}

func TestTokenFromRequestOutlivesRequest(t *testing.T) {
	var seen []string
	app := fiber.New()
	app.Get("/tok", func(c *fiber.Ctx) error {
		seen = append(seen, TokenFromRequest(c))
		return c.SendStatus(http.StatusNoContent)
	})

	first := httptest.NewRequest(http.MethodGet, "/tok", nil)
	first.AddCookie(&http.Cookie{Name: CookieName, Value: "aaaaaaaa"})
	second := httptest.NewRequest(http.MethodGet, "/tok", nil)
	second.Header.Set("Authorization", "Bearer bbbbbbbb")
	third := httptest.NewRequest(http.MethodGet, "/tok", nil)
	third.AddCookie(&http.Cookie{Name: CookieName, Value: "cccccccc"})

	for _, req := range []*http.Request{first, second, third} {
		_, err := app.Test(req)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}, seen)
}
