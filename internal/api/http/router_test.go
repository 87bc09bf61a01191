package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/repository/memory"
	"github.com/spec-kit/account-service/internal/revocation"
	"github.com/spec-kit/account-service/internal/service"
)

type stubImages struct{}

func (stubImages) Upload(_ context.Context, _ []byte, contentType string) (string, error) {
	return "https://cdn.example.com/" + strings.TrimPrefix(contentType, "image/"), nil
}

type testServer struct {
	app     *fiber.App
	revoked *memory.RevokedTokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", BcryptCost: bcrypt.MinCost}}

	revoked := memory.NewRevokedTokens()
	ledger := revocation.NewLedger(revoked, logger)
	accounts := service.NewAccountService(cfg, service.AccountDependencies{
		UserRepo:    memory.NewUsers(),
		Revocations: ledger,
		Images:      stubImages{},
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      logger,
	})

	app := fiber.New(fiber.Config{Immutable: true, ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(app, logger, metrics, MiddlewareConfig{CORSOrigins: "*"})
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("account-service", "test", &persistence.Postgres{}, &persistence.Redis{}, metrics),
		Users:  handlers.NewUsersHandler(accounts, true),
		Gate:   auth.NewGate(accounts.TokenManager(), ledger),
	})
	return &testServer{app: app, revoked: revoked}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/user/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return body["token"].(string)
}

func TestAliceScenario(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/user/register", "", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "pw1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Account created successfully", body["message"])

	resp, body = s.do(t, http.MethodPost, "/user/login", "", map[string]string{"username": "alice", "password": "pw1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)
	require.NotEmpty(t, token)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "passwordHash")

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	assert.Equal(t, 86400, cookie.MaxAge)

	resp, _ = s.do(t, http.MethodGet, "/user/getUser/alice", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/user/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, s.revoked.Len())

	resp, body = s.do(t, http.MethodGet, "/user/getUser/alice", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_REVOKED", body["code"])
	assert.Equal(t, false, body["success"])
}

func TestCookieAuthentication(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})
	token := s.login(t, "alice", "pw1")

	req := httptest.NewRequest(http.MethodGet, "/user/getUser/alice", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	resp, body := s.send(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])
}

func TestGateRejections(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/user/getSuggestedUsers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "MISSING_TOKEN", body["code"])

	resp, body = s.do(t, http.MethodGet, "/user/getSuggestedUsers", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["code"])
}

func TestRegisterConflictsAndValidation(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})

	resp, body := s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "User already exist with this email", body["message"])

	resp, body = s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Something is missing", body["message"])

	req := httptest.NewRequest(http.MethodPost, "/user/register", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, body = s.send(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "bob", "email": "b@x.com", "password": "pw2"})

	resp, body := s.do(t, http.MethodPost, "/user/login", "", map[string]string{"username": "alice", "email": "b@x.com", "password": "pw1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["message"])

	resp, body = s.do(t, http.MethodPost, "/user/login", "", map[string]string{"email": "a@x.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Incorrect password", body["message"])
}

func TestFollowFlow(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "bob", "email": "b@x.com", "password": "pw2"})
	token := s.login(t, "alice", "pw1")

	resp, body := s.do(t, http.MethodGet, "/user/getSuggestedUsers", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["users"], 1)

	resp, body = s.do(t, http.MethodPut, "/user/followUser/bob", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["user"].(map[string]any)["following"], 1)

	resp, body = s.do(t, http.MethodPut, "/user/followUser/bob", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "You are already following this user", body["message"])

	_, body = s.do(t, http.MethodGet, "/user/getUser/bob", token, nil)
	assert.Len(t, body["user"].(map[string]any)["followers"], 1)

	_, body = s.do(t, http.MethodGet, "/user/getSuggestedUsers", token, nil)
	assert.Empty(t, body["users"])

	resp, _ = s.do(t, http.MethodPut, "/user/unfollowUser/bob", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodPut, "/user/unfollowUser/bob", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "You are not following this user", body["message"])

	resp, _ = s.do(t, http.MethodPut, "/user/followUser/alice", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/user/getSuggestedUsers?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateUserMultipart(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})
	token := s.login(t, "alice", "pw1")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("bio", "hi there"))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="profilePicture"; filename="me.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, "/user/updateUser", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, body := s.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	user := body["user"].(map[string]any)
	assert.Equal(t, "hi there", user["bio"])
	assert.Equal(t, "https://cdn.example.com/png", user["profilePicture"])
}

func TestUpdateUserJSON(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})
	token := s.login(t, "alice", "pw1")

	resp, body := s.do(t, http.MethodPut, "/user/updateUser", token, map[string]string{"username": "alicia"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alicia", body["user"].(map[string]any)["username"])

	resp, _ = s.do(t, http.MethodGet, "/user/getUser/alicia", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutWithoutToken(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/user/logout", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Zero(t, s.revoked.Len())
}

func TestUnknownRouteAndHealth(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "NOT_FOUND", body["code"])

	resp, body = s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(raw))

	resp, body = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "in-memory", body["dependencies"].(map[string]any)["postgres"])

	_, body = s.do(t, http.MethodGet, "/health/metrics", "", nil)
	assert.NotEmpty(t, body["requests"])
}

func TestPanicsBecome500(t *testing.T) {
	logger := zap.NewNop()
	app := fiber.New()
	RegisterMiddlewares(app, logger, nil, MiddlewareConfig{})
	app.Get("/boom", func(*fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.Equal(t, false, body["success"])
}

func (s *testServer) form(t *testing.T, path string, values url.Values) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.send(t, req)
}

func TestFormRegistrationsStayDistinct(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.form(t, "/user/register", url.Values{"username": {"alice"}, "email": {"a@x.com"}, "password": {"pw1"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body := s.form(t, "/user/register", url.Values{"username": {"zzzzz"}, "email": {"z@x.com"}, "password": {"pw2"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = s.form(t, "/user/login", url.Values{"username": {"alice"}, "password": {"pw1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "a@x.com", body["user"].(map[string]any)["email"])

	resp, _ = s.form(t, "/user/login", url.Values{"username": {"zzzzz"}, "password": {"pw2"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRevokedTokenRejectedOnEitherTransport(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "bob", "email": "b@x.com", "password": "pw2"})
	tokA := s.login(t, "alice", "pw1")
	tokB := s.login(t, "bob", "pw2")

	resp, _ := s.do(t, http.MethodGet, "/user/logout", tokA, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/user/getUser/bob", tokB, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/user/getUser/alice", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tokA})
	resp, body := s.send(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_REVOKED", body["code"])

	resp, body = s.do(t, http.MethodGet, "/user/getUser/alice", tokA, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_REVOKED", body["code"])
}

func TestUpdateUserRejectsMalformedMultipart(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/user/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw1"})
	token := s.login(t, "alice", "pw1")

	req := httptest.NewRequest(http.MethodPut, "/user/updateUser", strings.NewReader("not a multipart body"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, body := s.send(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid multipart body", body["message"])
}
