package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// CookieName is the cookie carrying the bearer token.
const CookieName = "token"

const userIDKey = "auth_user_id"

// RevocationChecker reports whether a token has been explicitly revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// TokenVerifier validates a token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// Gate authorizes requests on protected routes and binds the caller's user ID.
type Gate struct {
	tokens      TokenVerifier
	revocations RevocationChecker
}

// NewGate constructs the middleware.
func NewGate(tokens TokenVerifier, revocations RevocationChecker) *Gate {
	return &Gate{tokens: tokens, revocations: revocations}
}

// Handle runs extract, revocation check, verify and bind, in that order.
func (g *Gate) Handle(c *fiber.Ctx) error {
	token := TokenFromRequest(c)
	if token == "" {
		return apperrors.NewUnauthorizedCode(apperrors.CodeMissingToken, "Unauthorized because token is missing")
	}

	revoked, err := g.revocations.IsRevoked(c.UserContext(), token)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if revoked {
		return apperrors.NewUnauthorizedCode(apperrors.CodeTokenRevoked, "Unauthorized because token is blacklisted")
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		return apperrors.NewUnauthorizedCode(apperrors.CodeInvalidToken, "Unauthorized because token is not verified")
	}

	c.Locals(userIDKey, claims.UserID)
	return c.Next()
}

// TokenFromRequest reads the token cookie, falling back to an
// "Authorization: Bearer" header. It returns "" when neither is usable.
// The result is copied out of the request buffer, so it outlives the request.
func TokenFromRequest(c *fiber.Ctx) string {
	if token := c.Cookies(CookieName); token != "" {
		return utils.CopyString(token)
	}

	scheme, token, ok := strings.Cut(strings.TrimSpace(c.Get(fiber.HeaderAuthorization)), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return utils.CopyString(strings.TrimSpace(token))
}

// UserIDFromContext retrieves the identity bound by Gate.
func UserIDFromContext(c *fiber.Ctx) (string, bool) {
	id, ok := c.Locals(userIDKey).(string)
	return id, ok && id != ""
}
