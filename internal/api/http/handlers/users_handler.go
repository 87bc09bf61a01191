package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

const pictureField = "profilePicture"

// UsersHandler exposes the /user endpoints.
type UsersHandler struct {
	accounts     *service.AccountService
	cookieSecure bool
}

// NewUsersHandler constructs handler.
func NewUsersHandler(accounts *service.AccountService, cookieSecure bool) *UsersHandler {
	return &UsersHandler{accounts: accounts, cookieSecure: cookieSecure}
}

// Register handles POST /user/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	if _, err := h.accounts.Register(c.UserContext(), req.Username, req.Email, req.Password); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Account created successfully",
		"success": true,
	})
}

// Login handles POST /user/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, token, exp, err := h.accounts.Login(c.UserContext(), req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}

	c.Cookie(h.tokenCookie(token, exp, int(auth.TokenTTL/time.Second)))
	return c.JSON(fiber.Map{
		"message": "Welcome back " + user.Username,
		"success": true,
		"user":    dto.NewUserResponse(user),
		"token":   token,
	})
}

// Logout handles GET /user/logout.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	if err := h.accounts.Logout(c.UserContext(), auth.TokenFromRequest(c)); err != nil {
		return err
	}

	c.Cookie(h.tokenCookie("", time.Unix(0, 0), -1))
	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
		"success": true,
	})
}

// GetUser handles GET /user/getUser/:username.
func (h *UsersHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.accounts.GetProfile(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"user":    dto.NewPublicProfile(user),
	})
}

// UpdateUser handles PUT /user/updateUser, as JSON or multipart with a profilePicture file.
func (h *UsersHandler) UpdateUser(c *fiber.Ctx) error {
	userID, _ := auth.UserIDFromContext(c)

	picture, err := readPicture(c)
	if err != nil {
		return err
	}
	var req dto.UpdateUserRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	user, err := h.accounts.UpdateProfile(c.UserContext(), userID, domain.ProfileUpdate{
		Username: req.Username,
		Bio:      req.Bio,
		Password: req.Password,
		Picture:  picture,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Profile updated",
		"success": true,
		"user":    dto.NewUserResponse(user),
	})
}

// SuggestedUsers handles GET /user/getSuggestedUsers.
func (h *UsersHandler) SuggestedUsers(c *fiber.Ctx) error {
	userID, _ := auth.UserIDFromContext(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return apperrors.NewValidationError("limit must be a non-negative integer", nil)
		}
		limit = n
	}

	users, err := h.accounts.SuggestedUsers(c.UserContext(), userID, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"users":   dto.NewPublicProfiles(users),
	})
}

// Follow handles PUT /user/followUser/:username.
func (h *UsersHandler) Follow(c *fiber.Ctx) error {
	userID, _ := auth.UserIDFromContext(c)
	target := c.Params("username")

	user, err := h.accounts.Follow(c.UserContext(), userID, target)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "You are now following " + target,
		"success": true,
		"user":    dto.NewUserResponse(user),
	})
}

// Unfollow handles PUT /user/unfollowUser/:username.
func (h *UsersHandler) Unfollow(c *fiber.Ctx) error {
	userID, _ := auth.UserIDFromContext(c)
	target := c.Params("username")

	user, err := h.accounts.Unfollow(c.UserContext(), userID, target)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "You unfollowed " + target,
		"success": true,
		"user":    dto.NewUserResponse(user),
	})
}

func (h *UsersHandler) tokenCookie(value string, expires time.Time, maxAge int) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteNoneMode,
	}
}

// readPicture returns nil when the request carries no picture.
func readPicture(c *fiber.Ctx) (*domain.Upload, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperrors.NewValidationError("invalid multipart body", nil)
	}
	files := form.File[pictureField]
	if len(files) == 0 {
		return nil, nil
	}

	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable profile picture", nil)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.Upload{
		Data:        data,
		ContentType: fh.Header.Get("Content-Type"),
		Filename:    fh.Filename,
	}, nil
}
