package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/storage"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

const maxSuggestions = 50

// Revoker records revoked tokens.
type Revoker interface {
	Revoke(ctx context.Context, token, userID string, expiresAt time.Time) error
}

// ImageUploader stores an image and returns its hosted URL.
type ImageUploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// AccountService coordinates registration, login and the follow graph.
type AccountService struct {
	users       repository.UserRepository
	revocations Revoker
	images      ImageUploader
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	tokenMgr    *auth.TokenManager
	bcryptCost  int
	suggestions int
}

// AccountDependencies encapsulates collaborators of the account service.
type AccountDependencies struct {
	UserRepo    repository.UserRepository
	Revocations Revoker
	// Images may be nil when no bucket is configured.
	Images     ImageUploader
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Tokens overrides the manager built from cfg.Auth.
	Tokens *auth.TokenManager
}

// NewAccountService builds the service.
func NewAccountService(cfg config.Config, deps AccountDependencies) *AccountService {
	tokens := deps.Tokens
	if tokens == nil {
		tokens = auth.NewTokenManager(cfg.Auth.JWTSecret)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	suggestions := cfg.Auth.SuggestionsDefaultLimit
	if suggestions <= 0 {
		suggestions = 10
	}
	return &AccountService{
		users:       deps.UserRepo,
		revocations: deps.Revocations,
		images:      deps.Images,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		tokenMgr:    tokens,
		bcryptCost:  cfg.Auth.BcryptCost,
		suggestions: suggestions,
	}
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AccountService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Register creates a new account.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || password == "" {
		return nil, apperrors.NewValidationError("Something is missing", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("Invalid email address", nil)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("User already exist with this email")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.NewConflict("User already exist with this username")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, mapWriteError(err)
	}

	s.publish(ctx, events.EventUserRegistered, user.ID, events.UserRegisteredPayload{
		Username: user.Username,
		Email:    user.Email,
	})
	return user, nil
}

// Login authenticates by username and/or email and issues a token.
func (s *AccountService) Login(ctx context.Context, username, email, password string) (*domain.User, string, time.Time, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(strings.ToLower(email))
	if password == "" || (username == "" && email == "") {
		return nil, "", time.Time{}, apperrors.NewValidationError("Something is missing", nil)
	}

	user, err := s.users.FindByLogin(ctx, username, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, apperrors.NewNotFound("User")
		}
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("Incorrect password")
		}
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}

	token, exp, err := s.tokenMgr.Issue(user.ID)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return user, token, exp, nil
}

// Logout revokes token. Absent or unverifiable tokens need no ledger entry.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokenMgr.Verify(token)
	if err != nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, token, claims.UserID, claims.ExpiresAt.Time); err != nil {
		return apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.EventUserLoggedOut, claims.UserID, nil)
	return nil
}

// GetProfile returns the user with the given username.
func (s *AccountService) GetProfile(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of update to the caller's account.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err)
	}

	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" {
			return nil, apperrors.NewValidationError("Username cannot be empty", nil)
		}
		if username != user.Username {
			if _, err := s.users.GetByUsername(ctx, username); err == nil {
				return nil, apperrors.NewConflict("User already exist with this username")
			} else if !errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewInternalError(err)
			}
			user.Username = username
		}
	}
	if update.Bio != nil {
		user.Bio = strings.TrimSpace(*update.Bio)
	}
	if update.Password != nil {
		if *update.Password == "" {
			return nil, apperrors.NewValidationError("Password cannot be empty", nil)
		}
		hash, err := auth.HashPassword(*update.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		user.PasswordHash = hash
	}
	if update.Picture != nil {
		url, err := s.uploadPicture(ctx, update.Picture)
		if err != nil {
			return nil, err
		}
		user.ProfilePicture = url
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, mapWriteError(err)
	}
	return user, nil
}

func (s *AccountService) uploadPicture(ctx context.Context, picture *domain.Upload) (string, error) {
	if s.images == nil {
		return "", apperrors.NewValidationError("Profile picture uploads are not configured", nil)
	}
	if len(picture.Data) == 0 {
		return "", apperrors.NewValidationError("Profile picture is empty", nil)
	}
	url, err := s.images.Upload(ctx, picture.Data, picture.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrNotImage) {
			return "", apperrors.NewValidationError("Profile picture must be an image", nil)
		}
		return "", apperrors.NewInternalError(err)
	}
	return url, nil
}

// SuggestedUsers lists accounts the caller does not follow yet.
func (s *AccountService) SuggestedUsers(ctx context.Context, userID string, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = s.suggestions
	}
	if limit > maxSuggestions {
		limit = maxSuggestions
	}
	users, err := s.users.ListSuggested(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// Follow makes the caller follow targetUsername and returns the caller's updated record.
func (s *AccountService) Follow(ctx context.Context, userID, targetUsername string) (*domain.User, error) {
	target, err := s.followTarget(ctx, userID, targetUsername, "You cannot follow yourself")
	if err != nil {
		return nil, err
	}

	created, err := s.users.Follow(ctx, userID, target.ID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if !created {
		return nil, apperrors.NewConflict("You are already following this user")
	}

	s.publish(ctx, events.EventUserFollowed, userID, events.FollowPayload{TargetID: target.ID, TargetUsername: target.Username})
	return s.reload(ctx, userID)
}

// Unfollow removes the caller's follow of targetUsername.
func (s *AccountService) Unfollow(ctx context.Context, userID, targetUsername string) (*domain.User, error) {
	target, err := s.followTarget(ctx, userID, targetUsername, "You cannot unfollow yourself")
	if err != nil {
		return nil, err
	}

	removed, err := s.users.Unfollow(ctx, userID, target.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !removed {
		return nil, apperrors.NewValidationError("You are not following this user", nil)
	}

	s.publish(ctx, events.EventUserUnfollowed, userID, events.FollowPayload{TargetID: target.ID, TargetUsername: target.Username})
	return s.reload(ctx, userID)
}

func (s *AccountService) followTarget(ctx context.Context, userID, targetUsername, selfMessage string) (*domain.User, error) {
	target, err := s.users.GetByUsername(ctx, strings.TrimSpace(targetUsername))
	if err != nil {
		return nil, mapLookupError(err)
	}
	if target.ID == userID {
		return nil, apperrors.NewValidationError(selfMessage, nil)
	}
	return target, nil
}

func (s *AccountService) reload(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return user, nil
}

func (s *AccountService) publish(ctx context.Context, eventType events.EventType, userID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func mapLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("User")
	}
	return apperrors.NewInternalError(err)
}

func mapWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return apperrors.NewConflict("User already exist with this email")
	case errors.Is(err, repository.ErrUsernameTaken):
		return apperrors.NewConflict("User already exist with this username")
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("User")
	}
	return apperrors.NewInternalError(err)
}
