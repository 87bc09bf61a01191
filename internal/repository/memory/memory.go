// Package memory implements the repositories in process memory for development and testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
)

// Ensure interfaces are met.
var _ repository.UserRepository = (*Users)(nil)
var _ repository.RevokedTokenRepository = (*RevokedTokens)(nil)

type follow struct {
	followerID string
	followeeID string
}

// Users is an in-memory credential store.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	follows []follow
	now     func() time.Time
}

// NewUsers creates an empty store.
func NewUsers() *Users {
	return &Users{byID: make(map[string]*domain.User), now: time.Now}
}

func (s *Users) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.Username == user.Username {
			return repository.ErrUsernameTaken
		}
		if existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}

	now := s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := ownedCopy(user)
	s.byID[user.ID] = stored
	return nil
}

func (s *Users) Update(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, existing := range s.byID {
		if id != user.ID && existing.Username == user.Username {
			return repository.ErrUsernameTaken
		}
	}

	owned := ownedCopy(user)
	stored.Username = owned.Username
	stored.PasswordHash = owned.PasswordHash
	stored.Bio = owned.Bio
	stored.ProfilePicture = owned.ProfilePicture
	stored.UpdatedAt = s.now()
	user.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Users) GetByID(_ context.Context, id string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.ID == id })
}

func (s *Users) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.Username == username })
}

func (s *Users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.Email == email })
}

func (s *Users) FindByLogin(_ context.Context, username, email string) (*domain.User, error) {
	if username == "" && email == "" {
		return nil, repository.ErrNotFound
	}
	return s.find(func(u *domain.User) bool {
		return (username == "" || u.Username == username) && (email == "" || u.Email == email)
	})
}

func (s *Users) ListSuggested(_ context.Context, userID string, limit int) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.User
	for _, u := range s.byID {
		if u.ID == userID || s.following(userID, u.ID) {
			continue
		}
		result = append(result, s.snapshot(u))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Users) Follow(_ context.Context, followerID, followeeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[followerID]; !ok {
		return false, repository.ErrNotFound
	}
	if _, ok := s.byID[followeeID]; !ok {
		return false, repository.ErrNotFound
	}
	if s.following(followerID, followeeID) {
		return false, nil
	}
	s.follows = append(s.follows, follow{followerID: strings.Clone(followerID), followeeID: strings.Clone(followeeID)})
	return true, nil
}

func (s *Users) Unfollow(_ context.Context, followerID, followeeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.follows {
		if f.followerID == followerID && f.followeeID == followeeID {
			s.follows = append(s.follows[:i], s.follows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Users) find(match func(*domain.User) bool) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.byID {
		if match(u) {
			user := s.snapshot(u)
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

// snapshot copies u and derives both sides of the follow graph. Callers hold mu.
func (s *Users) snapshot(u *domain.User) domain.User {
	user := *u
	user.Followers = []string{}
	user.Following = []string{}
	for _, f := range s.follows {
		if f.followeeID == u.ID {
			user.Followers = append(user.Followers, f.followerID)
		}
		if f.followerID == u.ID {
			user.Following = append(user.Following, f.followeeID)
		}
	}
	return user
}

// ownedCopy detaches the stored record from caller memory. Strings decoded
// from a request may alias a buffer the transport reuses.
func ownedCopy(u *domain.User) *domain.User {
	return &domain.User{
		ID:             strings.Clone(u.ID),
		Username:       strings.Clone(u.Username),
		Email:          strings.Clone(u.Email),
		PasswordHash:   strings.Clone(u.PasswordHash),
		Bio:            strings.Clone(u.Bio),
		ProfilePicture: strings.Clone(u.ProfilePicture),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (s *Users) following(followerID, followeeID string) bool {
	for _, f := range s.follows {
		if f.followerID == followerID && f.followeeID == followeeID {
			return true
		}
	}
	return false
}

// RevokedTokens is an in-memory revocation ledger store.
type RevokedTokens struct {
	mu      sync.RWMutex
	entries map[string]domain.RevokedToken
	now     func() time.Time
}

// NewRevokedTokens creates an empty store.
func NewRevokedTokens() *RevokedTokens {
	return &RevokedTokens{entries: make(map[string]domain.RevokedToken), now: time.Now}
}

func (s *RevokedTokens) Insert(_ context.Context, token *domain.RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[token.Token]; exists {
		return nil
	}
	entry := *token
	entry.Token = strings.Clone(token.Token)
	entry.UserID = strings.Clone(token.UserID)
	entry.RevokedAt = s.now()
	s.entries[entry.Token] = entry
	return nil
}

func (s *RevokedTokens) Exists(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[token]
	return ok, nil
}

func (s *RevokedTokens) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for token, entry := range s.entries {
		if entry.Expired(cutoff) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of ledger entries.
func (s *RevokedTokens) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
