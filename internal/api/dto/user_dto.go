package dto

import (
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginRequest accepts a username, an email or both.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// UpdateUserRequest carries optional profile fields. The picture arrives as a multipart file.
type UpdateUserRequest struct {
	Username *string `json:"username" form:"username"`
	Bio      *string `json:"bio" form:"bio"`
	Password *string `json:"password" form:"password"`
}

// UserResponse is the caller's own account.
type UserResponse struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profilePicture"`
	Followers      []string  `json:"followers"`
	Following      []string  `json:"following"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PublicProfile is what other users see.
type PublicProfile struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	Bio            string   `json:"bio"`
	ProfilePicture string   `json:"profilePicture"`
	Followers      []string `json:"followers"`
	Following      []string `json:"following"`
}

// NewUserResponse maps a domain user, dropping the password hash.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Bio:            u.Bio,
		ProfilePicture: u.ProfilePicture,
		Followers:      nonNil(u.Followers),
		Following:      nonNil(u.Following),
		CreatedAt:      u.CreatedAt,
	}
}

// NewPublicProfile maps a domain user for display to others.
func NewPublicProfile(u *domain.User) PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Username:       u.Username,
		Bio:            u.Bio,
		ProfilePicture: u.ProfilePicture,
		Followers:      nonNil(u.Followers),
		Following:      nonNil(u.Following),
	}
}

// NewPublicProfiles maps a list.
func NewPublicProfiles(users []domain.User) []PublicProfile {
	out := make([]PublicProfile, 0, len(users))
	for i := range users {
		out = append(out, NewPublicProfile(&users[i]))
	}
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
