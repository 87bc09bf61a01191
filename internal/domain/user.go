package domain

import "time"

// User is an account holder. Followers and Following hold user IDs.
type User struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	Bio            string
	ProfilePicture string
	Followers      []string
	Following      []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProfileUpdate carries the optional fields of a profile mutation. Nil means unchanged.
type ProfileUpdate struct {
	Username *string
	Bio      *string
	Password *string
	Picture  *Upload
}

// Upload is a file received from a client.
type Upload struct {
	Data        []byte
	ContentType string
	Filename    string
}
