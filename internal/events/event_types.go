package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventUserLoggedOut  EventType = "user_logged_out"
	EventUserFollowed   EventType = "user_followed"
	EventUserUnfollowed EventType = "user_unfollowed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// FollowPayload is shared by follow and unfollow events.
type FollowPayload struct {
	TargetID       string `json:"target_id"`
	TargetUsername string `json:"target_username"`
}
