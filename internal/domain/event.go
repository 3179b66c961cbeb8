package domain

import "time"

type EventType string

const (
	EventUserRegistered EventType = "user.registered"
	EventUserVerified   EventType = "user.verified"
)

// Event is published to downstream consumers after a state change.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Method     Method    `json:"method,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
