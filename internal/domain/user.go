package domain

import (
	"time"

	"github.com/google/uuid"
)

// User types
const (
	UserTypeUser     = "user"
	UserTypeProvider = "provider"
)

// Profile is the identity projection maintained by the external auth
// provider and consumed read-mostly by this service. Rates are per-session
// prices a provider charges; zero means free.
type Profile struct {
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	UserType  string    `json:"user_type"` // user, provider
	Bio       string    `json:"bio,omitempty"`
	ChatRate  float64   `json:"chat_rate"`
	VideoRate float64   `json:"video_rate"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileUpdate carries the mutable profile fields
type ProfileUpdate struct {
	Name      *string  `json:"name,omitempty"`
	Bio       *string  `json:"bio,omitempty"`
	ChatRate  *float64 `json:"chat_rate,omitempty"`
	VideoRate *float64 `json:"video_rate,omitempty"`
}
