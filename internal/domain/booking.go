package domain

import (
	"time"

	"github.com/google/uuid"
)

// Booking statuses
const (
	BookingStatusActive = "active"
	BookingStatusClosed = "closed"
)

// Booking links a user with a provider. Its ID doubles as the conversation
// ID for chat and the session ID for call signaling.
type Booking struct {
	BookingID    uuid.UUID `json:"booking_id"`
	UserID       uuid.UUID `json:"user_id"`
	UserName     string    `json:"user_name"`
	ProviderID   uuid.UUID `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Participants returns both member IDs of the booking
func (b *Booking) Participants() [2]uuid.UUID {
	return [2]uuid.UUID{b.UserID, b.ProviderID}
}

// HasParticipant reports whether the given user belongs to the booking
func (b *Booking) HasParticipant(userID uuid.UUID) bool {
	return b.UserID == userID || b.ProviderID == userID
}
