package domain

import (
	"time"

	"github.com/google/uuid"
)

// Friend request statuses
const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
)

// FriendRequest represents a pending or accepted friendship between two users.
// Rejected and cancelled requests are deleted, not status-flagged.
type FriendRequest struct {
	RequestID    uuid.UUID `json:"request_id"`
	FromUserID   uuid.UUID `json:"from_user_id"`
	FromUserName string    `json:"from_user_name"`
	ToUserID     uuid.UUID `json:"to_user_id"`
	ToUserName   string    `json:"to_user_name"`
	Status       string    `json:"status"` // pending, accepted
	CreatedAt    time.Time `json:"created_at"`
}
