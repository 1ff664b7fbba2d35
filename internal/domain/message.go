package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message kinds
const (
	MessageKindText   = "text"
	MessageKindSystem = "system"
)

// SystemSenderID marks messages authored by the platform rather than a
// participant. Real user IDs are UUIDs, so the two ID spaces cannot collide
// and the read-receipt flip can treat system messages like any foreign
// sender without special casing.
const SystemSenderID = "system"

// Message represents a chat message entity stored in Cassandra.
// Messages are immutable except for the read flag, which flips false→true
// exactly once, by the recipient.
type Message struct {
	MessageID      uuid.UUID `json:"message_id" cql:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id" cql:"conversation_id"`
	SenderID       string    `json:"sender_id" cql:"sender_id"` // user UUID or "system"
	SenderName     string    `json:"sender_name" cql:"sender_name"`
	SenderType     string    `json:"sender_type" cql:"sender_type"` // user, provider, system
	Text           string    `json:"text" cql:"text"`
	Kind           string    `json:"kind" cql:"kind"` // text, system
	Read           bool      `json:"read" cql:"read"`
	SentAt         time.Time `json:"sent_at" cql:"sent_at"`
}

// IsAuthoredBy reports whether the message was sent by the given user
func (m *Message) IsAuthoredBy(userID uuid.UUID) bool {
	return m.SenderID == userID.String()
}

// MessageCreate represents the request body for sending a message
type MessageCreate struct {
	Text string `json:"text" binding:"required"`
}

// TypingState is the ephemeral per-conversation typing document. It is
// overwritten on every update, never appended; last-write-wins.
type TypingState struct {
	UserID    uuid.UUID `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
	UpdatedAt time.Time `json:"updated_at"`
}
