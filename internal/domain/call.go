package domain

import (
	"time"

	"github.com/google/uuid"
)

// Call session status values
const (
	CallStatusCalling = "calling"
	CallStatusActive  = "active"
)

// SessionDescription is one half of the media negotiation handshake
type SessionDescription struct {
	Type string `json:"type"` // offer, answer
	SDP  string `json:"sdp"`
}

// CallSession is the shared signaling document two peers use to exchange
// call-setup metadata. The session ID is derived from the booking ID, so
// both peers address the same document without prior coordination.
type CallSession struct {
	SessionID  string              `json:"session_id"`
	Offer      *SessionDescription `json:"offer,omitempty"`
	Answer     *SessionDescription `json:"answer,omitempty"`
	CallerID   uuid.UUID           `json:"caller_id"`
	CallerName string              `json:"caller_name"`
	AnsweredBy uuid.UUID           `json:"answered_by,omitempty"`
	AnsweredAt *time.Time          `json:"answered_at,omitempty"`
	Status     string              `json:"status"` // calling, active
	CreatedAt  time.Time           `json:"created_at"`
}

// HasForeignOffer reports whether the session carries an offer authored by
// someone other than the given peer. A stale offer from a previous attempt
// by the same peer does not count.
func (s *CallSession) HasForeignOffer(selfID uuid.UUID) bool {
	return s != nil && s.Offer != nil && s.CallerID != selfID
}

// ICECandidate is a connectivity option proposed by one peer. Candidates
// are append-only and never individually deleted.
type ICECandidate struct {
	ID        string    `json:"id"`
	Candidate string    `json:"candidate"` // serialized candidate blob
	OwnerID   uuid.UUID `json:"owner_id"`
	Timestamp time.Time `json:"timestamp"`
}
