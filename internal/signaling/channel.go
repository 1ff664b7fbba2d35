// Package signaling maps call sessions onto the realtime document store:
// one session document carrying the offer/answer handshake and an
// append-only candidates sub-collection underneath it.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/store"
	apperrors "friendfinder-backend/pkg/errors"
	"friendfinder-backend/pkg/logger"
)

// SessionSnapshot is one observation of the session document. Exists=false
// means the document was deleted (or never created).
type SessionSnapshot struct {
	Exists  bool
	Session *domain.CallSession
}

// Channel transports offer/answer/candidate documents between exactly two
// peers through the shared store.
type Channel struct {
	store store.Store
}

// NewChannel creates a signaling channel over the given store
func NewChannel(st store.Store) *Channel {
	return &Channel{store: st}
}

func sessionPath(sessionID string) string {
	return "calls/" + sessionID
}

// PublishOffer records the offer as the session document. The write is
// conditional on the path being vacant; losing the race returns a
// NegotiationConflict the caller recovers from by downgrading to callee.
func (c *Channel) PublishOffer(ctx context.Context, sessionID string, offer domain.SessionDescription, callerID uuid.UUID, callerName string) error {
	session := domain.CallSession{
		SessionID:  sessionID,
		Offer:      &offer,
		CallerID:   callerID,
		CallerName: callerName,
		Status:     domain.CallStatusCalling,
		CreatedAt:  time.Now().UTC(),
	}
	doc, err := encodeDocument(session)
	if err != nil {
		return err
	}

	err = c.store.Create(ctx, sessionPath(sessionID), doc)
	if errors.Is(err, store.ErrExists) {
		return apperrors.NegotiationConflictError(sessionID)
	}
	return err
}

// PublishAnswer merges the answer into the session document and marks it
// active. The merge is conditional on no answer being recorded yet, so a
// second writer gets a NegotiationConflict instead of overwriting a remote
// description the caller may have already applied.
func (c *Channel) PublishAnswer(ctx context.Context, sessionID string, answer domain.SessionDescription, answererID uuid.UUID) error {
	now := time.Now().UTC()
	err := c.store.UpdateIfAbsent(ctx, sessionPath(sessionID), "answer", store.Document{
		"answer":      answer,
		"answered_by": answererID,
		"answered_at": now,
		"status":      domain.CallStatusActive,
	})
	if errors.Is(err, store.ErrExists) {
		return apperrors.NegotiationConflictError(sessionID)
	}
	return err
}

// PublishCandidate appends a connectivity candidate to the session's
// sub-collection. Duplicates are tolerated; the peer transport ignores
// repeated application.
func (c *Channel) PublishCandidate(ctx context.Context, sessionID string, candidate string, ownerID uuid.UUID) error {
	_, err := c.store.AddChild(ctx, sessionPath(sessionID), store.Document{
		"candidate": candidate,
		"owner_id":  ownerID,
		"timestamp": time.Now().UTC(),
	})
	return err
}

// CurrentSession reads the session document once. Returns Exists=false for
// absent sessions rather than an error.
func (c *Channel) CurrentSession(ctx context.Context, sessionID string) (SessionSnapshot, error) {
	snap, err := c.store.Get(ctx, sessionPath(sessionID))
	if err != nil {
		return SessionSnapshot{}, err
	}
	return decodeSnapshot(sessionID, snap)
}

// SubscribeSession streams full session snapshots, starting with the
// current state. The stream closes when ctx is done.
func (c *Channel) SubscribeSession(ctx context.Context, sessionID string) (<-chan SessionSnapshot, error) {
	raw, err := c.store.Subscribe(ctx, sessionPath(sessionID))
	if err != nil {
		return nil, err
	}

	out := make(chan SessionSnapshot, 16)
	go func() {
		defer close(out)
		for snap := range raw {
			decoded, derr := decodeSnapshot(sessionID, snap)
			if derr != nil {
				logger.Warn("dropping undecodable session snapshot",
					zap.String("session_id", sessionID), zap.Error(derr))
				continue
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribeCandidates streams candidate additions, replaying existing ones
// first. No filtering happens here; consumers exclude their own candidates.
func (c *Channel) SubscribeCandidates(ctx context.Context, sessionID string) (<-chan domain.ICECandidate, error) {
	raw, err := c.store.SubscribeChildren(ctx, sessionPath(sessionID))
	if err != nil {
		return nil, err
	}

	out := make(chan domain.ICECandidate, 64)
	go func() {
		defer close(out)
		for ev := range raw {
			var cand domain.ICECandidate
			if derr := decodeInto(ev.Data, &cand); derr != nil {
				logger.Warn("dropping undecodable candidate",
					zap.String("session_id", sessionID), zap.Error(derr))
				continue
			}
			cand.ID = ev.ID
			select {
			case out <- cand:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Teardown deletes the session document and its candidates. Idempotent:
// deleting an absent session succeeds.
func (c *Channel) Teardown(ctx context.Context, sessionID string) error {
	return c.store.Delete(ctx, sessionPath(sessionID))
}

func encodeDocument(v interface{}) (store.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

func decodeInto(doc store.Document, v interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return json.Unmarshal(raw, v)
}

func decodeSnapshot(sessionID string, snap store.Snapshot) (SessionSnapshot, error) {
	if !snap.Exists {
		return SessionSnapshot{Exists: false}, nil
	}
	var session domain.CallSession
	if err := decodeInto(snap.Data, &session); err != nil {
		return SessionSnapshot{}, err
	}
	session.SessionID = sessionID
	return SessionSnapshot{Exists: true, Session: &session}, nil
}
