// Package chat implements the conversation protocol: durable ordered
// message history, read receipts flipped by the recipient, and the
// ephemeral typing indicator with its idle debouncer.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/store"
	apperrors "friendfinder-backend/pkg/errors"
	"friendfinder-backend/pkg/logger"
	"friendfinder-backend/pkg/metrics"
)

// DefaultTypingIdle is how long after the last keystroke the typing
// indicator falls back to false on its own.
const DefaultTypingIdle = 2 * time.Second

// MessageStore is the durable conversation log
type MessageStore interface {
	Save(message *domain.Message) error
	ListByConversation(conversationID uuid.UUID, limit int) ([]*domain.Message, error)
	MarkRead(conversationID uuid.UUID, messages []*domain.Message) error
}

// Sender identifies the author of a message
type Sender struct {
	ID   string // user UUID or domain.SystemSenderID
	Name string
	Type string
}

// Service handles chat business logic
type Service struct {
	messages MessageStore
	store    store.Store
	metrics  *metrics.Metrics

	typingIdle time.Duration
	debouncer  *Debouncer
}

// NewService creates a chat service. metrics may be nil; typingIdle
// is DefaultTypingIdle in production, shortened in tests.
func NewService(messages MessageStore, st store.Store, m *metrics.Metrics, typingIdle time.Duration) *Service {
	s := &Service{
		messages:   messages,
		store:      st,
		metrics:    m,
		typingIdle: typingIdle,
	}
	s.debouncer = NewDebouncer(typingIdle, s.typingExpired)
	return s
}

// Close cancels all pending typing timers
func (s *Service) Close() {
	s.debouncer.Stop()
}

func conversationPath(conversationID uuid.UUID) string {
	return "conversations/" + conversationID.String()
}

func typingPath(conversationID uuid.UUID) string {
	return "typing/" + conversationID.String()
}

func typingKey(conversationID, userID uuid.UUID) string {
	return conversationID.String() + "|" + userID.String()
}

// SendMessage validates and stores a message, then notifies subscribers.
// Sending also forces the author's typing indicator off.
func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, sender Sender, text string) (*domain.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, apperrors.ValidationError("message text must not be empty")
	}

	kind := domain.MessageKindText
	if sender.ID == domain.SystemSenderID {
		kind = domain.MessageKindSystem
	}

	message := &domain.Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.Name,
		SenderType:     sender.Type,
		Text:           trimmed,
		Kind:           kind,
		Read:           false,
	}

	if err := s.messages.Save(message); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordMessageSent(kind)
	}

	s.touchConversation(ctx, conversationID, message.MessageID)

	// A sent message supersedes any "still typing" signal
	if senderID, err := uuid.Parse(sender.ID); err == nil {
		if terr := s.SetTyping(ctx, conversationID, senderID, false); terr != nil {
			logger.Warn("clearing typing state after send failed",
				zap.String("conversation_id", conversationID.String()), zap.Error(terr))
		}
	}

	return message, nil
}

// SendSystem stores a platform-authored message in the conversation
func (s *Service) SendSystem(ctx context.Context, conversationID uuid.UUID, text string) (*domain.Message, error) {
	return s.SendMessage(ctx, conversationID, Sender{
		ID:   domain.SystemSenderID,
		Name: "System",
		Type: "system",
	}, text)
}

// Messages returns the conversation history oldest-first
func (s *Service) Messages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	return s.messages.ListByConversation(conversationID, 0)
}

// UnreadCount counts messages the user has not observed yet
func (s *Service) UnreadCount(ctx context.Context, conversationID uuid.UUID, userID string) (int, error) {
	messages, err := s.messages.ListByConversation(conversationID, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, message := range messages {
		if !message.Read && message.SenderID != userID {
			count++
		}
	}
	return count, nil
}

// Subscribe streams the full ordered message list: once immediately, then
// on every conversation change. Receiving a snapshot marks the unread
// messages of other authors read, which is itself a change the author's
// subscription observes. The channel closes when ctx is done.
func (s *Service) Subscribe(ctx context.Context, conversationID uuid.UUID, readerID string) (<-chan []*domain.Message, error) {
	events, err := s.store.Subscribe(ctx, conversationPath(conversationID))
	if err != nil {
		return nil, err
	}

	out := make(chan []*domain.Message, 8)
	go func() {
		defer close(out)
		for range events {
			list, lerr := s.messages.ListByConversation(conversationID, 0)
			if lerr != nil {
				logger.Warn("listing conversation failed",
					zap.String("conversation_id", conversationID.String()), zap.Error(lerr))
				continue
			}

			s.markObserved(ctx, conversationID, readerID, list)

			select {
			case out <- list:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// markObserved flips read on foreign unread messages and flips the local
// copies so the snapshot already reflects the receipt.
func (s *Service) markObserved(ctx context.Context, conversationID uuid.UUID, readerID string, list []*domain.Message) {
	var unread []*domain.Message
	for _, message := range list {
		if !message.Read && message.SenderID != readerID {
			unread = append(unread, message)
		}
	}
	if len(unread) == 0 {
		return
	}

	if err := s.messages.MarkRead(conversationID, unread); err != nil {
		logger.Warn("marking messages read failed",
			zap.String("conversation_id", conversationID.String()), zap.Error(err))
		return
	}
	for _, message := range unread {
		message.Read = true
	}
	if s.metrics != nil {
		s.metrics.RecordMessagesRead(len(unread))
	}

	// Let the author's subscription pick up the receipts
	s.touchConversation(ctx, conversationID, uuid.Nil)
}

// SetTyping overwrites the conversation's typing document. A true update
// arms the idle countdown that forces false later; false cancels it.
func (s *Service) SetTyping(ctx context.Context, conversationID, userID uuid.UUID, typing bool) error {
	key := typingKey(conversationID, userID)
	if typing {
		s.debouncer.Touch(key)
	} else {
		s.debouncer.Cancel(key)
	}
	return s.writeTyping(ctx, conversationID, userID, typing)
}

// SubscribeTyping streams typing state changes for the conversation
func (s *Service) SubscribeTyping(ctx context.Context, conversationID uuid.UUID) (<-chan domain.TypingState, error) {
	snaps, err := s.store.Subscribe(ctx, typingPath(conversationID))
	if err != nil {
		return nil, err
	}

	out := make(chan domain.TypingState, 8)
	go func() {
		defer close(out)
		for snap := range snaps {
			state := domain.TypingState{}
			if snap.Exists {
				state = decodeTypingState(snap.Data)
			}
			select {
			case out <- state:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// typingExpired is the debouncer callback: the user went idle
func (s *Service) typingExpired(key string) {
	convStr, userStr, ok := strings.Cut(key, "|")
	if !ok {
		return
	}
	conversationID, err := uuid.Parse(convStr)
	if err != nil {
		return
	}
	userID, err := uuid.Parse(userStr)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.writeTyping(ctx, conversationID, userID, false); err != nil {
		logger.Warn("typing expiry write failed",
			zap.String("conversation_id", convStr), zap.Error(err))
	}
}

func (s *Service) writeTyping(ctx context.Context, conversationID, userID uuid.UUID, typing bool) error {
	if s.metrics != nil {
		s.metrics.RecordTypingUpdate()
	}
	return s.store.Put(ctx, typingPath(conversationID), store.Document{
		"user_id":    userID.String(),
		"is_typing":  typing,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// touchConversation bumps the conversation document so subscribers
// re-read the log. Failure is logged, not returned: the durable write
// already happened.
func (s *Service) touchConversation(ctx context.Context, conversationID uuid.UUID, lastMessageID uuid.UUID) {
	doc := store.Document{
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if lastMessageID != uuid.Nil {
		doc["last_message_id"] = lastMessageID.String()
	}
	if err := s.store.Put(ctx, conversationPath(conversationID), doc); err != nil {
		logger.Warn("conversation notify failed",
			zap.String("conversation_id", conversationID.String()), zap.Error(err))
	}
}

func decodeTypingState(data store.Document) domain.TypingState {
	state := domain.TypingState{}
	if v, ok := data["user_id"].(string); ok {
		if id, err := uuid.Parse(v); err == nil {
			state.UserID = id
		}
	}
	if v, ok := data["is_typing"].(bool); ok {
		state.IsTyping = v
	}
	if v, ok := data["updated_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			state.UpdatedAt = ts
		}
	}
	return state
}
