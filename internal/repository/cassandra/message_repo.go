package cassandra

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"friendfinder-backend/internal/domain"
)

// MessageRepository is the durable conversation log. The table is
// partitioned by conversation and clustered ascending by (sent_at,
// message_id), so a partition read returns delivery order directly.
type MessageRepository struct {
	session *gocql.Session
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// Save inserts a message. MessageID and SentAt are assigned here when
// unset, so the writer, not the client, owns the ordering key.
func (r *MessageRepository) Save(message *domain.Message) error {
	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.New()
	}
	if message.SentAt.IsZero() {
		message.SentAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (
			conversation_id, sent_at, message_id, sender_id, sender_name,
			sender_type, content, kind, is_read
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		message.ConversationID,
		message.SentAt,
		message.MessageID,
		message.SenderID,
		message.SenderName,
		message.SenderType,
		message.Text,
		message.Kind,
		message.Read,
	).Exec()

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// ListByConversation returns the conversation's messages oldest-first.
// limit <= 0 means the whole partition.
func (r *MessageRepository) ListByConversation(conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	query := `
		SELECT conversation_id, sent_at, message_id, sender_id, sender_name,
		       sender_type, content, kind, is_read
		FROM messages
		WHERE conversation_id = ?
	`
	var q *gocql.Query
	if limit > 0 {
		q = r.session.Query(query+` LIMIT ?`, conversationID, limit)
	} else {
		q = r.session.Query(query, conversationID)
	}

	iter := q.Iter()

	var messages []*domain.Message
	for {
		message := &domain.Message{}
		if !iter.Scan(
			&message.ConversationID,
			&message.SentAt,
			&message.MessageID,
			&message.SenderID,
			&message.SenderName,
			&message.SenderType,
			&message.Text,
			&message.Kind,
			&message.Read,
		) {
			break
		}
		messages = append(messages, message)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return messages, nil
}

// MarkRead flips is_read on the given messages. Callers pass full rows
// because sent_at is part of the primary key.
func (r *MessageRepository) MarkRead(conversationID uuid.UUID, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	batch := r.session.NewBatch(gocql.UnloggedBatch)
	query := `UPDATE messages SET is_read = true WHERE conversation_id = ? AND sent_at = ? AND message_id = ?`
	for _, message := range messages {
		batch.Query(query, conversationID, message.SentAt, message.MessageID)
	}

	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}

	return nil
}

// CountUnread counts messages in the conversation not yet read and not
// authored by the given user. Scans the partition; acceptable for the
// short conversations this product produces.
func (r *MessageRepository) CountUnread(conversationID uuid.UUID, userID string) (int, error) {
	messages, err := r.ListByConversation(conversationID, 0)
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

// DeleteConversation removes the whole message partition
func (r *MessageRepository) DeleteConversation(conversationID uuid.UUID) error {
	query := `DELETE FROM messages WHERE conversation_id = ?`
	if err := r.session.Query(query, conversationID).Exec(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
