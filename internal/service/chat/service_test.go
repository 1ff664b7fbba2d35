package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/store"
	apperrors "friendfinder-backend/pkg/errors"
)

// memLog is an in-memory MessageStore with the same assignment rules as
// the Cassandra repository: the log, not the client, owns IDs and sentAt.
type memLog struct {
	mu     sync.Mutex
	byConv map[uuid.UUID][]*domain.Message
	clock  time.Time
}

func newMemLog() *memLog {
	return &memLog{byConv: make(map[uuid.UUID][]*domain.Message), clock: time.Now().UTC()}
}

func (l *memLog) Save(message *domain.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.New()
	}
	if message.SentAt.IsZero() {
		l.clock = l.clock.Add(time.Millisecond)
		message.SentAt = l.clock
	}

	stored := *message
	l.byConv[message.ConversationID] = append(l.byConv[message.ConversationID], &stored)
	return nil
}

func (l *memLog) ListByConversation(conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.Message
	for _, message := range l.byConv[conversationID] {
		copied := *message
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *memLog) MarkRead(conversationID uuid.UUID, messages []*domain.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make(map[uuid.UUID]bool, len(messages))
	for _, message := range messages {
		ids[message.MessageID] = true
	}
	for _, message := range l.byConv[conversationID] {
		if ids[message.MessageID] {
			message.Read = true
		}
	}
	return nil
}

func newTestService(t *testing.T, typingIdle time.Duration) (*Service, *memLog) {
	t.Helper()
	log := newMemLog()
	svc := NewService(log, store.NewMemoryStore(), nil, typingIdle)
	t.Cleanup(svc.Close)
	return svc, log
}

func TestSendMessageRejectsBlankText(t *testing.T) {
	svc, log := newTestService(t, DefaultTypingIdle)
	sender := Sender{ID: uuid.NewString(), Name: "Priya", Type: "user"}
	conversationID := uuid.New()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.SendMessage(context.Background(), conversationID, sender, text)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation), "text %q must be rejected", text)
	}

	stored, err := log.ListByConversation(conversationID, 0)
	require.NoError(t, err)
	assert.Empty(t, stored, "rejected messages must not reach the log")
}

func TestSendMessageOrderIsNonDecreasing(t *testing.T) {
	svc, _ := newTestService(t, DefaultTypingIdle)
	conversationID := uuid.New()
	sender := Sender{ID: uuid.NewString(), Name: "Priya", Type: "user"}

	for i := 0; i < 10; i++ {
		_, err := svc.SendMessage(context.Background(), conversationID, sender, "hello")
		require.NoError(t, err)
	}

	list, err := svc.Messages(context.Background(), conversationID)
	require.NoError(t, err)
	require.Len(t, list, 10)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].SentAt.Before(list[i-1].SentAt),
			"delivery order must be non-decreasing in sentAt")
	}
}

func TestSystemMessagesUseReservedSender(t *testing.T) {
	svc, _ := newTestService(t, DefaultTypingIdle)
	conversationID := uuid.New()

	message, err := svc.SendSystem(context.Background(), conversationID, "Call ended")
	require.NoError(t, err)
	assert.Equal(t, domain.SystemSenderID, message.SenderID)
	assert.Equal(t, domain.MessageKindSystem, message.Kind)
}

func TestSubscribeMarksForeignMessagesRead(t *testing.T) {
	svc, log := newTestService(t, DefaultTypingIdle)
	conversationID := uuid.New()
	author := Sender{ID: uuid.NewString(), Name: "Priya", Type: "user"}
	reader := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := svc.SendMessage(ctx, conversationID, author, "hi")
		require.NoError(t, err)
	}

	snapshots, err := svc.Subscribe(ctx, conversationID, reader)
	require.NoError(t, err)

	list := recvList(t, snapshots)
	require.Len(t, list, 3)
	for _, message := range list {
		assert.True(t, message.Read, "observed foreign messages carry the receipt")
	}

	stored, err := log.ListByConversation(conversationID, 0)
	require.NoError(t, err)
	for _, message := range stored {
		assert.True(t, message.Read, "the receipt must be durable")
	}
}

func TestAuthorObservationNeverFlipsOwnMessages(t *testing.T) {
	svc, log := newTestService(t, DefaultTypingIdle)
	conversationID := uuid.New()
	author := Sender{ID: uuid.NewString(), Name: "Priya", Type: "user"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := svc.SendMessage(ctx, conversationID, author, "hi")
	require.NoError(t, err)

	snapshots, err := svc.Subscribe(ctx, conversationID, author.ID)
	require.NoError(t, err)
	list := recvList(t, snapshots)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read, "authors never mark their own messages")

	stored, err := log.ListByConversation(conversationID, 0)
	require.NoError(t, err)
	assert.False(t, stored[0].Read)
}

func TestReadReceiptReachesTheAuthor(t *testing.T) {
	svc, _ := newTestService(t, DefaultTypingIdle)
	conversationID := uuid.New()
	author := Sender{ID: uuid.NewString(), Name: "Priya", Type: "user"}
	reader := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authorSnaps, err := svc.Subscribe(ctx, conversationID, author.ID)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conversationID, author, "hi")
	require.NoError(t, err)

	readerSnaps, err := svc.Subscribe(ctx, conversationID, reader)
	require.NoError(t, err)
	recvList(t, readerSnaps)

	require.Eventually(t, func() bool {
		select {
		case list, ok := <-authorSnaps:
			if !ok {
				return false
			}
			return len(list) == 1 && list[0].Read
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "the author must observe the receipt")
}

func TestTypingFallsFalseAfterIdle(t *testing.T) {
	idle := 80 * time.Millisecond
	svc, _ := newTestService(t, idle)
	conversationID := uuid.New()
	userID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states, err := svc.SubscribeTyping(ctx, conversationID)
	require.NoError(t, err)
	<-states // initial empty snapshot

	armed := time.Now()
	require.NoError(t, svc.SetTyping(ctx, conversationID, userID, true))

	state := recvTyping(t, states)
	require.True(t, state.IsTyping)
	assert.Equal(t, userID, state.UserID)

	state = recvTyping(t, states)
	elapsed := time.Since(armed)
	assert.False(t, state.IsTyping, "the indicator must fall on its own")
	assert.GreaterOrEqual(t, elapsed, idle, "the indicator must not fall early")
}

func TestTypingCountdownResetsOnEachUpdate(t *testing.T) {
	idle := 120 * time.Millisecond
	svc, _ := newTestService(t, idle)
	conversationID := uuid.New()
	userID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states, err := svc.SubscribeTyping(ctx, conversationID)
	require.NoError(t, err)
	<-states

	var lastTouch time.Time
	for i := 0; i < 4; i++ {
		lastTouch = time.Now()
		require.NoError(t, svc.SetTyping(ctx, conversationID, userID, true))
		time.Sleep(40 * time.Millisecond)
	}

	// Drain until the forced false arrives; it must come after the last
	// touch plus the full idle window, not the first.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-states:
			if !state.IsTyping {
				assert.GreaterOrEqual(t, time.Since(lastTouch), idle,
					"each update must reset the countdown")
				return
			}
		case <-deadline:
			t.Fatal("typing never fell false")
		}
	}
}

func TestSendForcesTypingFalseAndCancelsCountdown(t *testing.T) {
	idle := 150 * time.Millisecond
	svc, _ := newTestService(t, idle)
	conversationID := uuid.New()
	sender := Sender{ID: uuid.NewString(), Name: "Priya", Type: "user"}
	userID := uuid.MustParse(sender.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states, err := svc.SubscribeTyping(ctx, conversationID)
	require.NoError(t, err)
	<-states

	require.NoError(t, svc.SetTyping(ctx, conversationID, userID, true))
	state := recvTyping(t, states)
	require.True(t, state.IsTyping)

	_, err = svc.SendMessage(ctx, conversationID, sender, "done typing")
	require.NoError(t, err)

	state = recvTyping(t, states)
	assert.False(t, state.IsTyping, "sending must force the indicator off immediately")
}

func recvList(t *testing.T, ch <-chan []*domain.Message) []*domain.Message {
	t.Helper()
	select {
	case list, ok := <-ch:
		require.True(t, ok, "subscription closed unexpectedly")
		return list
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message snapshot")
		return nil
	}
}

func recvTyping(t *testing.T, ch <-chan domain.TypingState) domain.TypingState {
	t.Helper()
	select {
	case state, ok := <-ch:
		require.True(t, ok, "subscription closed unexpectedly")
		return state
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for typing state")
		return domain.TypingState{}
	}
}
