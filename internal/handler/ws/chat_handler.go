package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"friendfinder-backend/internal/domain"
	bookingsvc "friendfinder-backend/internal/service/booking"
	chatsvc "friendfinder-backend/internal/service/chat"
	"friendfinder-backend/pkg/logger"
	"friendfinder-backend/pkg/metrics"
	"friendfinder-backend/pkg/response"
)

// Chat frame types
const (
	ChatFrameMessages = "messages"
	ChatFrameTyping   = "typing"
	ChatFrameSend     = "send"
	ChatFrameError    = "error"
)

// ChatFrame is the wire envelope on the chat stream, both directions
type ChatFrame struct {
	Type     string              `json:"type"`
	Messages []*domain.Message   `json:"messages,omitempty"`
	Typing   *domain.TypingState `json:"typing,omitempty"`
	Text     string              `json:"text,omitempty"`
	IsTyping bool                `json:"is_typing,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Presence marks users online while they hold a chat stream open
type Presence interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
}

// ChatHandler upgrades chat stream connections. Each connection carries
// the full ordered message list on every change plus typing updates, and
// accepts sends and typing signals from the client.
type ChatHandler struct {
	chat     *chatsvc.Service
	bookings *bookingsvc.Service
	presence Presence
	metrics  *metrics.Metrics
}

// NewChatHandler creates a new chat stream handler. presence and metrics
// may be nil.
func NewChatHandler(chat *chatsvc.Service, bookings *bookingsvc.Service, presence Presence, m *metrics.Metrics) *ChatHandler {
	return &ChatHandler{chat: chat, bookings: bookings, presence: presence, metrics: m}
}

// ServeWS handles GET /ws/chat?booking_id=...
func (h *ChatHandler) ServeWS(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Query("booking_id"))
	if err != nil {
		response.ValidationError(c, "invalid booking_id")
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	userID := userIDVal.(uuid.UUID)
	userName := c.GetString("user_name")
	userType := c.GetString("user_type")

	// Only booking participants may open the conversation
	if _, err := h.bookings.Get(c.Request.Context(), bookingID, userID); err != nil {
		response.FromAppError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("chat websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &chatClient{
		handler:   h,
		conn:      conn,
		send:      make(chan []byte, 64),
		ctx:       ctx,
		cancel:    cancel,
		bookingID: bookingID,
		sender: chatsvc.Sender{
			ID:   userID.String(),
			Name: userName,
			Type: userType,
		},
		userID: userID,
	}

	if h.metrics != nil {
		h.metrics.WebSocketConnected()
	}
	if h.presence != nil {
		if perr := h.presence.SetUserOnline(ctx, userID); perr != nil {
			logger.Warn("presence online failed", zap.Error(perr))
		}
	}

	if err := client.subscribe(); err != nil {
		client.close()
		return
	}

	go client.writePump()
	go client.readPump()
}

type chatClient struct {
	handler   *ChatHandler
	conn      *websocket.Conn
	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	bookingID uuid.UUID
	sender    chatsvc.Sender
	userID    uuid.UUID
}

// subscribe attaches the connection to the conversation's message and
// typing feeds
func (c *chatClient) subscribe() error {
	messages, err := c.handler.chat.Subscribe(c.ctx, c.bookingID, c.sender.ID)
	if err != nil {
		return err
	}
	typing, err := c.handler.chat.SubscribeTyping(c.ctx, c.bookingID)
	if err != nil {
		return err
	}

	go func() {
		for list := range messages {
			c.enqueue(ChatFrame{Type: ChatFrameMessages, Messages: list})
		}
	}()
	go func() {
		for state := range typing {
			// The sender's own indicator is not echoed back
			if state.UserID == c.userID {
				continue
			}
			copied := state
			c.enqueue(ChatFrame{Type: ChatFrameTyping, Typing: &copied})
		}
	}()

	return nil
}

func (c *chatClient) enqueue(frame ChatFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
		if c.handler.metrics != nil {
			c.handler.metrics.RecordWebSocketMessage("out", frame.Type)
		}
	case <-c.ctx.Done():
	default:
		// Slow consumer: drop the frame, the next snapshot supersedes it
	}
}

func (c *chatClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.handler.presence != nil {
			if err := c.handler.presence.RefreshPresence(c.ctx, c.userID); err != nil {
				logger.Warn("presence refresh failed", zap.Error(err))
			}
		}
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("chat websocket read failed", zap.Error(err))
			}
			return
		}

		var frame ChatFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.enqueue(ChatFrame{Type: ChatFrameError, Error: "invalid frame"})
			continue
		}
		if c.handler.metrics != nil {
			c.handler.metrics.RecordWebSocketMessage("in", frame.Type)
		}

		switch frame.Type {
		case ChatFrameSend:
			if _, err := c.handler.chat.SendMessage(c.ctx, c.bookingID, c.sender, frame.Text); err != nil {
				c.enqueue(ChatFrame{Type: ChatFrameError, Error: err.Error()})
			}
		case ChatFrameTyping:
			if err := c.handler.chat.SetTyping(c.ctx, c.bookingID, c.userID, frame.IsTyping); err != nil {
				logger.Warn("typing update failed", zap.Error(err))
			}
		default:
			c.enqueue(ChatFrame{Type: ChatFrameError, Error: "unknown frame type"})
		}
	}
}

func (c *chatClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *chatClient) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
		if c.handler.metrics != nil {
			c.handler.metrics.WebSocketDisconnected()
		}
		if c.handler.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.handler.presence.SetUserOffline(ctx, c.userID); err != nil {
				logger.Warn("presence offline failed", zap.Error(err))
			}
		}
	})
}
