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
	"friendfinder-backend/internal/signaling"
	bookingsvc "friendfinder-backend/internal/service/booking"
	apperrors "friendfinder-backend/pkg/errors"
	"friendfinder-backend/pkg/logger"
	"friendfinder-backend/pkg/metrics"
	"friendfinder-backend/pkg/response"
)

// Signaling frame types
const (
	SignalFrameSession   = "session"
	SignalFrameCandidate = "candidate"
	SignalFrameOffer     = "offer"
	SignalFrameAnswer    = "answer"
	SignalFrameHangup    = "hangup"
	SignalFrameError     = "error"
)

// SignalFrame is the wire envelope on the signaling stream, both directions
type SignalFrame struct {
	Type      string                     `json:"type"`
	Exists    bool                       `json:"exists,omitempty"`
	Session   *domain.CallSession        `json:"session,omitempty"`
	Candidate *domain.ICECandidate       `json:"candidate,omitempty"`
	SDP       *domain.SessionDescription `json:"sdp,omitempty"`
	Blob      string                     `json:"blob,omitempty"` // raw candidate line, inbound
	Code      string                     `json:"code,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// SignalingHandler relays call negotiation between a browser peer and the
// shared session document: session snapshots and candidate additions go
// out; offers, answers, candidates and hangups come in. The glare rule is
// surfaced as an error code the client downgrades on.
type SignalingHandler struct {
	channel  *signaling.Channel
	bookings *bookingsvc.Service
	metrics  *metrics.Metrics
}

// NewSignalingHandler creates a new signaling stream handler
func NewSignalingHandler(channel *signaling.Channel, bookings *bookingsvc.Service, m *metrics.Metrics) *SignalingHandler {
	return &SignalingHandler{channel: channel, bookings: bookings, metrics: m}
}

// ServeWS handles GET /ws/signaling?booking_id=...
func (h *SignalingHandler) ServeWS(c *gin.Context) {
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

	if _, err := h.bookings.Get(c.Request.Context(), bookingID, userID); err != nil {
		response.FromAppError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("signaling websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &signalingClient{
		handler:   h,
		conn:      conn,
		send:      make(chan []byte, 64),
		ctx:       ctx,
		cancel:    cancel,
		sessionID: bookingID.String(),
		userID:    userID,
		userName:  userName,
	}

	if h.metrics != nil {
		h.metrics.WebSocketConnected()
	}

	if err := client.subscribe(); err != nil {
		client.close()
		return
	}

	go client.writePump()
	go client.readPump()
}

type signalingClient struct {
	handler   *SignalingHandler
	conn      *websocket.Conn
	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	sessionID string
	userID    uuid.UUID
	userName  string
}

func (c *signalingClient) subscribe() error {
	sessions, err := c.handler.channel.SubscribeSession(c.ctx, c.sessionID)
	if err != nil {
		return err
	}
	candidates, err := c.handler.channel.SubscribeCandidates(c.ctx, c.sessionID)
	if err != nil {
		return err
	}

	go func() {
		for snap := range sessions {
			c.enqueue(SignalFrame{Type: SignalFrameSession, Exists: snap.Exists, Session: snap.Session})
		}
	}()
	go func() {
		for candidate := range candidates {
			// Own candidates are already known to the sender
			if candidate.OwnerID == c.userID {
				continue
			}
			copied := candidate
			c.enqueue(SignalFrame{Type: SignalFrameCandidate, Candidate: &copied})
		}
	}()

	return nil
}

func (c *signalingClient) enqueue(frame SignalFrame) {
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
	}
}

func (c *signalingClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("signaling websocket read failed", zap.Error(err))
			}
			return
		}

		var frame SignalFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.enqueue(SignalFrame{Type: SignalFrameError, Error: "invalid frame"})
			continue
		}
		if c.handler.metrics != nil {
			c.handler.metrics.RecordWebSocketMessage("in", frame.Type)
		}

		c.handleFrame(frame)
	}
}

func (c *signalingClient) handleFrame(frame SignalFrame) {
	switch frame.Type {
	case SignalFrameOffer:
		if frame.SDP == nil {
			c.enqueue(SignalFrame{Type: SignalFrameError, Error: "offer requires sdp"})
			return
		}
		err := c.handler.channel.PublishOffer(c.ctx, c.sessionID, *frame.SDP, c.userID, c.userName)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrCodeNegotiationConflict) && c.handler.metrics != nil {
				c.handler.metrics.RecordNegotiationConflict()
			}
			c.publishError(err)
		}
	case SignalFrameAnswer:
		if frame.SDP == nil {
			c.enqueue(SignalFrame{Type: SignalFrameError, Error: "answer requires sdp"})
			return
		}
		if err := c.handler.channel.PublishAnswer(c.ctx, c.sessionID, *frame.SDP, c.userID); err != nil {
			c.publishError(err)
		}
	case SignalFrameCandidate:
		if frame.Blob == "" {
			c.enqueue(SignalFrame{Type: SignalFrameError, Error: "candidate requires blob"})
			return
		}
		if err := c.handler.channel.PublishCandidate(c.ctx, c.sessionID, frame.Blob, c.userID); err != nil {
			c.publishError(err)
		}
	case SignalFrameHangup:
		if err := c.handler.channel.Teardown(c.ctx, c.sessionID); err != nil {
			c.publishError(err)
		}
	default:
		c.enqueue(SignalFrame{Type: SignalFrameError, Error: "unknown frame type"})
	}
}

func (c *signalingClient) publishError(err error) {
	appErr := apperrors.GetAppError(err)
	c.enqueue(SignalFrame{
		Type:  SignalFrameError,
		Code:  string(appErr.Code),
		Error: appErr.Message,
	})
}

func (c *signalingClient) writePump() {
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

func (c *signalingClient) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
		if c.handler.metrics != nil {
			c.handler.metrics.WebSocketDisconnected()
		}
	})
}
