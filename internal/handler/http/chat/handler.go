package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	bookingsvc "friendfinder-backend/internal/service/booking"
	chatsvc "friendfinder-backend/internal/service/chat"
	"friendfinder-backend/pkg/response"
)

// Handler handles chat HTTP requests
type Handler struct {
	chatService    *chatsvc.Service
	bookingService *bookingsvc.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chatsvc.Service, bookingService *bookingsvc.Service) *Handler {
	return &Handler{chatService: chatService, bookingService: bookingService}
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// TypingRequest represents a typing indicator update
type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// participant resolves the caller's identity and verifies booking
// membership. Writes the error response itself on failure.
func (h *Handler) participant(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid booking ID")
		return uuid.Nil, uuid.Nil, false
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, uuid.Nil, false
	}
	userID := userIDVal.(uuid.UUID)

	if _, err := h.bookingService.Get(c.Request.Context(), bookingID, userID); err != nil {
		response.FromAppError(c, err)
		return uuid.Nil, uuid.Nil, false
	}

	return bookingID, userID, true
}

// SendMessage handles sending a new message
// POST /v1/bookings/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	bookingID, userID, ok := h.participant(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	sender := chatsvc.Sender{
		ID:   userID.String(),
		Name: c.GetString("user_name"),
		Type: c.GetString("user_type"),
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), bookingID, sender, req.Text)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// GetMessages retrieves the conversation history, oldest first
// GET /v1/bookings/:id/messages
func (h *Handler) GetMessages(c *gin.Context) {
	bookingID, _, ok := h.participant(c)
	if !ok {
		return
	}

	messages, err := h.chatService.Messages(c.Request.Context(), bookingID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"messages": messages})
}

// SetTyping updates the caller's typing indicator
// POST /v1/bookings/:id/typing
func (h *Handler) SetTyping(c *gin.Context) {
	bookingID, userID, ok := h.participant(c)
	if !ok {
		return
	}

	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.chatService.SetTyping(c.Request.Context(), bookingID, userID, req.IsTyping); err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"is_typing": req.IsTyping})
}

// GetUnreadCount counts messages the caller has not observed
// GET /v1/bookings/:id/unread
func (h *Handler) GetUnreadCount(c *gin.Context) {
	bookingID, userID, ok := h.participant(c)
	if !ok {
		return
	}

	count, err := h.chatService.UnreadCount(c.Request.Context(), bookingID, userID.String())
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread": count})
}
