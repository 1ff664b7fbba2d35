package friend

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	friendsvc "friendfinder-backend/internal/service/friend"
	"friendfinder-backend/pkg/response"
)

// Handler handles friend request HTTP requests
type Handler struct {
	friendService *friendsvc.Service
}

// NewHandler creates a new friend handler
func NewHandler(friendService *friendsvc.Service) *Handler {
	return &Handler{friendService: friendService}
}

// SendRequestBody represents a new friend request
type SendRequestBody struct {
	ToUserID   string `json:"to_user_id" binding:"required,uuid"`
	ToUserName string `json:"to_user_name" binding:"required"`
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	return userIDVal.(uuid.UUID), true
}

// SendRequest creates a pending friend request
// POST /v1/friends/requests
func (h *Handler) SendRequest(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	var body SendRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	toUserID, err := uuid.Parse(body.ToUserID)
	if err != nil {
		response.ValidationError(c, "invalid to_user_id")
		return
	}

	request, err := h.friendService.SendRequest(c.Request.Context(), friendsvc.SendRequestInput{
		FromUserID:   userID,
		FromUserName: c.GetString("user_name"),
		ToUserID:     toUserID,
		ToUserName:   body.ToUserName,
	})
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, request)
}

// Accept accepts a pending request addressed to the caller
// POST /v1/friends/requests/:id/accept
func (h *Handler) Accept(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid request ID")
		return
	}

	request, err := h.friendService.Accept(c.Request.Context(), requestID, userID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, request)
}

// Reject deletes a pending request addressed to the caller
// POST /v1/friends/requests/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid request ID")
		return
	}

	if err := h.friendService.Reject(c.Request.Context(), requestID, userID); err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"rejected": true})
}

// Cancel deletes a pending request the caller sent
// DELETE /v1/friends/requests/:id
func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid request ID")
		return
	}

	if err := h.friendService.Cancel(c.Request.Context(), requestID, userID); err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

// ListIncoming lists pending requests addressed to the caller
// GET /v1/friends/requests/incoming
func (h *Handler) ListIncoming(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	requests, err := h.friendService.Incoming(c.Request.Context(), userID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"requests": requests})
}

// ListOutgoing lists pending requests the caller sent
// GET /v1/friends/requests/outgoing
func (h *Handler) ListOutgoing(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	requests, err := h.friendService.Outgoing(c.Request.Context(), userID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"requests": requests})
}

// ListFriends lists the caller's accepted friendships
// GET /v1/friends
func (h *Handler) ListFriends(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	friends, err := h.friendService.Friends(c.Request.Context(), userID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"friends": friends})
}
