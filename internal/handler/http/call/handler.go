package call

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	callsvc "friendfinder-backend/internal/call"
	"friendfinder-backend/internal/signaling"
	bookingsvc "friendfinder-backend/internal/service/booking"
	"friendfinder-backend/pkg/response"
)

// Handler exposes call session state over HTTP: the current session
// snapshot, server-side call control, and hangup.
type Handler struct {
	channel        *signaling.Channel
	manager        *callsvc.Manager
	bookingService *bookingsvc.Service
}

// NewHandler creates a new call handler. manager may be nil when the
// deployment only relays browser-to-browser calls.
func NewHandler(channel *signaling.Channel, manager *callsvc.Manager, bookingService *bookingsvc.Service) *Handler {
	return &Handler{channel: channel, manager: manager, bookingService: bookingService}
}

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

// GetSession returns the current call session document, if any
// GET /v1/bookings/:id/call
func (h *Handler) GetSession(c *gin.Context) {
	bookingID, _, ok := h.participant(c)
	if !ok {
		return
	}

	snap, err := h.channel.CurrentSession(c.Request.Context(), bookingID.String())
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	if !snap.Exists {
		response.Success(c, http.StatusOK, gin.H{"active": false})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"active": true, "session": snap.Session})
}

// Join starts a server-side negotiation machine for the booking's call.
// Used by native/headless peers; browser peers use the signaling stream.
// POST /v1/bookings/:id/call
func (h *Handler) Join(c *gin.Context) {
	bookingID, userID, ok := h.participant(c)
	if !ok {
		return
	}
	if h.manager == nil {
		response.Error(c, http.StatusNotImplemented, "NOT_IMPLEMENTED", "server-side calls are not enabled")
		return
	}

	machine, err := h.manager.Start(c.Request.Context(), bookingID.String(), callsvc.Identity{
		ID:   userID,
		Name: c.GetString("user_name"),
	})
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{
		"state":       machine.State(),
		"description": machine.ConnectionDescription(),
	})
}

// Hangup ends the booking's call for both peers: the local machine if one
// runs here, and the shared session document either way.
// DELETE /v1/bookings/:id/call
func (h *Handler) Hangup(c *gin.Context) {
	bookingID, _, ok := h.participant(c)
	if !ok {
		return
	}

	if h.manager != nil && h.manager.Hangup(bookingID.String()) {
		response.Success(c, http.StatusOK, gin.H{"ended": true})
		return
	}

	if err := h.channel.Teardown(c.Request.Context(), bookingID.String()); err != nil {
		response.FromAppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ended": true})
}
