package booking

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	bookingsvc "friendfinder-backend/internal/service/booking"
	"friendfinder-backend/pkg/response"
)

// Handler handles booking HTTP requests
type Handler struct {
	bookingService *bookingsvc.Service
}

// NewHandler creates a new booking handler
func NewHandler(bookingService *bookingsvc.Service) *Handler {
	return &Handler{bookingService: bookingService}
}

// BookRequest represents a booking attempt
type BookRequest struct {
	ProviderID string `json:"provider_id" binding:"required,uuid"`
	Kind       string `json:"kind" binding:"required,oneof=chat video"`
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	return userIDVal.(uuid.UUID), true
}

// Book finds or creates the booking with a provider. A new booking is
// charged at the provider's rate for the requested session kind.
// POST /v1/bookings
func (h *Handler) Book(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		response.ValidationError(c, "invalid provider_id")
		return
	}

	booking, err := h.bookingService.Book(c.Request.Context(), bookingsvc.BookInput{
		UserID:     userID,
		UserName:   c.GetString("user_name"),
		ProviderID: providerID,
		Kind:       req.Kind,
	})
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, booking)
}

// Get returns one of the caller's bookings
// GET /v1/bookings/:id
func (h *Handler) Get(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid booking ID")
		return
	}

	booking, err := h.bookingService.Get(c.Request.Context(), bookingID, userID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, booking)
}

// List returns the caller's bookings, newest first
// GET /v1/bookings
func (h *Handler) List(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	bookings, err := h.bookingService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"bookings": bookings})
}

// End closes a booking
// DELETE /v1/bookings/:id
func (h *Handler) End(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid booking ID")
		return
	}

	if err := h.bookingService.End(c.Request.Context(), bookingID, userID); err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"closed": true})
}
