package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"friendfinder-backend/internal/domain"
	usersvc "friendfinder-backend/internal/service/user"
	"friendfinder-backend/pkg/response"
)

// Handler handles profile HTTP requests
type Handler struct {
	userService *usersvc.Service
}

// NewHandler creates a new user handler
func NewHandler(userService *usersvc.Service) *Handler {
	return &Handler{userService: userService}
}

// Browse lists provider profiles
// GET /v1/providers?limit=20&offset=0
func (h *Handler) Browse(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	profiles, err := h.userService.Browse(c.Request.Context(), limit, offset)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"providers": profiles})
}

// Get returns a profile by ID
// GET /v1/users/:id
func (h *Handler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid user ID")
		return
	}

	profile, err := h.userService.Get(c.Request.Context(), userID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// UpdateMe updates the caller's own profile
// PATCH /v1/users/me
func (h *Handler) UpdateMe(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	userID := userIDVal.(uuid.UUID)

	var update domain.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	profile, err := h.userService.UpdateProfile(c.Request.Context(), userID, update)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}
