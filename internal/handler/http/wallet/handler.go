package wallet

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	walletsvc "friendfinder-backend/internal/service/wallet"
	"friendfinder-backend/pkg/response"
)

// Handler handles wallet HTTP requests
type Handler struct {
	walletService *walletsvc.Service
}

// NewHandler creates a new wallet handler
func NewHandler(walletService *walletsvc.Service) *Handler {
	return &Handler{walletService: walletService}
}

// TopUpRequest represents a wallet top-up
type TopUpRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	return userIDVal.(uuid.UUID), true
}

// GetBalance returns the caller's wallet
// GET /v1/wallet
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	wallet, err := h.walletService.Balance(c.Request.Context(), userID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, wallet)
}

// TopUp charges the payment gateway and credits the wallet on success
// POST /v1/wallet/topup
func (h *Handler) TopUp(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	txn, err := h.walletService.TopUp(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, txn)
}

// ListTransactions returns the caller's wallet history
// GET /v1/wallet/transactions?limit=50
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	txns, err := h.walletService.Transactions(c.Request.Context(), userID, limit)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"transactions": txns})
}
