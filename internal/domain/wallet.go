package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types
const (
	TransactionCredit = "credit"
	TransactionDebit  = "debit"
)

// Wallet holds a user's balance in the platform currency (rupees)
type Wallet struct {
	UserID    uuid.UUID `json:"user_id"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction records a single wallet movement
type Transaction struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Type          string    `json:"type"` // credit, debit
	Amount        float64   `json:"amount"`
	Description   string    `json:"description"`
	PaymentID     string    `json:"payment_id,omitempty"` // gateway reference for top-ups
	CreatedAt     time.Time `json:"created_at"`
}
