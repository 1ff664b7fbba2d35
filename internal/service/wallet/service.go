// Package wallet handles balances, gateway top-ups and session payments.
package wallet

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/repository/cockroach"
	apperrors "friendfinder-backend/pkg/errors"
)

const defaultHistoryLimit = 50

// WalletStore is the balance and transaction persistence boundary
type WalletStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	Credit(ctx context.Context, userID uuid.UUID, amount float64, description, paymentID string) (*domain.Transaction, error)
	Transfer(ctx context.Context, from, to uuid.UUID, amount float64, description string) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error)
}

// PaymentGateway collects real-world funds. The wallet is credited only
// after the gateway confirms the charge.
type PaymentGateway interface {
	Charge(ctx context.Context, userID uuid.UUID, amount float64) (paymentID string, err error)
}

// Service handles wallet business logic
type Service struct {
	wallets WalletStore
	gateway PaymentGateway
}

// NewService creates a new wallet service
func NewService(wallets WalletStore, gateway PaymentGateway) *Service {
	return &Service{wallets: wallets, gateway: gateway}
}

// Balance returns the user's wallet, creating it on first touch
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return wallet, nil
}

// TopUp charges the gateway and credits the wallet on success. A failed
// or declined charge leaves the balance untouched.
func (s *Service) TopUp(ctx context.Context, userID uuid.UUID, amount float64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperrors.ValidationError("top-up amount must be positive")
	}

	paymentID, err := s.gateway.Charge(ctx, userID, amount)
	if err != nil {
		return nil, apperrors.WrapWithStatus(apperrors.ErrCodePaymentFailed,
			"payment was not completed", http.StatusPaymentRequired, err)
	}

	txn, err := s.wallets.Credit(ctx, userID, amount, "Wallet top-up", paymentID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return txn, nil
}

// PaySession moves the session fee from the user to the provider in one
// database transaction. A zero fee is a no-op.
func (s *Service) PaySession(ctx context.Context, from, to uuid.UUID, amount float64, description string) error {
	if amount < 0 {
		return apperrors.ValidationError("session fee must not be negative")
	}
	if amount == 0 {
		return nil
	}

	err := s.wallets.Transfer(ctx, from, to, amount, description)
	if err != nil {
		if errors.Is(err, cockroach.ErrInsufficientFunds) {
			return apperrors.InsufficientBalanceError("wallet balance does not cover the session fee")
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}

// Transactions returns the user's wallet history, newest first
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	txns, err := s.wallets.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return txns, nil
}
