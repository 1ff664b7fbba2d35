package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"friendfinder-backend/internal/domain"
)

// ErrInsufficientFunds is returned when a debit would take a balance
// below zero. The enclosing transaction is rolled back.
var ErrInsufficientFunds = errors.New("insufficient funds")

// WalletRepository handles balances and transaction records in
// CockroachDB. All movements run inside database transactions so a
// paid-session transfer is observed whole or not at all.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new WalletRepository
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// Get retrieves the user's wallet, creating a zero-balance row on first
// touch.
func (r *WalletRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO UPDATE SET user_id = wallets.user_id
		RETURNING user_id, balance, updated_at
	`

	wallet := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&wallet.UserID,
		&wallet.Balance,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return wallet, nil
}

// Credit adds funds and records the transaction. paymentID carries the
// gateway reference for top-ups; empty for internal credits.
func (r *WalletRepository) Credit(ctx context.Context, userID uuid.UUID, amount float64, description, paymentID string) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := creditTx(ctx, tx, userID, amount); err != nil {
			return err
		}
		var err error
		txn, err = recordTx(ctx, tx, userID, domain.TransactionCredit, amount, description, paymentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return txn, nil
}

// Transfer atomically debits the payer and credits the payee, recording
// one transaction per side. Fails whole with ErrInsufficientFunds when
// the payer cannot cover the amount.
func (r *WalletRepository) Transfer(ctx context.Context, from, to uuid.UUID, amount float64, description string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := debitTx(ctx, tx, from, amount); err != nil {
			return err
		}
		if err := creditTx(ctx, tx, to, amount); err != nil {
			return err
		}
		if _, err := recordTx(ctx, tx, from, domain.TransactionDebit, amount, description, ""); err != nil {
			return err
		}
		_, err := recordTx(ctx, tx, to, domain.TransactionCredit, amount, description, "")
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("failed to transfer: %w", err)
	}
	return nil
}

// ListTransactions returns the user's wallet history, newest first
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT transaction_id, user_id, type, amount, description, payment_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn := &domain.Transaction{}
		if err := rows.Scan(
			&txn.TransactionID,
			&txn.UserID,
			&txn.Type,
			&txn.Amount,
			&txn.Description,
			&txn.PaymentID,
			&txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txns, nil
}

func creditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount float64) error {
	query := `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, query, userID, amount); err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	return nil
}

func debitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount float64) error {
	query := `
		UPDATE wallets
		SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1
	`
	cmdTag, err := tx.Exec(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func recordTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, kind string, amount float64, description, paymentID string) (*domain.Transaction, error) {
	txn := &domain.Transaction{
		TransactionID: uuid.New(),
		UserID:        userID,
		Type:          kind,
		Amount:        amount,
		Description:   description,
		PaymentID:     paymentID,
	}

	query := `
		INSERT INTO transactions (transaction_id, user_id, type, amount, description, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query,
		txn.TransactionID,
		txn.UserID,
		txn.Type,
		txn.Amount,
		txn.Description,
		txn.PaymentID,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	return txn, nil
}
