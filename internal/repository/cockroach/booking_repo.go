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

// BookingRepository handles booking persistence in CockroachDB. A booking
// row is the anchor both realtime protocols hang off: its ID is the chat
// conversation ID and the call session ID.
type BookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// FindOrCreate returns the active booking for the (user, provider) pair,
// creating one when none exists. The unique index on (user_id,
// provider_id, status) makes concurrent creation safe: the loser of the
// insert race re-reads the winner's row.
func (r *BookingRepository) FindOrCreate(ctx context.Context, booking *domain.Booking) (created bool, err error) {
	existing, err := r.FindActive(ctx, booking.UserID, booking.ProviderID)
	if err == nil {
		*booking = *existing
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	if booking.BookingID == uuid.Nil {
		booking.BookingID = uuid.New()
	}
	booking.Status = domain.BookingStatusActive

	query := `
		INSERT INTO bookings (booking_id, user_id, user_name, provider_id, provider_name, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider_id, status) DO NOTHING
		RETURNING created_at
	`

	err = r.pool.QueryRow(ctx, query,
		booking.BookingID,
		booking.UserID,
		booking.UserName,
		booking.ProviderID,
		booking.ProviderName,
		booking.Status,
	).Scan(&booking.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the insert race; the other writer's booking is the one
		existing, ferr := r.FindActive(ctx, booking.UserID, booking.ProviderID)
		if ferr != nil {
			return false, ferr
		}
		*booking = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create booking: %w", err)
	}

	return true, nil
}

// FindActive retrieves the active booking for a (user, provider) pair
func (r *BookingRepository) FindActive(ctx context.Context, userID, providerID uuid.UUID) (*domain.Booking, error) {
	query := `
		SELECT booking_id, user_id, user_name, provider_id, provider_name, status, created_at
		FROM bookings
		WHERE user_id = $1 AND provider_id = $2 AND status = $3
	`

	booking := &domain.Booking{}
	err := r.pool.QueryRow(ctx, query, userID, providerID, domain.BookingStatusActive).Scan(
		&booking.BookingID,
		&booking.UserID,
		&booking.UserName,
		&booking.ProviderID,
		&booking.ProviderName,
		&booking.Status,
		&booking.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking for %s/%s: %w", userID, providerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return booking, nil
}

// GetByID retrieves a booking
func (r *BookingRepository) GetByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	query := `
		SELECT booking_id, user_id, user_name, provider_id, provider_name, status, created_at
		FROM bookings
		WHERE booking_id = $1
	`

	booking := &domain.Booking{}
	err := r.pool.QueryRow(ctx, query, bookingID).Scan(
		&booking.BookingID,
		&booking.UserID,
		&booking.UserName,
		&booking.ProviderID,
		&booking.ProviderName,
		&booking.Status,
		&booking.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return booking, nil
}

// ListByUser returns bookings the user participates in, either side, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Booking, error) {
	query := `
		SELECT booking_id, user_id, user_name, provider_id, provider_name, status, created_at
		FROM bookings
		WHERE user_id = $1 OR provider_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking := &domain.Booking{}
		if err := rows.Scan(
			&booking.BookingID,
			&booking.UserID,
			&booking.UserName,
			&booking.ProviderID,
			&booking.ProviderName,
			&booking.Status,
			&booking.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bookings: %w", err)
	}

	return bookings, nil
}

// Close marks the booking closed
func (r *BookingRepository) Close(ctx context.Context, bookingID uuid.UUID) error {
	query := `UPDATE bookings SET status = $1 WHERE booking_id = $2`

	cmdTag, err := r.pool.Exec(ctx, query, domain.BookingStatusClosed, bookingID)
	if err != nil {
		return fmt.Errorf("failed to close booking: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
	}

	return nil
}
