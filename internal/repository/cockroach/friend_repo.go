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

// FriendRepository handles friend request persistence in CockroachDB.
// Rejected and cancelled requests are deleted rather than status-flagged.
type FriendRepository struct {
	pool *pgxpool.Pool
}

// NewFriendRepository creates a new FriendRepository
func NewFriendRepository(pool *pgxpool.Pool) *FriendRepository {
	return &FriendRepository{pool: pool}
}

// Create inserts a pending friend request
func (r *FriendRepository) Create(ctx context.Context, request *domain.FriendRequest) error {
	if request.RequestID == uuid.Nil {
		request.RequestID = uuid.New()
	}

	query := `
		INSERT INTO friend_requests (request_id, from_user_id, from_user_name, to_user_id, to_user_name, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		request.RequestID,
		request.FromUserID,
		request.FromUserName,
		request.ToUserID,
		request.ToUserName,
		request.Status,
	).Scan(&request.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create friend request: %w", err)
	}

	return nil
}

// GetByID retrieves a friend request
func (r *FriendRepository) GetByID(ctx context.Context, requestID uuid.UUID) (*domain.FriendRequest, error) {
	query := `
		SELECT request_id, from_user_id, from_user_name, to_user_id, to_user_name, status, created_at
		FROM friend_requests
		WHERE request_id = $1
	`

	request := &domain.FriendRequest{}
	err := r.pool.QueryRow(ctx, query, requestID).Scan(
		&request.RequestID,
		&request.FromUserID,
		&request.FromUserName,
		&request.ToUserID,
		&request.ToUserName,
		&request.Status,
		&request.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("friend request %s: %w", requestID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get friend request: %w", err)
	}

	return request, nil
}

// ExistsBetween reports whether any request links the two users, in
// either direction and regardless of status.
func (r *FriendRepository) ExistsBetween(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM friend_requests
			WHERE (from_user_id = $1 AND to_user_id = $2)
			   OR (from_user_id = $2 AND to_user_id = $1)
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userA, userB).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check friend request existence: %w", err)
	}

	return exists, nil
}

// UpdateStatus transitions a request (pending -> accepted)
func (r *FriendRepository) UpdateStatus(ctx context.Context, requestID uuid.UUID, status string) error {
	query := `UPDATE friend_requests SET status = $1 WHERE request_id = $2`

	cmdTag, err := r.pool.Exec(ctx, query, status, requestID)
	if err != nil {
		return fmt.Errorf("failed to update friend request: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("friend request %s: %w", requestID, ErrNotFound)
	}

	return nil
}

// Delete removes a request (reject or cancel)
func (r *FriendRepository) Delete(ctx context.Context, requestID uuid.UUID) error {
	query := `DELETE FROM friend_requests WHERE request_id = $1`

	cmdTag, err := r.pool.Exec(ctx, query, requestID)
	if err != nil {
		return fmt.Errorf("failed to delete friend request: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("friend request %s: %w", requestID, ErrNotFound)
	}

	return nil
}

// ListIncoming returns pending requests addressed to the user, newest first
func (r *FriendRepository) ListIncoming(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	query := `
		SELECT request_id, from_user_id, from_user_name, to_user_id, to_user_name, status, created_at
		FROM friend_requests
		WHERE to_user_id = $1 AND status = $2
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID, domain.FriendRequestPending)
}

// ListOutgoing returns pending requests the user has sent, newest first
func (r *FriendRepository) ListOutgoing(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	query := `
		SELECT request_id, from_user_id, from_user_name, to_user_id, to_user_name, status, created_at
		FROM friend_requests
		WHERE from_user_id = $1 AND status = $2
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID, domain.FriendRequestPending)
}

// ListFriends returns accepted requests involving the user
func (r *FriendRepository) ListFriends(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	query := `
		SELECT request_id, from_user_id, from_user_name, to_user_id, to_user_name, status, created_at
		FROM friend_requests
		WHERE (from_user_id = $1 OR to_user_id = $1) AND status = $2
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, domain.FriendRequestAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

func (r *FriendRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.FriendRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

func scanRequests(rows pgx.Rows) ([]*domain.FriendRequest, error) {
	var requests []*domain.FriendRequest
	for rows.Next() {
		request := &domain.FriendRequest{}
		if err := rows.Scan(
			&request.RequestID,
			&request.FromUserID,
			&request.FromUserName,
			&request.ToUserID,
			&request.ToUserName,
			&request.Status,
			&request.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read friend requests: %w", err)
	}

	return requests, nil
}
