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

// ErrNotFound marks row-absence across the cockroach repositories so
// services can translate it without string matching.
var ErrNotFound = errors.New("not found")

// UserRepository handles profile data operations in CockroachDB
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new profile
func (r *UserRepository) Create(ctx context.Context, profile *domain.Profile) error {
	query := `
		INSERT INTO profiles (user_id, name, email, user_type, bio, chat_rate, video_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		profile.UserID,
		profile.Name,
		profile.Email,
		profile.UserType,
		profile.Bio,
		profile.ChatRate,
		profile.VideoRate,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by user ID
func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	query := `
		SELECT user_id, name, email, user_type, bio, chat_rate, video_rate, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	profile := &domain.Profile{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.Name,
		&profile.Email,
		&profile.UserType,
		&profile.Bio,
		&profile.ChatRate,
		&profile.VideoRate,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

// ListProviders retrieves provider profiles for browsing, newest first
func (r *UserRepository) ListProviders(ctx context.Context, limit, offset int) ([]*domain.Profile, error) {
	query := `
		SELECT user_id, name, email, user_type, bio, chat_rate, video_rate, created_at, updated_at
		FROM profiles
		WHERE user_type = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, domain.UserTypeProvider, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		profile := &domain.Profile{}
		if err := rows.Scan(
			&profile.UserID,
			&profile.Name,
			&profile.Email,
			&profile.UserType,
			&profile.Bio,
			&profile.ChatRate,
			&profile.VideoRate,
			&profile.CreatedAt,
			&profile.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	return profiles, nil
}

// Update applies the non-nil fields of the update to the profile
func (r *UserRepository) Update(ctx context.Context, userID uuid.UUID, update domain.ProfileUpdate) error {
	query := `
		UPDATE profiles
		SET name       = COALESCE($1, name),
		    bio        = COALESCE($2, bio),
		    chat_rate  = COALESCE($3, chat_rate),
		    video_rate = COALESCE($4, video_rate),
		    updated_at = NOW()
		WHERE user_id = $5
	`

	cmdTag, err := r.pool.Exec(ctx, query,
		update.Name,
		update.Bio,
		update.ChatRate,
		update.VideoRate,
		userID,
	)

	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}

	return nil
}

// Exists checks whether a profile exists for the user
func (r *UserRepository) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM profiles WHERE user_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check profile existence: %w", err)
	}

	return exists, nil
}
