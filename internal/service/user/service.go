// Package user exposes the profile projection maintained by the external
// identity provider: browse providers, read and update rates and bio.
package user

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/repository/cockroach"
	apperrors "friendfinder-backend/pkg/errors"
)

const defaultPageSize = 20

// ProfileStore is the profile persistence boundary
type ProfileStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	ListProviders(ctx context.Context, limit, offset int) ([]*domain.Profile, error)
	Update(ctx context.Context, userID uuid.UUID, update domain.ProfileUpdate) error
}

// Service handles profile business logic
type Service struct {
	profiles ProfileStore
}

// NewService creates a new user service
func NewService(profiles ProfileStore) *Service {
	return &Service{profiles: profiles}
}

// Get returns a profile by user ID
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.NotFoundError(apperrors.ErrCodeUserNotFound, "user not found")
		}
		return nil, apperrors.DatabaseError(err)
	}
	return profile, nil
}

// Browse lists provider profiles for discovery
func (s *Service) Browse(ctx context.Context, limit, offset int) ([]*domain.Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	profiles, err := s.profiles.ListProviders(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return profiles, nil
}

// UpdateProfile applies the non-nil fields of the update to the actor's
// own profile
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, update domain.ProfileUpdate) (*domain.Profile, error) {
	if update.ChatRate != nil && *update.ChatRate < 0 {
		return nil, apperrors.ValidationError("chat rate must not be negative")
	}
	if update.VideoRate != nil && *update.VideoRate < 0 {
		return nil, apperrors.ValidationError("video rate must not be negative")
	}
	if update.Name != nil && *update.Name == "" {
		return nil, apperrors.ValidationError("name must not be empty")
	}

	if err := s.profiles.Update(ctx, userID, update); err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.NotFoundError(apperrors.ErrCodeUserNotFound, "user not found")
		}
		return nil, apperrors.DatabaseError(err)
	}

	return s.Get(ctx, userID)
}
