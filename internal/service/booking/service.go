// Package booking links users with providers. A booking is the anchor
// object of the product: its ID is the conversation ID for chat and the
// session ID for call signaling.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/repository/cockroach"
	apperrors "friendfinder-backend/pkg/errors"
)

// Session kinds a booking can be opened for
const (
	SessionChat  = "chat"
	SessionVideo = "video"
)

// BookingStore is the booking persistence boundary
type BookingStore interface {
	FindOrCreate(ctx context.Context, booking *domain.Booking) (created bool, err error)
	GetByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Booking, error)
	Close(ctx context.Context, bookingID uuid.UUID) error
}

// ProfileStore resolves provider identity and rates
type ProfileStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}

// SessionPayer settles the session fee between the two wallets
type SessionPayer interface {
	PaySession(ctx context.Context, from, to uuid.UUID, amount float64, description string) error
}

// Notifier posts system messages into the booking's conversation
type Notifier interface {
	SendSystem(ctx context.Context, conversationID uuid.UUID, text string) (*domain.Message, error)
}

// Service handles booking business logic
type Service struct {
	bookings BookingStore
	profiles ProfileStore
	payments SessionPayer
	notifier Notifier
}

// NewService creates a new booking service
func NewService(bookings BookingStore, profiles ProfileStore, payments SessionPayer, notifier Notifier) *Service {
	return &Service{bookings: bookings, profiles: profiles, payments: payments, notifier: notifier}
}

// BookInput describes a booking attempt
type BookInput struct {
	UserID   uuid.UUID
	UserName string

	ProviderID uuid.UUID
	Kind       string // chat, video
}

// Book returns the active booking for the pair, creating and charging for
// a new one when none exists. Rebooking an existing pair never charges
// again. A failed payment closes the just-created booking.
func (s *Service) Book(ctx context.Context, input BookInput) (*domain.Booking, error) {
	if input.Kind != SessionChat && input.Kind != SessionVideo {
		return nil, apperrors.ValidationError("session kind must be chat or video")
	}
	if input.UserID == input.ProviderID {
		return nil, apperrors.ValidationError("cannot book a session with yourself")
	}

	provider, err := s.profiles.GetByID(ctx, input.ProviderID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.NotFoundError(apperrors.ErrCodeUserNotFound, "provider not found")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if provider.UserType != domain.UserTypeProvider {
		return nil, apperrors.ValidationError("sessions can only be booked with providers")
	}

	rate := provider.ChatRate
	if input.Kind == SessionVideo {
		rate = provider.VideoRate
	}

	booking := &domain.Booking{
		UserID:       input.UserID,
		UserName:     input.UserName,
		ProviderID:   input.ProviderID,
		ProviderName: provider.Name,
	}
	created, err := s.bookings.FindOrCreate(ctx, booking)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !created {
		return booking, nil
	}

	description := fmt.Sprintf("%s session with %s", input.Kind, provider.Name)
	if err := s.payments.PaySession(ctx, input.UserID, input.ProviderID, rate, description); err != nil {
		if cerr := s.bookings.Close(ctx, booking.BookingID); cerr != nil {
			return nil, apperrors.DatabaseError(cerr)
		}
		return nil, err
	}

	if s.notifier != nil {
		text := fmt.Sprintf("Booking confirmed between %s and %s", input.UserName, provider.Name)
		if _, nerr := s.notifier.SendSystem(ctx, booking.BookingID, text); nerr != nil {
			// The booking stands; the system message is best effort
			return booking, nil
		}
	}

	return booking, nil
}

// Get returns a booking the actor participates in
func (s *Service) Get(ctx context.Context, bookingID, actorID uuid.UUID) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.NotFoundError(apperrors.ErrCodeBookingNotFound, "booking not found")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if !booking.HasParticipant(actorID) {
		return nil, apperrors.ForbiddenError("not a participant of this booking")
	}
	return booking, nil
}

// ListForUser returns the user's bookings, either side, newest first
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Booking, error) {
	bookings, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return bookings, nil
}

// End closes a booking on behalf of a participant
func (s *Service) End(ctx context.Context, bookingID, actorID uuid.UUID) error {
	booking, err := s.Get(ctx, bookingID, actorID)
	if err != nil {
		return err
	}
	if booking.Status == domain.BookingStatusClosed {
		return nil
	}
	if err := s.bookings.Close(ctx, bookingID); err != nil {
		return apperrors.DatabaseError(err)
	}
	if s.notifier != nil {
		_, _ = s.notifier.SendSystem(ctx, bookingID, "Session ended")
	}
	return nil
}
