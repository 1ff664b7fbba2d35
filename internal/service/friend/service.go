// Package friend implements the friend request lifecycle: send, accept,
// reject, cancel. Rejections and cancellations delete the request.
package friend

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/repository/cockroach"
	apperrors "friendfinder-backend/pkg/errors"
)

// RequestStore is the friend request persistence boundary
type RequestStore interface {
	Create(ctx context.Context, request *domain.FriendRequest) error
	GetByID(ctx context.Context, requestID uuid.UUID) (*domain.FriendRequest, error)
	ExistsBetween(ctx context.Context, userA, userB uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, requestID uuid.UUID, status string) error
	Delete(ctx context.Context, requestID uuid.UUID) error
	ListIncoming(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error)
	ListOutgoing(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error)
	ListFriends(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error)
}

// Service handles friend request business logic
type Service struct {
	requests RequestStore
}

// NewService creates a new friend service
func NewService(requests RequestStore) *Service {
	return &Service{requests: requests}
}

// SendRequestInput identifies both sides of a new request
type SendRequestInput struct {
	FromUserID   uuid.UUID
	FromUserName string
	ToUserID     uuid.UUID
	ToUserName   string
}

// SendRequest creates a pending request. A request in either direction,
// pending or accepted, blocks a new one.
func (s *Service) SendRequest(ctx context.Context, input SendRequestInput) (*domain.FriendRequest, error) {
	if input.FromUserID == input.ToUserID {
		return nil, apperrors.ValidationError("cannot send a friend request to yourself")
	}

	exists, err := s.requests.ExistsBetween(ctx, input.FromUserID, input.ToUserID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if exists {
		return nil, apperrors.NewWithStatus(apperrors.ErrCodeRequestExists,
			"a friend request already exists between these users", http.StatusConflict)
	}

	request := &domain.FriendRequest{
		FromUserID:   input.FromUserID,
		FromUserName: input.FromUserName,
		ToUserID:     input.ToUserID,
		ToUserName:   input.ToUserName,
		Status:       domain.FriendRequestPending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return request, nil
}

// Accept transitions a pending request to accepted. Only the recipient may accept.
func (s *Service) Accept(ctx context.Context, requestID, actorID uuid.UUID) (*domain.FriendRequest, error) {
	request, err := s.get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.ToUserID != actorID {
		return nil, apperrors.ForbiddenError("only the recipient can accept a friend request")
	}
	if request.Status != domain.FriendRequestPending {
		return nil, apperrors.ValidationError("friend request is not pending")
	}

	if err := s.requests.UpdateStatus(ctx, requestID, domain.FriendRequestAccepted); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	request.Status = domain.FriendRequestAccepted
	return request, nil
}

// Reject deletes a pending request. Only the recipient may reject.
func (s *Service) Reject(ctx context.Context, requestID, actorID uuid.UUID) error {
	request, err := s.get(ctx, requestID)
	if err != nil {
		return err
	}
	if request.ToUserID != actorID {
		return apperrors.ForbiddenError("only the recipient can reject a friend request")
	}
	if request.Status != domain.FriendRequestPending {
		return apperrors.ValidationError("friend request is not pending")
	}

	if err := s.requests.Delete(ctx, requestID); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// Cancel deletes a pending request the actor sent
func (s *Service) Cancel(ctx context.Context, requestID, actorID uuid.UUID) error {
	request, err := s.get(ctx, requestID)
	if err != nil {
		return err
	}
	if request.FromUserID != actorID {
		return apperrors.ForbiddenError("only the sender can cancel a friend request")
	}
	if request.Status != domain.FriendRequestPending {
		return apperrors.ValidationError("friend request is not pending")
	}

	if err := s.requests.Delete(ctx, requestID); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// Incoming lists pending requests addressed to the user
func (s *Service) Incoming(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	requests, err := s.requests.ListIncoming(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return requests, nil
}

// Outgoing lists pending requests the user has sent
func (s *Service) Outgoing(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	requests, err := s.requests.ListOutgoing(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return requests, nil
}

// Friends lists the user's accepted friendships
func (s *Service) Friends(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	requests, err := s.requests.ListFriends(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return requests, nil
}

func (s *Service) get(ctx context.Context, requestID uuid.UUID) (*domain.FriendRequest, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.NotFoundError(apperrors.ErrCodeNotFound, "friend request not found")
		}
		return nil, apperrors.DatabaseError(err)
	}
	return request, nil
}
