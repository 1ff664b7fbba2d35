package friend

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/repository/cockroach"
	apperrors "friendfinder-backend/pkg/errors"
)

type MockRequestStore struct {
	mock.Mock
}

func (m *MockRequestStore) Create(ctx context.Context, request *domain.FriendRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockRequestStore) GetByID(ctx context.Context, requestID uuid.UUID) (*domain.FriendRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FriendRequest), args.Error(1)
}

func (m *MockRequestStore) ExistsBetween(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *MockRequestStore) UpdateStatus(ctx context.Context, requestID uuid.UUID, status string) error {
	args := m.Called(ctx, requestID, status)
	return args.Error(0)
}

func (m *MockRequestStore) Delete(ctx context.Context, requestID uuid.UUID) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *MockRequestStore) ListIncoming(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*domain.FriendRequest), args.Error(1)
}

func (m *MockRequestStore) ListOutgoing(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*domain.FriendRequest), args.Error(1)
}

func (m *MockRequestStore) ListFriends(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*domain.FriendRequest), args.Error(1)
}

func TestSendRequest(t *testing.T) {
	store := new(MockRequestStore)
	service := NewService(store)

	input := SendRequestInput{
		FromUserID: uuid.New(), FromUserName: "Priya",
		ToUserID: uuid.New(), ToUserName: "Aman",
	}

	store.On("ExistsBetween", mock.Anything, input.FromUserID, input.ToUserID).Return(false, nil)
	store.On("Create", mock.Anything, mock.AnythingOfType("*domain.FriendRequest")).Return(nil)

	request, err := service.SendRequest(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.FriendRequestPending, request.Status)
	assert.Equal(t, input.FromUserID, request.FromUserID)
	store.AssertExpectations(t)
}

func TestSendRequestRejectsDuplicateEitherDirection(t *testing.T) {
	store := new(MockRequestStore)
	service := NewService(store)

	from, to := uuid.New(), uuid.New()
	store.On("ExistsBetween", mock.Anything, from, to).Return(true, nil)

	_, err := service.SendRequest(context.Background(), SendRequestInput{
		FromUserID: from, ToUserID: to,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRequestExists))
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendRequestRejectsSelf(t *testing.T) {
	service := NewService(new(MockRequestStore))
	userID := uuid.New()

	_, err := service.SendRequest(context.Background(), SendRequestInput{
		FromUserID: userID, ToUserID: userID,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestAcceptOnlyByRecipient(t *testing.T) {
	store := new(MockRequestStore)
	service := NewService(store)

	request := &domain.FriendRequest{
		RequestID:  uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
		Status:     domain.FriendRequestPending,
	}
	store.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)

	_, err := service.Accept(context.Background(), request.RequestID, request.FromUserID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden), "the sender cannot accept")

	store.On("UpdateStatus", mock.Anything, request.RequestID, domain.FriendRequestAccepted).Return(nil)
	accepted, err := service.Accept(context.Background(), request.RequestID, request.ToUserID)
	require.NoError(t, err)
	assert.Equal(t, domain.FriendRequestAccepted, accepted.Status)
	store.AssertExpectations(t)
}

func TestRejectDeletesRequest(t *testing.T) {
	store := new(MockRequestStore)
	service := NewService(store)

	request := &domain.FriendRequest{
		RequestID:  uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
		Status:     domain.FriendRequestPending,
	}
	store.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)
	store.On("Delete", mock.Anything, request.RequestID).Return(nil)

	err := service.Reject(context.Background(), request.RequestID, request.ToUserID)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestCancelOnlyBySender(t *testing.T) {
	store := new(MockRequestStore)
	service := NewService(store)

	request := &domain.FriendRequest{
		RequestID:  uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
		Status:     domain.FriendRequestPending,
	}
	store.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)

	err := service.Cancel(context.Background(), request.RequestID, request.ToUserID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	store.On("Delete", mock.Anything, request.RequestID).Return(nil)
	require.NoError(t, service.Cancel(context.Background(), request.RequestID, request.FromUserID))
	store.AssertExpectations(t)
}

func TestAcceptMissingRequest(t *testing.T) {
	store := new(MockRequestStore)
	service := NewService(store)

	requestID := uuid.New()
	store.On("GetByID", mock.Anything, requestID).
		Return(nil, fmt.Errorf("friend request %s: %w", requestID, cockroach.ErrNotFound))

	_, err := service.Accept(context.Background(), requestID, uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}
