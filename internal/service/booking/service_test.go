package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"friendfinder-backend/internal/domain"
	apperrors "friendfinder-backend/pkg/errors"
)

type MockBookingStore struct {
	mock.Mock
}

func (m *MockBookingStore) FindOrCreate(ctx context.Context, booking *domain.Booking) (bool, error) {
	args := m.Called(ctx, booking)
	if booking.BookingID == uuid.Nil {
		booking.BookingID = uuid.New()
	}
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingStore) GetByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Booking, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*domain.Booking), args.Error(1)
}

func (m *MockBookingStore) Close(ctx context.Context, bookingID uuid.UUID) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetByID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

type MockPayer struct {
	mock.Mock
}

func (m *MockPayer) PaySession(ctx context.Context, from, to uuid.UUID, amount float64, description string) error {
	args := m.Called(ctx, from, to, amount, description)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendSystem(ctx context.Context, conversationID uuid.UUID, text string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func newProvider() *domain.Profile {
	return &domain.Profile{
		UserID:    uuid.New(),
		Name:      "Aman",
		UserType:  domain.UserTypeProvider,
		ChatRate:  50,
		VideoRate: 200,
	}
}

func TestBookNewSessionChargesAndNotifies(t *testing.T) {
	bookings := new(MockBookingStore)
	profiles := new(MockProfileStore)
	payer := new(MockPayer)
	notifier := new(MockNotifier)
	service := NewService(bookings, profiles, payer, notifier)

	provider := newProvider()
	userID := uuid.New()

	profiles.On("GetByID", mock.Anything, provider.UserID).Return(provider, nil)
	bookings.On("FindOrCreate", mock.Anything, mock.AnythingOfType("*domain.Booking")).Return(true, nil)
	payer.On("PaySession", mock.Anything, userID, provider.UserID, 200.0, "video session with Aman").Return(nil)
	notifier.On("SendSystem", mock.Anything, mock.AnythingOfType("uuid.UUID"), "Booking confirmed between Priya and Aman").
		Return(&domain.Message{}, nil)

	booking, err := service.Book(context.Background(), BookInput{
		UserID: userID, UserName: "Priya",
		ProviderID: provider.UserID, Kind: SessionVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Name, booking.ProviderName)
	payer.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestBookExistingSessionNeverChargesTwice(t *testing.T) {
	bookings := new(MockBookingStore)
	profiles := new(MockProfileStore)
	payer := new(MockPayer)
	service := NewService(bookings, profiles, payer, nil)

	provider := newProvider()
	profiles.On("GetByID", mock.Anything, provider.UserID).Return(provider, nil)
	bookings.On("FindOrCreate", mock.Anything, mock.AnythingOfType("*domain.Booking")).Return(false, nil)

	_, err := service.Book(context.Background(), BookInput{
		UserID: uuid.New(), UserName: "Priya",
		ProviderID: provider.UserID, Kind: SessionChat,
	})
	require.NoError(t, err)
	payer.AssertNotCalled(t, "PaySession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookFailedPaymentClosesBooking(t *testing.T) {
	bookings := new(MockBookingStore)
	profiles := new(MockProfileStore)
	payer := new(MockPayer)
	service := NewService(bookings, profiles, payer, nil)

	provider := newProvider()
	userID := uuid.New()

	profiles.On("GetByID", mock.Anything, provider.UserID).Return(provider, nil)
	bookings.On("FindOrCreate", mock.Anything, mock.AnythingOfType("*domain.Booking")).Return(true, nil)
	payer.On("PaySession", mock.Anything, userID, provider.UserID, 50.0, "chat session with Aman").
		Return(apperrors.InsufficientBalanceError("wallet balance does not cover the session fee"))
	bookings.On("Close", mock.Anything, mock.AnythingOfType("uuid.UUID")).Return(nil)

	_, err := service.Book(context.Background(), BookInput{
		UserID: userID, UserName: "Priya",
		ProviderID: provider.UserID, Kind: SessionChat,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInsufficientBalance))
	bookings.AssertCalled(t, "Close", mock.Anything, mock.AnythingOfType("uuid.UUID"))
}

func TestBookRejectsNonProvider(t *testing.T) {
	bookings := new(MockBookingStore)
	profiles := new(MockProfileStore)
	service := NewService(bookings, profiles, new(MockPayer), nil)

	target := &domain.Profile{UserID: uuid.New(), Name: "Ravi", UserType: domain.UserTypeUser}
	profiles.On("GetByID", mock.Anything, target.UserID).Return(target, nil)

	_, err := service.Book(context.Background(), BookInput{
		UserID: uuid.New(), ProviderID: target.UserID, Kind: SessionChat,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	bookings.AssertNotCalled(t, "FindOrCreate", mock.Anything, mock.Anything)
}

func TestGetEnforcesParticipation(t *testing.T) {
	bookings := new(MockBookingStore)
	service := NewService(bookings, new(MockProfileStore), new(MockPayer), nil)

	booking := &domain.Booking{
		BookingID:  uuid.New(),
		UserID:     uuid.New(),
		ProviderID: uuid.New(),
		Status:     domain.BookingStatusActive,
	}
	bookings.On("GetByID", mock.Anything, booking.BookingID).Return(booking, nil)

	_, err := service.Get(context.Background(), booking.BookingID, uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	got, err := service.Get(context.Background(), booking.BookingID, booking.UserID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingID, got.BookingID)
}
