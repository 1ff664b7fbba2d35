package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken ErrorCode = "EXPIRED_TOKEN"

	// Authorization errors
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// Not found errors
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUserNotFound    ErrorCode = "USER_NOT_FOUND"
	ErrCodeBookingNotFound ErrorCode = "BOOKING_NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict            ErrorCode = "CONFLICT"
	ErrCodeRequestExists       ErrorCode = "FRIEND_REQUEST_EXISTS"
	ErrCodeNegotiationConflict ErrorCode = "NEGOTIATION_CONFLICT"

	// Call/media errors
	ErrCodeMediaUnavailable ErrorCode = "MEDIA_UNAVAILABLE"
	ErrCodeTransport        ErrorCode = "TRANSPORT_ERROR"

	// Wallet errors
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodePaymentFailed       ErrorCode = "PAYMENT_FAILED"

	// Rate limiting errors
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase       ErrorCode = "DATABASE_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents an application error with code, message and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with a 500 status
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// NewWithStatus creates a new AppError with an explicit HTTP status
func NewWithStatus(code ErrorCode, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap wraps an underlying error into an AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// WrapWithStatus wraps an underlying error with an explicit HTTP status
func WrapWithStatus(code ErrorCode, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Constructors for the common cases

func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

func NotFoundError(code ErrorCode, message string) *AppError {
	return NewWithStatus(code, message, http.StatusNotFound)
}

func ConflictError(code ErrorCode, message string) *AppError {
	return NewWithStatus(code, message, http.StatusConflict)
}

// NegotiationConflictError signals a lost first-writer race during call setup.
// Recovered internally by role downgrade, never surfaced to the user.
func NegotiationConflictError(sessionID string) *AppError {
	return NewWithStatus(ErrCodeNegotiationConflict,
		fmt.Sprintf("offer already recorded for session %s", sessionID),
		http.StatusConflict)
}

// MediaUnavailableError signals local capture denial or failure. Fatal for
// the call attempt, no retry.
func MediaUnavailableError(err error) *AppError {
	return WrapWithStatus(ErrCodeMediaUnavailable,
		"unable to access camera or microphone", http.StatusServiceUnavailable, err)
}

// TransportError signals an unreachable realtime store. Fatal per operation.
func TransportError(err error) *AppError {
	return WrapWithStatus(ErrCodeTransport, "realtime store unreachable",
		http.StatusServiceUnavailable, err)
}

func InsufficientBalanceError(message string) *AppError {
	return NewWithStatus(ErrCodeInsufficientBalance, message, http.StatusPaymentRequired)
}

func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return WrapWithStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// IsCode reports whether err carries the given application error code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}
