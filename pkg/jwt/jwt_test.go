package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	manager := NewJWTManager("test-secret-key-at-least-32-chars!!", 15*time.Minute, 24*time.Hour)

	userID := uuid.New()
	token, err := manager.GenerateAccessToken(userID, "Priya", "provider")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "Priya", claims.Name)
	assert.Equal(t, "provider", claims.UserType)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager("test-secret-key-at-least-32-chars!!", 15*time.Minute, 24*time.Hour)
	other := NewJWTManager("another-secret-key-also-32-chars!!!", 15*time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken(uuid.New(), "Aman", "user")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret-key-at-least-32-chars!!", -1*time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken(uuid.New(), "Aman", "user")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}
