package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeSendsPaiseAndBasicAuth(t *testing.T) {
	var got chargeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(chargeResponse{ID: "pay_123", Status: "captured"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, KeyID: "key", Secret: "secret"})

	paymentID, err := client.Charge(context.Background(), uuid.New(), 499.50)
	require.NoError(t, err)
	assert.Equal(t, "pay_123", paymentID)
	assert.Equal(t, int64(49950), got.Amount)
	assert.Equal(t, "INR", got.Currency)
	assert.NotEmpty(t, got.Receipt)
}

func TestChargeRejectsUncapturedPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResponse{ID: "pay_456", Status: "failed"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.Charge(context.Background(), uuid.New(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not captured")
}

func TestChargeRejectsGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.Charge(context.Background(), uuid.New(), 100)
	require.Error(t, err)
}
