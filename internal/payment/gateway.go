// Package payment adapts the external payment gateway's order API to the
// wallet service's PaymentGateway interface.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to the hosted payment gateway. Amounts are rupees; the
// gateway wire format wants paise.
type Client struct {
	baseURL string
	keyID   string
	secret  string
	http    *http.Client
}

// Config holds gateway credentials
type Config struct {
	BaseURL string
	KeyID   string
	Secret  string
}

// NewClient creates a gateway client
func NewClient(config Config) *Client {
	return &Client{
		baseURL: config.BaseURL,
		keyID:   config.KeyID,
		secret:  config.Secret,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type chargeRequest struct {
	Amount   int64  `json:"amount"` // paise
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Charge creates and captures a payment for the user. Returns the gateway
// payment ID on success; any non-captured outcome is an error and the
// wallet must not be credited.
func (c *Client) Charge(ctx context.Context, userID uuid.UUID, amount float64) (string, error) {
	body, err := json.Marshal(chargeRequest{
		Amount:   int64(amount * 100),
		Currency: "INR",
		Receipt:  fmt.Sprintf("topup_%s_%d", userID, time.Now().Unix()),
	})
	if err != nil {
		return "", fmt.Errorf("encode charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("gateway rejected charge: status %d", resp.StatusCode)
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode charge response: %w", err)
	}
	if out.Status != "captured" {
		return "", fmt.Errorf("payment not captured: %s", out.Status)
	}

	return out.ID, nil
}
