// Package relay is the client side of the concierge relay: it calls the
// internal relay endpoint and the save-to-trip endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"travel-concierge-go/internal/model"
)

// ErrCommunication marks failures to talk to the internal relay endpoint,
// as opposed to a structured success:false answer.
var ErrCommunication = errors.New("relay communication error")

// MaxAttempts is the number of tries per user-initiated send. No retry.
const MaxAttempts = 1

// DefaultTimeout bounds one relay round trip.
const DefaultTimeout = 30 * time.Second

// Relayer forwards a chat payload and returns the normalized result.
type Relayer interface {
	Relay(ctx context.Context, payload model.ChatPayload) (*model.RelayResult, error)
}

// Client calls the internal relay endpoint with the function invocation key.
type Client struct {
	endpoint    string
	functionKey string
	client      *http.Client
}

// NewClient creates a relay Client. timeout <= 0 uses DefaultTimeout.
func NewClient(endpoint, functionKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:    endpoint,
		functionKey: functionKey,
		client:      &http.Client{Timeout: timeout},
	}
}

// Relay posts the payload. Any JSON answer carrying a "success" field is a
// structured result, whatever its status code; everything else is wrapped in
// ErrCommunication. A 401 or 403 means the endpoint was not authorized and is
// always ErrCommunication.
func (c *Client) Relay(ctx context.Context, payload model.ChatPayload) (*model.RelayResult, error) {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.functionKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.functionKey)
		req.Header.Set("apikey", c.functionKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrCommunication, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: relay endpoint rejected credentials (status %d): %s", ErrCommunication, resp.StatusCode, string(body))
	}

	var envelope struct {
		Success *bool `json:"success"`
		model.RelayResult
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Success == nil {
		return nil, fmt.Errorf("%w: relay endpoint returned status %d: %s", ErrCommunication, resp.StatusCode, string(body))
	}
	result := envelope.RelayResult
	result.Success = *envelope.Success
	return &result, nil
}
