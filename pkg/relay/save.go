package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"travel-concierge-go/internal/model"
)

// Saver posts a suggestion to the save-to-trip endpoint.
type Saver interface {
	Save(ctx context.Context, accessToken string, req model.SaveRequest) (map[string]interface{}, error)
}

// SaveClient calls the save-to-trip endpoint with the user's bearer token.
type SaveClient struct {
	url    string
	client *http.Client
}

// NewSaveClient creates a SaveClient. timeout <= 0 uses DefaultTimeout.
func NewSaveClient(url string, timeout time.Duration) *SaveClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SaveClient{url: url, client: &http.Client{Timeout: timeout}}
}

// Save returns the parsed response body. A non-2xx status is an error.
func (c *SaveClient) Save(ctx context.Context, accessToken string, saveReq model.SaveRequest) (map[string]interface{}, error) {
	reqBytes, err := json.Marshal(saveReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal save request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call save endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("save endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	result := map[string]interface{}{}
	if len(bytes.TrimSpace(body)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode save response: %w", err)
	}
	return result, nil
}
