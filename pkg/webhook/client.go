// Package webhook provides the outbound client used by the relay endpoint
// to reach the external automation webhook.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxAttempts is the number of tries per forwarded request. The relay does
// not retry; raise this only together with a backoff policy.
const MaxAttempts = 1

// maxBodyBytes bounds how much of an upstream body is read.
const maxBodyBytes = 1 << 20

// Response is the raw upstream answer.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Forwarder sends a JSON body to a webhook URL.
type Forwarder interface {
	Forward(ctx context.Context, url string, body []byte) (*Response, error)
}

type httpForwarder struct {
	client *http.Client
}

// NewClient creates a Forwarder whose requests are bounded by timeout.
func NewClient(timeout time.Duration) Forwarder {
	return &httpForwarder{client: &http.Client{Timeout: timeout}}
}

// Forward posts body unmodified with a JSON content type. Non-2xx statuses are
// not errors here; callers inspect the Response.
func (f *httpForwarder) Forward(ctx context.Context, url string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
