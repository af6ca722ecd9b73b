package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 16 << 20

// HTTPClient is the shared fetch helper for source adapters: one GET, a
// bounded read, and status classification into the retry taxonomy.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient builds an HTTPClient with the given per-request timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// GetJSON fetches url and decodes the body into out. Server-side and
// rate-limit statuses classify as transient; client errors as permanent.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out any) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Permanent(fmt.Errorf("decode %s: %w", url, err))
	}
	return nil
}

// Get fetches url and returns the raw body.
func (c *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Transient(fmt.Errorf("%s returned %d", url, resp.StatusCode))
	default:
		return nil, Permanent(fmt.Errorf("%s returned %d", url, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, Transient(fmt.Errorf("read %s: %w", url, err))
	}
	return body, nil
}
