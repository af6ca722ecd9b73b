package sanctions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const maxListBytes = 32 << 20

// HTTPProvider fetches consolidated watchlist JSON from a mirror endpoint,
// guarded by a circuit breaker so a flapping mirror cannot stall screening.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPProvider builds an HTTPProvider for the given mirror base URL.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "sanctions-lists",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// FetchLists downloads the consolidated list document.
func (p *HTTPProvider) FetchLists(ctx context.Context) ([]Record, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/consolidated.json", nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch sanctions lists: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("sanctions mirror returned %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxListBytes))
		if err != nil {
			return nil, fmt.Errorf("read sanctions lists: %w", err)
		}
		var doc struct {
			Records []Record `json:"records"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode sanctions lists: %w", err)
		}
		return doc.Records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Record), nil
}
