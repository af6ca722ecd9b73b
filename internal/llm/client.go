package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPClientConfig configures the managed-endpoint client.
type HTTPClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`

	// Models maps tiers to upstream model names.
	Models map[Tier]string `yaml:"models"`
}

// DefaultHTTPClientConfig returns sane production settings.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout: 60 * time.Second,
		Models: map[Tier]string{
			TierFast:     "analyst-fast",
			TierStandard: "analyst-standard",
			TierPremium:  "analyst-premium",
		},
	}
}

// HTTPClient talks to the managed LLM endpoint behind a circuit breaker so a
// degraded upstream fails fast instead of stalling the analyze workers.
type HTTPClient struct {
	cfg     HTTPClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPClient builds the client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm",
			MaxRequests: 2,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

type completeRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Input  string `json:"input"`
}

type completeResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Complete issues one completion call for the given tier.
func (c *HTTPClient) Complete(ctx context.Context, tier Tier, system, user string) (string, error) {
	model, ok := c.cfg.Models[tier]
	if !ok {
		model = c.cfg.Models[TierFast]
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(completeRequest{Model: model, System: system, Input: user})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/complete", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("llm endpoint returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
		}
		var cr completeResponse
		if err := json.Unmarshal(raw, &cr); err != nil {
			return nil, fmt.Errorf("decode llm response: %w", err)
		}
		if cr.Error != "" {
			return nil, fmt.Errorf("llm endpoint error: %s", cr.Error)
		}
		return cr.Output, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
