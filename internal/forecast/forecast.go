// Package forecast fronts the managed forecasting endpoint with a
// postgres-backed cache. Results stay valid for 24h; a stale cached forecast
// still beats an endpoint outage.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/venwatch/venwatch/internal/persistence"
)

const (
	staleAfter     = 24 * time.Hour
	maxBodyBytes   = 4 << 20
	defaultHorizon = 30
)

// Client resolves forecasts cache-first.
type Client struct {
	baseURL string
	http    *http.Client
	store   persistence.ForecastStore
	breaker *gobreaker.CircuitBreaker
	nowFn   func() time.Time
}

func NewClient(baseURL string, store persistence.ForecastStore, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "forecast-endpoint",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
		nowFn: time.Now,
	}
}

// Get returns the forecast for an entity at the given horizon (days).
// Fresh cache wins; otherwise the endpoint is called and the result cached.
// An endpoint failure falls back to the stale cache when one exists.
func (c *Client) Get(ctx context.Context, entityID string, horizon int) (*persistence.Forecast, error) {
	if entityID == "" {
		return nil, fmt.Errorf("forecast: empty entity id")
	}
	if horizon <= 0 {
		horizon = defaultHorizon
	}

	cached, err := c.store.Get(ctx, entityID, horizon)
	if err != nil && err != persistence.ErrNotFound {
		return nil, fmt.Errorf("forecast cache read: %w", err)
	}
	now := c.nowFn().UTC()
	if cached != nil && now.Sub(cached.GeneratedAt) < staleAfter {
		return cached, nil
	}

	fresh, err := c.fetch(ctx, entityID, horizon)
	if err != nil {
		if cached != nil {
			log.Warn().Err(err).Str("entity", entityID).Msg("forecast endpoint failed, serving stale cache")
			return cached, nil
		}
		return nil, err
	}

	if err := c.store.Put(ctx, *fresh); err != nil {
		log.Warn().Err(err).Str("entity", entityID).Msg("forecast cache write failed")
	}
	return fresh, nil
}

type request struct {
	EntityID string `json:"entity_id"`
	Horizon  int    `json:"horizon"`
}

type response struct {
	EntityID    string                      `json:"entity_id"`
	Horizon     int                         `json:"horizon"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Points      []persistence.ForecastPoint `json:"points"`
}

func (c *Client) fetch(ctx context.Context, entityID string, horizon int) (*persistence.Forecast, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		body, err := json.Marshal(request{EntityID: entityID, Horizon: horizon})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forecast", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("forecast endpoint status %d", resp.StatusCode)
		}

		var r response
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&r); err != nil {
			return nil, fmt.Errorf("decode forecast: %w", err)
		}
		if len(r.Points) == 0 {
			return nil, fmt.Errorf("forecast endpoint returned no points")
		}
		return &r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch forecast %s/%dd: %w", entityID, horizon, err)
	}

	r := result.(*response)
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = c.nowFn().UTC()
	}
	return &persistence.Forecast{
		EntityID:    entityID,
		Horizon:     horizon,
		Points:      r.Points,
		GeneratedAt: generated,
	}, nil
}
