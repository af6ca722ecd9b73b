package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/persistence"
)

type memForecastStore struct {
	mu   sync.Mutex
	data map[string]persistence.Forecast
}

func newMemForecastStore() *memForecastStore {
	return &memForecastStore{data: make(map[string]persistence.Forecast)}
}

func (s *memForecastStore) key(entityID string, horizon int) string {
	return fmt.Sprintf("%s/%d", entityID, horizon)
}

func (s *memForecastStore) Get(_ context.Context, entityID string, horizon int) (*persistence.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.data[s.key(entityID, horizon)]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &f, nil
}

func (s *memForecastStore) Put(_ context.Context, f persistence.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.key(f.EntityID, f.Horizon)] = f
	return nil
}

func forecastServer(t *testing.T, calls *int, fail bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(response{
			EntityID:    req.EntityID,
			Horizon:     req.Horizon,
			GeneratedAt: time.Now().UTC(),
			Points: []persistence.ForecastPoint{
				{Timestamp: time.Now().UTC(), Value: 42, Lower: 30, Upper: 55},
			},
		})
	}))
}

func TestGet_FetchesAndCaches(t *testing.T) {
	calls := 0
	srv := forecastServer(t, &calls, false)
	defer srv.Close()

	store := newMemForecastStore()
	c := NewClient(srv.URL, store, time.Second)

	f, err := c.Get(context.Background(), "pdvsa", 30)
	require.NoError(t, err)
	require.Len(t, f.Points, 1)
	assert.Equal(t, 42.0, f.Points[0].Value)
	assert.Equal(t, 1, calls)

	// Second call within the staleness window never hits the endpoint.
	_, err = c.Get(context.Background(), "pdvsa", 30)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGet_StaleCacheTriggersRefetch(t *testing.T) {
	calls := 0
	srv := forecastServer(t, &calls, false)
	defer srv.Close()

	store := newMemForecastStore()
	store.Put(context.Background(), persistence.Forecast{
		EntityID:    "pdvsa",
		Horizon:     30,
		Points:      []persistence.ForecastPoint{{Value: 1}},
		GeneratedAt: time.Now().UTC().Add(-48 * time.Hour),
	})

	c := NewClient(srv.URL, store, time.Second)
	f, err := c.Get(context.Background(), "pdvsa", 30)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 42.0, f.Points[0].Value, "stale entry replaced")
}

func TestGet_StaleBeatsOutage(t *testing.T) {
	calls := 0
	srv := forecastServer(t, &calls, true)
	defer srv.Close()

	store := newMemForecastStore()
	stale := persistence.Forecast{
		EntityID:    "pdvsa",
		Horizon:     30,
		Points:      []persistence.ForecastPoint{{Value: 7}},
		GeneratedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	store.Put(context.Background(), stale)

	c := NewClient(srv.URL, store, time.Second)
	f, err := c.Get(context.Background(), "pdvsa", 30)
	require.NoError(t, err)
	assert.Equal(t, 7.0, f.Points[0].Value, "stale cache served through the outage")
}

func TestGet_OutageWithoutCacheErrors(t *testing.T) {
	calls := 0
	srv := forecastServer(t, &calls, true)
	defer srv.Close()

	c := NewClient(srv.URL, newMemForecastStore(), time.Second)
	_, err := c.Get(context.Background(), "pdvsa", 30)
	assert.Error(t, err)
}

func TestGet_Validation(t *testing.T) {
	c := NewClient("http://unused", newMemForecastStore(), time.Second)
	_, err := c.Get(context.Background(), "", 30)
	assert.Error(t, err)
}
