package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/metrics"
)

// Health is the per-source run ledger exposed on the health endpoint.
type Health struct {
	Source          string     `json:"source"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	LastSuccess     *time.Time `json:"last_success,omitempty"`
	TotalRuns       int        `json:"total_runs"`
	SuccessRate     float64    `json:"success_rate"`
	LastEventsCount int        `json:"last_events_count"`
	LastDurationMS  int64      `json:"last_duration_ms"`
	LastError       string     `json:"last_error,omitempty"`
}

// Registry owns the adapter set, rate limits their runs, publishes fetched
// events onto the ingest topic, and keeps run health.
type Registry struct {
	bus bus.EventBus

	mu        sync.RWMutex
	adapters  map[string]Adapter
	limiters  map[string]*rate.Limiter
	health    map[string]*Health
	successes map[string]int
}

// NewRegistry builds an empty registry publishing onto b.
func NewRegistry(b bus.EventBus) *Registry {
	return &Registry{
		bus:       b,
		adapters:  make(map[string]Adapter),
		limiters:  make(map[string]*rate.Limiter),
		health:    make(map[string]*Health),
		successes: make(map[string]int),
	}
}

// Register adds an adapter with a per-source run rate limit.
func (r *Registry) Register(a Adapter, limit rate.Limit, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := a.Source()
	r.adapters[src] = a
	r.limiters[src] = rate.NewLimiter(limit, burst)
	r.health[src] = &Health{Source: src}
}

// Get returns a registered adapter.
func (r *Registry) Get(source string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[source]
	return a, ok
}

// Sources lists registered source names, sorted.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for src := range r.adapters {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// RunResult summarizes one adapter run. Failed counts events the source
// produced that did not survive canonical validation.
type RunResult struct {
	Source    string        `json:"source"`
	Events    int           `json:"events"`
	Published int           `json:"published"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Run executes one adapter over [start, end), publishing every fetched
// event onto the ingest topic. A zero start uses the adapter's default
// lookback from end; a zero end means now.
func (r *Registry) Run(ctx context.Context, source string, start, end time.Time) (*RunResult, error) {
	a, ok := r.Get(source)
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q", source)
	}
	limiter := r.limiter(source)
	if !limiter.Allow() {
		return nil, Transient(fmt.Errorf("adapter %s rate limited", source))
	}

	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-a.Schedule().DefaultLookback)
	}
	if !start.Before(end) {
		return nil, Permanent(fmt.Errorf("empty window [%s, %s)", start, end))
	}

	began := time.Now()
	events, err := a.Fetch(ctx, start, end)
	duration := time.Since(began)
	if err != nil {
		r.recordRun(source, 0, duration, err)
		metrics.AdapterRuns.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}

	published, failed := 0, 0
	for _, ev := range events {
		// Invalid events never reach the queue; the source's own output
		// is the right place to reject them.
		if err := ev.Validate(); err != nil {
			log.Warn().Err(err).Str("source", source).Str("source_event_id", ev.SourceEventID).
				Msg("invalid event rejected before publish")
			metrics.EventsRejected.WithLabelValues(source).Inc()
			failed++
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Warn().Err(err).Str("source", source).Msg("unencodable event skipped")
			failed++
			continue
		}
		if err := r.bus.Publish(ctx, bus.TopicIngestEvent, ev.ID, payload); err != nil {
			r.recordRun(source, published, duration, err)
			metrics.AdapterRuns.WithLabelValues(source, "error").Inc()
			return nil, Transient(fmt.Errorf("publish from %s: %w", source, err))
		}
		published++
	}

	r.recordRun(source, published, duration, nil)
	metrics.AdapterRuns.WithLabelValues(source, "ok").Inc()
	metrics.AdapterEvents.WithLabelValues(source).Observe(float64(published))
	log.Info().Str("source", source).Int("events", published).Int("failed", failed).
		Dur("duration", duration).Time("start", start).Time("end", end).Msg("adapter run complete")
	return &RunResult{Source: source, Events: len(events), Published: published, Failed: failed, Duration: duration}, nil
}

// HealthSnapshot returns a copy of every source's health, sorted by source.
func (r *Registry) HealthSnapshot() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Health, 0, len(r.health))
	for _, h := range r.health {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func (r *Registry) limiter(source string) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[source]
}

func (r *Registry) recordRun(source string, events int, d time.Duration, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.health[source]
	if h == nil {
		return
	}
	now := time.Now().UTC()
	h.LastRun = &now
	h.TotalRuns++
	h.LastEventsCount = events
	h.LastDurationMS = d.Milliseconds()
	if runErr == nil {
		t := now
		h.LastSuccess = &t
		h.LastError = ""
		r.successes[source]++
	} else {
		h.LastError = runErr.Error()
	}
	h.SuccessRate = float64(r.successes[source]) / float64(h.TotalRuns)
}
