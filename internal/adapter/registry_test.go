package adapter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/event"
)

type fakeAdapter struct {
	source string
	events []*event.Event
	err    error
	calls  atomic.Int32
	start  time.Time
	end    time.Time
}

func (a *fakeAdapter) Source() string { return a.source }

func (a *fakeAdapter) Schedule() Schedule {
	return Schedule{Frequency: 15 * time.Minute, DefaultLookback: time.Hour}
}

func (a *fakeAdapter) Fetch(_ context.Context, start, end time.Time) ([]*event.Event, error) {
	a.calls.Add(1)
	a.start, a.end = start, end
	return a.events, a.err
}

func sampleEvent(id string) *event.Event {
	return &event.Event{
		ID:             id,
		Source:         event.SourceGDELT,
		Category:       event.CategoryPolitical,
		EventTimestamp: time.Now().UTC().Add(-time.Hour),
		NumSources:     1,
	}
}

func TestRegistry_RunPublishesEvents(t *testing.T) {
	b := bus.NewStubBus(bus.Config{})
	var delivered int
	require.NoError(t, b.Subscribe(context.Background(), bus.TopicIngestEvent, "g",
		func(context.Context, *bus.Message) error { delivered++; return nil }))

	r := NewRegistry(b)
	fa := &fakeAdapter{source: "gdelt", events: []*event.Event{sampleEvent("a"), sampleEvent("b")}}
	r.Register(fa, rate.Inf, 1)

	res, err := r.Run(context.Background(), "gdelt", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)
	assert.Equal(t, 2, delivered)

	// Zero window expands to the default lookback ending now.
	assert.WithinDuration(t, time.Now(), fa.end, time.Minute)
	assert.WithinDuration(t, fa.end.Add(-time.Hour), fa.start, time.Second)

	hs := r.HealthSnapshot()
	require.Len(t, hs, 1)
	assert.Equal(t, 1, hs[0].TotalRuns)
	assert.Equal(t, 1.0, hs[0].SuccessRate)
	assert.Equal(t, 2, hs[0].LastEventsCount)
	assert.NotNil(t, hs[0].LastSuccess)
}

func TestRegistry_RunRejectsInvalidEvents(t *testing.T) {
	b := bus.NewStubBus(bus.Config{})
	var delivered int
	require.NoError(t, b.Subscribe(context.Background(), bus.TopicIngestEvent, "g",
		func(context.Context, *bus.Message) error { delivered++; return nil }))

	r := NewRegistry(b)
	bad := sampleEvent("bad")
	bad.NumSources = 0
	fa := &fakeAdapter{source: "gdelt", events: []*event.Event{sampleEvent("ok"), bad}}
	r.Register(fa, rate.Inf, 1)

	res, err := r.Run(context.Background(), "gdelt", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, 1, res.Published)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, delivered)
}

func TestRegistry_FetchFailureRecorded(t *testing.T) {
	r := NewRegistry(bus.NewStubBus(bus.Config{}))
	fa := &fakeAdapter{source: "fred", err: Transient(errors.New("upstream 503"))}
	r.Register(fa, rate.Inf, 1)

	_, err := r.Run(context.Background(), "fred", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	hs := r.HealthSnapshot()
	require.Len(t, hs, 1)
	assert.Equal(t, 0.0, hs[0].SuccessRate)
	assert.Nil(t, hs[0].LastSuccess)
	assert.Contains(t, hs[0].LastError, "503")
}

func TestRegistry_RateLimitIsTransient(t *testing.T) {
	r := NewRegistry(bus.NewStubBus(bus.Config{}))
	fa := &fakeAdapter{source: "gdelt"}
	r.Register(fa, rate.Every(time.Hour), 1)

	_, err := r.Run(context.Background(), "gdelt", time.Time{}, time.Time{})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "gdelt", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(1), fa.calls.Load())
}

func TestRegistry_UnknownSourceAndEmptyWindow(t *testing.T) {
	r := NewRegistry(bus.NewStubBus(bus.Config{}))
	_, err := r.Run(context.Background(), "nope", time.Time{}, time.Time{})
	assert.Error(t, err)

	fa := &fakeAdapter{source: "gdelt"}
	r.Register(fa, rate.Inf, 1)
	now := time.Now()
	_, err = r.Run(context.Background(), "gdelt", now, now)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestRegistry_Sources(t *testing.T) {
	r := NewRegistry(bus.NewStubBus(bus.Config{}))
	r.Register(&fakeAdapter{source: "reliefweb"}, rate.Inf, 1)
	r.Register(&fakeAdapter{source: "gdelt"}, rate.Inf, 1)
	assert.Equal(t, []string{"gdelt", "reliefweb"}, r.Sources())
}
