package sched

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/event"
)

type countingAdapter struct {
	source  string
	fetches int
	windows [][2]time.Time
}

func (c *countingAdapter) Source() string { return c.source }

func (c *countingAdapter) Schedule() adapter.Schedule {
	return adapter.Schedule{Frequency: 15 * time.Minute, DefaultLookback: time.Hour}
}

func (c *countingAdapter) Fetch(_ context.Context, start, end time.Time) ([]*event.Event, error) {
	c.fetches++
	c.windows = append(c.windows, [2]time.Time{start, end})
	return nil, nil
}

func testScheduler(t *testing.T, jobs []Job, dryRun bool) (*Scheduler, *countingAdapter) {
	t.Helper()
	a := &countingAdapter{source: event.SourceGDELT}
	reg := adapter.NewRegistry(bus.NewStubBus(bus.DefaultConfig()))
	reg.Register(a, 100, 100)
	cfg := &Config{Jobs: jobs, TickSecs: 30}
	return New(cfg, reg, dryRun), a
}

func TestRunOnce_DueAndIntervalGating(t *testing.T) {
	s, a := testScheduler(t, []Job{
		{Name: "gdelt-15m", Source: event.SourceGDELT, Enabled: true},
		{Name: "disabled", Source: event.SourceGDELT, Enabled: false},
	}, false)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return now }

	results := s.RunOnce(context.Background())
	require.Len(t, results, 1, "disabled job never runs")
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, a.fetches)
	assert.Equal(t, now.Add(-time.Hour), a.windows[0][0], "adapter default lookback applies")

	// Ten minutes later the 15m interval has not elapsed.
	now = now.Add(10 * time.Minute)
	assert.Empty(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, a.fetches)

	now = now.Add(6 * time.Minute)
	require.Len(t, s.RunOnce(context.Background()), 1)
	assert.Equal(t, 2, a.fetches)
}

func TestRunOnce_ExplicitCadenceAndLookback(t *testing.T) {
	s, a := testScheduler(t, []Job{
		{Name: "fast", Source: event.SourceGDELT, Enabled: true, EverySecs: 60, LookbackSecs: 600},
	}, false)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return now }

	s.RunOnce(context.Background())
	require.Len(t, a.windows, 1)
	assert.Equal(t, now.Add(-10*time.Minute), a.windows[0][0])

	now = now.Add(61 * time.Second)
	s.RunOnce(context.Background())
	assert.Equal(t, 2, a.fetches, "explicit cadence overrides the adapter schedule")
}

func TestRunOnce_UnknownSourceReported(t *testing.T) {
	s, _ := testScheduler(t, []Job{
		{Name: "ghost", Source: "nonexistent", Enabled: true},
	}, false)
	results := s.RunOnce(context.Background())
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestDryRun_NeverInvokesAdapter(t *testing.T) {
	s, a := testScheduler(t, []Job{
		{Name: "gdelt-15m", Source: event.SourceGDELT, Enabled: true},
	}, true)

	res, err := s.RunJob(context.Background(), "gdelt-15m")
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Zero(t, a.fetches)

	_, err = s.RunJob(context.Background(), "missing")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tick_secs: 10
jobs:
  - name: gdelt-15m
    source: gdelt
    enabled: true
  - name: fred-6h
    source: fred
    every_secs: 21600
    enabled: true
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.TickSecs)
	require.Len(t, cfg.Jobs, 2)
	assert.Equal(t, 21600, cfg.Jobs[1].EverySecs)

	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  - name: dup\n    source: a\n  - name: dup\n    source: b\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
