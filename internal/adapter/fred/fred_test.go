package fred

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/event"
)

func TestTransformSeries_ChangeFromBaseline(t *testing.T) {
	s := Series{ID: "DCOILWTICO", Name: "WTI crude oil price"}
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	obs := []observation{
		{Date: "2026-03-01", Value: "80.00"}, // baseline, before start
		{Date: "2026-03-02", Value: "76.00"},
		{Date: "2026-03-03", Value: "."}, // holiday, skipped
		{Date: "2026-03-04", Value: "79.80"},
	}

	evs := TransformSeries(s, obs, start, 0.95)
	require.Len(t, evs, 2)

	first := evs[0]
	require.NotNil(t, first.MagnitudeRaw)
	assert.InDelta(t, -5.0, *first.MagnitudeRaw, 1e-9)
	assert.Equal(t, event.UnitPercentChange, first.MagnitudeUnit)
	assert.InDelta(t, 0.1, *first.MagnitudeNorm, 1e-9, "|−5|/50")
	assert.Equal(t, event.DirectionNegative, first.Direction, "oil price drop is adverse")
	require.NoError(t, first.Validate())

	// Second event's change is against 76.00, the holiday row contributing
	// nothing.
	second := evs[1]
	assert.InDelta(t, 5.0, *second.MagnitudeRaw, 1e-9)
	assert.Equal(t, event.DirectionPositive, second.Direction)
}

func TestTransformSeries_BadWhenUpInverts(t *testing.T) {
	s := Series{ID: "FPCPITOTLZGVEN", Name: "CPI inflation", BadWhenUp: true}
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	obs := []observation{
		{Date: "2026-01-01", Value: "100"},
		{Date: "2026-01-02", Value: "112"},
	}

	evs := TransformSeries(s, obs, start, 0.95)
	require.Len(t, evs, 1)
	assert.Equal(t, event.DirectionNegative, evs[0].Direction, "rising inflation is adverse")
}

func TestTransformSeries_NoBaselineNoMagnitude(t *testing.T) {
	s := Series{ID: "DCOILWTICO", Name: "WTI"}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := []observation{{Date: "2026-03-01", Value: "80.00"}}

	evs := TransformSeries(s, obs, start, 0.95)
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].MagnitudeRaw)
	assert.Equal(t, event.DirectionNeutral, evs[0].Direction)
	require.NoError(t, evs[0].Validate())
}

func TestTransformSeries_StableIDs(t *testing.T) {
	s := Series{ID: "DCOILWTICO"}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := []observation{{Date: "2026-03-01", Value: "80.00"}}

	a := TransformSeries(s, obs, start, 0.95)
	b := TransformSeries(s, obs, start, 0.95)
	require.Len(t, a, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
}

func TestSchedule(t *testing.T) {
	a := New("", "key", nil, nil, time.Second)
	assert.Equal(t, event.SourceFRED, a.Source())
	assert.Len(t, a.series, 4)
}
