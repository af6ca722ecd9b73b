package trends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/event"
)

func TestTransform_InterestPoints(t *testing.T) {
	series := []SeriesResult{{
		Keyword: "blackout",
		Geo:     "VE",
		Points: []Point{
			{Date: "2026-08-20", Value: 34},
			{Date: "2026-08-21", Value: 91},
		},
	}}

	evs := Transform(series, 0.5)
	require.Len(t, evs, 2)

	spike := evs[1]
	assert.Equal(t, event.CategoryInfrastructure, spike.Category)
	assert.Equal(t, "blackout/2026-08-21", spike.SourceEventID)
	require.NotNil(t, spike.MagnitudeNorm)
	assert.InDelta(t, 0.91, *spike.MagnitudeNorm, 1e-9)
	assert.Equal(t, event.DirectionNeutral, spike.Direction)
	assert.InDelta(t, 0.05, spike.Confidence, 1e-9, "single source at 0.5 credibility")
	require.NoError(t, spike.Validate())
}

func TestTransform_KeywordCategories(t *testing.T) {
	series := []SeriesResult{
		{Keyword: "gasoline shortage", Points: []Point{{Date: "2026-08-20", Value: 10}}},
		{Keyword: "migration", Points: []Point{{Date: "2026-08-20", Value: 10}}},
	}
	evs := Transform(series, 0.5)
	require.Len(t, evs, 2)
	assert.Equal(t, event.CategoryEnergy, evs[0].Category)
	assert.Equal(t, event.CategorySocial, evs[1].Category)
}

func TestTransform_SkipsBadPoints(t *testing.T) {
	series := []SeriesResult{
		{Keyword: "", Points: []Point{{Date: "2026-08-20", Value: 10}}},
		{Keyword: "protest", Points: []Point{
			{Date: "not-a-date", Value: 10},
			{Date: "2026-08-20", Value: 120},
			{Date: "2026-08-20", Value: 55},
		}},
	}
	evs := Transform(series, 0.5)
	require.Len(t, evs, 1)
	assert.Equal(t, 55, evs[0].Metadata["interest"])
}

func TestTransform_StableIDs(t *testing.T) {
	series := []SeriesResult{{Keyword: "protest", Points: []Point{{Date: "2026-08-20", Value: 40}}}}
	a := Transform(series, 0.5)
	b := Transform(series, 0.5)
	assert.Equal(t, a[0].ID, b[0].ID)
}

func TestSchedule(t *testing.T) {
	a := New("http://proxy.local", nil, 0)
	assert.Equal(t, event.SourceGoogleTrends, a.Source())
	assert.Len(t, a.keywords, len(DefaultKeywords()))
}
