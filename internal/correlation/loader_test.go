package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/persistence"
)

type loaderEvents struct {
	persistence.EventStore
	counts map[time.Time]int
}

func (l *loaderEvents) DailyTypeCounts(context.Context, string, time.Time, time.Time) (map[time.Time]int, error) {
	return l.counts, nil
}

type loaderEntities struct {
	persistence.EntityStore
	counts map[time.Time]int
}

func (l *loaderEntities) DailyMentionCounts(context.Context, string, time.Time, time.Time) (map[time.Time]int, error) {
	return l.counts, nil
}

type loaderIndicators struct {
	persistence.IndicatorStore
	points []persistence.IndicatorPoint
}

func (l *loaderIndicators) Range(context.Context, string, time.Time, time.Time) ([]persistence.IndicatorPoint, error) {
	return l.points, nil
}

func TestLoadSeries_KindsAndOrdering(t *testing.T) {
	d1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	loader := NewLoader(
		&loaderEvents{counts: map[time.Time]int{d2: 3, d1: 1}},
		&loaderEntities{counts: map[time.Time]int{d1: 5}},
		&loaderIndicators{points: []persistence.IndicatorPoint{
			{Date: d2, Value: 72}, {Date: d1, Value: 70},
		}},
	)

	series, err := loader.LoadSeries(context.Background(),
		[]string{"indicator:DCOILWTICO", "event_type:PROTEST", "entity:abc"}, d1, d2.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, "indicator:DCOILWTICO", series[0].Name)
	assert.Equal(t, 70.0, series[0].Points[0].Value, "points date-ordered")
	assert.Equal(t, 1.0, series[1].Points[0].Value)
	assert.Equal(t, 3.0, series[1].Points[1].Value)
	assert.Equal(t, 5.0, series[2].Points[0].Value)
}

func TestLoadSeries_BadVariables(t *testing.T) {
	loader := NewLoader(&loaderEvents{}, &loaderEntities{}, &loaderIndicators{})
	for _, v := range []string{"noseparator", "mystery:thing", "indicator:"} {
		_, err := loader.LoadSeries(context.Background(), []string{v}, time.Time{}, time.Time{})
		assert.Error(t, err, v)
	}
}
