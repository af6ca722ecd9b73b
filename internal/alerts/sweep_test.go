package alerts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/persistence"
)

type memIndicators struct {
	persistence.IndicatorStore
	series map[string][]persistence.IndicatorPoint
}

func (m *memIndicators) Latest(_ context.Context, id string, n int) ([]persistence.IndicatorPoint, error) {
	pts := m.series[id]
	if len(pts) > n {
		pts = pts[:n]
	}
	return pts, nil
}

func TestSweep(t *testing.T) {
	pub := &capturePublisher{}
	g := New([]Rule{
		inflationRule(),
		{SeriesID: "EG.ELC.PROD", Source: event.SourceWorldBank, ThresholdLow: f(100)},
		{SeriesID: "SL.UEM.TOTL.ZS", Source: event.SourceWorldBank, ThresholdHigh: f(25)},
	}, pub)

	// Points are newest first, matching the store contract.
	store := &memIndicators{series: map[string][]persistence.IndicatorPoint{
		"FP.CPI.TOTL.ZG": {
			{SeriesID: "FP.CPI.TOTL.ZG", Date: d0.AddDate(0, 1, 0), Value: 62},
			{SeriesID: "FP.CPI.TOTL.ZG", Date: d0, Value: 45},
		},
		"EG.ELC.PROD": {
			{SeriesID: "EG.ELC.PROD", Date: d0.AddDate(0, 1, 0), Value: 120},
			{SeriesID: "EG.ELC.PROD", Date: d0, Value: 110},
		},
		"SL.UEM.TOTL.ZS": {
			{SeriesID: "SL.UEM.TOTL.ZS", Date: d0, Value: 30},
		},
	}}

	fired, err := g.Sweep(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, fired, 1, "one crossing, one stable series, one without history")
	assert.Equal(t, "THRESHOLD_ALERT", fired[0].EventType)
	assert.Contains(t, fired[0].SourceEventID, "FP.CPI.TOTL.ZG")
	assert.Len(t, pub.events, 1)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - series_id: DEXVZUS
    source: fred
    threshold_high: 50.0
    severity: P2
    bad_when_up: true
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "DEXVZUS", rules[0].SeriesID)
	require.NotNil(t, rules[0].ThresholdHigh)
	assert.Equal(t, 50.0, *rules[0].ThresholdHigh)
	assert.True(t, rules[0].BadWhenUp)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - threshold_high: 1.0\n"), 0o644))
	_, err = LoadRules(bad)
	assert.Error(t, err, "rules need series_id and source")
}
