package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/event"
)

type capturePublisher struct {
	events []*event.Event
}

func (c *capturePublisher) PublishEvent(_ context.Context, ev *event.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func f(v float64) *float64 { return &v }

func inflationRule() Rule {
	return Rule{
		SeriesID:      "FP.CPI.TOTL.ZG",
		Source:        event.SourceWorldBank,
		ThresholdHigh: f(50),
		Severity:      event.SeverityP2,
		BadWhenUp:     true,
	}
}

func obs(date time.Time, v float64) Observation {
	return Observation{SeriesID: "FP.CPI.TOTL.ZG", Date: date, Value: v}
}

var d0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCheck_FiresOnCrossing(t *testing.T) {
	pub := &capturePublisher{}
	g := New([]Rule{inflationRule()}, pub)

	prev := obs(d0, 45)
	ev, err := g.Check(context.Background(), &prev, obs(d0.AddDate(0, 1, 0), 62))
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Len(t, pub.events, 1)

	assert.Equal(t, "THRESHOLD_ALERT", ev.EventType)
	assert.Equal(t, event.SeverityP2, ev.Severity)
	assert.Equal(t, event.DirectionNegative, ev.Direction, "inflation up is bad")
	assert.Equal(t, event.CategoryEconomic, ev.Category)
	assert.NoError(t, ev.Validate(), "synthetic events pass canonical validation")
	assert.Equal(t, true, ev.Metadata["synthetic"])
}

func TestCheck_NoRefireWhileBeyondThreshold(t *testing.T) {
	pub := &capturePublisher{}
	g := New([]Rule{inflationRule()}, pub)

	prev := obs(d0, 62)
	ev, err := g.Check(context.Background(), &prev, obs(d0.AddDate(0, 1, 0), 70))
	require.NoError(t, err)
	assert.Nil(t, ev, "both values on the alert side: no crossing")
	assert.Empty(t, pub.events)
}

func TestCheck_LowThresholdCrossing(t *testing.T) {
	pub := &capturePublisher{}
	g := New([]Rule{{
		SeriesID:     "EG.ELC.PROD",
		Source:       event.SourceWorldBank,
		ThresholdLow: f(100),
		Severity:     event.SeverityP2,
	}}, pub)

	prev := Observation{SeriesID: "EG.ELC.PROD", Date: d0, Value: 110}
	ev, err := g.Check(context.Background(), &prev, Observation{SeriesID: "EG.ELC.PROD", Date: d0.AddDate(0, 1, 0), Value: 80})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, event.DirectionNegative, ev.Direction, "production down is bad")
	assert.Equal(t, "below", ev.Metadata["threshold_side"])
}

func TestCheck_NoRuleOrNoHistory(t *testing.T) {
	pub := &capturePublisher{}
	g := New([]Rule{inflationRule()}, pub)

	ev, err := g.Check(context.Background(), nil, obs(d0, 99))
	require.NoError(t, err)
	assert.Nil(t, ev, "first observation has no previous side")

	other := Observation{SeriesID: "UNKNOWN", Date: d0, Value: 99}
	ev, err = g.Check(context.Background(), &other, other)
	require.NoError(t, err)
	assert.Nil(t, ev)
}
