package spikes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounts struct {
	counts map[string]map[time.Time]int
}

func (m *memCounts) DailyMentionCounts(_ context.Context, id string, _, _ time.Time) (map[time.Time]int, error) {
	return m.counts[id], nil
}

type memSink struct {
	spikes []Spike
}

func (m *memSink) Upsert(_ context.Context, s Spike) error {
	m.spikes = append(m.spikes, s)
	return nil
}

// fixtureCounts builds a subject with roughly one mention a day and a burst
// on the scan day. One mid-window day has extra mentions so the baseline
// stddev is nonzero.
func fixtureCounts(scanDay time.Time) map[time.Time]int {
	counts := map[time.Time]int{scanDay: 30}
	for i := 1; i <= baselineDays; i++ {
		counts[scanDay.AddDate(0, 0, -i)] = 1
	}
	counts[scanDay.AddDate(0, 0, -3)] = 3
	return counts
}

func TestScanSubject_DetectsAndPersists(t *testing.T) {
	scanDay := day
	src := &memCounts{counts: map[string]map[time.Time]int{"pdvsa": fixtureCounts(scanDay)}}
	sink := &memSink{}
	s := NewScanner(src, sink)

	sp, err := s.ScanSubject(context.Background(), "pdvsa", scanDay)
	require.NoError(t, err)
	require.NotNil(t, sp)

	// Baseline: thirteen days of 1 and one day of 3: avg 8/7, std sqrt(13)/7.
	assert.Equal(t, "pdvsa", sp.EventID)
	assert.Equal(t, scanDay, sp.SpikeDate)
	assert.Equal(t, 30.0, sp.MentionCount)
	assert.Equal(t, ConfidenceCritical, sp.Confidence)
	assert.Greater(t, sp.ZScore, 3.0)
	require.Len(t, sink.spikes, 1)
}

func TestScanSubject_NoHistoryYieldsNothing(t *testing.T) {
	src := &memCounts{counts: map[string]map[time.Time]int{
		"new-entity": {day: 50},
	}}
	sink := &memSink{}
	s := NewScanner(src, sink)

	sp, err := s.ScanSubject(context.Background(), "new-entity", day)
	require.NoError(t, err)
	assert.Nil(t, sp, "no baseline history, no spike")
	assert.Empty(t, sink.spikes)
}

func TestScanSubject_QuietDayYieldsNothing(t *testing.T) {
	counts := fixtureCounts(day)
	counts[day] = 1
	src := &memCounts{counts: map[string]map[time.Time]int{"pdvsa": counts}}
	sink := &memSink{}
	s := NewScanner(src, sink)

	sp, err := s.ScanSubject(context.Background(), "pdvsa", day)
	require.NoError(t, err)
	assert.Nil(t, sp)
}

func TestScan_SweepsAllSubjects(t *testing.T) {
	src := &memCounts{counts: map[string]map[time.Time]int{
		"pdvsa": fixtureCounts(day),
		"gov":   {day: 2},
	}}
	sink := &memSink{}
	s := NewScanner(src, sink)

	found, err := s.Scan(context.Background(), []string{"pdvsa", "gov"}, day)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "pdvsa", found[0].EventID)
}
