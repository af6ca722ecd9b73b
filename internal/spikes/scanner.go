package spikes

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// baselineDays is the rolling window the baseline is computed over; days
// without mentions count as zero.
const baselineDays = 14

// CountSource provides per-day mention counts for one subject. The entity
// registry satisfies it.
type CountSource interface {
	DailyMentionCounts(ctx context.Context, canonicalID string, from, to time.Time) (map[time.Time]int, error)
}

// Sink persists detected spikes.
type Sink interface {
	Upsert(ctx context.Context, s Spike) error
}

// Scanner builds rolling-baseline records from stored mention counts and
// persists every detected spike.
type Scanner struct {
	counts CountSource
	sink   Sink
}

func NewScanner(counts CountSource, sink Sink) *Scanner {
	return &Scanner{counts: counts, sink: sink}
}

// ScanSubject evaluates one subject's mention count on the given day against
// the trailing baseline. A subject with no baseline history yields no record.
func (s *Scanner) ScanSubject(ctx context.Context, id string, day time.Time) (*Spike, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	from := day.AddDate(0, 0, -baselineDays)
	counts, err := s.counts.DailyMentionCounts(ctx, id, from, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("mention counts for %s: %w", id, err)
	}

	rec := buildRecord(id, day, counts)
	detected := Detect([]Record{rec})
	if len(detected) == 0 {
		return nil, nil
	}
	sp := detected[0]
	if err := s.sink.Upsert(ctx, sp); err != nil {
		return nil, fmt.Errorf("persist spike for %s: %w", id, err)
	}
	return &sp, nil
}

// Scan sweeps the given subjects for one day. One subject's failure does not
// stop the sweep.
func (s *Scanner) Scan(ctx context.Context, ids []string, day time.Time) ([]Spike, error) {
	var out []Spike
	var failed int
	for _, id := range ids {
		sp, err := s.ScanSubject(ctx, id, day)
		if err != nil {
			log.Warn().Err(err).Str("subject_id", id).Msg("spike scan failed")
			failed++
			continue
		}
		if sp != nil {
			out = append(out, *sp)
		}
	}
	if failed > 0 {
		return out, fmt.Errorf("%d subject(s) failed during spike scan", failed)
	}
	return out, nil
}

// buildRecord assembles the day's record. The baseline is the population
// mean/stddev over the trailing window with missing days as zero; a window
// with no mentions at all leaves the baseline null.
func buildRecord(id string, day time.Time, counts map[time.Time]int) Record {
	rec := Record{EventID: id, SpikeDate: day}
	if n, ok := counts[day]; ok {
		rec.MentionCount = float64(n)
	}

	var sum, sumSq float64
	var any bool
	for i := 1; i <= baselineDays; i++ {
		v := float64(counts[day.AddDate(0, 0, -i)])
		if v > 0 {
			any = true
		}
		sum += v
		sumSq += v * v
	}
	if !any {
		return rec
	}
	avg := sum / baselineDays
	std := math.Sqrt(sumSq/baselineDays - avg*avg)
	rec.RollingAvg = &avg
	rec.RollingStddev = &std
	return rec
}
