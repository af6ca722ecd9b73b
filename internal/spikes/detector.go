// Package spikes detects z-scored elevations of entity mention counts
// against a rolling baseline.
package spikes

import "time"

// Confidence bands for a detected spike.
const (
	ConfidenceMedium   = "MEDIUM"
	ConfidenceHigh     = "HIGH"
	ConfidenceCritical = "CRITICAL"
)

// Record is one day's mention count with its rolling baseline. Nil baseline
// fields mean the window had insufficient history.
type Record struct {
	EventID       string    `json:"event_id"`
	SpikeDate     time.Time `json:"spike_date"`
	MentionCount  float64   `json:"mention_count"`
	RollingAvg    *float64  `json:"rolling_avg"`
	RollingStddev *float64  `json:"rolling_stddev"`
}

// Spike is a detected elevation.
type Spike struct {
	EventID      string    `json:"event_id"`
	SpikeDate    time.Time `json:"spike_date"`
	MentionCount float64   `json:"mention_count"`
	BaselineAvg  float64   `json:"baseline_avg"`
	BaselineStd  float64   `json:"baseline_stddev"`
	ZScore       float64   `json:"z_score"`
	Confidence   string    `json:"confidence_level"`
}

// Detect computes z-scores and returns every record clearing the 2.0 band.
// Records with a null baseline are skipped; a zero stddev yields z=0.
func Detect(records []Record) []Spike {
	var out []Spike
	for _, r := range records {
		if r.RollingAvg == nil || r.RollingStddev == nil {
			continue
		}
		z := 0.0
		if *r.RollingStddev != 0 {
			z = (r.MentionCount - *r.RollingAvg) / *r.RollingStddev
		}
		conf, ok := classify(z)
		if !ok {
			continue
		}
		out = append(out, Spike{
			EventID:      r.EventID,
			SpikeDate:    r.SpikeDate,
			MentionCount: r.MentionCount,
			BaselineAvg:  *r.RollingAvg,
			BaselineStd:  *r.RollingStddev,
			ZScore:       z,
			Confidence:   conf,
		})
	}
	return out
}

// classify maps a z-score to its confidence band. Bands are inclusive on the
// lower side; below 2.0 the record is filtered out.
func classify(z float64) (string, bool) {
	switch {
	case z >= 3.0:
		return ConfidenceCritical, true
	case z >= 2.5:
		return ConfidenceHigh, true
	case z >= 2.0:
		return ConfidenceMedium, true
	default:
		return "", false
	}
}
