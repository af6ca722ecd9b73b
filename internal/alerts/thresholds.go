// Package alerts turns macro-indicator threshold crossings into synthetic
// canonical events on the ingest topic.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/event"
)

// Rule configures one indicator's alerting behavior. A nil bound disables
// that side.
type Rule struct {
	SeriesID      string         `yaml:"series_id"`
	Source        string         `yaml:"source"` // fred or world_bank
	ThresholdLow  *float64       `yaml:"threshold_low"`
	ThresholdHigh *float64       `yaml:"threshold_high"`
	Severity      event.Severity `yaml:"severity"`    // severity assigned to the synthetic event
	BadWhenUp     bool           `yaml:"bad_when_up"` // inflation-style semantics
	Credibility   float64        `yaml:"credibility"`
}

// Observation is one dated indicator value.
type Observation struct {
	SeriesID string
	Date     time.Time
	Value    float64
}

// Publisher is the slice of the ingest pipeline the generator needs.
type Publisher interface {
	PublishEvent(ctx context.Context, ev *event.Event) error
}

// Generator emits synthetic events on boundary crossings. An alert fires
// only when the previous value sat on the other side of the threshold, so a
// value parked beyond a bound fires once.
type Generator struct {
	rules map[string]Rule
	pub   Publisher
}

// New builds a Generator from the per-indicator rule table.
func New(rules []Rule, pub Publisher) *Generator {
	idx := make(map[string]Rule, len(rules))
	for _, r := range rules {
		if r.Credibility == 0 {
			r.Credibility = 0.9 // official statistics default
		}
		if r.Severity == "" {
			r.Severity = event.SeverityP3
		}
		idx[r.SeriesID] = r
	}
	return &Generator{rules: idx, pub: pub}
}

// Check evaluates a new observation against its predecessor and publishes a
// synthetic event when a boundary was crossed. Returns the event when fired.
func (g *Generator) Check(ctx context.Context, prev *Observation, curr Observation) (*event.Event, error) {
	rule, ok := g.rules[curr.SeriesID]
	if !ok || prev == nil {
		return nil, nil
	}

	var bound float64
	var side string
	switch {
	case rule.ThresholdHigh != nil && curr.Value > *rule.ThresholdHigh && prev.Value <= *rule.ThresholdHigh:
		bound, side = *rule.ThresholdHigh, "above"
	case rule.ThresholdLow != nil && curr.Value < *rule.ThresholdLow && prev.Value >= *rule.ThresholdLow:
		bound, side = *rule.ThresholdLow, "below"
	default:
		return nil, nil
	}

	ev := g.syntheticEvent(rule, curr, bound, side)
	if err := g.pub.PublishEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("publish threshold alert for %s: %w", curr.SeriesID, err)
	}
	log.Info().
		Str("series_id", curr.SeriesID).
		Float64("value", curr.Value).
		Float64("threshold", bound).
		Str("side", side).
		Msg("threshold alert fired")
	return ev, nil
}

func (g *Generator) syntheticEvent(rule Rule, obs Observation, bound float64, side string) *event.Event {
	now := time.Now().UTC()
	sourceID := fmt.Sprintf("threshold:%s:%s", obs.SeriesID, obs.Date.Format("2006-01-02"))
	cat, sub := event.Classify(rule.Source, obs.SeriesID)

	delta := obs.Value - bound
	direction := event.DirectionFromSigned(delta, rule.BadWhenUp)

	title := fmt.Sprintf("%s crossed %s %.2f (now %.2f)", obs.SeriesID, side, bound, obs.Value)
	ev := &event.Event{
		ID:                event.DeriveID(rule.Source, sourceID),
		Source:            rule.Source,
		SourceEventID:     sourceID,
		EventTimestamp:    obs.Date.UTC(),
		IngestedAt:        now,
		CreatedAt:         now,
		Category:          cat,
		Subcategory:       sub,
		EventType:         "THRESHOLD_ALERT",
		Title:             title,
		Content:           title,
		Direction:         direction,
		MagnitudeRaw:      event.Float64(obs.Value),
		MagnitudeUnit:     event.UnitPercent,
		MagnitudeNorm:     event.Float64(event.NormalizeMagnitude(obs.Value, event.UnitPercent)),
		NumSources:        1,
		SourceCredibility: rule.Credibility,
		Confidence:        event.ComputeConfidence(1, rule.Credibility),
		Severity:          rule.Severity,
		Metadata: map[string]any{
			"synthetic":      true,
			"alert_kind":     "threshold_crossing",
			"threshold":      bound,
			"threshold_side": strings.ToLower(side),
		},
	}
	return ev
}
