// Package daily computes severity-weighted per-category sub-scores and the
// domain-tuned daily composite with its P1 boost.
package daily

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/event"
)

// severityWeights bias the per-category average toward the events that matter.
var severityWeights = map[event.Severity]float64{
	event.SeverityP1: 4,
	event.SeverityP2: 3,
	event.SeverityP3: 2,
	event.SeverityP4: 1,
}

// EventScore is the slice of an event the daily composite needs.
type EventScore struct {
	Category  event.Category
	Severity  event.Severity
	RiskScore float64 // [0,100]
}

// CategoryWeights is the domain-tuned weight vector over the ten categories.
// Must sum to 1.00; the defaults put the most weight on the energy and
// regulatory dimensions. The numbers are a deployment parameter.
type CategoryWeights map[event.Category]float64

// DefaultCategoryWeights returns the shipped configuration.
func DefaultCategoryWeights() CategoryWeights {
	return CategoryWeights{
		event.CategoryEnergy:         0.20,
		event.CategoryRegulatory:     0.15,
		event.CategoryPolitical:      0.13,
		event.CategoryEconomic:       0.12,
		event.CategoryConflict:       0.10,
		event.CategoryTrade:          0.10,
		event.CategoryInfrastructure: 0.07,
		event.CategorySocial:         0.06,
		event.CategoryHealthcare:     0.04,
		event.CategoryEnvironmental:  0.03,
	}
}

// Composer aggregates windowed events into category sub-scores and the
// daily composite.
type Composer struct {
	weights CategoryWeights
}

// New builds a Composer, renormalizing (and warning) if the category weights
// do not sum to 1.0.
func New(weights CategoryWeights) *Composer {
	if weights == nil {
		weights = DefaultCategoryWeights()
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-3 {
		log.Warn().Float64("sum", sum).Msg("daily category weights do not sum to 1.0, renormalizing")
		if sum > 0 {
			for cat, w := range weights {
				weights[cat] = w / sum
			}
		} else {
			weights = DefaultCategoryWeights()
		}
	}
	return &Composer{weights: weights}
}

// Result carries the windowed sub-scores and composite.
type Result struct {
	CategoryScores map[event.Category]float64 `json:"category_scores"`
	Composite      float64                    `json:"composite"`
	P1Count        int                        `json:"p1_count"`
	EventCount     int                        `json:"event_count"`
}

// Compose computes all ten sub-scores and the daily composite over the
// reporting window's events.
func (c *Composer) Compose(events []EventScore) Result {
	byCategory := make(map[event.Category][]EventScore)
	p1Count := 0
	for _, ev := range events {
		byCategory[ev.Category] = append(byCategory[ev.Category], ev)
		if ev.Severity == event.SeverityP1 {
			p1Count++
		}
	}

	scores := make(map[event.Category]float64, len(event.Categories))
	composite := 0.0
	for _, cat := range event.Categories {
		score := categoryScore(byCategory[cat])
		scores[cat] = score
		composite += c.weights[cat] * score
	}

	if p1Count > 0 {
		composite = math.Max(composite, 70)
		composite *= 1 + 0.05*math.Min(float64(p1Count), 5)
	}
	composite = math.Max(0, math.Min(100, composite))

	return Result{
		CategoryScores: scores,
		Composite:      composite,
		P1Count:        p1Count,
		EventCount:     len(events),
	}
}

// categoryScore is the severity-weighted average with a volume boost:
// avg * (1 + 0.2*min(n/10, 1)), capped at 100.
func categoryScore(events []EventScore) float64 {
	if len(events) == 0 {
		return 0
	}
	var weighted, weightSum float64
	for _, ev := range events {
		w := severityWeights[ev.Severity]
		if w == 0 {
			w = 1 // SEV-banded events count as baseline weight
		}
		weighted += ev.RiskScore * w
		weightSum += w
	}
	avg := weighted / weightSum
	boosted := avg * (1 + 0.2*math.Min(float64(len(events))/10, 1))
	return math.Min(boosted, 100)
}
