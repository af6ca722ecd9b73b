// Package quant implements the deterministic quantitative risk scorer over
// structured source signals. It is a pure function: no I/O, no model calls.
package quant

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// Metadata carries the structured source signals the scorer consumes.
// Pointer fields distinguish "absent" from zero; an absent signal scores a
// neutral 50, never a 0, so missing data can't masquerade as maximum risk.
type Metadata struct {
	GoldsteinScale *float64 `json:"goldstein_scale,omitempty"`
	AvgTone        *float64 `json:"avg_tone,omitempty"`
	Themes         []string `json:"themes,omitempty"`
	NumMentions    int      `json:"num_mentions"`
	NumSources     int      `json:"num_sources"`
	NumArticles    int      `json:"num_articles"`
}

// Weights controls the blend of the four signals. Must sum to 1.0.
type Weights struct {
	Goldstein      float64 `yaml:"goldstein"`
	Tone           float64 `yaml:"tone"`
	ThemePresence  float64 `yaml:"theme_presence"`
	ThemeIntensity float64 `yaml:"theme_intensity"`
}

// DefaultWeights returns the tuned production blend.
func DefaultWeights() Weights {
	return Weights{
		Goldstein:      0.35,
		Tone:           0.25,
		ThemePresence:  0.25,
		ThemeIntensity: 0.15,
	}
}

func (w Weights) sum() float64 {
	return w.Goldstein + w.Tone + w.ThemePresence + w.ThemeIntensity
}

// riskThemes is the taxonomy of themes that signal elevated country risk.
var riskThemes = map[string]bool{
	"CRISIS":                 true,
	"PROTEST":                true,
	"ARMEDCONFLICT":          true,
	"VIOLENCE":               true,
	"TERROR":                 true,
	"SANCTIONS":              true,
	"CORRUPTION":             true,
	"EPU_POLICY_UNCERTAINTY": true,
	"ECON_INFLATION":         true,
	"ENERGY_SHORTAGE":        true,
	"REFUGEES":               true,
	"STATE_OF_EMERGENCY":     true,
}

// Scorer computes a deterministic [0,100] risk score from source signals.
type Scorer struct {
	weights Weights
}

// New builds a Scorer, renormalizing (and warning) if the supplied weights
// do not sum to 1.0 within tolerance.
func New(weights Weights) *Scorer {
	sum := weights.sum()
	if math.Abs(sum-1.0) > 1e-3 {
		log.Warn().
			Float64("sum", sum).
			Msg("quant scorer weights do not sum to 1.0, renormalizing")
		if sum > 0 {
			weights.Goldstein /= sum
			weights.Tone /= sum
			weights.ThemePresence /= sum
			weights.ThemeIntensity /= sum
		} else {
			weights = DefaultWeights()
		}
	}
	return &Scorer{weights: weights}
}

// Score maps the four signals onto [0,100] and weight-averages them.
// A nil metadata object returns (0, false): the caller falls back to
// LLM-only scoring.
func (s *Scorer) Score(md *Metadata) (float64, bool) {
	if md == nil {
		return 0, false
	}

	goldstein := 50.0
	if md.GoldsteinScale != nil {
		// -10 (most conflictual) -> 100, +10 (most cooperative) -> 0.
		goldstein = clip100((10 - *md.GoldsteinScale) / 20 * 100)
	}

	tone := 50.0
	if md.AvgTone != nil {
		tone = clip100((-*md.AvgTone + 100) / 200 * 100)
	}

	presence := themePresenceScore(countRiskThemes(md.Themes))
	intensity := themeIntensityScore(md.NumMentions)

	score := s.weights.Goldstein*goldstein +
		s.weights.Tone*tone +
		s.weights.ThemePresence*presence +
		s.weights.ThemeIntensity*intensity
	return clip100(score), true
}

func countRiskThemes(themes []string) int {
	n := 0
	for _, th := range themes {
		key := strings.ToUpper(strings.TrimSpace(th))
		if riskThemes[key] {
			n++
			continue
		}
		// GDELT themes carry prefixed taxonomies like TAX_FNCACT_CRISIS.
		for risk := range riskThemes {
			if strings.Contains(key, risk) {
				n++
				break
			}
		}
	}
	return n
}

func themePresenceScore(n int) float64 {
	switch {
	case n >= 3:
		return 100
	case n == 2:
		return 80
	case n == 1:
		return 60
	default:
		return 20
	}
}

func themeIntensityScore(mentions int) float64 {
	switch {
	case mentions >= 6:
		return 100
	case mentions >= 3:
		return 75
	case mentions >= 1:
		return 50
	default:
		return 20
	}
}

func clip100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
