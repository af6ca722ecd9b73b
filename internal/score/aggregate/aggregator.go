// Package aggregate computes the multi-dimensional composite risk score:
// five dimensions in [0,1] blended under per-event-type weight profiles.
package aggregate

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// Dimensions holds the five risk dimensions, each in [0,1].
type Dimensions struct {
	LLMBaseRisk     float64 `json:"llm_base_risk"`
	Sanctions       float64 `json:"sanctions"`
	SentimentRisk   float64 `json:"sentiment_risk"`
	UrgencyRisk     float64 `json:"urgency_risk"`
	SupplyChainRisk float64 `json:"supply_chain_risk"`
}

// Profile is a weight vector over the five dimensions. Rows must sum to 1.0.
type Profile struct {
	LLM         float64 `yaml:"llm"`
	Sanctions   float64 `yaml:"sanctions"`
	Sentiment   float64 `yaml:"sentiment"`
	Urgency     float64 `yaml:"urgency"`
	SupplyChain float64 `yaml:"supply_chain"`
}

func (p Profile) sum() float64 {
	return p.LLM + p.Sanctions + p.Sentiment + p.Urgency + p.SupplyChain
}

// DefaultProfiles returns the tuned per-event-type weight table.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"default":      {LLM: 0.25, Sanctions: 0.30, Sentiment: 0.20, Urgency: 0.15, SupplyChain: 0.10},
		"TRADE":        {LLM: 0.20, Sanctions: 0.35, Sentiment: 0.15, Urgency: 0.05, SupplyChain: 0.25},
		"POLITICAL":    {LLM: 0.30, Sanctions: 0.40, Sentiment: 0.20, Urgency: 0.10, SupplyChain: 0.00},
		"HUMANITARIAN": {LLM: 0.25, Sanctions: 0.15, Sentiment: 0.25, Urgency: 0.30, SupplyChain: 0.05},
		"ECONOMIC":     {LLM: 0.30, Sanctions: 0.25, Sentiment: 0.15, Urgency: 0.05, SupplyChain: 0.25},
		"CRISIS":       {LLM: 0.30, Sanctions: 0.10, Sentiment: 0.20, Urgency: 0.35, SupplyChain: 0.05},
	}
}

// supplyChainKeywords flag themes that implicate physical supply chains.
var supplyChainKeywords = []string{
	"SUPPLY", "SHIPPING", "PORT", "LOGISTICS", "PIPELINE", "REFINERY",
	"EXPORT", "IMPORT", "TANKER", "FREIGHT",
}

// Aggregator blends the five dimensions under validated weight profiles.
type Aggregator struct {
	profiles map[string]Profile
}

// New builds an Aggregator, renormalizing (and warning about) any profile
// whose weights do not sum to 1.0.
func New(profiles map[string]Profile) *Aggregator {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if _, ok := profiles["default"]; !ok {
		profiles["default"] = DefaultProfiles()["default"]
	}
	for name, p := range profiles {
		sum := p.sum()
		if math.Abs(sum-1.0) > 1e-3 {
			log.Warn().
				Str("profile", name).
				Float64("sum", sum).
				Msg("aggregator profile weights do not sum to 1.0, renormalizing")
			if sum > 0 {
				p.LLM /= sum
				p.Sanctions /= sum
				p.Sentiment /= sum
				p.Urgency /= sum
				p.SupplyChain /= sum
				profiles[name] = p
			} else {
				profiles[name] = DefaultProfiles()["default"]
			}
		}
	}
	return &Aggregator{profiles: profiles}
}

// Composite computes the [0,100] composite for the given event type profile.
// An unknown profile falls back to "default".
func (a *Aggregator) Composite(profile string, d Dimensions) float64 {
	p, ok := a.profiles[profile]
	if !ok {
		p = a.profiles["default"]
	}
	v := 100 * (p.LLM*d.LLMBaseRisk +
		p.Sanctions*d.Sanctions +
		p.Sentiment*d.SentimentRisk +
		p.Urgency*d.UrgencyRisk +
		p.SupplyChain*d.SupplyChainRisk)
	return math.Max(0, math.Min(100, v))
}

// SentimentRisk converts a [-1,1] sentiment into a [0,1] risk dimension.
func SentimentRisk(sentiment float64) float64 {
	return math.Max(0, math.Min(1, 0.5-0.5*sentiment))
}

// UrgencyRisk maps an urgency label onto [0,1]. Unknown labels read as medium.
func UrgencyRisk(urgency string) float64 {
	switch strings.ToLower(strings.TrimSpace(urgency)) {
	case "low":
		return 0.2
	case "medium":
		return 0.5
	case "high":
		return 0.8
	case "immediate":
		return 1.0
	default:
		return 0.5
	}
}

// SupplyChainRisk derives the supply-chain dimension from theme keywords:
// 0 hits -> 0.0, 1 -> 0.4, 2 -> 0.6, 3+ -> 0.8.
func SupplyChainRisk(themes []string) float64 {
	hits := 0
	for _, th := range themes {
		upper := strings.ToUpper(th)
		for _, kw := range supplyChainKeywords {
			if strings.Contains(upper, kw) {
				hits++
				break
			}
		}
	}
	switch {
	case hits >= 3:
		return 0.8
	case hits == 2:
		return 0.6
	case hits == 1:
		return 0.4
	default:
		return 0.0
	}
}
