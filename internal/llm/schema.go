// Package llm runs the one-shot structured intelligence analysis for each
// event: sentiment, summary, entities, relationships, risk, themes, urgency
// and language, under a closed output schema with a neutral fallback.
package llm

import "encoding/json"

// Tier selects the model class for a call.
type Tier string

const (
	TierFast     Tier = "fast"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Sentiment is the model's sentiment block.
type Sentiment struct {
	Score      float64  `json:"score"` // [-1,1]
	Label      string   `json:"label"` // positive | neutral | negative
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Nuances    []string `json:"nuances,omitempty"`
}

// Summary is the model's summary block.
type Summary struct {
	Short     string   `json:"short"`
	KeyPoints []string `json:"key_points"`
	Full      string   `json:"full,omitempty"`
}

// NamedEntity is one extracted person, organization or location.
type NamedEntity struct {
	Name      string  `json:"name"`
	Role      string  `json:"role,omitempty"`
	Type      string  `json:"type,omitempty"`
	Relevance float64 `json:"relevance"`
}

// Entities groups extracted entities by kind.
type Entities struct {
	People        []NamedEntity `json:"people"`
	Organizations []NamedEntity `json:"organizations"`
	Locations     []NamedEntity `json:"locations"`
}

// Relationship is one subject-predicate-object triple.
type Relationship struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// Risk is the model's qualitative risk block.
type Risk struct {
	Score      float64  `json:"score"` // [0,1]
	Level      string   `json:"level"` // low | medium | high | critical
	Reasoning  string   `json:"reasoning,omitempty"`
	Factors    []string `json:"factors,omitempty"`
	Mitigation []string `json:"mitigation,omitempty"`
}

// Analysis is the full structured result of one call.
type Analysis struct {
	Sentiment     Sentiment      `json:"sentiment"`
	Summary       Summary        `json:"summary"`
	Entities      Entities       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Risk          Risk           `json:"risk"`
	Themes        []string       `json:"themes"`
	Urgency       string         `json:"urgency"`  // low | medium | high | immediate
	Language      string         `json:"language"` // ISO-639-1

	// Metadata set by the analyzer, not the model.
	Fallback      bool   `json:"fallback,omitempty"`
	FallbackCause string `json:"fallback_cause,omitempty"`
	CacheHit      bool   `json:"cache_hit,omitempty"`
	Tier          Tier   `json:"tier,omitempty"`
}

// NeutralFallback is the documented degradation contract: neutral scores,
// empty extractions, and an error-origin flag. The event stays processable.
func NeutralFallback(cause string) *Analysis {
	return &Analysis{
		Sentiment:     Sentiment{Score: 0, Label: "neutral", Confidence: 0},
		Summary:       Summary{Short: "", KeyPoints: []string{}},
		Entities:      Entities{People: []NamedEntity{}, Organizations: []NamedEntity{}, Locations: []NamedEntity{}},
		Relationships: []Relationship{},
		Risk:          Risk{Score: 0.5, Level: "medium", Reasoning: "analysis unavailable"},
		Themes:        []string{},
		Urgency:       "low",
		Language:      "en",
		Fallback:      true,
		FallbackCause: cause,
	}
}

// AsMap converts the analysis to the open map form stored on the event.
func (a *Analysis) AsMap() (map[string]any, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalysisFromMap reverses AsMap for stages that read the stored analysis.
func AnalysisFromMap(m map[string]any) (*Analysis, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	a.normalize()
	return &a, nil
}

// normalize clamps model output into the schema's declared ranges.
func (a *Analysis) normalize() {
	a.Sentiment.Score = clamp(a.Sentiment.Score, -1, 1)
	a.Sentiment.Confidence = clamp(a.Sentiment.Confidence, 0, 1)
	a.Risk.Score = clamp(a.Risk.Score, 0, 1)
	if a.Sentiment.Label == "" {
		a.Sentiment.Label = labelForScore(a.Sentiment.Score)
	}
	if a.Urgency == "" {
		a.Urgency = "low"
	}
	if a.Language == "" {
		a.Language = "en"
	}
	if a.Themes == nil {
		a.Themes = []string{}
	}
	if a.Relationships == nil {
		a.Relationships = []Relationship{}
	}
}

func labelForScore(score float64) string {
	switch {
	case score > 0.15:
		return "positive"
	case score < -0.15:
		return "negative"
	default:
		return "neutral"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
