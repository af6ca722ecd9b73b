package llm

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// maxContentChars truncates event bodies before prompting.
const maxContentChars = 5000

// CallContext carries the per-event context injected into the prompt.
type CallContext struct {
	Source    string
	EventType string
	Timestamp time.Time
	// QuantScore is the deterministic scorer's value, injected as a hint so
	// the model anchors on the structured signals. Nil when unavailable.
	QuantScore *float64
}

const systemPrompt = `You are an intelligence analyst for a country-risk monitoring platform.
Analyze the event and respond with ONLY a JSON object conforming exactly to this schema:

{
  "sentiment": {"score": -1.0..1.0, "label": "positive|neutral|negative", "confidence": 0.0..1.0, "reasoning": "...", "nuances": ["..."]},
  "summary": {"short": "one sentence", "key_points": ["3 to 5 items"], "full": "optional paragraph"},
  "entities": {
    "people": [{"name": "...", "role": "...", "relevance": 0.0..1.0}],
    "organizations": [{"name": "...", "type": "...", "relevance": 0.0..1.0}],
    "locations": [{"name": "...", "type": "...", "relevance": 0.0..1.0}]
  },
  "relationships": [{"subject": "...", "predicate": "...", "object": "...", "confidence": 0.0..1.0}],
  "risk": {"score": 0.0..1.0, "level": "low|medium|high|critical", "reasoning": "...", "factors": ["..."], "mitigation": ["..."]},
  "themes": ["..."],
  "urgency": "low|medium|high|immediate",
  "language": "ISO-639-1 code of the source text"
}

Do not include any text outside the JSON object.`

// BuildPrompt assembles the user message for one analysis call.
func BuildPrompt(title, content string, cc CallContext) string {
	if utf8.RuneCountInString(content) > maxContentChars {
		runes := []rune(content)
		content = string(runes[:maxContentChars])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", cc.Source)
	if cc.EventType != "" {
		fmt.Fprintf(&b, "Event type: %s\n", cc.EventType)
	}
	if !cc.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Timestamp: %s\n", cc.Timestamp.UTC().Format(time.RFC3339))
	}
	if cc.QuantScore != nil {
		fmt.Fprintf(&b, "Quantitative risk score (0-100, from structured signals): %.1f\n", *cc.QuantScore)
	}
	fmt.Fprintf(&b, "\nTitle: %s\n\nContent:\n%s\n", title, content)
	return b.String()
}
