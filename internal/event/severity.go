package event

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// p1AutoTriggerTypes fire P1 regardless of any magnitude signal. These are
// the events that must page no matter what the models say.
var p1AutoTriggerTypes = map[string]bool{
	"COUP":                  true,
	"NATIONALIZATION":       true,
	"SOVEREIGN_DEFAULT":     true,
	"HEAD_OF_STATE_REMOVED": true,
	"OIL_EXPORT_HALT":       true,
}

// p1SourceCodes are source-native codes that auto-trigger P1 (CAMEO coup and
// mass-violence roots).
var p1SourceCodes = map[string]bool{
	"1621": true, // coup attempt
	"180":  true,
	"1831": true,
	"190":  true,
	"193":  true,
	"194":  true,
	"195":  true,
	"202":  true,
	"203":  true,
}

// p1Patterns match title/content text that demands immediate attention.
var p1Patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcoup\b`),
	regexp.MustCompile(`(?i)\bmartial law\b`),
	regexp.MustCompile(`(?i)sovereign default`),
	regexp.MustCompile(`(?i)(halt|suspend)\w*\s+(all\s+)?oil exports`),
	regexp.MustCompile(`(?i)president\s+(ousted|removed|overthrown)`),
	regexp.MustCompile(`(?i)state of emergency`),
}

// protestTypes are event types treated as protest-like for the P3 rule.
var protestTypes = map[string]bool{
	"PROTEST":       true,
	"DEMONSTRATION": true,
	"RALLY":         true,
	"MARCH":         true,
	"STRIKE":        true,
}

// ClassifySeverity assigns a deterministic P1-P4 priority with a
// human-readable reason. Rules are evaluated top-down; the first hit wins.
// P1 never consults a model, so it is reliable for alerting.
func ClassifySeverity(e *Event) (Severity, string) {
	evType := strings.ToUpper(strings.TrimSpace(e.EventType))
	magNorm := 0.0
	if e.MagnitudeNorm != nil {
		magNorm = *e.MagnitudeNorm
	}
	magRaw := 0.0
	if e.MagnitudeRaw != nil {
		magRaw = *e.MagnitudeRaw
	}

	// P1
	if p1AutoTriggerTypes[evType] {
		return SeverityP1, fmt.Sprintf("Auto-trigger: %s", evType)
	}
	if p1SourceCodes[e.Subcategory] {
		return SeverityP1, fmt.Sprintf("Auto-trigger source code: %s", e.Subcategory)
	}
	for _, p := range p1Patterns {
		if p.MatchString(e.Title) || p.MatchString(e.Content) {
			return SeverityP1, fmt.Sprintf("Pattern match: %s", p.String())
		}
	}
	if e.MagnitudeUnit == UnitFatalities && magRaw >= 10 {
		return SeverityP1, fmt.Sprintf("Fatalities: %.0f", magRaw)
	}
	if e.Category == CategoryEnergy && hasCommodity(e, "OIL") &&
		e.Direction == DirectionNegative && magNorm > 0.8 {
		return SeverityP1, "Severe negative oil event"
	}

	// P2
	if e.MagnitudeUnit == UnitFatalities && magRaw >= 1 && magRaw < 10 {
		return SeverityP2, fmt.Sprintf("Fatalities: %.0f", magRaw)
	}
	if (e.Category == CategoryPolitical || e.Category == CategoryRegulatory) &&
		magNorm > 0.7 && e.Direction == DirectionNegative {
		return SeverityP2, fmt.Sprintf("High-magnitude negative %s event", e.Category)
	}
	if e.MagnitudeUnit == UnitPercentChange && math.Abs(magRaw) > 10 {
		return SeverityP2, fmt.Sprintf("Large change: %.1f%%", magRaw)
	}
	if e.Category == CategoryConflict && magNorm > 0.5 && e.Admin1 != "" {
		return SeverityP2, fmt.Sprintf("Localized conflict in %s", e.Admin1)
	}

	// P3
	if e.Direction == DirectionNegative && magNorm > 0.3 && magNorm <= 0.7 {
		return SeverityP3, "Moderate negative event"
	}
	if protestTypes[evType] && !(e.MagnitudeUnit == UnitFatalities && magRaw > 0) {
		return SeverityP3, "Protest without casualties"
	}
	if e.Category == CategoryRegulatory && magNorm <= 0.5 {
		return SeverityP3, "Routine regulatory event"
	}

	return SeverityP4, "Default"
}

func hasCommodity(e *Event, commodity string) bool {
	for _, c := range e.Commodities {
		if strings.EqualFold(c, commodity) {
			return true
		}
	}
	return false
}
