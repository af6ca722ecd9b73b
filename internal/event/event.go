package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source tags form a closed set. Events carrying any other tag fail validation.
const (
	SourceGDELT        = "gdelt"
	SourceReliefWeb    = "reliefweb"
	SourceFRED         = "fred"
	SourceUNComtrade   = "un_comtrade"
	SourceWorldBank    = "world_bank"
	SourceGoogleTrends = "google_trends"
	SourceSECEdgar     = "sec_edgar"
)

// KnownSources indexes the closed source set for validation.
var KnownSources = map[string]bool{
	SourceGDELT:        true,
	SourceReliefWeb:    true,
	SourceFRED:         true,
	SourceUNComtrade:   true,
	SourceWorldBank:    true,
	SourceGoogleTrends: true,
	SourceSECEdgar:     true,
}

// Category is one of the ten canonical event categories.
type Category string

const (
	CategoryPolitical      Category = "POLITICAL"
	CategoryConflict       Category = "CONFLICT"
	CategoryEconomic       Category = "ECONOMIC"
	CategoryTrade          Category = "TRADE"
	CategoryRegulatory     Category = "REGULATORY"
	CategoryInfrastructure Category = "INFRASTRUCTURE"
	CategoryHealthcare     Category = "HEALTHCARE"
	CategorySocial         Category = "SOCIAL"
	CategoryEnvironmental  Category = "ENVIRONMENTAL"
	CategoryEnergy         Category = "ENERGY"
)

// Categories is the closed category set in canonical order.
var Categories = []Category{
	CategoryPolitical, CategoryConflict, CategoryEconomic, CategoryTrade,
	CategoryRegulatory, CategoryInfrastructure, CategoryHealthcare,
	CategorySocial, CategoryEnvironmental, CategoryEnergy,
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Direction classifies the sign of an event's impact.
type Direction string

const (
	DirectionPositive Direction = "POSITIVE"
	DirectionNegative Direction = "NEGATIVE"
	DirectionNeutral  Direction = "NEUTRAL"
)

// Severity covers both the deterministic P1-P4 priorities and the
// hybrid-score-derived SEV1-SEV5 bands.
type Severity string

const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"

	SeveritySEV1 Severity = "SEV1"
	SeveritySEV2 Severity = "SEV2"
	SeveritySEV3 Severity = "SEV3"
	SeveritySEV4 Severity = "SEV4"
	SeveritySEV5 Severity = "SEV5"
)

// MagnitudeUnit identifies the native unit of an event's raw magnitude.
type MagnitudeUnit string

const (
	UnitFatalities    MagnitudeUnit = "fatalities"
	UnitPercent       MagnitudeUnit = "percent"
	UnitGoldstein     MagnitudeUnit = "goldstein"
	UnitUSD           MagnitudeUnit = "usd"
	UnitInterestScore MagnitudeUnit = "interest_score"
	UnitPercentChange MagnitudeUnit = "percent_change"
)

// ActorType classifies an event actor.
type ActorType string

const (
	ActorGovernment ActorType = "GOVERNMENT"
	ActorMilitary   ActorType = "MILITARY"
	ActorRebel      ActorType = "REBEL"
	ActorCivilian   ActorType = "CIVILIAN"
	ActorCorporate  ActorType = "CORPORATE"
)

// Actor names one side of a dyadic event.
type Actor struct {
	Name string    `json:"name"`
	Type ActorType `json:"type,omitempty"`
}

// Event is the canonical record every downstream component consumes.
// Adapters construct events; analyzers own the enrichment fields; everything
// else reads. Unknown source-specific fields live under Metadata only.
type Event struct {
	// Identity
	ID            string `json:"id" db:"id"`
	Source        string `json:"source" db:"source"`
	SourceEventID string `json:"source_event_id" db:"source_event_id"`
	SourceURL     string `json:"source_url,omitempty" db:"source_url"`

	// Temporal (UTC). EventTimestamp <= IngestedAt <= CreatedAt within skew.
	EventTimestamp time.Time `json:"event_timestamp" db:"event_timestamp"`
	IngestedAt     time.Time `json:"ingested_at" db:"ingested_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`

	// Classification
	Category    Category `json:"category" db:"category"`
	Subcategory string   `json:"subcategory,omitempty" db:"subcategory"`
	EventType   string   `json:"event_type,omitempty" db:"event_type"`

	// Content
	Title   string `json:"title,omitempty" db:"title"`
	Content string `json:"content,omitempty" db:"content"`

	// Location
	CountryCode string   `json:"country_code,omitempty" db:"country_code"`
	Admin1      string   `json:"admin1,omitempty" db:"admin1"`
	Admin2      string   `json:"admin2,omitempty" db:"admin2"`
	Latitude    *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64 `json:"longitude,omitempty" db:"longitude"`

	// Magnitude
	MagnitudeRaw  *float64      `json:"magnitude_raw,omitempty" db:"magnitude_raw"`
	MagnitudeUnit MagnitudeUnit `json:"magnitude_unit,omitempty" db:"magnitude_unit"`
	MagnitudeNorm *float64      `json:"magnitude_norm,omitempty" db:"magnitude_norm"`

	Direction Direction `json:"direction,omitempty" db:"direction"`

	// Tone
	ToneRaw  *float64 `json:"tone_raw,omitempty" db:"tone_raw"`
	ToneNorm *float64 `json:"tone_norm,omitempty" db:"tone_norm"`

	// Confidence
	NumSources        int     `json:"num_sources" db:"num_sources"`
	SourceCredibility float64 `json:"source_credibility" db:"source_credibility"`
	Confidence        float64 `json:"confidence" db:"confidence"`

	// Actors
	Actor1 *Actor `json:"actor1,omitempty" db:"-"`
	Actor2 *Actor `json:"actor2,omitempty" db:"-"`

	// Taxonomic arrays
	Commodities []string `json:"commodities,omitempty" db:"-"`
	Sectors     []string `json:"sectors,omitempty" db:"-"`
	Themes      []string `json:"themes,omitempty" db:"-"`

	// Enrichment (owned by the analyze stage)
	Sentiment   *float64       `json:"sentiment,omitempty" db:"sentiment"`
	RiskScore   *float64       `json:"risk_score,omitempty" db:"risk_score"`
	Severity    Severity       `json:"severity,omitempty" db:"severity"`
	Urgency     string         `json:"urgency,omitempty" db:"urgency"`
	Language    string         `json:"language,omitempty" db:"language"`
	Summary     string         `json:"summary,omitempty" db:"summary"`
	LLMAnalysis map[string]any `json:"llm_analysis,omitempty" db:"-"`

	// Open map for source-specific fields. The core never depends on it.
	Metadata map[string]any `json:"metadata,omitempty" db:"-"`
}

// eventNamespace scopes UUIDv5 derivation of event ids.
var eventNamespace = uuid.MustParse("9f2d7a5e-1c64-4b8a-b1d0-3e9a6c2f8d41")

// DeriveID returns a stable event id for a (source, source_event_id) pair.
// Two sources emitting the same native id yield distinct events.
func DeriveID(source, sourceEventID string) string {
	return uuid.NewSHA1(eventNamespace, []byte(source+"/"+sourceEventID)).String()
}

// clockSkewTolerance bounds how far a temporal invariant may run backwards
// before validation rejects the event.
const clockSkewTolerance = 5 * time.Minute

// Validate enforces the canonical-event invariants. A violation is a BadInput:
// the event is dropped by the caller, never repaired.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event missing id")
	}
	if !KnownSources[e.Source] {
		return fmt.Errorf("unknown source tag %q", e.Source)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("category %q outside closed set", e.Category)
	}
	if e.EventTimestamp.IsZero() {
		return fmt.Errorf("event missing event_timestamp")
	}
	if !e.IngestedAt.IsZero() && e.EventTimestamp.After(e.IngestedAt.Add(clockSkewTolerance)) {
		return fmt.Errorf("event_timestamp %s after ingested_at %s", e.EventTimestamp, e.IngestedAt)
	}
	if err := checkUnit("magnitude_norm", e.MagnitudeNorm); err != nil {
		return err
	}
	if err := checkUnit("tone_norm", e.ToneNorm); err != nil {
		return err
	}
	if e.MagnitudeRaw != nil && e.MagnitudeNorm == nil {
		return fmt.Errorf("magnitude_raw present without magnitude_norm")
	}
	if e.NumSources < 1 {
		return fmt.Errorf("num_sources must be >= 1, got %d", e.NumSources)
	}
	if e.SourceCredibility < 0 || e.SourceCredibility > 1 {
		return fmt.Errorf("source_credibility %.3f outside [0,1]", e.SourceCredibility)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", e.Confidence)
	}
	if e.Sentiment != nil && (*e.Sentiment < -1 || *e.Sentiment > 1) {
		return fmt.Errorf("sentiment %.3f outside [-1,1]", *e.Sentiment)
	}
	if e.RiskScore != nil && (*e.RiskScore < 0 || *e.RiskScore > 100) {
		return fmt.Errorf("risk_score %.3f outside [0,100]", *e.RiskScore)
	}
	if e.Severity == SeverityP1 && e.RiskScore != nil && *e.RiskScore < 70 {
		return fmt.Errorf("risk_score %.3f below the P1 floor", *e.RiskScore)
	}
	return nil
}

func checkUnit(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("%s %.3f outside [0,1]", name, *v)
	}
	return nil
}

// Float64 returns a pointer to v. Convenience for optional scalar fields.
func Float64(v float64) *float64 { return &v }
