// Package persistence defines the storage model and repository contracts.
// Events live in the append-mostly time-series store (idempotent on id);
// the entity registry is relational and transactional. No foreign keys
// cross that boundary: joins happen at query time by id.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/spikes"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned on unique-constraint conflicts.
var ErrDuplicate = errors.New("duplicate")

// Entity is a canonical long-lived entity.
type Entity struct {
	ID           string         `db:"id" json:"id"`
	PrimaryName  string         `db:"primary_name" json:"primary_name"`
	EntityType   string         `db:"entity_type" json:"entity_type"` // person|organization|government|location
	CountryCode  string         `db:"country_code" json:"country_code"`
	Metadata     map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	LastVerified time.Time      `db:"last_verified" json:"last_verified"`
}

// Alias is one observed surface form of a canonical entity.
// Unique on (alias, source).
type Alias struct {
	CanonicalID      string    `db:"canonical_id" json:"canonical_id"`
	Alias            string    `db:"alias" json:"alias"`
	Source           string    `db:"source" json:"source"`
	Confidence       float64   `db:"confidence" json:"confidence"`
	ResolutionMethod string    `db:"resolution_method" json:"resolution_method"` // exact|probabilistic|llm
	FirstSeen        time.Time `db:"first_seen" json:"first_seen"`
	LastSeen         time.Time `db:"last_seen" json:"last_seen"`
}

// Mention links an event to a canonical entity. Events never back-point.
type Mention struct {
	EventID     string    `db:"event_id" json:"event_id"`
	CanonicalID string    `db:"canonical_id" json:"canonical_id"`
	RawName     string    `db:"raw_name" json:"raw_name"`
	MatchScore  float64   `db:"match_score" json:"match_score"`
	Relevance   float64   `db:"relevance" json:"relevance"`
	MentionedAt time.Time `db:"mentioned_at" json:"mentioned_at"`
}

// SanctionsMatch records a watchlist hit for an event's entity.
type SanctionsMatch struct {
	EventID    string         `db:"event_id" json:"event_id"`
	EntityName string         `db:"entity_name" json:"entity_name"`
	EntityType string         `db:"entity_type" json:"entity_type"`
	List       string         `db:"list" json:"list"`
	MatchScore float64        `db:"match_score" json:"match_score"`
	Payload    map[string]any `db:"-" json:"payload,omitempty"`
	MatchedAt  time.Time      `db:"matched_at" json:"matched_at"`
}

// IndicatorPoint is one dated macro-indicator observation, keyed
// (series_id, date).
type IndicatorPoint struct {
	SeriesID string    `db:"series_id" json:"series_id"`
	Source   string    `db:"source" json:"source"`
	Date     time.Time `db:"date" json:"date"`
	Value    float64   `db:"value" json:"value"`
}

// TradeFlow is one bilateral flow record, keyed
// (period, reporter_code, commodity_code, trade_flow).
type TradeFlow struct {
	Period        string    `db:"period" json:"period"`
	ReporterCode  string    `db:"reporter_code" json:"reporter_code"`
	PartnerCode   string    `db:"partner_code" json:"partner_code"`
	CommodityCode string    `db:"commodity_code" json:"commodity_code"`
	TradeFlow     string    `db:"trade_flow" json:"trade_flow"` // import|export
	ValueUSD      float64   `db:"value_usd" json:"value_usd"`
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
}

// ForecastPoint is one horizon step of a cached forecast.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Forecast is a cached managed-forecast result. Stale after 24h.
type Forecast struct {
	EntityID    string          `db:"entity_id" json:"entity_id"`
	Horizon     int             `db:"horizon" json:"horizon"`
	Points      []ForecastPoint `db:"-" json:"points"`
	GeneratedAt time.Time       `db:"generated_at" json:"generated_at"`
}

// EventStore is the time-series event store. Upsert is idempotent on id.
type EventStore interface {
	Upsert(ctx context.Context, ev *event.Event) error
	Get(ctx context.Context, id string) (*event.Event, error)
	Exists(ctx context.Context, id string) (bool, error)
	// ExistsByURL reports whether the source already delivered this URL
	// inside the lookback window. Duplicate detection for URL-keyed sources.
	ExistsByURL(ctx context.Context, source, url string, window time.Duration) (bool, error)
	UpdateEnrichment(ctx context.Context, ev *event.Event) error
	// ListWindow returns events whose event_timestamp falls in [from, to).
	ListWindow(ctx context.Context, from, to time.Time) ([]*event.Event, error)
	// DailyTypeCounts returns per-day counts of an event type, for the
	// correlation engine's event-count series.
	DailyTypeCounts(ctx context.Context, eventType string, from, to time.Time) (map[time.Time]int, error)
}

// EntityStore is the transactional entity registry.
type EntityStore interface {
	FindAlias(ctx context.Context, alias, source string) (*Alias, error)
	// CandidatesByBlock returns registry entries sharing the blocking key
	// (name prefix, country, type) for probabilistic matching.
	CandidatesByBlock(ctx context.Context, namePrefix, countryCode, entityType string) ([]Entity, error)
	// CreateWithAlias inserts the entity and its first alias in one
	// transaction. Returns ErrDuplicate on an alias unique-constraint
	// conflict so the resolver can retry the lookup.
	CreateWithAlias(ctx context.Context, ent Entity, alias Alias) error
	UpsertAlias(ctx context.Context, alias Alias) error
	TouchAlias(ctx context.Context, alias, source string, seenAt time.Time) error
	Get(ctx context.Context, id string) (*Entity, error)

	InsertMention(ctx context.Context, m Mention) error
	// MentionsSince returns all mentions recorded after the cutoff,
	// for trending reconciliation and graph building.
	MentionsSince(ctx context.Context, cutoff time.Time) ([]Mention, error)
	// DailyMentionCounts returns per-day mention counts for one entity.
	DailyMentionCounts(ctx context.Context, canonicalID string, from, to time.Time) (map[time.Time]int, error)
}

// SpikeStore persists detected mention spikes, unique on (event_id, spike_date).
type SpikeStore interface {
	Upsert(ctx context.Context, s spikes.Spike) error
	ListSince(ctx context.Context, cutoff time.Time) ([]spikes.Spike, error)
}

// SanctionsStore persists watchlist matches.
type SanctionsStore interface {
	Insert(ctx context.Context, m SanctionsMatch) error
	ListByEvent(ctx context.Context, eventID string) ([]SanctionsMatch, error)
}

// IndicatorStore persists macro series, keyed (series_id, date).
type IndicatorStore interface {
	Upsert(ctx context.Context, p IndicatorPoint) error
	// Latest returns the most recent n points for a series, newest first.
	Latest(ctx context.Context, seriesID string, n int) ([]IndicatorPoint, error)
	Range(ctx context.Context, seriesID string, from, to time.Time) ([]IndicatorPoint, error)
}

// TradeFlowStore persists bilateral trade flows.
type TradeFlowStore interface {
	Upsert(ctx context.Context, f TradeFlow) error
	ByPeriod(ctx context.Context, period string) ([]TradeFlow, error)
}

// ForecastStore caches managed-forecast results.
type ForecastStore interface {
	Get(ctx context.Context, entityID string, horizon int) (*Forecast, error)
	Put(ctx context.Context, f Forecast) error
}
