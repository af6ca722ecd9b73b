// Package postgres implements the persistence contracts on PostgreSQL via
// sqlx. The events table is partitioned by day of event_timestamp; all
// writes are idempotent upserts keyed on id.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/persistence"
)

// uniqueViolation is the postgres error code for unique-constraint conflicts.
const uniqueViolation = "23505"

type eventsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEventStore creates the PostgreSQL event store.
func NewEventStore(db *sqlx.DB, timeout time.Duration) persistence.EventStore {
	return &eventsRepo{db: db, timeout: timeout}
}

// eventRow is the flat column mapping of a canonical event.
type eventRow struct {
	ID             string          `db:"id"`
	Source         string          `db:"source"`
	SourceEventID  string          `db:"source_event_id"`
	SourceURL      sql.NullString  `db:"source_url"`
	EventTimestamp time.Time       `db:"event_timestamp"`
	IngestedAt     time.Time       `db:"ingested_at"`
	CreatedAt      time.Time       `db:"created_at"`
	Category       string          `db:"category"`
	Subcategory    sql.NullString  `db:"subcategory"`
	EventType      sql.NullString  `db:"event_type"`
	Title          sql.NullString  `db:"title"`
	Content        sql.NullString  `db:"content"`
	CountryCode    sql.NullString  `db:"country_code"`
	Admin1         sql.NullString  `db:"admin1"`
	Admin2         sql.NullString  `db:"admin2"`
	Latitude       sql.NullFloat64 `db:"latitude"`
	Longitude      sql.NullFloat64 `db:"longitude"`
	MagnitudeRaw   sql.NullFloat64 `db:"magnitude_raw"`
	MagnitudeUnit  sql.NullString  `db:"magnitude_unit"`
	MagnitudeNorm  sql.NullFloat64 `db:"magnitude_norm"`
	Direction      sql.NullString  `db:"direction"`
	ToneRaw        sql.NullFloat64 `db:"tone_raw"`
	ToneNorm       sql.NullFloat64 `db:"tone_norm"`
	NumSources     int             `db:"num_sources"`
	SourceCred     float64         `db:"source_credibility"`
	Confidence     float64         `db:"confidence"`
	Actors         []byte          `db:"actors"`
	Commodities    pq.StringArray  `db:"commodities"`
	Sectors        pq.StringArray  `db:"sectors"`
	Themes         pq.StringArray  `db:"themes"`
	Sentiment      sql.NullFloat64 `db:"sentiment"`
	RiskScore      sql.NullFloat64 `db:"risk_score"`
	Severity       sql.NullString  `db:"severity"`
	Urgency        sql.NullString  `db:"urgency"`
	Language       sql.NullString  `db:"language"`
	Summary        sql.NullString  `db:"summary"`
	LLMAnalysis    []byte          `db:"llm_analysis"`
	Metadata       []byte          `db:"metadata"`
}

type actorPair struct {
	Actor1 *event.Actor `json:"actor1,omitempty"`
	Actor2 *event.Actor `json:"actor2,omitempty"`
}

func toRow(ev *event.Event) (*eventRow, error) {
	actors, err := json.Marshal(actorPair{Actor1: ev.Actor1, Actor2: ev.Actor2})
	if err != nil {
		return nil, fmt.Errorf("marshal actors: %w", err)
	}
	var llmBlob []byte
	if ev.LLMAnalysis != nil {
		if llmBlob, err = json.Marshal(ev.LLMAnalysis); err != nil {
			return nil, fmt.Errorf("marshal llm_analysis: %w", err)
		}
	}
	var metaBlob []byte
	if ev.Metadata != nil {
		if metaBlob, err = json.Marshal(ev.Metadata); err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return &eventRow{
		ID:             ev.ID,
		Source:         ev.Source,
		SourceEventID:  ev.SourceEventID,
		SourceURL:      nullStr(ev.SourceURL),
		EventTimestamp: ev.EventTimestamp.UTC(),
		IngestedAt:     ev.IngestedAt.UTC(),
		CreatedAt:      ev.CreatedAt.UTC(),
		Category:       string(ev.Category),
		Subcategory:    nullStr(ev.Subcategory),
		EventType:      nullStr(ev.EventType),
		Title:          nullStr(ev.Title),
		Content:        nullStr(ev.Content),
		CountryCode:    nullStr(ev.CountryCode),
		Admin1:         nullStr(ev.Admin1),
		Admin2:         nullStr(ev.Admin2),
		Latitude:       nullFloat(ev.Latitude),
		Longitude:      nullFloat(ev.Longitude),
		MagnitudeRaw:   nullFloat(ev.MagnitudeRaw),
		MagnitudeUnit:  nullStr(string(ev.MagnitudeUnit)),
		MagnitudeNorm:  nullFloat(ev.MagnitudeNorm),
		Direction:      nullStr(string(ev.Direction)),
		ToneRaw:        nullFloat(ev.ToneRaw),
		ToneNorm:       nullFloat(ev.ToneNorm),
		NumSources:     ev.NumSources,
		SourceCred:     ev.SourceCredibility,
		Confidence:     ev.Confidence,
		Actors:         actors,
		Commodities:    ev.Commodities,
		Sectors:        ev.Sectors,
		Themes:         ev.Themes,
		Sentiment:      nullFloat(ev.Sentiment),
		RiskScore:      nullFloat(ev.RiskScore),
		Severity:       nullStr(string(ev.Severity)),
		Urgency:        nullStr(ev.Urgency),
		Language:       nullStr(ev.Language),
		Summary:        nullStr(ev.Summary),
		LLMAnalysis:    llmBlob,
		Metadata:       metaBlob,
	}, nil
}

func (r *eventRow) toEvent() (*event.Event, error) {
	ev := &event.Event{
		ID:                r.ID,
		Source:            r.Source,
		SourceEventID:     r.SourceEventID,
		SourceURL:         r.SourceURL.String,
		EventTimestamp:    r.EventTimestamp.UTC(),
		IngestedAt:        r.IngestedAt.UTC(),
		CreatedAt:         r.CreatedAt.UTC(),
		Category:          event.Category(r.Category),
		Subcategory:       r.Subcategory.String,
		EventType:         r.EventType.String,
		Title:             r.Title.String,
		Content:           r.Content.String,
		CountryCode:       r.CountryCode.String,
		Admin1:            r.Admin1.String,
		Admin2:            r.Admin2.String,
		Latitude:          fromNullFloat(r.Latitude),
		Longitude:         fromNullFloat(r.Longitude),
		MagnitudeRaw:      fromNullFloat(r.MagnitudeRaw),
		MagnitudeUnit:     event.MagnitudeUnit(r.MagnitudeUnit.String),
		MagnitudeNorm:     fromNullFloat(r.MagnitudeNorm),
		Direction:         event.Direction(r.Direction.String),
		ToneRaw:           fromNullFloat(r.ToneRaw),
		ToneNorm:          fromNullFloat(r.ToneNorm),
		NumSources:        r.NumSources,
		SourceCredibility: r.SourceCred,
		Confidence:        r.Confidence,
		Commodities:       r.Commodities,
		Sectors:           r.Sectors,
		Themes:            r.Themes,
		Sentiment:         fromNullFloat(r.Sentiment),
		RiskScore:         fromNullFloat(r.RiskScore),
		Severity:          event.Severity(r.Severity.String),
		Urgency:           r.Urgency.String,
		Language:          r.Language.String,
		Summary:           r.Summary.String,
	}
	if len(r.Actors) > 0 {
		var pair actorPair
		if err := json.Unmarshal(r.Actors, &pair); err != nil {
			return nil, fmt.Errorf("unmarshal actors: %w", err)
		}
		ev.Actor1, ev.Actor2 = pair.Actor1, pair.Actor2
	}
	if len(r.LLMAnalysis) > 0 {
		if err := json.Unmarshal(r.LLMAnalysis, &ev.LLMAnalysis); err != nil {
			return nil, fmt.Errorf("unmarshal llm_analysis: %w", err)
		}
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return ev, nil
}

const eventColumns = `id, source, source_event_id, source_url, event_timestamp, ingested_at,
	created_at, category, subcategory, event_type, title, content, country_code,
	admin1, admin2, latitude, longitude, magnitude_raw, magnitude_unit,
	magnitude_norm, direction, tone_raw, tone_norm, num_sources,
	source_credibility, confidence, actors, commodities, sectors, themes,
	sentiment, risk_score, severity, urgency, language, summary, llm_analysis,
	metadata`

// Upsert inserts the event, ignoring conflicts on id. Redelivered messages
// leave the stored row untouched.
func (r *eventsRepo) Upsert(ctx context.Context, ev *event.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row, err := toRow(ev)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES (:id, :source, :source_event_id, :source_url, :event_timestamp,
			:ingested_at, :created_at, :category, :subcategory, :event_type,
			:title, :content, :country_code, :admin1, :admin2, :latitude,
			:longitude, :magnitude_raw, :magnitude_unit, :magnitude_norm,
			:direction, :tone_raw, :tone_norm, :num_sources,
			:source_credibility, :confidence, :actors, :commodities, :sectors,
			:themes, :sentiment, :risk_score, :severity, :urgency, :language,
			:summary, :llm_analysis, :metadata)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert event %s: %w", ev.ID, err)
	}
	return nil
}

func (r *eventsRepo) Get(ctx context.Context, id string) (*event.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return row.toEvent()
}

func (r *eventsRepo) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("event exists %s: %w", id, err)
	}
	return exists, nil
}

func (r *eventsRepo) ExistsByURL(ctx context.Context, source, url string, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM events WHERE source = $1 AND source_url = $2 AND ingested_at >= $3)`,
		source, url, time.Now().UTC().Add(-window))
	if err != nil {
		return false, fmt.Errorf("event exists by url: %w", err)
	}
	return exists, nil
}

// UpdateEnrichment writes the analyzer-owned fields onto an existing row.
func (r *eventsRepo) UpdateEnrichment(ctx context.Context, ev *event.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row, err := toRow(ev)
	if err != nil {
		return err
	}
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE events SET
			sentiment = :sentiment, risk_score = :risk_score,
			severity = :severity, urgency = :urgency, language = :language,
			summary = :summary, themes = :themes, llm_analysis = :llm_analysis,
			metadata = :metadata
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("update enrichment %s: %w", ev.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *eventsRepo) ListWindow(ctx context.Context, from, to time.Time) ([]*event.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+eventColumns+` FROM events WHERE event_timestamp >= $1 AND event_timestamp < $2 ORDER BY event_timestamp`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list events window: %w", err)
	}
	out := make([]*event.Event, 0, len(rows))
	for i := range rows {
		ev, err := rows[i].toEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *eventsRepo) DailyTypeCounts(ctx context.Context, eventType string, from, to time.Time) (map[time.Time]int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT date_trunc('day', event_timestamp) AS day, COUNT(*) AS n
		FROM events
		WHERE event_type = $1 AND event_timestamp >= $2 AND event_timestamp < $3
		GROUP BY day`, eventType, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("daily type counts: %w", err)
	}
	defer rows.Close()

	out := make(map[time.Time]int)
	for rows.Next() {
		var day time.Time
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		out[day.UTC()] = n
	}
	return out, rows.Err()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
