package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/venwatch/venwatch/internal/persistence"
	"github.com/venwatch/venwatch/internal/spikes"
)

type spikesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSpikeStore creates the PostgreSQL spike store.
func NewSpikeStore(db *sqlx.DB, timeout time.Duration) persistence.SpikeStore {
	return &spikesRepo{db: db, timeout: timeout}
}

func (r *spikesRepo) Upsert(ctx context.Context, s spikes.Spike) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mention_spikes (event_id, spike_date, mention_count, baseline_avg, baseline_stddev, z_score, confidence_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, spike_date) DO UPDATE
		SET mention_count = EXCLUDED.mention_count,
		    baseline_avg = EXCLUDED.baseline_avg,
		    baseline_stddev = EXCLUDED.baseline_stddev,
		    z_score = EXCLUDED.z_score,
		    confidence_level = EXCLUDED.confidence_level`,
		s.EventID, s.SpikeDate, s.MentionCount, s.BaselineAvg, s.BaselineStd, s.ZScore, s.Confidence)
	if err != nil {
		return fmt.Errorf("upsert spike %s/%s: %w", s.EventID, s.SpikeDate.Format("2006-01-02"), err)
	}
	return nil
}

func (r *spikesRepo) ListSince(ctx context.Context, cutoff time.Time) ([]spikes.Spike, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT event_id, spike_date, mention_count, baseline_avg, baseline_stddev, z_score, confidence_level
		FROM mention_spikes WHERE spike_date >= $1 ORDER BY spike_date`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list spikes: %w", err)
	}
	defer rows.Close()

	var out []spikes.Spike
	for rows.Next() {
		var s spikes.Spike
		if err := rows.Scan(&s.EventID, &s.SpikeDate, &s.MentionCount, &s.BaselineAvg, &s.BaselineStd, &s.ZScore, &s.Confidence); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type sanctionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSanctionsStore creates the PostgreSQL sanctions-match store.
func NewSanctionsStore(db *sqlx.DB, timeout time.Duration) persistence.SanctionsStore {
	return &sanctionsRepo{db: db, timeout: timeout}
}

func (r *sanctionsRepo) Insert(ctx context.Context, m persistence.SanctionsMatch) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("marshal sanctions payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sanctions_matches (event_id, entity_name, entity_type, list, match_score, payload, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.EventID, m.EntityName, m.EntityType, m.List, m.MatchScore, payload, m.MatchedAt)
	if err != nil {
		return fmt.Errorf("insert sanctions match: %w", err)
	}
	return nil
}

func (r *sanctionsRepo) ListByEvent(ctx context.Context, eventID string) ([]persistence.SanctionsMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT event_id, entity_name, entity_type, list, match_score, payload, matched_at
		FROM sanctions_matches WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list sanctions matches: %w", err)
	}
	defer rows.Close()

	var out []persistence.SanctionsMatch
	for rows.Next() {
		var m persistence.SanctionsMatch
		var payload []byte
		if err := rows.Scan(&m.EventID, &m.EntityName, &m.EntityType, &m.List, &m.MatchScore, &payload, &m.MatchedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &m.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal sanctions payload: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type indicatorsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewIndicatorStore creates the PostgreSQL indicator-series store.
func NewIndicatorStore(db *sqlx.DB, timeout time.Duration) persistence.IndicatorStore {
	return &indicatorsRepo{db: db, timeout: timeout}
}

func (r *indicatorsRepo) Upsert(ctx context.Context, p persistence.IndicatorPoint) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO indicator_series (series_id, source, date, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (series_id, date) DO UPDATE SET value = EXCLUDED.value`,
		p.SeriesID, p.Source, p.Date.UTC(), p.Value)
	if err != nil {
		return fmt.Errorf("upsert indicator %s@%s: %w", p.SeriesID, p.Date.Format("2006-01-02"), err)
	}
	return nil
}

func (r *indicatorsRepo) Latest(ctx context.Context, seriesID string, n int) ([]persistence.IndicatorPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.IndicatorPoint
	err := r.db.SelectContext(ctx, &out, `
		SELECT series_id, source, date, value FROM indicator_series
		WHERE series_id = $1 ORDER BY date DESC LIMIT $2`, seriesID, n)
	if err != nil {
		return nil, fmt.Errorf("latest indicator points %s: %w", seriesID, err)
	}
	return out, nil
}

func (r *indicatorsRepo) Range(ctx context.Context, seriesID string, from, to time.Time) ([]persistence.IndicatorPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.IndicatorPoint
	err := r.db.SelectContext(ctx, &out, `
		SELECT series_id, source, date, value FROM indicator_series
		WHERE series_id = $1 AND date >= $2 AND date < $3 ORDER BY date`,
		seriesID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("indicator range %s: %w", seriesID, err)
	}
	return out, nil
}

type tradeFlowsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradeFlowStore creates the PostgreSQL trade-flow store.
func NewTradeFlowStore(db *sqlx.DB, timeout time.Duration) persistence.TradeFlowStore {
	return &tradeFlowsRepo{db: db, timeout: timeout}
}

func (r *tradeFlowsRepo) Upsert(ctx context.Context, f persistence.TradeFlow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trade_flows (period, reporter_code, partner_code, commodity_code, trade_flow, value_usd, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (period, reporter_code, commodity_code, trade_flow) DO UPDATE
		SET value_usd = EXCLUDED.value_usd, recorded_at = EXCLUDED.recorded_at`,
		f.Period, f.ReporterCode, f.PartnerCode, f.CommodityCode, f.TradeFlow, f.ValueUSD, f.RecordedAt)
	if err != nil {
		return fmt.Errorf("upsert trade flow %s/%s: %w", f.Period, f.CommodityCode, err)
	}
	return nil
}

func (r *tradeFlowsRepo) ByPeriod(ctx context.Context, period string) ([]persistence.TradeFlow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.TradeFlow
	err := r.db.SelectContext(ctx, &out, `
		SELECT period, reporter_code, partner_code, commodity_code, trade_flow, value_usd, recorded_at
		FROM trade_flows WHERE period = $1`, period)
	if err != nil {
		return nil, fmt.Errorf("trade flows for %s: %w", period, err)
	}
	return out, nil
}

type forecastsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewForecastStore creates the PostgreSQL forecast cache.
func NewForecastStore(db *sqlx.DB, timeout time.Duration) persistence.ForecastStore {
	return &forecastsRepo{db: db, timeout: timeout}
}

func (r *forecastsRepo) Get(ctx context.Context, entityID string, horizon int) (*persistence.Forecast, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row struct {
		EntityID    string    `db:"entity_id"`
		Horizon     int       `db:"horizon"`
		Points      []byte    `db:"points"`
		GeneratedAt time.Time `db:"generated_at"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT entity_id, horizon, points, generated_at FROM forecast_cache
		WHERE entity_id = $1 AND horizon = $2`, entityID, horizon)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get forecast %s/%d: %w", entityID, horizon, err)
	}
	f := &persistence.Forecast{EntityID: row.EntityID, Horizon: row.Horizon, GeneratedAt: row.GeneratedAt.UTC()}
	if err := json.Unmarshal(row.Points, &f.Points); err != nil {
		return nil, fmt.Errorf("unmarshal forecast points: %w", err)
	}
	return f, nil
}

func (r *forecastsRepo) Put(ctx context.Context, f persistence.Forecast) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	points, err := json.Marshal(f.Points)
	if err != nil {
		return fmt.Errorf("marshal forecast points: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO forecast_cache (entity_id, horizon, points, generated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_id, horizon) DO UPDATE
		SET points = EXCLUDED.points, generated_at = EXCLUDED.generated_at`,
		f.EntityID, f.Horizon, points, f.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("put forecast %s/%d: %w", f.EntityID, f.Horizon, err)
	}
	return nil
}
