package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/venwatch/venwatch/internal/persistence"
)

type entitiesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEntityStore creates the PostgreSQL entity registry.
func NewEntityStore(db *sqlx.DB, timeout time.Duration) persistence.EntityStore {
	return &entitiesRepo{db: db, timeout: timeout}
}

func (r *entitiesRepo) FindAlias(ctx context.Context, alias, source string) (*persistence.Alias, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var a persistence.Alias
	err := r.db.GetContext(ctx, &a, `
		SELECT canonical_id, alias, source, confidence, resolution_method, first_seen, last_seen
		FROM entity_aliases
		WHERE lower(alias) = lower($1) AND source = $2`, alias, source)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find alias %q/%s: %w", alias, source, err)
	}
	return &a, nil
}

func (r *entitiesRepo) CandidatesByBlock(ctx context.Context, namePrefix, countryCode, entityType string) ([]persistence.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []struct {
		persistence.Entity
		Metadata []byte `db:"metadata"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, primary_name, entity_type, country_code, metadata, created_at, last_verified
		FROM entities
		WHERE lower(primary_name) LIKE lower($1) || '%'
		  AND country_code = $2 AND entity_type = $3
		LIMIT 200`, namePrefix, countryCode, entityType)
	if err != nil {
		return nil, fmt.Errorf("entity candidates: %w", err)
	}
	out := make([]persistence.Entity, 0, len(rows))
	for _, row := range rows {
		ent := row.Entity
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &ent.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal entity metadata: %w", err)
			}
		}
		out = append(out, ent)
	}
	return out, nil
}

// CreateWithAlias inserts the entity and its first alias atomically. A
// concurrent insert of the same (alias, source) surfaces as ErrDuplicate so
// the resolver can fall back to the lookup path.
func (r *entitiesRepo) CreateWithAlias(ctx context.Context, ent persistence.Entity, alias persistence.Alias) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create entity: %w", err)
	}
	defer tx.Rollback()

	meta, err := json.Marshal(ent.Metadata)
	if err != nil {
		return fmt.Errorf("marshal entity metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (id, primary_name, entity_type, country_code, metadata, created_at, last_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ent.ID, ent.PrimaryName, ent.EntityType, ent.CountryCode, meta, ent.CreatedAt, ent.LastVerified)
	if err != nil {
		return classifyPQ("insert entity", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_aliases (canonical_id, alias, source, confidence, resolution_method, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		alias.CanonicalID, alias.Alias, alias.Source, alias.Confidence,
		alias.ResolutionMethod, alias.FirstSeen, alias.LastSeen)
	if err != nil {
		return classifyPQ("insert alias", err)
	}
	return tx.Commit()
}

func (r *entitiesRepo) UpsertAlias(ctx context.Context, alias persistence.Alias) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entity_aliases (canonical_id, alias, source, confidence, resolution_method, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alias, source) DO UPDATE
		SET last_seen = EXCLUDED.last_seen,
		    confidence = GREATEST(entity_aliases.confidence, EXCLUDED.confidence)`,
		alias.CanonicalID, alias.Alias, alias.Source, alias.Confidence,
		alias.ResolutionMethod, alias.FirstSeen, alias.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert alias %q: %w", alias.Alias, err)
	}
	return nil
}

func (r *entitiesRepo) TouchAlias(ctx context.Context, alias, source string, seenAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`UPDATE entity_aliases SET last_seen = $1 WHERE lower(alias) = lower($2) AND source = $3`,
		seenAt, alias, source)
	if err != nil {
		return fmt.Errorf("touch alias %q: %w", alias, err)
	}
	return nil
}

func (r *entitiesRepo) Get(ctx context.Context, id string) (*persistence.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row struct {
		persistence.Entity
		Metadata []byte `db:"metadata"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, primary_name, entity_type, country_code, metadata, created_at, last_verified
		FROM entities WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	ent := row.Entity
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &ent.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entity metadata: %w", err)
		}
	}
	return &ent, nil
}

func (r *entitiesRepo) InsertMention(ctx context.Context, m persistence.Mention) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entity_mentions (event_id, canonical_id, raw_name, match_score, relevance, mentioned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, canonical_id, raw_name) DO NOTHING`,
		m.EventID, m.CanonicalID, m.RawName, m.MatchScore, m.Relevance, m.MentionedAt)
	if err != nil {
		return fmt.Errorf("insert mention: %w", err)
	}
	return nil
}

func (r *entitiesRepo) MentionsSince(ctx context.Context, cutoff time.Time) ([]persistence.Mention, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.Mention
	err := r.db.SelectContext(ctx, &out, `
		SELECT event_id, canonical_id, raw_name, match_score, relevance, mentioned_at
		FROM entity_mentions WHERE mentioned_at >= $1`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("mentions since %s: %w", cutoff, err)
	}
	return out, nil
}

func (r *entitiesRepo) DailyMentionCounts(ctx context.Context, canonicalID string, from, to time.Time) (map[time.Time]int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT date_trunc('day', mentioned_at) AS day, COUNT(*) AS n
		FROM entity_mentions
		WHERE canonical_id = $1 AND mentioned_at >= $2 AND mentioned_at < $3
		GROUP BY day`, canonicalID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("daily mention counts: %w", err)
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

func classifyPQ(op string, err error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, persistence.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
