// Package trending keeps a decayed entity-mention leaderboard in Redis.
package trending

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/persistence"
)

const (
	leaderboardKey = "trending:entities"
	// decayHalfWindowHours is the e-folding time of mention weight, one week.
	decayHalfWindowHours = 168.0
	// rebuildLookback bounds the nightly full rebuild.
	rebuildLookback = 30 * 24 * time.Hour
)

// Entry is one leaderboard row.
type Entry struct {
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"`
}

// Tracker maintains the leaderboard incrementally and rebuilds it from the
// mention log.
type Tracker struct {
	rdb   *redis.Client
	store persistence.EntityStore
	nowFn func() time.Time
}

// NewTracker builds a Tracker.
func NewTracker(rdb *redis.Client, store persistence.EntityStore) *Tracker {
	return &Tracker{rdb: rdb, store: store, nowFn: time.Now}
}

// Weight is the decayed contribution of a single mention observed at
// mentionedAt, relevance-weighted. Future timestamps decay as age zero.
func Weight(relevance float64, mentionedAt, now time.Time) float64 {
	ageHours := now.Sub(mentionedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	if relevance <= 0 {
		relevance = 0.5
	}
	return relevance * math.Exp(-ageHours/decayHalfWindowHours)
}

// Record adds one mention's decayed weight to the leaderboard.
func (t *Tracker) Record(ctx context.Context, entityID string, relevance float64, mentionedAt time.Time) error {
	w := Weight(relevance, mentionedAt, t.nowFn())
	if err := t.rdb.ZIncrBy(ctx, leaderboardKey, w, entityID).Err(); err != nil {
		return fmt.Errorf("trending record %s: %w", entityID, err)
	}
	return nil
}

// Top returns the n highest-scored entities.
func (t *Tracker) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	zs, err := t.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("trending top: %w", err)
	}
	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Entry{EntityID: id, Score: z.Score})
	}
	return out, nil
}

// Rebuild recomputes the leaderboard from the last 30 days of mentions and
// swaps it in atomically via RENAME. Incremental scores accumulate stale
// decay between rebuilds; the nightly pass corrects the drift.
func (t *Tracker) Rebuild(ctx context.Context) error {
	now := t.nowFn()
	mentions, err := t.store.MentionsSince(ctx, now.Add(-rebuildLookback))
	if err != nil {
		return fmt.Errorf("trending rebuild load: %w", err)
	}

	scores := make(map[string]float64)
	for _, m := range mentions {
		scores[m.CanonicalID] += Weight(m.Relevance, m.MentionedAt, now)
	}

	staging := leaderboardKey + ":staging"
	pipe := t.rdb.TxPipeline()
	pipe.Del(ctx, staging)
	for id, score := range scores {
		pipe.ZAdd(ctx, staging, redis.Z{Score: score, Member: id})
	}
	if len(scores) > 0 {
		pipe.Rename(ctx, staging, leaderboardKey)
	} else {
		pipe.Del(ctx, leaderboardKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("trending rebuild swap: %w", err)
	}
	log.Info().Int("entities", len(scores)).Int("mentions", len(mentions)).Msg("trending leaderboard rebuilt")
	return nil
}
