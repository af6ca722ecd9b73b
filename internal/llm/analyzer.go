package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Client is the managed LLM endpoint. Implementations must honor the
// context deadline.
type Client interface {
	Complete(ctx context.Context, tier Tier, system, user string) (string, error)
}

// Cache stores completed analyses keyed on the call hash.
type Cache interface {
	Get(ctx context.Context, key string) (*Analysis, bool)
	Set(ctx context.Context, key string, a *Analysis)
}

// cacheTTL bounds how long an identical call is served from cache.
const cacheTTL = 24 * time.Hour

// maxRetries bounds the parse-failure retry pass.
const maxRetries = 2

// Analyzer runs the structured one-shot analysis with caching and fallback.
type Analyzer struct {
	client Client
	cache  Cache
}

// NewAnalyzer wires a client and an optional cache (nil disables caching).
func NewAnalyzer(client Client, cache Cache) *Analyzer {
	return &Analyzer{client: client, cache: cache}
}

// Analyze performs (or serves from cache) one structured call. It never
// returns an error for model failures: the neutral fallback object is the
// degradation contract, with the cause recorded on the result.
func (a *Analyzer) Analyze(ctx context.Context, title, content string, cc CallContext, tier Tier) *Analysis {
	if tier == "" {
		tier = TierFast
	}
	key := CacheKey(title, content, cc, tier)

	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, key); ok {
			cached.CacheHit = true
			return cached
		}
	}

	user := BuildPrompt(title, content, cc)
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := a.client.Complete(ctx, tier, systemPrompt, user)
		if err != nil {
			lastErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			continue
		}
		analysis, err := ParseAnalysis(raw)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("llm response failed schema parse, retrying")
			continue
		}
		analysis.Tier = tier
		if a.cache != nil {
			a.cache.Set(ctx, key, analysis)
		}
		return analysis
	}

	log.Error().Err(lastErr).Str("tier", string(tier)).Msg("llm analysis failed, returning neutral fallback")
	fb := NeutralFallback(fmt.Sprintf("llm_error: %v", lastErr))
	fb.Tier = tier
	return fb
}

// CacheKey hashes title, content, context and tier. Identical calls inside
// the TTL window share one result.
func CacheKey(title, content string, cc CallContext, tier Tier) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(cc.Source))
	h.Write([]byte{0})
	h.Write([]byte(cc.EventType))
	h.Write([]byte{0})
	if cc.QuantScore != nil {
		fmt.Fprintf(h, "%.4f", *cc.QuantScore)
	}
	h.Write([]byte{0})
	h.Write([]byte(tier))
	return "llm:analysis:" + hex.EncodeToString(h.Sum(nil))
}

// RedisCache is the shared 24h analysis cache.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps a redis client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// Get returns a cached analysis. Cache errors read as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (*Analysis, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false
	}
	return &a, true
}

// Set stores an analysis for the TTL window. Fallback objects are never
// cached; a healthy retry should not be masked for a day.
func (c *RedisCache) Set(ctx context.Context, key string, a *Analysis) {
	if a.Fallback {
		return
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		log.Warn().Err(err).Msg("llm cache write failed")
	}
}
