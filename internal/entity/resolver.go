// Package entity resolves raw entity names from heterogeneous sources onto
// the canonical registry: exact alias first, probabilistic record linkage
// second, create-new last.
package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/persistence"
	"github.com/venwatch/venwatch/internal/textmatch"
)

// Resolution methods recorded on aliases and returned to callers.
const (
	MethodExact         = "exact"
	MethodProbabilistic = "probabilistic"
	MethodLLM           = "llm"
)

const (
	// exactConfidenceFloor gates tier 1: stored aliases below it are
	// re-scored probabilistically rather than trusted.
	exactConfidenceFloor = 0.95
	// probabilisticThreshold gates tier 2 matches.
	probabilisticThreshold = 0.85
	// createRetries bounds retry on unique-constraint contention.
	createRetries = 3
)

// Request identifies one raw name to resolve.
type Request struct {
	RawName     string
	Source      string
	EntityType  string // person|organization|government|location
	CountryCode string
	SeenAt      time.Time
}

// Result is the outcome of a resolve.
type Result struct {
	CanonicalID string
	Confidence  float64
	Method      string
	Created     bool
}

// Resolver implements the three-tier resolution strategy over the registry.
type Resolver struct {
	store persistence.EntityStore
}

// NewResolver builds a Resolver.
func NewResolver(store persistence.EntityStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve runs the tiers in order. Concurrent resolves of the same raw name
// collapse onto one canonical row: the create path retries through the exact
// lookup on unique-constraint conflicts.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	name := strings.TrimSpace(req.RawName)
	if name == "" {
		return nil, fmt.Errorf("empty raw name")
	}
	if req.SeenAt.IsZero() {
		req.SeenAt = time.Now().UTC()
	}

	for attempt := 0; attempt <= createRetries; attempt++ {
		// Tier 1: exact alias.
		alias, err := r.store.FindAlias(ctx, name, req.Source)
		switch {
		case err == nil && alias.Confidence >= exactConfidenceFloor:
			if err := r.store.TouchAlias(ctx, name, req.Source, req.SeenAt); err != nil {
				log.Warn().Err(err).Str("alias", name).Msg("alias last_seen update failed")
			}
			return &Result{CanonicalID: alias.CanonicalID, Confidence: alias.Confidence, Method: MethodExact}, nil
		case err != nil && !errors.Is(err, persistence.ErrNotFound):
			return nil, fmt.Errorf("alias lookup: %w", err)
		}

		// Tier 2: probabilistic, blocked on (name prefix, country, type).
		if res, err := r.probabilistic(ctx, name, req); err != nil {
			return nil, err
		} else if res != nil {
			return res, nil
		}

		// Tier 3: create new canonical entity.
		res, err := r.create(ctx, name, req)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, persistence.ErrDuplicate) {
			return nil, err
		}
		// Another worker inserted the same alias first; loop back through
		// the exact lookup.
		log.Debug().Str("alias", name).Int("attempt", attempt).Msg("resolver create raced, retrying lookup")
	}
	return nil, fmt.Errorf("resolver exhausted retries for %q", name)
}

func (r *Resolver) probabilistic(ctx context.Context, name string, req Request) (*Result, error) {
	prefix := blockPrefix(name)
	candidates, err := r.store.CandidatesByBlock(ctx, prefix, req.CountryCode, req.EntityType)
	if err != nil {
		return nil, fmt.Errorf("candidate block: %w", err)
	}

	best := ""
	bestScore := 0.0
	for _, cand := range candidates {
		score := textmatch.JaroWinkler(name, cand.PrimaryName)
		if score > bestScore {
			best, bestScore = cand.ID, score
		}
	}
	if bestScore < probabilisticThreshold {
		return nil, nil
	}

	alias := persistence.Alias{
		CanonicalID:      best,
		Alias:            name,
		Source:           req.Source,
		Confidence:       bestScore,
		ResolutionMethod: MethodProbabilistic,
		FirstSeen:        req.SeenAt,
		LastSeen:         req.SeenAt,
	}
	if err := r.store.UpsertAlias(ctx, alias); err != nil {
		return nil, fmt.Errorf("record probabilistic alias: %w", err)
	}
	return &Result{CanonicalID: best, Confidence: bestScore, Method: MethodProbabilistic}, nil
}

func (r *Resolver) create(ctx context.Context, name string, req Request) (*Result, error) {
	id := uuid.New().String()
	ent := persistence.Entity{
		ID:           id,
		PrimaryName:  name,
		EntityType:   req.EntityType,
		CountryCode:  req.CountryCode,
		CreatedAt:    req.SeenAt,
		LastVerified: req.SeenAt,
	}
	alias := persistence.Alias{
		CanonicalID:      id,
		Alias:            name,
		Source:           req.Source,
		Confidence:       1.0,
		ResolutionMethod: MethodExact,
		FirstSeen:        req.SeenAt,
		LastSeen:         req.SeenAt,
	}
	if err := r.store.CreateWithAlias(ctx, ent, alias); err != nil {
		return nil, err
	}
	return &Result{CanonicalID: id, Confidence: 1.0, Method: MethodExact, Created: true}, nil
}

// blockPrefix is the first three characters of the lowered name. Accented
// names slice on rune boundaries so the prefix never ends mid-character.
func blockPrefix(name string) string {
	lower := []rune(strings.ToLower(name))
	if len(lower) > 3 {
		lower = lower[:3]
	}
	return string(lower)
}
