// Package sanctions screens resolved entity names against consolidated
// watchlists (OFAC SDN, EU, UN) using fuzzy string matching.
package sanctions

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/textmatch"
)

const (
	// recordThreshold is the minimum similarity for a match to be reported.
	recordThreshold = 0.7
	// substringFloor is the minimum score assigned when one name contains
	// the other, regardless of edit distance.
	substringFloor = 0.8
	// refreshInterval bounds watchlist staleness.
	refreshInterval = 24 * time.Hour
)

// Record is one watchlist row.
type Record struct {
	List       string   `json:"list"` // OFAC_SDN|EU|UN
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	EntityType string   `json:"entity_type"` // person|organization|vessel
	Programs   []string `json:"programs,omitempty"`
}

// Match is a screening hit against one record.
type Match struct {
	Query      string   `json:"query"`
	List       string   `json:"list"`
	ListedName string   `json:"listed_name"`
	EntityType string   `json:"entity_type"`
	Score      float64  `json:"score"`
	Programs   []string `json:"programs,omitempty"`
}

// ListProvider fetches the current consolidated watchlist.
type ListProvider interface {
	FetchLists(ctx context.Context) ([]Record, error)
}

// Screener caches the watchlist and scores queries against it.
type Screener struct {
	provider ListProvider

	mu        sync.RWMutex
	records   []Record
	fetchedAt time.Time
}

// NewScreener builds a Screener. The watchlist is loaded lazily on the
// first Screen call and refreshed daily.
func NewScreener(provider ListProvider) *Screener {
	return &Screener{provider: provider}
}

// Screen scores name against every watchlist record and returns matches at
// or above the record threshold, highest score first. No matches is a nil
// slice, not an error.
func (s *Screener) Screen(ctx context.Context, name string) ([]Match, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	records, err := s.currentLists(ctx)
	if err != nil {
		return nil, err
	}

	var out []Match
	for _, rec := range records {
		best := scoreName(name, rec.Name)
		for _, alias := range rec.Aliases {
			if sc := scoreName(name, alias); sc > best {
				best = sc
			}
		}
		if best >= recordThreshold {
			out = append(out, Match{
				Query:      name,
				List:       rec.List,
				ListedName: rec.Name,
				EntityType: rec.EntityType,
				Score:      best,
				Programs:   rec.Programs,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Exposure collapses matches to the binary risk dimension: 1 when anything
// matched, 0 otherwise.
func Exposure(matches []Match) float64 {
	if len(matches) > 0 {
		return 1
	}
	return 0
}

// Refresh forces a watchlist reload regardless of staleness.
func (s *Screener) Refresh(ctx context.Context) error {
	records, err := s.provider.FetchLists(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records = records
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	log.Info().Int("records", len(records)).Msg("sanctions watchlist refreshed")
	return nil
}

func (s *Screener) currentLists(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	records, fetchedAt := s.records, s.fetchedAt
	s.mu.RUnlock()
	if records != nil && time.Since(fetchedAt) < refreshInterval {
		return records, nil
	}
	if err := s.Refresh(ctx); err != nil {
		// A stale list beats no list.
		if records != nil {
			log.Warn().Err(err).Msg("sanctions refresh failed, using stale watchlist")
			return records, nil
		}
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records, nil
}

// scoreName scores a query against one listed name: normalized edit
// distance, with a floor when one normalized name contains the other.
func scoreName(query, listed string) float64 {
	q := normalizeName(query)
	l := normalizeName(listed)
	if q == "" || l == "" {
		return 0
	}
	if q == l {
		return 1
	}
	score := textmatch.LevenshteinSimilarity(q, l)
	if strings.Contains(q, l) || strings.Contains(l, q) {
		if score < substringFloor {
			score = substringFloor
		}
	}
	return score
}

var namePunct = strings.NewReplacer(",", " ", ".", " ", "-", " ", "'", "", "\"", "")

func normalizeName(name string) string {
	lower := strings.ToLower(namePunct.Replace(name))
	return strings.Join(strings.Fields(lower), " ")
}
