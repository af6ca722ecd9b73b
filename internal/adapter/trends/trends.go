// Package trends ingests search-interest series for a curated keyword set.
// Interest is served by a trends proxy endpoint; the public service has no
// stable API.
package trends

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/event"
)

// DefaultKeywords is the curated watch list. Each keyword categorizes via
// the keyword table.
func DefaultKeywords() []string {
	return []string{
		"blackout", "gasoline shortage", "hyperinflation", "protest",
		"migration", "medicine shortage", "sanctions", "oil production",
	}
}

// Point is one interest observation.
type Point struct {
	Date  string `json:"date"` // 2006-01-02
	Value int    `json:"value"`
}

// SeriesResult is one keyword's interest-over-time block.
type SeriesResult struct {
	Keyword string  `json:"keyword"`
	Geo     string  `json:"geo"`
	Points  []Point `json:"points"`
}

type response struct {
	Series []SeriesResult `json:"series"`
}

// Adapter pulls interest-over-time for the keyword set, geo-scoped to the
// watched country.
type Adapter struct {
	baseURL     string
	keywords    []string
	client      *adapter.HTTPClient
	credibility float64
}

// New builds the adapter. baseURL is the proxy endpoint and is required;
// empty keywords use the default watch list.
func New(baseURL string, keywords []string, timeout time.Duration) *Adapter {
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	return &Adapter{
		baseURL:     baseURL,
		keywords:    keywords,
		client:      adapter.NewHTTPClient(timeout),
		credibility: 0.5,
	}
}

func (a *Adapter) Source() string { return event.SourceGoogleTrends }

func (a *Adapter) Schedule() adapter.Schedule {
	return adapter.Schedule{Frequency: 4 * time.Hour, DefaultLookback: 48 * time.Hour}
}

// Fetch pulls every keyword's series over [start, end).
func (a *Adapter) Fetch(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	if a.baseURL == "" {
		return nil, adapter.Permanent(fmt.Errorf("trends proxy URL not configured"))
	}
	q := url.Values{}
	q.Set("geo", "VE")
	q.Set("start", start.UTC().Format("2006-01-02"))
	q.Set("end", end.UTC().Format("2006-01-02"))
	for _, kw := range a.keywords {
		q.Add("q", kw)
	}

	var resp response
	if err := a.client.GetJSON(ctx, a.baseURL+"/interest?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return Transform(resp.Series, a.credibility), nil
}

// Transform maps interest points onto canonical events. Interest is
// bounded 0..100 by the source; out-of-range rows are skipped.
func Transform(series []SeriesResult, credibility float64) []*event.Event {
	var out []*event.Event
	for _, sr := range series {
		if sr.Keyword == "" {
			log.Warn().Msg("trends series without keyword skipped")
			continue
		}
		category, sub := event.Classify(event.SourceGoogleTrends, sr.Keyword)
		for _, p := range sr.Points {
			ts, err := time.ParseInLocation("2006-01-02", p.Date, time.UTC)
			if err != nil {
				log.Warn().Str("keyword", sr.Keyword).Str("date", p.Date).Msg("trends point skipped")
				continue
			}
			if p.Value < 0 || p.Value > 100 {
				log.Warn().Str("keyword", sr.Keyword).Int("value", p.Value).Msg("trends point out of range")
				continue
			}
			raw := float64(p.Value)
			sourceEventID := fmt.Sprintf("%s/%s", sr.Keyword, p.Date)

			ev := &event.Event{
				ID:                event.DeriveID(event.SourceGoogleTrends, sourceEventID),
				Source:            event.SourceGoogleTrends,
				SourceEventID:     sourceEventID,
				EventTimestamp:    ts,
				Category:          category,
				Subcategory:       sub,
				EventType:         "SEARCH_INTEREST",
				Title:             fmt.Sprintf("Search interest %q: %d", sr.Keyword, p.Value),
				CountryCode:       "VE",
				MagnitudeRaw:      &raw,
				MagnitudeUnit:     event.UnitInterestScore,
				MagnitudeNorm:     event.Float64(event.NormalizeMagnitude(raw, event.UnitInterestScore)),
				Direction:         event.DirectionNeutral,
				NumSources:        1,
				SourceCredibility: credibility,
				Confidence:        event.ComputeConfidence(1, credibility),
				Metadata:          map[string]any{"keyword": sr.Keyword, "interest": p.Value},
			}
			out = append(out, ev)
		}
	}
	return out
}
