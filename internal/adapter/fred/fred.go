// Package fred ingests macroeconomic series observations from the FRED API.
package fred

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/persistence"
)

const (
	defaultBaseURL = "https://api.stlouisfed.org/fred"
	dateLayout     = "2006-01-02"
)

// Series configures one watched FRED series.
type Series struct {
	ID string `yaml:"id"`
	// Name is the human label used in event titles.
	Name string `yaml:"name"`
	// BadWhenUp marks series where an increase is adverse (inflation,
	// spreads) as opposed to good-when-up series (GDP, reserves).
	BadWhenUp bool `yaml:"bad_when_up"`
}

// DefaultSeries is the watched macro set.
func DefaultSeries() []Series {
	return []Series{
		{ID: "DCOILWTICO", Name: "WTI crude oil price", BadWhenUp: false},
		{ID: "DCOILBRENTEU", Name: "Brent crude oil price", BadWhenUp: false},
		{ID: "DEXVZUS", Name: "Bolivar / USD exchange rate", BadWhenUp: true},
		{ID: "FPCPITOTLZGVEN", Name: "Venezuela CPI inflation", BadWhenUp: true},
	}
}

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"` // "." means missing
}

type response struct {
	Observations []observation `json:"observations"`
}

// Adapter pulls observations for each watched series and emits one event
// per new observation with its period-over-period change.
type Adapter struct {
	baseURL     string
	apiKey      string
	series      []Series
	client      *adapter.HTTPClient
	indicators  persistence.IndicatorStore
	credibility float64
}

// New builds the adapter. A nil indicator store disables series persistence;
// empty baseURL and series use defaults.
func New(baseURL, apiKey string, series []Series, indicators persistence.IndicatorStore, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if len(series) == 0 {
		series = DefaultSeries()
	}
	return &Adapter{
		baseURL:     baseURL,
		apiKey:      apiKey,
		series:      series,
		client:      adapter.NewHTTPClient(timeout),
		indicators:  indicators,
		credibility: 0.95,
	}
}

func (a *Adapter) Source() string { return event.SourceFRED }

func (a *Adapter) Schedule() adapter.Schedule {
	return adapter.Schedule{Frequency: 6 * time.Hour, DefaultLookback: 7 * 24 * time.Hour}
}

// Fetch pulls each watched series over [start, end). One extra day of
// lookback feeds the first period-over-period change.
func (a *Adapter) Fetch(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	var out []*event.Event
	for _, s := range a.series {
		q := url.Values{}
		q.Set("series_id", s.ID)
		q.Set("api_key", a.apiKey)
		q.Set("file_type", "json")
		q.Set("observation_start", start.UTC().AddDate(0, 0, -7).Format(dateLayout))
		q.Set("observation_end", end.UTC().Format(dateLayout))

		var resp response
		if err := a.client.GetJSON(ctx, a.baseURL+"/series/observations?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("series %s: %w", s.ID, err)
		}
		evs := TransformSeries(s, resp.Observations, start, a.credibility)
		out = append(out, evs...)

		if a.indicators != nil {
			a.persistPoints(ctx, s.ID, resp.Observations)
		}
	}
	return out, nil
}

// TransformSeries maps observations in [start, ...) onto canonical events.
// Observations before start only seed the change baseline.
func TransformSeries(s Series, obs []observation, start time.Time, credibility float64) []*event.Event {
	var out []*event.Event
	prev := 0.0
	hasPrev := false
	for _, o := range obs {
		date, err := time.ParseInLocation(dateLayout, o.Date, time.UTC)
		if err != nil {
			log.Warn().Str("series", s.ID).Str("date", o.Date).Msg("fred observation skipped")
			continue
		}
		value, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			// "." marks a market holiday or missing value.
			continue
		}
		if date.Before(start) {
			prev, hasPrev = value, true
			continue
		}

		ev := buildEvent(s, date, value, prev, hasPrev, credibility)
		out = append(out, ev)
		prev, hasPrev = value, true
	}
	return out
}

func buildEvent(s Series, date time.Time, value, prev float64, hasPrev bool, credibility float64) *event.Event {
	sourceEventID := s.ID + "/" + date.Format(dateLayout)
	category, sub := event.Classify(event.SourceFRED, s.ID)

	ev := &event.Event{
		ID:                event.DeriveID(event.SourceFRED, sourceEventID),
		Source:            event.SourceFRED,
		SourceEventID:     sourceEventID,
		EventTimestamp:    date,
		Category:          category,
		Subcategory:       sub,
		EventType:         "INDICATOR_UPDATE",
		Title:             fmt.Sprintf("%s: %.2f", s.Name, value),
		CountryCode:       "VE",
		Direction:         event.DirectionNeutral,
		NumSources:        1,
		SourceCredibility: credibility,
		Confidence:        event.ComputeConfidence(1, credibility),
		Metadata:          map[string]any{"series_id": s.ID, "value": value},
	}
	if hasPrev && prev != 0 {
		change := (value - prev) / prev * 100
		ev.MagnitudeRaw = event.Float64(change)
		ev.MagnitudeUnit = event.UnitPercentChange
		ev.MagnitudeNorm = event.Float64(event.NormalizeMagnitude(change, event.UnitPercentChange))
		ev.Direction = event.DirectionFromSigned(change, s.BadWhenUp)
	}
	return ev
}

func (a *Adapter) persistPoints(ctx context.Context, seriesID string, obs []observation) {
	for _, o := range obs {
		date, err := time.ParseInLocation(dateLayout, o.Date, time.UTC)
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		p := persistence.IndicatorPoint{SeriesID: seriesID, Source: event.SourceFRED, Date: date, Value: value}
		if err := a.indicators.Upsert(ctx, p); err != nil {
			log.Warn().Err(err).Str("series", seriesID).Msg("indicator upsert failed")
		}
	}
}
