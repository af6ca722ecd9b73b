// Package worldbank ingests development indicators from the World Bank API.
package worldbank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/persistence"
)

const (
	defaultBaseURL = "https://api.worldbank.org/v2"
	countryISO3    = "VEN"
)

// DefaultIndicators is the watched development-indicator set. BadWhenUp
// flags series where an increase is adverse.
func DefaultIndicators() map[string]bool {
	return map[string]bool{
		"NY.GDP.MKTP.KD.ZG": false, // GDP growth
		"FP.CPI.TOTL.ZG":    true,  // CPI inflation
		"SH.DYN.MORT":       true,  // under-5 mortality
		"SP.POP.TOTL":       false, // population
		"EG.ELC.ACCS.ZS":    false, // electricity access
		"SL.UEM.TOTL.ZS":    true,  // unemployment
	}
}

// Observation is one indicator/year datapoint.
type Observation struct {
	Indicator struct {
		ID string `json:"id"`
	} `json:"indicator"`
	Date  string   `json:"date"` // year
	Value *float64 `json:"value"`
}

// Adapter pulls yearly indicator values and emits one event per new
// datapoint with its year-over-year change.
type Adapter struct {
	baseURL     string
	indicators  map[string]bool
	client      *adapter.HTTPClient
	store       persistence.IndicatorStore
	credibility float64
}

// New builds the adapter. A nil store disables series persistence.
func New(baseURL string, indicators map[string]bool, store persistence.IndicatorStore, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if len(indicators) == 0 {
		indicators = DefaultIndicators()
	}
	return &Adapter{
		baseURL:     baseURL,
		indicators:  indicators,
		client:      adapter.NewHTTPClient(timeout),
		store:       store,
		credibility: 0.95,
	}
}

func (a *Adapter) Source() string { return event.SourceWorldBank }

func (a *Adapter) Schedule() adapter.Schedule {
	// Yearly series; a weekly poll picks up revisions and new releases.
	return adapter.Schedule{Frequency: 7 * 24 * time.Hour, DefaultLookback: 2 * 365 * 24 * time.Hour}
}

// Fetch pulls each watched indicator over the years covering [start, end).
func (a *Adapter) Fetch(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	var out []*event.Event
	for id, badWhenUp := range a.indicators {
		url := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&date=%d:%d&per_page=200",
			a.baseURL, countryISO3, id, start.Year()-1, end.Year())

		body, err := a.client.Get(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", id, err)
		}
		obs, err := parseResponse(body)
		if err != nil {
			return nil, adapter.Permanent(fmt.Errorf("indicator %s: %w", id, err))
		}
		out = append(out, Transform(id, badWhenUp, obs, start.Year(), a.credibility)...)

		if a.store != nil {
			a.persist(ctx, id, obs)
		}
	}
	return out, nil
}

// parseResponse unwraps the API's [metadata, rows] array envelope.
func parseResponse(body []byte) ([]Observation, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope) < 2 {
		return nil, fmt.Errorf("envelope missing data element")
	}
	var obs []Observation
	if err := json.Unmarshal(envelope[1], &obs); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	return obs, nil
}

// Transform emits events for years >= fromYear. The API returns rows newest
// first; the year before fromYear seeds the change baseline.
func Transform(indicatorID string, badWhenUp bool, obs []Observation, fromYear int, credibility float64) []*event.Event {
	byYear := make(map[int]float64)
	years := make([]int, 0, len(obs))
	for _, o := range obs {
		if o.Value == nil {
			continue
		}
		year, err := strconv.Atoi(o.Date)
		if err != nil {
			log.Warn().Str("indicator", indicatorID).Str("date", o.Date).Msg("worldbank row skipped")
			continue
		}
		if _, seen := byYear[year]; !seen {
			years = append(years, year)
		}
		byYear[year] = *o.Value
	}
	sort.Ints(years)

	var out []*event.Event
	for _, year := range years {
		if year < fromYear {
			continue
		}
		value := byYear[year]
		category, sub := event.Classify(event.SourceWorldBank, indicatorID)
		sourceEventID := fmt.Sprintf("%s/%d", indicatorID, year)

		ev := &event.Event{
			ID:                event.DeriveID(event.SourceWorldBank, sourceEventID),
			Source:            event.SourceWorldBank,
			SourceEventID:     sourceEventID,
			EventTimestamp:    time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
			Category:          category,
			Subcategory:       sub,
			EventType:         "INDICATOR_UPDATE",
			Title:             fmt.Sprintf("%s %d: %.2f", indicatorID, year, value),
			CountryCode:       "VE",
			Direction:         event.DirectionNeutral,
			NumSources:        1,
			SourceCredibility: credibility,
			Confidence:        event.ComputeConfidence(1, credibility),
			Metadata:          map[string]any{"indicator": indicatorID, "year": year, "value": value},
		}
		if prev, ok := byYear[year-1]; ok && prev != 0 {
			change := (value - prev) / prev * 100
			ev.MagnitudeRaw = event.Float64(change)
			ev.MagnitudeUnit = event.UnitPercentChange
			ev.MagnitudeNorm = event.Float64(event.NormalizeMagnitude(change, event.UnitPercentChange))
			ev.Direction = event.DirectionFromSigned(change, badWhenUp)
		}
		out = append(out, ev)
	}
	return out
}

func (a *Adapter) persist(ctx context.Context, indicatorID string, obs []Observation) {
	for _, o := range obs {
		if o.Value == nil {
			continue
		}
		year, err := strconv.Atoi(o.Date)
		if err != nil {
			continue
		}
		p := persistence.IndicatorPoint{
			SeriesID: indicatorID,
			Source:   event.SourceWorldBank,
			Date:     time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
			Value:    *o.Value,
		}
		if err := a.store.Upsert(ctx, p); err != nil {
			log.Warn().Err(err).Str("indicator", indicatorID).Msg("indicator upsert failed")
		}
	}
}
