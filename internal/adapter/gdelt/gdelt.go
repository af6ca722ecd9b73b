// Package gdelt ingests CAMEO-coded rows from the GDELT events feed.
package gdelt

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/event"
)

const (
	defaultBaseURL  = "https://api.gdeltproject.org/api/v2"
	sourceCountry   = "VE"
	gdeltTimeLayout = "20060102150405"
)

// Row is one GDELT events-table record as served by the query endpoint.
type Row struct {
	GlobalEventID  string  `json:"globaleventid"`
	DateAdded      string  `json:"dateadded"` // YYYYMMDDHHMMSS
	EventRootCode  string  `json:"eventrootcode"`
	EventCode      string  `json:"eventcode"`
	GoldsteinScale float64 `json:"goldsteinscale"`
	AvgTone        float64 `json:"avgtone"`
	NumMentions    int     `json:"nummentions"`
	NumSources     int     `json:"numsources"`
	NumArticles    int     `json:"numarticles"`
	Actor1Name     string  `json:"actor1name"`
	Actor1Type     string  `json:"actor1type1code"`
	Actor2Name     string  `json:"actor2name"`
	Actor2Type     string  `json:"actor2type1code"`
	GeoCountry     string  `json:"actiongeo_countrycode"`
	GeoADM1        string  `json:"actiongeo_adm1code"`
	GeoFullname    string  `json:"actiongeo_fullname"`
	GeoLat         float64 `json:"actiongeo_lat"`
	GeoLong        float64 `json:"actiongeo_long"`
	SourceURL      string  `json:"sourceurl"`
}

type response struct {
	Events []Row `json:"events"`
}

// Adapter pulls CAMEO events for the watched country.
type Adapter struct {
	baseURL     string
	client      *adapter.HTTPClient
	credibility float64
}

// New builds the adapter. An empty baseURL uses the public endpoint.
func New(baseURL string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{baseURL: baseURL, client: adapter.NewHTTPClient(timeout), credibility: 0.7}
}

func (a *Adapter) Source() string { return event.SourceGDELT }

func (a *Adapter) Schedule() adapter.Schedule {
	return adapter.Schedule{Frequency: 15 * time.Minute, DefaultLookback: time.Hour}
}

// Fetch pulls and transforms events updated inside [start, end).
func (a *Adapter) Fetch(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("actiongeo_countrycode:%s", sourceCountry))
	q.Set("startdatetime", start.UTC().Format(gdeltTimeLayout))
	q.Set("enddatetime", end.UTC().Format(gdeltTimeLayout))
	q.Set("format", "json")

	var resp response
	if err := a.client.GetJSON(ctx, a.baseURL+"/events/query?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return Transform(resp.Events, a.credibility), nil
}

// Transform maps raw rows onto canonical events. Bad rows are skipped and
// logged, never fatal.
func Transform(rows []Row, credibility float64) []*event.Event {
	out := make([]*event.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := transformRow(row, credibility)
		if err != nil {
			log.Warn().Err(err).Str("global_event_id", row.GlobalEventID).Msg("gdelt row skipped")
			continue
		}
		out = append(out, ev)
	}
	return out
}

func transformRow(row Row, credibility float64) (*event.Event, error) {
	if row.GlobalEventID == "" {
		return nil, fmt.Errorf("row missing globaleventid")
	}
	ts, err := time.ParseInLocation(gdeltTimeLayout, row.DateAdded, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("bad dateadded %q: %w", row.DateAdded, err)
	}

	category, sub := event.Classify(event.SourceGDELT, row.EventRootCode)
	numSources := row.NumSources
	if numSources < 1 {
		numSources = 1
	}
	g := row.GoldsteinScale
	tone := row.AvgTone

	ev := &event.Event{
		ID:                event.DeriveID(event.SourceGDELT, row.GlobalEventID),
		Source:            event.SourceGDELT,
		SourceEventID:     row.GlobalEventID,
		SourceURL:         row.SourceURL,
		EventTimestamp:    ts,
		Category:          category,
		Subcategory:       sub,
		CountryCode:       row.GeoCountry,
		Admin1:            row.GeoADM1,
		MagnitudeRaw:      &g,
		MagnitudeUnit:     event.UnitGoldstein,
		MagnitudeNorm:     event.Float64(event.NormalizeMagnitude(g, event.UnitGoldstein)),
		Direction:         event.DirectionFromSigned(g, false),
		ToneRaw:           &tone,
		ToneNorm:          event.Float64(event.NormalizeTone(tone, -100, 100)),
		NumSources:        numSources,
		SourceCredibility: credibility,
		Confidence:        event.ComputeConfidence(numSources, credibility),
		Metadata: map[string]any{
			"event_code":      row.EventCode,
			"event_root_code": row.EventRootCode,
			"num_mentions":    row.NumMentions,
			"num_articles":    row.NumArticles,
			"geo_fullname":    row.GeoFullname,
		},
	}
	if row.GeoLat != 0 || row.GeoLong != 0 {
		ev.Latitude = event.Float64(row.GeoLat)
		ev.Longitude = event.Float64(row.GeoLong)
	}
	if row.Actor1Name != "" {
		ev.Actor1 = &event.Actor{Name: row.Actor1Name, Type: actorType(row.Actor1Type)}
	}
	if row.Actor2Name != "" {
		ev.Actor2 = &event.Actor{Name: row.Actor2Name, Type: actorType(row.Actor2Type)}
	}
	return ev, nil
}

// actorType maps CAMEO type codes onto the canonical actor taxonomy.
func actorType(code string) event.ActorType {
	switch code {
	case "GOV":
		return event.ActorGovernment
	case "MIL", "COP":
		return event.ActorMilitary
	case "REB", "INS", "SEP":
		return event.ActorRebel
	case "BUS", "MNC":
		return event.ActorCorporate
	case "CVL", "REF", "OPP":
		return event.ActorCivilian
	default:
		return ""
	}
}
