// Package reliefweb ingests humanitarian reports from the ReliefWeb API.
package reliefweb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/event"
)

const (
	defaultBaseURL = "https://api.reliefweb.int/v1"
	appName        = "venwatch"
	countryISO3    = "VEN"
	pageLimit      = 100
)

// Report is one ReliefWeb report entry.
type Report struct {
	ID     string `json:"id"`
	Fields struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		URL   string `json:"url"`
		Date  struct {
			Created time.Time `json:"created"`
		} `json:"date"`
		DisasterType []struct {
			Name string `json:"name"`
		} `json:"disaster_type"`
		PrimaryCountry struct {
			ISO3 string `json:"iso3"`
		} `json:"primary_country"`
		Source []struct {
			Name string `json:"name"`
		} `json:"source"`
		Language []struct {
			Code string `json:"code"`
		} `json:"language"`
	} `json:"fields"`
}

type response struct {
	Data []Report `json:"data"`
}

// Adapter pulls country reports.
type Adapter struct {
	baseURL     string
	client      *adapter.HTTPClient
	credibility float64
}

// New builds the adapter. An empty baseURL uses the public API.
func New(baseURL string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{baseURL: baseURL, client: adapter.NewHTTPClient(timeout), credibility: 0.9}
}

func (a *Adapter) Source() string { return event.SourceReliefWeb }

func (a *Adapter) Schedule() adapter.Schedule {
	return adapter.Schedule{Frequency: time.Hour, DefaultLookback: 6 * time.Hour}
}

// Fetch pulls reports created inside [start, end).
func (a *Adapter) Fetch(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	q := url.Values{}
	q.Set("appname", appName)
	q.Set("profile", "full")
	q.Set("limit", strconv.Itoa(pageLimit))
	q.Set("filter[field]", "primary_country.iso3")
	q.Set("filter[value]", countryISO3)
	q.Set("filter[conditions][0][field]", "date.created")
	q.Set("filter[conditions][0][value][from]", start.UTC().Format(time.RFC3339))
	q.Set("filter[conditions][0][value][to]", end.UTC().Format(time.RFC3339))

	var resp response
	if err := a.client.GetJSON(ctx, a.baseURL+"/reports?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return Transform(resp.Data, a.credibility), nil
}

// Transform maps reports onto canonical events, skipping bad records.
func Transform(reports []Report, credibility float64) []*event.Event {
	out := make([]*event.Event, 0, len(reports))
	for _, rep := range reports {
		ev, err := transformReport(rep, credibility)
		if err != nil {
			log.Warn().Err(err).Str("report_id", rep.ID).Msg("reliefweb report skipped")
			continue
		}
		out = append(out, ev)
	}
	return out
}

func transformReport(rep Report, credibility float64) (*event.Event, error) {
	if rep.ID == "" {
		return nil, fmt.Errorf("report missing id")
	}
	if rep.Fields.Date.Created.IsZero() {
		return nil, fmt.Errorf("report missing created date")
	}

	disasterType := ""
	if len(rep.Fields.DisasterType) > 0 {
		disasterType = rep.Fields.DisasterType[0].Name
	}
	category, sub := event.Classify(event.SourceReliefWeb, disasterType)

	numSources := len(rep.Fields.Source)
	if numSources < 1 {
		numSources = 1
	}
	lang := "en"
	if len(rep.Fields.Language) > 0 && rep.Fields.Language[0].Code != "" {
		lang = rep.Fields.Language[0].Code
	}

	ev := &event.Event{
		ID:                event.DeriveID(event.SourceReliefWeb, rep.ID),
		Source:            event.SourceReliefWeb,
		SourceEventID:     rep.ID,
		SourceURL:         rep.Fields.URL,
		EventTimestamp:    rep.Fields.Date.Created.UTC(),
		Category:          category,
		Subcategory:       sub,
		EventType:         disasterType,
		Title:             rep.Fields.Title,
		Content:           rep.Fields.Body,
		CountryCode:       "VE",
		Direction:         event.DirectionNegative,
		NumSources:        numSources,
		SourceCredibility: credibility,
		Confidence:        event.ComputeConfidence(numSources, credibility),
		Language:          lang,
		Metadata:          map[string]any{"disaster_type": disasterType},
	}
	return ev, nil
}
