// Package edgar ingests company filings mentioning the watched country from
// the SEC EDGAR full-text search API.
package edgar

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/event"
)

const (
	defaultBaseURL = "https://efts.sec.gov/LATEST"
	searchQuery    = `"venezuela"`
)

// Hit is one full-text search result.
type Hit struct {
	ID     string `json:"_id"` // accession:document
	Source struct {
		DisplayNames []string `json:"display_names"`
		FileDate     string   `json:"file_date"` // 2006-01-02
		FileType     string   `json:"file_type"`
		RootForms    []string `json:"root_forms"`
	} `json:"_source"`
}

type response struct {
	Hits struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

// Adapter searches EDGAR filings for country mentions and emits one
// regulatory event per filing.
type Adapter struct {
	baseURL     string
	client      *adapter.HTTPClient
	credibility float64
}

func New(baseURL string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		baseURL:     baseURL,
		client:      adapter.NewHTTPClient(timeout),
		credibility: 0.95,
	}
}

func (a *Adapter) Source() string { return event.SourceSECEdgar }

func (a *Adapter) Schedule() adapter.Schedule {
	return adapter.Schedule{Frequency: 6 * time.Hour, DefaultLookback: 72 * time.Hour}
}

// Fetch searches filings dated within [start, end).
func (a *Adapter) Fetch(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	q := url.Values{}
	q.Set("q", searchQuery)
	q.Set("dateRange", "custom")
	q.Set("startdt", start.UTC().Format("2006-01-02"))
	q.Set("enddt", end.UTC().Format("2006-01-02"))

	var resp response
	if err := a.client.GetJSON(ctx, a.baseURL+"/search-index?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return Transform(resp.Hits.Hits, a.credibility), nil
}

// Transform maps search hits onto canonical events. The hit id doubles as
// the dedup key; filings are point-in-time and never revised in place.
func Transform(hits []Hit, credibility float64) []*event.Event {
	var out []*event.Event
	for _, h := range hits {
		if h.ID == "" || h.Source.FileDate == "" {
			log.Warn().Str("id", h.ID).Msg("edgar hit skipped")
			continue
		}
		ts, err := time.ParseInLocation("2006-01-02", h.Source.FileDate, time.UTC)
		if err != nil {
			log.Warn().Str("id", h.ID).Str("date", h.Source.FileDate).Msg("edgar hit date skipped")
			continue
		}

		filer := "unknown filer"
		if len(h.Source.DisplayNames) > 0 {
			filer = h.Source.DisplayNames[0]
		}
		fileType := h.Source.FileType
		if fileType == "" && len(h.Source.RootForms) > 0 {
			fileType = h.Source.RootForms[0]
		}

		category, sub := event.Classify(event.SourceSECEdgar, filer+" "+fileType)
		ev := &event.Event{
			ID:                event.DeriveID(event.SourceSECEdgar, h.ID),
			Source:            event.SourceSECEdgar,
			SourceEventID:     h.ID,
			EventTimestamp:    ts,
			Category:          category,
			Subcategory:       sub,
			EventType:         "FILING_MENTION",
			Title:             fmt.Sprintf("%s filing by %s mentions Venezuela", fileType, filer),
			SourceURL:         filingURL(h.ID),
			CountryCode:       "VE",
			Direction:         event.DirectionNeutral,
			NumSources:        1,
			SourceCredibility: credibility,
			Confidence:        event.ComputeConfidence(1, credibility),
			Metadata: map[string]any{
				"filer":     filer,
				"file_type": fileType,
			},
		}
		if filer != "unknown filer" {
			corp := event.Actor{Name: filer, Type: event.ActorCorporate}
			ev.Actor1 = &corp
		}
		out = append(out, ev)
	}
	return out
}

// filingURL rebuilds the archive URL from the accession:document hit id.
func filingURL(id string) string {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	accession := strings.ReplaceAll(parts[0], "-", "")
	return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s", accession, parts[1])
}
