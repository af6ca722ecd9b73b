// Package comtrade ingests bilateral trade flows from the UN Comtrade API.
package comtrade

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/persistence"
)

const (
	defaultBaseURL = "https://comtradeapi.un.org/data/v1/get"
	// reporterCode is Venezuela's UN country code.
	reporterCode = "862"
	periodLayout = "200601"
)

// watchedCommodities are the HS chapters monitored for flow swings.
var watchedCommodities = []string{"27", "71", "30", "10"}

// Record is one Comtrade flow row.
type Record struct {
	Period        string  `json:"period"` // YYYYMM
	ReporterCode  string  `json:"reporterCode"`
	PartnerCode   string  `json:"partnerCode"`
	PartnerDesc   string  `json:"partnerDesc"`
	CommodityCode string  `json:"cmdCode"`
	FlowDesc      string  `json:"flowDesc"` // Import | Export
	PrimaryValue  float64 `json:"primaryValue"`
}

type response struct {
	Data []Record `json:"data"`
}

// Adapter pulls monthly flows and emits one event per (period, commodity,
// flow) aggregate, with the period-over-period swing as magnitude.
type Adapter struct {
	baseURL     string
	apiKey      string
	client      *adapter.HTTPClient
	flows       persistence.TradeFlowStore
	credibility float64
}

// New builds the adapter. A nil flow store disables persistence.
func New(baseURL, apiKey string, flows persistence.TradeFlowStore, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		baseURL:     baseURL,
		apiKey:      apiKey,
		client:      adapter.NewHTTPClient(timeout),
		flows:       flows,
		credibility: 0.9,
	}
}

func (a *Adapter) Source() string { return event.SourceUNComtrade }

func (a *Adapter) Schedule() adapter.Schedule {
	// Comtrade publishes monthly with a lag; a daily poll catches revisions.
	return adapter.Schedule{Frequency: 24 * time.Hour, DefaultLookback: 90 * 24 * time.Hour}
}

// Fetch pulls flows for periods overlapping [start, end).
func (a *Adapter) Fetch(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	q := url.Values{}
	q.Set("reporterCode", reporterCode)
	q.Set("cmdCode", strings.Join(watchedCommodities, ","))
	q.Set("period", periodRange(start, end))
	if a.apiKey != "" {
		q.Set("subscription-key", a.apiKey)
	}

	var resp response
	if err := a.client.GetJSON(ctx, a.baseURL+"/C/M/HS?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	if a.flows != nil {
		a.persistFlows(ctx, resp.Data)
	}
	return Transform(resp.Data, a.credibility), nil
}

// Transform aggregates rows per (period, commodity, flow) and emits one
// event per aggregate with the swing against the previous period.
func Transform(records []Record, credibility float64) []*event.Event {
	type key struct{ period, commodity, flow string }
	totals := make(map[key]float64)
	order := make([]key, 0)
	for _, rec := range records {
		if rec.Period == "" || rec.CommodityCode == "" {
			log.Warn().Str("period", rec.Period).Str("cmd", rec.CommodityCode).Msg("comtrade record skipped")
			continue
		}
		k := key{rec.Period, rec.CommodityCode, strings.ToLower(rec.FlowDesc)}
		if _, seen := totals[k]; !seen {
			order = append(order, k)
		}
		totals[k] += rec.PrimaryValue
	}

	var out []*event.Event
	for _, k := range order {
		ts, err := time.ParseInLocation(periodLayout, k.period, time.UTC)
		if err != nil {
			log.Warn().Str("period", k.period).Msg("comtrade period skipped")
			continue
		}
		value := totals[k]
		category, sub := event.Classify(event.SourceUNComtrade, k.commodity)

		var change *float64
		prevKey := key{previousPeriod(k.period), k.commodity, k.flow}
		if prev, ok := totals[prevKey]; ok && prev != 0 {
			c := (value - prev) / prev * 100
			change = &c
		}

		sourceEventID := fmt.Sprintf("%s/%s/%s", k.period, k.commodity, k.flow)
		ev := &event.Event{
			ID:                event.DeriveID(event.SourceUNComtrade, sourceEventID),
			Source:            event.SourceUNComtrade,
			SourceEventID:     sourceEventID,
			EventTimestamp:    ts,
			Category:          category,
			Subcategory:       sub,
			EventType:         "TRADE_FLOW",
			Title:             fmt.Sprintf("HS %s %s: %.0f USD in %s", k.commodity, k.flow, value, k.period),
			CountryCode:       "VE",
			Direction:         event.DirectionNeutral,
			NumSources:        1,
			SourceCredibility: credibility,
			Confidence:        event.ComputeConfidence(1, credibility),
			Commodities:       []string{commodityTag(k.commodity)},
			Metadata:          map[string]any{"period": k.period, "value_usd": value, "flow": k.flow},
		}
		if change != nil {
			ev.MagnitudeRaw = change
			ev.MagnitudeUnit = event.UnitPercentChange
			ev.MagnitudeNorm = event.Float64(event.NormalizeMagnitude(*change, event.UnitPercentChange))
			// Falling exports and rising import dependence both read negative.
			ev.Direction = event.DirectionFromSigned(*change, k.flow == "import")
		}
		out = append(out, ev)
	}
	return out
}

func (a *Adapter) persistFlows(ctx context.Context, records []Record) {
	for _, rec := range records {
		if rec.Period == "" || rec.CommodityCode == "" {
			continue
		}
		f := persistence.TradeFlow{
			Period:        rec.Period,
			ReporterCode:  rec.ReporterCode,
			PartnerCode:   rec.PartnerCode,
			CommodityCode: rec.CommodityCode,
			TradeFlow:     strings.ToLower(rec.FlowDesc),
			ValueUSD:      rec.PrimaryValue,
			RecordedAt:    time.Now().UTC(),
		}
		if err := a.flows.Upsert(ctx, f); err != nil {
			log.Warn().Err(err).Str("period", rec.Period).Msg("trade flow upsert failed")
		}
	}
}

// commodityTag names the HS chapters the severity rules care about.
func commodityTag(hs2 string) string {
	switch hs2 {
	case "27":
		return "OIL"
	case "71":
		return "GOLD"
	case "30":
		return "MEDICINE"
	case "10":
		return "GRAIN"
	default:
		return "HS" + hs2
	}
}

func periodRange(start, end time.Time) string {
	var periods []string
	for t := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !t.After(end); t = t.AddDate(0, 1, 0) {
		periods = append(periods, t.Format(periodLayout))
	}
	return strings.Join(periods, ",")
}

func previousPeriod(period string) string {
	t, err := time.ParseInLocation(periodLayout, period, time.UTC)
	if err != nil {
		return ""
	}
	return t.AddDate(0, -1, 0).Format(periodLayout)
}
