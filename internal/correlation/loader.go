package correlation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/venwatch/venwatch/internal/persistence"
)

// Variable kinds understood by the loader. A variable is "<kind>:<name>":
// indicator:DCOILWTICO, event_type:PROTEST, entity:<canonical-id>.
const (
	VarIndicator = "indicator"
	VarEventType = "event_type"
	VarEntity    = "entity"
)

// Loader resolves variable names to dated series.
type Loader struct {
	events     persistence.EventStore
	entities   persistence.EntityStore
	indicators persistence.IndicatorStore
}

func NewLoader(events persistence.EventStore, entities persistence.EntityStore, indicators persistence.IndicatorStore) *Loader {
	return &Loader{events: events, entities: entities, indicators: indicators}
}

// LoadSeries resolves each variable over [from, to). Variables that resolve
// to no points still appear with an empty series; the inner join in Compute
// then yields an empty result rather than an error.
func (l *Loader) LoadSeries(ctx context.Context, variables []string, from, to time.Time) ([]Series, error) {
	out := make([]Series, 0, len(variables))
	for _, v := range variables {
		kind, name, ok := strings.Cut(v, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("variable %q: want <kind>:<name>", v)
		}
		var (
			points []Point
			err    error
		)
		switch kind {
		case VarIndicator:
			points, err = l.indicatorSeries(ctx, name, from, to)
		case VarEventType:
			points, err = l.countSeries(func() (map[time.Time]int, error) {
				return l.events.DailyTypeCounts(ctx, name, from, to)
			})
		case VarEntity:
			points, err = l.countSeries(func() (map[time.Time]int, error) {
				return l.entities.DailyMentionCounts(ctx, name, from, to)
			})
		default:
			return nil, fmt.Errorf("variable %q: unknown kind %q", v, kind)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", v, err)
		}
		out = append(out, Series{Name: v, Points: points})
	}
	return out, nil
}

func (l *Loader) indicatorSeries(ctx context.Context, seriesID string, from, to time.Time) ([]Point, error) {
	rows, err := l.indicators.Range(ctx, seriesID, from, to)
	if err != nil {
		return nil, err
	}
	points := make([]Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, Point{Date: r.Date.UTC().Truncate(24 * time.Hour), Value: r.Value})
	}
	sortPoints(points)
	return points, nil
}

func (l *Loader) countSeries(fetch func() (map[time.Time]int, error)) ([]Point, error) {
	counts, err := fetch()
	if err != nil {
		return nil, err
	}
	points := make([]Point, 0, len(counts))
	for day, n := range counts {
		points = append(points, Point{Date: day.UTC().Truncate(24 * time.Hour), Value: float64(n)})
	}
	sortPoints(points)
	return points, nil
}

func sortPoints(points []Point) {
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
}
