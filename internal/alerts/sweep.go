package alerts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/persistence"
)

// Sweep checks every rule against the two most recent stored points of its
// series. A series with fewer than two points is skipped; one rule's failure
// does not stop the sweep.
func (g *Generator) Sweep(ctx context.Context, store persistence.IndicatorStore) ([]*event.Event, error) {
	var fired []*event.Event
	var failed int
	for seriesID := range g.rules {
		points, err := store.Latest(ctx, seriesID, 2)
		if err != nil {
			log.Warn().Err(err).Str("series_id", seriesID).Msg("alert sweep load failed")
			failed++
			continue
		}
		if len(points) < 2 {
			continue
		}
		curr := Observation{SeriesID: seriesID, Date: points[0].Date, Value: points[0].Value}
		prev := Observation{SeriesID: seriesID, Date: points[1].Date, Value: points[1].Value}
		ev, err := g.Check(ctx, &prev, curr)
		if err != nil {
			log.Warn().Err(err).Str("series_id", seriesID).Msg("alert check failed")
			failed++
			continue
		}
		if ev != nil {
			fired = append(fired, ev)
		}
	}
	if failed > 0 {
		return fired, fmt.Errorf("%d series failed during alert sweep", failed)
	}
	return fired, nil
}
