package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/event"
)

// BusPublisher puts synthetic events on the ingest topic, where they flow
// through the same pipeline as any adapter event.
type BusPublisher struct {
	bus bus.EventBus
}

func NewBusPublisher(b bus.EventBus) *BusPublisher {
	return &BusPublisher{bus: b}
}

func (p *BusPublisher) PublishEvent(ctx context.Context, ev *event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}
	return p.bus.Publish(ctx, bus.TopicIngestEvent, ev.ID, payload)
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads the per-indicator rule table.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alert rules: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alert rules: %w", err)
	}
	for _, r := range f.Rules {
		if r.SeriesID == "" || r.Source == "" {
			return nil, fmt.Errorf("alert rule needs series_id and source, got %+v", r)
		}
	}
	return f.Rules, nil
}
