// Package pipeline wires the three processing stages behind the bus topics:
// ingest (validate, dedup, store), analyze (score and enrich) and extract
// (entities, trending, sanctions). Every stage is idempotent; the bus
// redelivers on transient failure.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/llm"
	"github.com/venwatch/venwatch/internal/metrics"
	"github.com/venwatch/venwatch/internal/persistence"
)

// urlDedupWindow bounds the lookback for URL-based duplicate detection.
const urlDedupWindow = 14 * 24 * time.Hour

// AnalyzeRequest is the analyze-event topic payload.
type AnalyzeRequest struct {
	EventID   string   `json:"event_id"`
	Tier      llm.Tier `json:"tier,omitempty"`
	Reanalyze bool     `json:"reanalyze,omitempty"`
}

// ExtractRequest is the extract-entities topic payload.
type ExtractRequest struct {
	EventID string `json:"event_id"`
}

// RunResult summarizes a batch ingest.
type RunResult struct {
	Created    int `json:"created"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

// Ingestor is the first stage: canonical validation, duplicate detection,
// storage, and hand-off to analysis.
type Ingestor struct {
	events persistence.EventStore
	bus    bus.EventBus
	tier   llm.Tier
}

// NewIngestor builds an Ingestor. Events hand off to analysis at the given
// default model tier.
func NewIngestor(events persistence.EventStore, b bus.EventBus, tier llm.Tier) *Ingestor {
	if tier == "" {
		tier = llm.TierFast
	}
	return &Ingestor{events: events, bus: b, tier: tier}
}

// HandleMessage is the ingest-event topic handler. The payload is one
// canonical event in JSON.
func (in *Ingestor) HandleMessage(ctx context.Context, msg *bus.Message) error {
	timer := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("ingest").Observe(time.Since(timer).Seconds()) }()

	var ev event.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		// Malformed payloads never improve on retry.
		log.Error().Err(err).Str("msg_id", msg.ID).Msg("undecodable ingest payload dropped")
		metrics.PipelineErrors.WithLabelValues("ingest", "bad_input").Inc()
		return nil
	}
	err := in.Ingest(ctx, &ev)
	switch {
	case err == nil, errors.Is(err, ErrDuplicateEvent):
		return nil
	case errors.Is(err, ErrBadInput):
		metrics.PipelineErrors.WithLabelValues("ingest", "bad_input").Inc()
		return nil
	default:
		metrics.PipelineErrors.WithLabelValues("ingest", Class(err)).Inc()
		return err
	}
}

// Ingest validates and stores one event, then requests analysis. Duplicate
// events return ErrDuplicateEvent without a store write.
func (in *Ingestor) Ingest(ctx context.Context, ev *event.Event) error {
	if ev.ID == "" && ev.Source != "" && ev.SourceEventID != "" {
		ev.ID = event.DeriveID(ev.Source, ev.SourceEventID)
	}
	if ev.IngestedAt.IsZero() {
		ev.IngestedAt = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		metrics.EventsRejected.WithLabelValues(ev.Source).Inc()
		return fmt.Errorf("%w: %v", ErrBadInput, err)
	}

	dup, err := in.isDuplicate(ctx, ev)
	if err != nil {
		return fmt.Errorf("%w: duplicate check: %v", ErrTransient, err)
	}
	if dup {
		metrics.EventsDuplicate.WithLabelValues(ev.Source).Inc()
		return ErrDuplicateEvent
	}

	// Deterministic P1-P4 priority, computed before any model involvement
	// so alerting never depends on the LLM path. Synthetic events arrive
	// with their priority already assigned.
	if ev.Severity == "" {
		priority, reason := event.ClassifySeverity(ev)
		ev.Severity = priority
		if ev.Metadata == nil {
			ev.Metadata = map[string]any{}
		}
		ev.Metadata["priority_reason"] = reason
	}

	if err := in.events.Upsert(ctx, ev); err != nil {
		return fmt.Errorf("%w: store event: %v", ErrTransient, err)
	}
	metrics.EventsIngested.WithLabelValues(ev.Source).Inc()

	payload, err := json.Marshal(AnalyzeRequest{EventID: ev.ID, Tier: in.tier})
	if err != nil {
		return fmt.Errorf("%w: marshal analyze request: %v", ErrPermanent, err)
	}
	if err := in.bus.Publish(ctx, bus.TopicAnalyzeEvent, ev.ID, payload); err != nil {
		// The event is stored; redelivery re-publishes without a second write.
		return fmt.Errorf("%w: publish analyze request: %v", ErrTransient, err)
	}
	log.Debug().Str("event_id", ev.ID).Str("source", ev.Source).Msg("event ingested")
	return nil
}

// IngestBatch runs Ingest over a slice, tallying outcomes. Bad input and
// duplicates do not abort the batch.
func (in *Ingestor) IngestBatch(ctx context.Context, events []*event.Event) RunResult {
	var res RunResult
	for _, ev := range events {
		err := in.Ingest(ctx, ev)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, ErrDuplicateEvent):
			res.Duplicates++
		case errors.Is(err, ErrBadInput):
			res.Skipped++
			log.Warn().Err(err).Str("source", ev.Source).Msg("event skipped")
		default:
			res.Failed++
			log.Error().Err(err).Str("event_id", ev.ID).Msg("event ingest failed")
		}
	}
	return res
}

func (in *Ingestor) isDuplicate(ctx context.Context, ev *event.Event) (bool, error) {
	exists, err := in.events.Exists(ctx, ev.ID)
	if err != nil || exists {
		return exists, err
	}
	if ev.SourceURL != "" {
		return in.events.ExistsByURL(ctx, ev.Source, ev.SourceURL, urlDedupWindow)
	}
	return false, nil
}
