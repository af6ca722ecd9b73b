package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/entity"
	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/llm"
	"github.com/venwatch/venwatch/internal/metrics"
	"github.com/venwatch/venwatch/internal/persistence"
	"github.com/venwatch/venwatch/internal/sanctions"
	"github.com/venwatch/venwatch/internal/score/aggregate"
	"github.com/venwatch/venwatch/internal/textmatch"
)

// nameDedupeThreshold collapses near-identical names from different
// extractors into one mention.
const nameDedupeThreshold = 0.85

// Trender abstracts the leaderboard so tests can drop it in without Redis.
type Trender interface {
	Record(ctx context.Context, entityID string, relevance float64, mentionedAt time.Time) error
}

// Extractor is the third stage: entity resolution, mention recording,
// trending updates, sanctions screening, and the dimensional risk composite.
type Extractor struct {
	events     persistence.EventStore
	entities   persistence.EntityStore
	matches    persistence.SanctionsStore
	resolver   *entity.Resolver
	screener   *sanctions.Screener
	trending   Trender
	aggregator *aggregate.Aggregator
}

// NewExtractor builds the extract stage. The screener and trending tracker
// are optional; a nil value disables that enrichment.
func NewExtractor(
	events persistence.EventStore,
	entities persistence.EntityStore,
	matchStore persistence.SanctionsStore,
	resolver *entity.Resolver,
	screener *sanctions.Screener,
	tr Trender,
	agg *aggregate.Aggregator,
) *Extractor {
	return &Extractor{
		events:     events,
		entities:   entities,
		matches:    matchStore,
		resolver:   resolver,
		screener:   screener,
		trending:   tr,
		aggregator: agg,
	}
}

// candidate is one raw name awaiting resolution.
type candidate struct {
	name       string
	entityType string
	relevance  float64
}

// HandleMessage is the extract-entities topic handler.
func (x *Extractor) HandleMessage(ctx context.Context, msg *bus.Message) error {
	timer := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(timer).Seconds()) }()

	var req ExtractRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.EventID == "" {
		log.Error().Err(err).Str("msg_id", msg.ID).Msg("undecodable extract request dropped")
		metrics.PipelineErrors.WithLabelValues("extract", "bad_input").Inc()
		return nil
	}
	if err := x.Extract(ctx, req.EventID); err != nil {
		metrics.PipelineErrors.WithLabelValues("extract", Class(err)).Inc()
		if errors.Is(err, ErrTransient) {
			return err
		}
		log.Error().Err(err).Str("event_id", req.EventID).Msg("extraction dropped")
	}
	return nil
}

// Extract resolves every entity named by the event, records mentions, and
// finalizes the composite risk score with the sanctions dimension.
func (x *Extractor) Extract(ctx context.Context, eventID string) error {
	ev, err := x.events.Get(ctx, eventID)
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("%w: event %s not found", ErrPermanent, eventID)
	}
	if err != nil {
		return fmt.Errorf("%w: load event: %v", ErrTransient, err)
	}

	analysis := storedAnalysis(ev)
	candidates := dedupeCandidates(collectCandidates(ev, analysis))

	exposure := 0.0
	for _, c := range candidates {
		res, err := x.resolver.Resolve(ctx, entity.Request{
			RawName:     c.name,
			Source:      ev.Source,
			EntityType:  c.entityType,
			CountryCode: countryOrDefault(ev),
			SeenAt:      ev.EventTimestamp,
		})
		if err != nil {
			return fmt.Errorf("%w: resolve %q: %v", ErrTransient, c.name, err)
		}
		mention := persistence.Mention{
			EventID:     ev.ID,
			CanonicalID: res.CanonicalID,
			RawName:     c.name,
			MatchScore:  res.Confidence,
			Relevance:   c.relevance,
			MentionedAt: ev.EventTimestamp,
		}
		if err := x.entities.InsertMention(ctx, mention); err != nil {
			return fmt.Errorf("%w: record mention: %v", ErrTransient, err)
		}
		if x.trending != nil {
			if err := x.trending.Record(ctx, res.CanonicalID, c.relevance, ev.EventTimestamp); err != nil {
				// Trending is reconciled nightly; a missed increment self-heals.
				log.Warn().Err(err).Str("entity_id", res.CanonicalID).Msg("trending update failed")
			}
		}
		hit, err := x.screenOne(ctx, ev, c)
		if err != nil {
			return err
		}
		if hit {
			exposure = 1.0
		}
	}

	if analysis != nil && x.aggregator != nil {
		x.finalizeRisk(ev, analysis, exposure)
		if err := x.events.UpdateEnrichment(ctx, ev); err != nil {
			return fmt.Errorf("%w: store composite risk: %v", ErrTransient, err)
		}
	}
	log.Info().Str("event_id", ev.ID).Int("entities", len(candidates)).
		Float64("sanctions_exposure", exposure).Msg("entities extracted")
	return nil
}

func (x *Extractor) screenOne(ctx context.Context, ev *event.Event, c candidate) (bool, error) {
	if x.screener == nil {
		return false, nil
	}
	found, err := x.screener.Screen(ctx, c.name)
	if err != nil {
		return false, fmt.Errorf("%w: sanctions screen %q: %v", ErrTransient, c.name, err)
	}
	for _, m := range found {
		rec := persistence.SanctionsMatch{
			EventID:    ev.ID,
			EntityName: c.name,
			EntityType: c.entityType,
			List:       m.List,
			MatchScore: m.Score,
			Payload:    map[string]any{"listed_name": m.ListedName, "programs": m.Programs},
			MatchedAt:  time.Now().UTC(),
		}
		if err := x.matches.Insert(ctx, rec); err != nil {
			return false, fmt.Errorf("%w: record sanctions match: %v", ErrTransient, err)
		}
		metrics.SanctionsMatches.Inc()
	}
	return len(found) > 0, nil
}

// finalizeRisk recomputes the composite with all five dimensions now known
// and keeps the stricter of the hybrid and dimensional scores.
func (x *Extractor) finalizeRisk(ev *event.Event, analysis *llm.Analysis, exposure float64) {
	dims := aggregate.Dimensions{
		LLMBaseRisk:     analysis.Risk.Score,
		Sanctions:       exposure,
		SentimentRisk:   aggregate.SentimentRisk(analysis.Sentiment.Score),
		UrgencyRisk:     aggregate.UrgencyRisk(analysis.Urgency),
		SupplyChainRisk: aggregate.SupplyChainRisk(analysis.Themes),
	}
	composite := x.aggregator.Composite(profileFor(ev), dims)
	if ev.RiskScore == nil || composite > *ev.RiskScore {
		ev.RiskScore = event.Float64(composite)
	}
	if ev.LLMAnalysis != nil {
		ev.LLMAnalysis["risk_dimensions"] = dims
		ev.LLMAnalysis["composite_risk"] = composite
	}
}

func profileFor(ev *event.Event) string {
	if ev.EventType != "" {
		return ev.EventType
	}
	return string(ev.Category)
}

func storedAnalysis(ev *event.Event) *llm.Analysis {
	if len(ev.LLMAnalysis) == 0 {
		return nil
	}
	a, err := llm.AnalysisFromMap(ev.LLMAnalysis)
	if err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("stored analysis undecodable")
		return nil
	}
	return a
}

// collectCandidates gathers names from the source actors and the model's
// extractions.
func collectCandidates(ev *event.Event, analysis *llm.Analysis) []candidate {
	var out []candidate
	for _, actor := range []*event.Actor{ev.Actor1, ev.Actor2} {
		if actor != nil && strings.TrimSpace(actor.Name) != "" {
			out = append(out, candidate{
				name:       actor.Name,
				entityType: actorEntityType(actor.Type),
				relevance:  0.9,
			})
		}
	}
	if analysis == nil {
		return out
	}
	for _, p := range analysis.Entities.People {
		out = append(out, candidate{name: p.Name, entityType: "person", relevance: p.Relevance})
	}
	for _, o := range analysis.Entities.Organizations {
		out = append(out, candidate{name: o.Name, entityType: "organization", relevance: o.Relevance})
	}
	for _, l := range analysis.Entities.Locations {
		out = append(out, candidate{name: l.Name, entityType: "location", relevance: l.Relevance})
	}
	return out
}

// dedupeCandidates drops empty names and collapses near-duplicates across
// extractors, keeping the higher-relevance surface form.
func dedupeCandidates(in []candidate) []candidate {
	var out []candidate
	for _, c := range in {
		c.name = strings.TrimSpace(c.name)
		if c.name == "" {
			continue
		}
		if c.relevance <= 0 {
			c.relevance = 0.5
		}
		merged := false
		for i, kept := range out {
			if kept.entityType != c.entityType {
				continue
			}
			if textmatch.JaroWinkler(strings.ToLower(kept.name), strings.ToLower(c.name)) >= nameDedupeThreshold {
				if c.relevance > kept.relevance {
					out[i] = c
				}
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, c)
		}
	}
	return out
}

func actorEntityType(t event.ActorType) string {
	switch t {
	case event.ActorGovernment, event.ActorMilitary:
		return "government"
	case event.ActorCorporate:
		return "organization"
	case event.ActorCivilian, event.ActorRebel:
		return "person"
	default:
		return "organization"
	}
}

func countryOrDefault(ev *event.Event) string {
	if ev.CountryCode != "" {
		return ev.CountryCode
	}
	return "VE"
}

// Register subscribes the three stage handlers on their topics under one
// consumer group.
func Register(ctx context.Context, b bus.EventBus, group string, in *Ingestor, an *Analyzer, ex *Extractor) error {
	if err := b.Subscribe(ctx, bus.TopicIngestEvent, group, in.HandleMessage); err != nil {
		return err
	}
	if err := b.Subscribe(ctx, bus.TopicAnalyzeEvent, group, an.HandleMessage); err != nil {
		return err
	}
	if err := b.Subscribe(ctx, bus.TopicAnalyzeCompat, group, an.HandleMessage); err != nil {
		return err
	}
	return b.Subscribe(ctx, bus.TopicExtractEntities, group, ex.HandleMessage)
}
