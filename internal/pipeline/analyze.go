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
	"github.com/venwatch/venwatch/internal/score/hybrid"
	"github.com/venwatch/venwatch/internal/score/quant"
)

// Analyzer is the second stage: deterministic scoring, model analysis, and
// the hybrid blend that sets the event's risk and severity.
type Analyzer struct {
	events  persistence.EventStore
	llm     *llm.Analyzer
	quant   *quant.Scorer
	blender *hybrid.Blender
	bus     bus.EventBus
}

// NewAnalyzer builds the analyze stage.
func NewAnalyzer(events persistence.EventStore, la *llm.Analyzer, qs *quant.Scorer, bl *hybrid.Blender, b bus.EventBus) *Analyzer {
	return &Analyzer{events: events, llm: la, quant: qs, blender: bl, bus: b}
}

// HandleMessage is the analyze-event topic handler.
func (a *Analyzer) HandleMessage(ctx context.Context, msg *bus.Message) error {
	timer := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("analyze").Observe(time.Since(timer).Seconds()) }()

	var req AnalyzeRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.EventID == "" {
		log.Error().Err(err).Str("msg_id", msg.ID).Msg("undecodable analyze request dropped")
		metrics.PipelineErrors.WithLabelValues("analyze", "bad_input").Inc()
		return nil
	}
	if err := a.Analyze(ctx, req); err != nil {
		metrics.PipelineErrors.WithLabelValues("analyze", Class(err)).Inc()
		if errors.Is(err, ErrTransient) {
			return err
		}
		log.Error().Err(err).Str("event_id", req.EventID).Msg("analysis dropped")
	}
	return nil
}

// Analyze enriches one stored event. Redelivered messages skip events whose
// analysis already landed unless the request forces reanalysis.
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) error {
	ev, err := a.events.Get(ctx, req.EventID)
	if errors.Is(err, persistence.ErrNotFound) {
		// Analysis of a never-stored event cannot succeed later either.
		return fmt.Errorf("%w: event %s not found", ErrPermanent, req.EventID)
	}
	if err != nil {
		return fmt.Errorf("%w: load event: %v", ErrTransient, err)
	}
	if len(ev.LLMAnalysis) > 0 && !req.Reanalyze {
		log.Debug().Str("event_id", ev.ID).Msg("analysis present, skipping")
		return a.requestExtraction(ctx, ev.ID)
	}

	quantScore, quantOK := a.quant.Score(quantMetadata(ev))

	cc := llm.CallContext{Source: ev.Source, EventType: ev.EventType, Timestamp: ev.EventTimestamp}
	if quantOK {
		qs := quantScore
		cc.QuantScore = &qs
	}
	tier := req.Tier
	if tier == "" {
		tier = llm.TierFast
	}
	analysis := a.llm.Analyze(ctx, ev.Title, ev.Content, cc, tier)
	outcome := "ok"
	if analysis.Fallback {
		outcome = "fallback"
	} else if analysis.CacheHit {
		outcome = "cache_hit"
	}
	metrics.LLMCalls.WithLabelValues(string(tier), outcome).Inc()

	res := a.blender.Blend(quantScore, quantOK, analysis.Risk.Score)

	if ev.Severity == "" {
		ev.Severity, _ = event.ClassifySeverity(ev)
	}
	score := res.Score
	if ev.Severity == event.SeverityP1 && score < 70 {
		// A deterministic P1 floors the blended risk; the model cannot
		// talk a coup down to routine.
		score = 70
	}

	ev.Sentiment = event.Float64(analysis.Sentiment.Score)
	ev.RiskScore = event.Float64(score)
	ev.Urgency = analysis.Urgency
	ev.Language = analysis.Language
	ev.Summary = analysis.Summary.Short
	if len(analysis.Themes) > 0 {
		ev.Themes = mergeThemes(ev.Themes, analysis.Themes)
	}
	stored, err := analysis.AsMap()
	if err != nil {
		return fmt.Errorf("%w: encode analysis: %v", ErrPermanent, err)
	}
	stored["scoring_method"] = res.Method
	stored["sev_band"] = string(hybrid.SeverityForScore(score))
	if quantOK {
		stored["quant_score"] = quantScore
	}
	ev.LLMAnalysis = stored

	if err := a.events.UpdateEnrichment(ctx, ev); err != nil {
		return fmt.Errorf("%w: store enrichment: %v", ErrTransient, err)
	}
	log.Info().Str("event_id", ev.ID).Float64("risk", score).
		Str("severity", string(ev.Severity)).Str("method", res.Method).Msg("event analyzed")

	return a.requestExtraction(ctx, ev.ID)
}

func (a *Analyzer) requestExtraction(ctx context.Context, eventID string) error {
	payload, err := json.Marshal(ExtractRequest{EventID: eventID})
	if err != nil {
		return fmt.Errorf("%w: marshal extract request: %v", ErrPermanent, err)
	}
	if err := a.bus.Publish(ctx, bus.TopicExtractEntities, eventID, payload); err != nil {
		return fmt.Errorf("%w: publish extract request: %v", ErrTransient, err)
	}
	return nil
}

// quantMetadata assembles scorer input from the event's structured fields.
// Returns nil when the event carries no quantitative signal at all.
func quantMetadata(ev *event.Event) *quant.Metadata {
	md := &quant.Metadata{
		Themes:     ev.Themes,
		NumSources: ev.NumSources,
	}
	hasSignal := len(ev.Themes) > 0
	if ev.MagnitudeRaw != nil && ev.MagnitudeUnit == event.UnitGoldstein {
		md.GoldsteinScale = ev.MagnitudeRaw
		hasSignal = true
	}
	if ev.ToneRaw != nil {
		md.AvgTone = ev.ToneRaw
		hasSignal = true
	}
	if n, ok := metadataInt(ev.Metadata, "num_mentions"); ok {
		md.NumMentions = n
		hasSignal = true
	}
	if n, ok := metadataInt(ev.Metadata, "num_articles"); ok {
		md.NumArticles = n
	}
	if !hasSignal {
		return nil
	}
	return md
}

func metadataInt(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func mergeThemes(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
