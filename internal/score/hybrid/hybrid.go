// Package hybrid blends the deterministic quantitative score with the LLM
// qualitative risk score and derives SEV1-SEV5 severity bands.
package hybrid

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/event"
)

// Scoring methods recorded on the event so consumers can tell a true blend
// from an LLM-only fallback.
const (
	MethodHybrid  = "hybrid"
	MethodLLMOnly = "llm_only"
)

// Weights controls the quant/LLM blend. Must sum to 1.0.
type Weights struct {
	Quant float64 `yaml:"quant"`
	LLM   float64 `yaml:"llm"`
}

// DefaultWeights favors the model: the quantitative signals are a prior, the
// per-event analysis carries the specifics.
func DefaultWeights() Weights {
	return Weights{Quant: 0.3, LLM: 0.7}
}

// Result is the blended outcome.
type Result struct {
	Score    float64        `json:"score"` // [0,100]
	Severity event.Severity `json:"severity"`
	Method   string         `json:"scoring_method"`
}

// Blender combines quant and LLM risk under normalized weights.
type Blender struct {
	weights Weights
}

// New builds a Blender, renormalizing (and warning) on a bad weight sum.
func New(w Weights) *Blender {
	sum := w.Quant + w.LLM
	if math.Abs(sum-1.0) > 1e-3 {
		log.Warn().Float64("sum", sum).Msg("hybrid weights do not sum to 1.0, renormalizing")
		if sum > 0 {
			w.Quant /= sum
			w.LLM /= sum
		} else {
			w = DefaultWeights()
		}
	}
	return &Blender{weights: w}
}

// Blend combines a quantitative score (quantOK=false when no source metadata
// was available or the scorer failed) with the LLM risk in [0,1].
func (b *Blender) Blend(quantScore float64, quantOK bool, llmRisk float64) Result {
	llm100 := clamp(llmRisk*100, 0, 100)
	if !quantOK {
		return Result{
			Score:    llm100,
			Severity: SeverityForScore(llm100),
			Method:   MethodLLMOnly,
		}
	}
	h := clamp(b.weights.Quant*quantScore+b.weights.LLM*llm100, 0, 100)
	return Result{
		Score:    h,
		Severity: SeverityForScore(h),
		Method:   MethodHybrid,
	}
}

// SeverityForScore maps a hybrid score to its SEV band. Bands are inclusive
// on the lower side; 100 stays SEV5.
func SeverityForScore(h float64) event.Severity {
	switch {
	case h >= 80:
		return event.SeveritySEV5
	case h >= 60:
		return event.SeveritySEV4
	case h >= 40:
		return event.SeveritySEV3
	case h >= 20:
		return event.SeveritySEV2
	default:
		return event.SeveritySEV1
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
