package hybrid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/score/quant"
)

func TestBlend_HighRiskEvent(t *testing.T) {
	g := func(v float64) *float64 { return &v }
	scorer := quant.New(quant.DefaultWeights())
	quantScore, ok := scorer.Score(&quant.Metadata{
		GoldsteinScale: g(-8.5),
		AvgTone:        g(-6.2),
		Themes:         []string{"CRISIS", "PROTEST", "EPU_POLICY_UNCERTAINTY"},
		NumMentions:    12,
		NumSources:     8,
		NumArticles:    25,
	})
	assert.True(t, ok)
	assert.Greater(t, quantScore, 50.0)

	res := New(DefaultWeights()).Blend(quantScore, ok, 0.85)
	assert.Equal(t, MethodHybrid, res.Method)
	assert.InDelta(t, 0.3*quantScore+0.7*85, res.Score, 1e-9)
	assert.Contains(t, []event.Severity{event.SeveritySEV4, event.SeveritySEV5}, res.Severity)
}

func TestBlend_LLMOnlyFallback(t *testing.T) {
	res := New(DefaultWeights()).Blend(0, false, 0.85)
	assert.Equal(t, MethodLLMOnly, res.Method)
	assert.InDelta(t, 85.0, res.Score, 1e-9)
	assert.Equal(t, event.SeveritySEV5, res.Severity)
}

func TestSeverityForScore_BandsLowerInclusive(t *testing.T) {
	tests := []struct {
		score float64
		want  event.Severity
	}{
		{0, event.SeveritySEV1},
		{19.99, event.SeveritySEV1},
		{20, event.SeveritySEV2},
		{39.99, event.SeveritySEV2},
		{40, event.SeveritySEV3},
		{60, event.SeveritySEV4},
		{79.99, event.SeveritySEV4},
		{80, event.SeveritySEV5},
		{100, event.SeveritySEV5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityForScore(tt.score), "score %.2f", tt.score)
	}
}

func TestBlend_ClampsLLMRisk(t *testing.T) {
	res := New(DefaultWeights()).Blend(0, false, 1.7)
	assert.InDelta(t, 100, res.Score, 1e-9)

	res = New(DefaultWeights()).Blend(0, false, -0.5)
	assert.InDelta(t, 0, res.Score, 1e-9)
}

func TestNew_RenormalizesWeights(t *testing.T) {
	b := New(Weights{Quant: 1.0, LLM: 1.0})
	res := b.Blend(100, true, 1.0)
	assert.InDelta(t, 100, res.Score, 1e-9, "renormalized 0.5/0.5 blend of two maxima")
}
