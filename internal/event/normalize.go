package event

import "math"

// Normalization helpers shared by the adapters. Every downstream consumer
// sees magnitudes and tones on a common [0,1] scale so the composite risk
// engine can compare signals across sources.

// Clip01 clamps v to [0,1].
func Clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// NormalizeMagnitude maps a raw magnitude in its native unit onto [0,1].
// Per-unit maps:
//
//	goldstein       (-10..+10)  -> (x+10)/20
//	percent_change              -> min(|x|/50, 1)
//	interest_score  (0..100)    -> x/100
//	fatalities                  -> 1 - exp(-x/50)   (saturating)
//	usd                         -> log10(1+x)/12    (saturates near $1T)
//	percent                     -> min(|x|/100, 1)
func NormalizeMagnitude(raw float64, unit MagnitudeUnit) float64 {
	switch unit {
	case UnitGoldstein:
		return Clip01((raw + 10) / 20)
	case UnitPercentChange:
		return Clip01(math.Abs(raw) / 50)
	case UnitInterestScore:
		return Clip01(raw / 100)
	case UnitFatalities:
		if raw <= 0 {
			return 0
		}
		return Clip01(1 - math.Exp(-raw/50))
	case UnitUSD:
		if raw <= 0 {
			return 0
		}
		return Clip01(math.Log10(1+raw) / 12)
	case UnitPercent:
		return Clip01(math.Abs(raw) / 100)
	}
	return Clip01(raw)
}

// NormalizeTone maps a raw tone value onto [0,1] where 1 is the worst tone.
// loBad/hiGood give the source's native tone range; values beyond it clip.
func NormalizeTone(raw, loBad, hiGood float64) float64 {
	if hiGood == loBad {
		return 0.5
	}
	return Clip01((hiGood - raw) / (hiGood - loBad))
}

// directionDeadBand resolves near-zero signals to NEUTRAL.
const directionDeadBand = 0.05

// DirectionFromSigned derives a Direction from a signed signal, with
// badWhenUp flipping the semantics for indicators like inflation.
func DirectionFromSigned(x float64, badWhenUp bool) Direction {
	if math.Abs(x) <= directionDeadBand {
		return DirectionNeutral
	}
	positive := x > 0
	if badWhenUp {
		positive = !positive
	}
	if positive {
		return DirectionPositive
	}
	return DirectionNegative
}

// ComputeConfidence combines corroboration and source credibility:
// min(num_sources/10, 1) * credibility.
func ComputeConfidence(numSources int, credibility float64) float64 {
	if numSources < 1 {
		numSources = 1
	}
	return Clip01(math.Min(float64(numSources)/10, 1) * credibility)
}
