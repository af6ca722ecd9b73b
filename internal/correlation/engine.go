// Package correlation computes pairwise correlations between dated series
// with Bonferroni multiple-comparisons correction.
package correlation

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Methods supported by the engine.
const (
	MethodPearson  = "pearson"
	MethodSpearman = "spearman"
)

// Point is one dated observation.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is a named dated series.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Pair is one significant correlation.
type Pair struct {
	VariableA string   `json:"variable_a"`
	VariableB string   `json:"variable_b"`
	R         float64  `json:"r"`
	P         float64  `json:"p"`
	N         int      `json:"n"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Result summarizes a correlation run.
type Result struct {
	Correlations        []Pair  `json:"correlations"`
	NTested             int     `json:"n_tested"`
	NSignificant        int     `json:"n_significant"`
	BonferroniThreshold float64 `json:"bonferroni_threshold"`
	Method              string  `json:"method"`
}

// Params controls a run.
type Params struct {
	Method        string  `json:"method"`
	Alpha         float64 `json:"alpha"`
	MinEffectSize float64 `json:"min_effect_size"`
}

// Compute inner-joins all series on date, evaluates every unordered pair and
// reports those clearing both the Bonferroni-corrected p threshold and the
// minimum effect size. Non-stationary inputs flag the pair's warnings.
func Compute(series []Series, params Params) (Result, error) {
	if params.Method == "" {
		params.Method = MethodPearson
	}
	if params.Method != MethodPearson && params.Method != MethodSpearman {
		return Result{}, fmt.Errorf("unsupported correlation method %q", params.Method)
	}
	if params.Alpha <= 0 {
		params.Alpha = 0.05
	}

	k := len(series)
	nTests := k * (k - 1) / 2
	res := Result{
		Correlations: []Pair{},
		NTested:      nTests,
		Method:       params.Method,
	}
	if nTests == 0 {
		return res, nil
	}
	res.BonferroniThreshold = params.Alpha / float64(nTests)

	joined := innerJoin(series)
	stationary := make([]bool, k)
	for i := range series {
		stationary[i] = isStationary(joined[i])
	}

	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			x, y := joined[i], joined[j]
			if len(x) < 3 {
				continue
			}
			var r float64
			if params.Method == MethodSpearman {
				r = pearson(ranks(x), ranks(y))
			} else {
				r = pearson(x, y)
			}
			p := pValue(r, len(x))
			if p > res.BonferroniThreshold || math.Abs(r) < params.MinEffectSize {
				continue
			}
			pair := Pair{
				VariableA: series[i].Name,
				VariableB: series[j].Name,
				R:         r,
				P:         p,
				N:         len(x),
			}
			if !stationary[i] {
				pair.Warnings = append(pair.Warnings, fmt.Sprintf("%s appears non-stationary", series[i].Name))
			}
			if !stationary[j] {
				pair.Warnings = append(pair.Warnings, fmt.Sprintf("%s appears non-stationary", series[j].Name))
			}
			res.Correlations = append(res.Correlations, pair)
		}
	}
	res.NSignificant = len(res.Correlations)
	return res, nil
}

// innerJoin aligns all series on their shared dates, dropping any date
// missing from at least one series. Output slices are date-ordered.
func innerJoin(series []Series) [][]float64 {
	counts := make(map[time.Time]int)
	values := make([]map[time.Time]float64, len(series))
	for i, s := range series {
		values[i] = make(map[time.Time]float64, len(s.Points))
		for _, p := range s.Points {
			d := p.Date.UTC().Truncate(24 * time.Hour)
			if _, dup := values[i][d]; !dup {
				values[i][d] = p.Value
				counts[d]++
			}
		}
	}
	var shared []time.Time
	for d, n := range counts {
		if n == len(series) {
			shared = append(shared, d)
		}
	}
	sort.Slice(shared, func(a, b int) bool { return shared[a].Before(shared[b]) })

	out := make([][]float64, len(series))
	for i := range series {
		out[i] = make([]float64, len(shared))
		for j, d := range shared {
			out[i][j] = values[i][d]
		}
	}
	return out
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// ranks returns fractional ranks (ties averaged) for Spearman.
func ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	out := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// pValue approximates the two-sided p for r under the t distribution with
// n-2 degrees of freedom, using the normal approximation on the t statistic.
func pValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	// Two-sided tail of the standard normal; conservative for small n.
	return 2 * (1 - normalCDF(math.Abs(t)))
}

func normalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// isStationary runs a cheap split-half drift test: a series is flagged when
// either half's mean shifts by more than one pooled standard deviation or
// the halves' variances differ by more than 4x.
func isStationary(x []float64) bool {
	if len(x) < 8 {
		return true // too short to judge
	}
	mid := len(x) / 2
	m1, v1 := meanVar(x[:mid])
	m2, v2 := meanVar(x[mid:])
	pooled := math.Sqrt((v1 + v2) / 2)
	if pooled == 0 {
		return m1 == m2
	}
	if math.Abs(m2-m1) > pooled {
		return false
	}
	lo, hi := math.Min(v1, v2), math.Max(v1, v2)
	if lo == 0 {
		return hi == 0
	}
	return hi/lo <= 4
}

func meanVar(x []float64) (float64, float64) {
	n := float64(len(x))
	var sum float64
	for _, v := range x {
		sum += v
	}
	mean := sum / n
	var v float64
	for _, xi := range x {
		v += (xi - mean) * (xi - mean)
	}
	return mean, v / n
}
