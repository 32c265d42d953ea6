// Package backtest summarizes closed signal positions into per-run
// performance metrics.
package backtest

import (
	"math"
	"sort"
)

// Metrics holds the risk and return statistics of one return series.
type Metrics struct {
	WinRate           float64
	Sharpe            float64
	Sortino           float64
	Calmar            float64
	MaxDrawdownPct    float64
	VaR95             float64
	ExpectedShortfall float64
}

// Compute derives the metric set from per-position percent returns, in
// close order. An empty series yields zero metrics.
func Compute(returnsPct []float64) Metrics {
	if len(returnsPct) == 0 {
		return Metrics{}
	}

	var m Metrics

	wins := 0
	for _, r := range returnsPct {
		if r > 0 {
			wins++
		}
	}
	m.WinRate = float64(wins) / float64(len(returnsPct))

	mean := meanOf(returnsPct)
	if sd := stddev(returnsPct, mean); sd > 0 {
		m.Sharpe = mean / sd
	}
	if dd := downsideDev(returnsPct); dd > 0 {
		m.Sortino = mean / dd
	}

	m.MaxDrawdownPct = maxDrawdownPct(returnsPct)
	if m.MaxDrawdownPct > 0 {
		total := compoundReturnPct(returnsPct)
		m.Calmar = total / m.MaxDrawdownPct
	}

	m.VaR95, m.ExpectedShortfall = tailRisk(returnsPct, 0.05)
	return m
}

func meanOf(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	ss := 0.0
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

// downsideDev is the root mean square of negative returns only, the
// denominator of the Sortino ratio.
func downsideDev(vals []float64) float64 {
	ss := 0.0
	for _, v := range vals {
		if v < 0 {
			ss += v * v
		}
	}
	return math.Sqrt(ss / float64(len(vals)))
}

// maxDrawdownPct walks the compounded equity curve and returns the largest
// peak-to-trough decline as a positive percentage.
func maxDrawdownPct(returnsPct []float64) float64 {
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returnsPct {
		equity *= 1 + r/100
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD * 100
}

// compoundReturnPct is the total compounded return of the series.
func compoundReturnPct(returnsPct []float64) float64 {
	equity := 1.0
	for _, r := range returnsPct {
		equity *= 1 + r/100
	}
	return (equity - 1) * 100
}

// tailRisk returns the q-quantile return (VaR) and the mean of returns at
// or below it (expected shortfall).
func tailRisk(returnsPct []float64, q float64) (float64, float64) {
	sorted := make([]float64, len(returnsPct))
	copy(sorted, returnsPct)
	sort.Float64s(sorted)

	idx := int(math.Floor(q * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	varQ := sorted[idx]

	sum, n := 0.0, 0
	for _, v := range sorted {
		if v <= varQ {
			sum += v
			n++
		}
	}
	if n == 0 {
		return varQ, varQ
	}
	return varQ, sum / float64(n)
}
