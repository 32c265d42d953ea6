// Package regime classifies bars into hierarchical market-regime labels
// and resolves the enabled layers into one composite regime key with an
// attached trading policy.
package regime

import (
	"fmt"
	"math"
	"sort"

	"regimelab/internal/domain"
)

// Trend axis values.
const (
	TrendUp       = "Up"
	TrendDown     = "Down"
	TrendSideways = "Sideways"
)

// Volatility tier values.
const (
	VolLow    = "Low"
	VolNormal = "Normal"
	VolHigh   = "High"
)

// Range tier values.
const (
	RangeNormal = "Normal"
	RangeWide   = "Wide"
)

// ClassifierConfig holds the thresholds for one layer's label axes.
type ClassifierConfig struct {
	// TrendThreshold is the minimum |d1|/ema slope magnitude for a
	// directional trend; below it the bar is Sideways.
	TrendThreshold float64

	// VolWindow is the rolling window (bars) for return volatility;
	// VolPercentileWindow is the trailing history the current volatility
	// is ranked against. Below/above the percentile cutoffs maps to
	// Low/High.
	VolWindow           int
	VolPercentileWindow int
	VolLowPct           float64
	VolHighPct          float64

	// ATRPeriod is the true-range averaging window; RangeWideRatio is the
	// ATR-to-rolling-average ratio above which the bar is Wide.
	ATRPeriod      int
	RangeWindow    int
	RangeWideRatio float64
}

// DefaultClassifierConfig returns the thresholds used in production.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		TrendThreshold:      0.0005,
		VolWindow:           20,
		VolPercentileWindow: 120,
		VolLowPct:           0.30,
		VolHighPct:          0.70,
		ATRPeriod:           14,
		RangeWindow:         60,
		RangeWideRatio:      1.5,
	}
}

// Classifier computes per-bar regime labels for one layer from aligned bar
// and EMA series.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// LabelSeries returns one "{trend}-{vol}-{range}" label per bar. bars and
// emas must be aligned one-to-one on timestamp (the layer's own series).
// Warm-up bars default the unfilled axes to their Normal tier so a label is
// always defined.
func (c *Classifier) LabelSeries(bars []domain.Bar, emas []*domain.EmaObservation) ([]string, error) {
	if len(bars) != len(emas) {
		return nil, fmt.Errorf("bars and ema series misaligned: %d vs %d", len(bars), len(emas))
	}

	vols := rollingVolatility(bars, c.cfg.VolWindow)
	atrs := rollingATR(bars, c.cfg.ATRPeriod)

	labels := make([]string, len(bars))
	for i := range bars {
		trend := c.trendLabel(emas[i])
		vol := c.volLabel(vols, i)
		rng := c.rangeLabel(atrs, i)
		labels[i] = trend + "-" + vol + "-" + rng
	}
	return labels, nil
}

// trendLabel derives the direction axis from EMA slope sign and magnitude.
func (c *Classifier) trendLabel(obs *domain.EmaObservation) string {
	if obs == nil || obs.D1 == nil || obs.Ema == 0 {
		return TrendSideways
	}
	slope := *obs.D1 / obs.Ema
	switch {
	case slope >= c.cfg.TrendThreshold:
		return TrendUp
	case slope <= -c.cfg.TrendThreshold:
		return TrendDown
	default:
		return TrendSideways
	}
}

// volLabel ranks the current rolling volatility against its trailing window.
func (c *Classifier) volLabel(vols []float64, i int) string {
	if math.IsNaN(vols[i]) {
		return VolNormal
	}
	start := i - c.cfg.VolPercentileWindow + 1
	if start < 0 {
		start = 0
	}
	var hist []float64
	for j := start; j <= i; j++ {
		if !math.IsNaN(vols[j]) {
			hist = append(hist, vols[j])
		}
	}
	if len(hist) < 2 {
		return VolNormal
	}
	rank := percentileRank(hist, vols[i])
	switch {
	case rank <= c.cfg.VolLowPct:
		return VolLow
	case rank >= c.cfg.VolHighPct:
		return VolHigh
	default:
		return VolNormal
	}
}

// rangeLabel compares current ATR against its own rolling average.
func (c *Classifier) rangeLabel(atrs []float64, i int) string {
	if math.IsNaN(atrs[i]) {
		return RangeNormal
	}
	start := i - c.cfg.RangeWindow + 1
	if start < 0 {
		start = 0
	}
	sum, n := 0.0, 0
	for j := start; j <= i; j++ {
		if !math.IsNaN(atrs[j]) {
			sum += atrs[j]
			n++
		}
	}
	if n < 2 || sum == 0 {
		return RangeNormal
	}
	avg := sum / float64(n)
	if atrs[i]/avg > c.cfg.RangeWideRatio {
		return RangeWide
	}
	return RangeNormal
}

// rollingVolatility computes the rolling standard deviation of close-to-close
// returns. NaN until the window fills.
func rollingVolatility(bars []domain.Bar, window int) []float64 {
	out := make([]float64, len(bars))
	returns := make([]float64, len(bars))
	for i := range bars {
		out[i] = math.NaN()
		if i > 0 && bars[i-1].Close != 0 {
			returns[i] = bars[i].Close/bars[i-1].Close - 1
		}
	}
	for i := window; i < len(bars); i++ {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += returns[j]
		}
		mean := sum / float64(window)
		ss := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := returns[j] - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// rollingATR computes a simple moving average of the true range.
// NaN until the period fills.
func rollingATR(bars []domain.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	trs := make([]float64, len(bars))
	for i := range bars {
		out[i] = math.NaN()
		if i == 0 {
			trs[i] = bars[i].High - bars[i].Low
			continue
		}
		prevClose := bars[i-1].Close
		tr := bars[i].High - bars[i].Low
		if hc := math.Abs(bars[i].High - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(bars[i].Low - prevClose); lc > tr {
			tr = lc
		}
		trs[i] = tr
	}
	for i := period - 1; i < len(bars); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += trs[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// percentileRank returns the fraction of values <= v.
func percentileRank(values []float64, v float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := sort.SearchFloat64s(sorted, v)
	// Count ties as well.
	for n < len(sorted) && sorted[n] <= v {
		n++
	}
	return float64(n) / float64(len(sorted))
}

// AllLabels enumerates every label the three axes can produce.
func AllLabels() []string {
	var out []string
	for _, t := range []string{TrendUp, TrendDown, TrendSideways} {
		for _, v := range []string{VolLow, VolNormal, VolHigh} {
			for _, r := range []string{RangeNormal, RangeWide} {
				out = append(out, t+"-"+v+"-"+r)
			}
		}
	}
	return out
}
