// Package comovement computes pairwise relationship statistics between
// aligned value series of one asset: correlation, directional sign
// agreement, and the lead-lag offset with the strongest cross-correlation.
package comovement

import (
	"fmt"
	"math"

	"regimelab/internal/domain"
)

// Config bounds one comovement computation.
type Config struct {
	// WindowBars is the number of trailing observations compared.
	WindowBars int

	// MaxLag is the largest offset (in bars, either direction) searched
	// for the best cross-correlation.
	MaxLag int
}

// DefaultConfig returns the production window and lag bounds.
func DefaultConfig() Config {
	return Config{WindowBars: 60, MaxLag: 5}
}

// Analyzer computes comovement stats over pairs of aligned series.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer with the given config.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Compare computes the stat row for one aligned pair. a and b must hold
// the same number of points; tsMs is the timestamp of the last point. The
// window is the trailing cfg.WindowBars points, or the whole series when
// shorter. At least three points are required.
func (an *Analyzer) Compare(assetID, tf string, tsMs int64, nameA string, a []float64, nameB string, b []float64) (*domain.ComovementStat, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("series %s and %s misaligned: %d vs %d", nameA, nameB, len(a), len(b))
	}
	if len(a) < 3 {
		return nil, fmt.Errorf("series %s/%s too short: %d points", nameA, nameB, len(a))
	}

	window := an.cfg.WindowBars
	if window <= 0 || window > len(a) {
		window = len(a)
	}
	wa := a[len(a)-window:]
	wb := b[len(b)-window:]

	bestLag, leadSeries := bestLag(wa, wb, an.cfg.MaxLag, nameA, nameB)

	return &domain.ComovementStat{
		AssetID:       assetID,
		Tf:            tf,
		TimestampMs:   tsMs,
		SeriesA:       nameA,
		SeriesB:       nameB,
		WindowBars:    window,
		Correlation:   Correlation(wa, wb),
		SignAgreement: SignAgreement(wa, wb),
		BestLag:       bestLag,
		LeadSeries:    leadSeries,
	}, nil
}

// Correlation returns the Pearson correlation of two equal-length series.
// Degenerate inputs (constant series, too short) yield 0.
func Correlation(x, y []float64) float64 {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	r := cov / math.Sqrt(varX*varY)
	// Clamp accumulated float error.
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}

// SignAgreement returns the fraction of bar-over-bar changes in which the
// two series moved in the same direction. Zero-change bars count as
// agreement only when both series were flat.
func SignAgreement(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	agree, total := 0, 0
	for i := 1; i < len(x); i++ {
		sx := sign(x[i] - x[i-1])
		sy := sign(y[i] - y[i-1])
		total++
		if sx == sy {
			agree++
		}
	}
	return float64(agree) / float64(total)
}

// bestLag searches offsets in [-maxLag, maxLag] for the strongest absolute
// correlation. A positive lag means nameA leads; negative means nameB
// leads; zero reports no leader.
func bestLag(a, b []float64, maxLag int, nameA, nameB string) (int, string) {
	if maxLag <= 0 {
		return 0, ""
	}
	best := 0
	bestAbs := math.Abs(Correlation(a, b))
	for lag := 1; lag <= maxLag; lag++ {
		if lag >= len(a) {
			break
		}
		// a shifted earlier: a[t] vs b[t+lag].
		if r := math.Abs(Correlation(a[:len(a)-lag], b[lag:])); r > bestAbs {
			bestAbs = r
			best = lag
		}
		// b shifted earlier: a[t+lag] vs b[t].
		if r := math.Abs(Correlation(a[lag:], b[:len(b)-lag])); r > bestAbs {
			bestAbs = r
			best = -lag
		}
	}
	switch {
	case best > 0:
		return best, nameA
	case best < 0:
		return best, nameB
	default:
		return 0, ""
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
