package domain

// BacktestRun holds performance metrics for one completed backtest run over
// the full realized position sequence. One row per run_id, immutable once
// written (uniqueness enforced by the run store).
type BacktestRun struct {
	RunID       string // uuid
	AssetID     string
	Tf          string
	StartedMs   int64
	FinishedMs  int64
	FeatureTier FeatureTier

	TotalPositions int
	WinRate        float64

	Sharpe            float64
	Sortino           float64
	Calmar            float64
	MaxDrawdownPct    float64
	VaR95             float64 // 5th percentile of per-position returns
	ExpectedShortfall float64 // mean return below VaR95
}
