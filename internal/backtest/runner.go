package backtest

import (
	"time"

	"github.com/google/uuid"

	"regimelab/internal/domain"
)

// Summarize builds the persisted run row from the closed positions of one
// asset's replay. Open positions are excluded; only realized returns feed
// the metrics.
func Summarize(assetID, tf string, tier domain.FeatureTier, startedMs int64, positions []*domain.SignalPosition) *domain.BacktestRun {
	var returns []float64
	for _, p := range positions {
		if p.State != domain.PositionClosed || p.PnlPct == nil {
			continue
		}
		returns = append(returns, *p.PnlPct)
	}

	m := Compute(returns)
	return &domain.BacktestRun{
		RunID:             uuid.NewString(),
		AssetID:           assetID,
		Tf:                tf,
		StartedMs:         startedMs,
		FinishedMs:        time.Now().UnixMilli(),
		FeatureTier:       tier,
		TotalPositions:    len(returns),
		WinRate:           m.WinRate,
		Sharpe:            m.Sharpe,
		Sortino:           m.Sortino,
		Calmar:            m.Calmar,
		MaxDrawdownPct:    m.MaxDrawdownPct,
		VaR95:             m.VaR95,
		ExpectedShortfall: m.ExpectedShortfall,
	}
}
