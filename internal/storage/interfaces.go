package storage

import (
	"context"

	"regimelab/internal/domain"
)

// BarStore provides access to bars storage.
type BarStore interface {
	// InsertBulk adds bars keyed by (asset_id, tf, timestamp_ms). Rows whose
	// key already exists are skipped, never overwritten. Returns the number
	// of rows actually inserted.
	InsertBulk(ctx context.Context, bars []*domain.Bar) (int, error)

	// GetByAsset retrieves all bars for an asset and timeframe, ordered by timestamp ASC.
	GetByAsset(ctx context.Context, assetID, tf string) ([]*domain.Bar, error)

	// GetByTimeRange retrieves bars for an asset/timeframe within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, assetID, tf string, start, end int64) ([]*domain.Bar, error)

	// LastTimestamp returns the newest bar timestamp for an asset/timeframe.
	// Returns ErrNotFound when no bars exist.
	LastTimestamp(ctx context.Context, assetID, tf string) (int64, error)
}

// EmaStore provides access to ema_observations storage.
type EmaStore interface {
	// InsertBulk adds observations keyed by (asset_id, tf, period,
	// alignment_source, timestamp_ms). Rows whose key already exists are
	// skipped, so refreshes from different alignment sources union rather
	// than overwrite. Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, obs []*domain.EmaObservation) (int, error)

	// GetSeries retrieves one (asset, tf, period, source) series ordered by timestamp ASC.
	GetSeries(ctx context.Context, assetID, tf string, period int, source domain.AlignmentSource) ([]*domain.EmaObservation, error)

	// GetByTimeRange retrieves one series within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, assetID, tf string, period int, source domain.AlignmentSource, start, end int64) ([]*domain.EmaObservation, error)
}

// RegimeStore provides access to regimes storage.
type RegimeStore interface {
	// InsertBulk adds records keyed by (asset_id, tf, feature_tier,
	// timestamp_ms); existing keys are skipped. Returns the number inserted.
	InsertBulk(ctx context.Context, recs []*domain.RegimeRecord) (int, error)

	// GetByAsset retrieves all records for an asset/timeframe/tier, ordered by timestamp ASC.
	GetByAsset(ctx context.Context, assetID, tf string, tier domain.FeatureTier) ([]*domain.RegimeRecord, error)

	// GetAt retrieves the record in force at a timestamp (newest record with
	// timestamp_ms <= ts). Returns ErrNotFound if none exists yet.
	GetAt(ctx context.Context, assetID, tf string, tier domain.FeatureTier, ts int64) (*domain.RegimeRecord, error)
}

// FlipStore provides access to regime_flips storage.
type FlipStore interface {
	// InsertBulk adds flips keyed by (asset_id, tf, layer, timestamp_ms);
	// existing keys are skipped. Returns the number inserted.
	InsertBulk(ctx context.Context, flips []*domain.RegimeFlip) (int, error)

	// GetByAsset retrieves all flips for an asset/timeframe, ordered by timestamp ASC.
	GetByAsset(ctx context.Context, assetID, tf string) ([]*domain.RegimeFlip, error)

	// GetByLayer retrieves flips for one layer, ordered by timestamp ASC.
	GetByLayer(ctx context.Context, assetID, tf string, layer domain.RegimeLayer) ([]*domain.RegimeFlip, error)
}

// ComovementStore provides access to comovement_stats storage.
type ComovementStore interface {
	// InsertBulk adds stats keyed by (asset_id, tf, series_a, series_b,
	// timestamp_ms); existing keys are skipped. Returns the number inserted.
	InsertBulk(ctx context.Context, stats []*domain.ComovementStat) (int, error)

	// GetByAsset retrieves all stats for an asset/timeframe, ordered by timestamp ASC.
	GetByAsset(ctx context.Context, assetID, tf string) ([]*domain.ComovementStat, error)

	// GetByPair retrieves stats for one series pair, ordered by timestamp ASC.
	GetByPair(ctx context.Context, assetID, tf, seriesA, seriesB string) ([]*domain.ComovementStat, error)
}

// PositionStore provides access to signal_positions storage.
type PositionStore interface {
	// Insert adds a new open position. Returns ErrDuplicateKey if
	// (asset_id, entry_ts_ms, signal_id) exists.
	Insert(ctx context.Context, p *domain.SignalPosition) error

	// Close marks a position closed with its exit fields. Returns
	// ErrNotFound for an unknown position and ErrInvalidInput when the
	// position is already closed; a position is mutated exactly once.
	Close(ctx context.Context, assetID string, entryTsMs int64, signalID string, exitTsMs int64, exitPrice, pnlPct float64) error

	// GetByAsset retrieves all positions for an asset, ordered by entry timestamp ASC.
	GetByAsset(ctx context.Context, assetID string) ([]*domain.SignalPosition, error)

	// GetOpen retrieves all open positions for an asset.
	GetOpen(ctx context.Context, assetID string) ([]*domain.SignalPosition, error)
}

// RunStore provides access to backtest_runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.BacktestRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error)

	// GetByAsset retrieves all runs for an asset, ordered by start time ASC.
	GetByAsset(ctx context.Context, assetID string) ([]*domain.BacktestRun, error)
}

// SessionStore provides access to trading_sessions storage.
type SessionStore interface {
	// Insert adds a new session. Returns ErrDuplicateKey if
	// (asset_id, session_id) exists.
	Insert(ctx context.Context, s *domain.TradingSession) error

	// GetByAsset retrieves the asset's session. Returns ErrNotFound if not exists.
	GetByAsset(ctx context.Context, assetID string) (*domain.TradingSession, error)
}
