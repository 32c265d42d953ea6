package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
// The feature snapshot is stored as JSONB.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new open position. Returns ErrDuplicateKey if the key exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.SignalPosition) error {
	if p == nil || p.AssetID == "" || p.SignalID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO signal_positions (
			asset_id, signal_id, direction, state,
			entry_ts_ms, entry_price, exit_ts_ms, exit_price, pnl_pct,
			regime_key, feature_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		p.AssetID, p.SignalID, p.Direction, p.State,
		p.EntryTsMs, p.EntryPrice, p.ExitTsMs, p.ExitPrice, p.PnlPct,
		p.RegimeKey, p.FeatureSnapshot,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal position: %w", err)
	}
	return nil
}

// Close marks a position closed with its exit fields. A position is mutated
// exactly once; closing a closed position returns ErrInvalidInput.
func (s *PositionStore) Close(ctx context.Context, assetID string, entryTsMs int64, signalID string, exitTsMs int64, exitPrice, pnlPct float64) error {
	query := `
		UPDATE signal_positions
		SET state = 'closed', exit_ts_ms = $4, exit_price = $5, pnl_pct = $6
		WHERE asset_id = $1 AND entry_ts_ms = $2 AND signal_id = $3 AND state = 'open'
	`

	tag, err := s.pool.Exec(ctx, query, assetID, entryTsMs, signalID, exitTsMs, exitPrice, pnlPct)
	if err != nil {
		return fmt.Errorf("close signal position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish unknown position from already-closed.
		var state string
		err := s.pool.QueryRow(ctx,
			`SELECT state FROM signal_positions WHERE asset_id = $1 AND entry_ts_ms = $2 AND signal_id = $3`,
			assetID, entryTsMs, signalID,
		).Scan(&state)
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check signal position state: %w", err)
		}
		return storage.ErrInvalidInput
	}
	return nil
}

// GetByAsset retrieves all positions for an asset, ordered by entry timestamp ASC.
func (s *PositionStore) GetByAsset(ctx context.Context, assetID string) ([]*domain.SignalPosition, error) {
	query := `
		SELECT asset_id, signal_id, direction, state,
			entry_ts_ms, entry_price, exit_ts_ms, exit_price, pnl_pct,
			regime_key, feature_snapshot
		FROM signal_positions
		WHERE asset_id = $1
		ORDER BY entry_ts_ms ASC, signal_id ASC
	`

	rows, err := s.pool.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("get positions by asset: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetOpen retrieves all open positions for an asset.
func (s *PositionStore) GetOpen(ctx context.Context, assetID string) ([]*domain.SignalPosition, error) {
	query := `
		SELECT asset_id, signal_id, direction, state,
			entry_ts_ms, entry_price, exit_ts_ms, exit_price, pnl_pct,
			regime_key, feature_snapshot
		FROM signal_positions
		WHERE asset_id = $1 AND state = 'open'
		ORDER BY entry_ts_ms ASC, signal_id ASC
	`

	rows, err := s.pool.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("get open positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// scanPositions scans multiple rows into a slice of SignalPosition.
func scanPositions(rows pgx.Rows) ([]*domain.SignalPosition, error) {
	var positions []*domain.SignalPosition

	for rows.Next() {
		var p domain.SignalPosition
		err := rows.Scan(
			&p.AssetID, &p.SignalID, &p.Direction, &p.State,
			&p.EntryTsMs, &p.EntryPrice, &p.ExitTsMs, &p.ExitPrice, &p.PnlPct,
			&p.RegimeKey, &p.FeatureSnapshot,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
