package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// FlipStore implements storage.FlipStore using PostgreSQL.
type FlipStore struct {
	pool *Pool
}

// NewFlipStore creates a new FlipStore.
func NewFlipStore(pool *Pool) *FlipStore {
	return &FlipStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FlipStore = (*FlipStore)(nil)

// InsertBulk adds flips, skipping rows whose key already exists.
func (s *FlipStore) InsertBulk(ctx context.Context, flips []*domain.RegimeFlip) (int, error) {
	if len(flips) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO regime_flips (
			asset_id, timestamp_ms, tf, layer,
			old_regime, new_regime, duration_bars
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (asset_id, tf, layer, timestamp_ms) DO NOTHING
	`

	inserted := 0
	for _, f := range flips {
		if f == nil || f.AssetID == "" || f.NewRegime == "" {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query,
			f.AssetID, f.TimestampMs, f.Tf, f.Layer,
			f.OldRegime, f.NewRegime, f.DurationBars,
		)
		if err != nil {
			return 0, fmt.Errorf("insert regime flip: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// GetByAsset retrieves all flips for an asset/timeframe, ordered by timestamp ASC.
func (s *FlipStore) GetByAsset(ctx context.Context, assetID, tf string) ([]*domain.RegimeFlip, error) {
	query := `
		SELECT asset_id, timestamp_ms, tf, layer, old_regime, new_regime, duration_bars
		FROM regime_flips
		WHERE asset_id = $1 AND tf = $2
		ORDER BY timestamp_ms ASC, layer ASC
	`

	rows, err := s.pool.Query(ctx, query, assetID, tf)
	if err != nil {
		return nil, fmt.Errorf("get flips by asset: %w", err)
	}
	defer rows.Close()

	return scanFlips(rows)
}

// GetByLayer retrieves flips for one layer, ordered by timestamp ASC.
func (s *FlipStore) GetByLayer(ctx context.Context, assetID, tf string, layer domain.RegimeLayer) ([]*domain.RegimeFlip, error) {
	query := `
		SELECT asset_id, timestamp_ms, tf, layer, old_regime, new_regime, duration_bars
		FROM regime_flips
		WHERE asset_id = $1 AND tf = $2 AND layer = $3
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, assetID, tf, layer)
	if err != nil {
		return nil, fmt.Errorf("get flips by layer: %w", err)
	}
	defer rows.Close()

	return scanFlips(rows)
}

// scanFlips scans multiple rows into a slice of RegimeFlip.
func scanFlips(rows pgx.Rows) ([]*domain.RegimeFlip, error) {
	var flips []*domain.RegimeFlip

	for rows.Next() {
		var f domain.RegimeFlip
		err := rows.Scan(
			&f.AssetID, &f.TimestampMs, &f.Tf, &f.Layer,
			&f.OldRegime, &f.NewRegime, &f.DurationBars,
		)
		if err != nil {
			return nil, fmt.Errorf("scan flip row: %w", err)
		}
		flips = append(flips, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flip rows: %w", err)
	}

	return flips, nil
}
