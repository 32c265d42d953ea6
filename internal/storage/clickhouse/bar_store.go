package clickhouse

import (
	"context"
	"fmt"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
// MergeTree does not enforce uniqueness, so insert-if-absent is done with
// explicit existence checks before the batch insert.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds bars, skipping rows whose key already exists.
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	type key struct {
		assetID     string
		tf          string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(bars))

	var fresh []*domain.Bar
	for _, b := range bars {
		if b == nil || b.AssetID == "" || b.Tf == "" {
			return 0, storage.ErrInvalidInput
		}
		k := key{b.AssetID, b.Tf, b.TimestampMs}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		exists, err := s.exists(ctx, b.AssetID, b.Tf, b.TimestampMs)
		if err != nil {
			return 0, fmt.Errorf("check exists: %w", err)
		}
		if exists {
			continue
		}
		fresh = append(fresh, b)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			asset_id, tf, timestamp_ms, open, high, low, close, volume, roll
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range fresh {
		err = batch.Append(
			b.AssetID, b.Tf, uint64(b.TimestampMs),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.Roll,
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	return len(fresh), nil
}

// GetByAsset retrieves all bars for an asset/timeframe, ordered by timestamp ASC.
func (s *BarStore) GetByAsset(ctx context.Context, assetID, tf string) ([]*domain.Bar, error) {
	query := `
		SELECT asset_id, tf, timestamp_ms, open, high, low, close, volume, roll
		FROM bars
		WHERE asset_id = ? AND tf = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, tf)
	if err != nil {
		return nil, fmt.Errorf("query bars by asset: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetByTimeRange retrieves bars for an asset/timeframe within [start, end] (inclusive).
func (s *BarStore) GetByTimeRange(ctx context.Context, assetID, tf string, start, end int64) ([]*domain.Bar, error) {
	query := `
		SELECT asset_id, tf, timestamp_ms, open, high, low, close, volume, roll
		FROM bars
		WHERE asset_id = ? AND tf = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, tf, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query bars by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// LastTimestamp returns the newest bar timestamp for an asset/timeframe.
func (s *BarStore) LastTimestamp(ctx context.Context, assetID, tf string) (int64, error) {
	query := `
		SELECT count(*), max(timestamp_ms)
		FROM bars
		WHERE asset_id = ? AND tf = ?
	`

	var count, maxTs uint64
	if err := s.conn.QueryRow(ctx, query, assetID, tf).Scan(&count, &maxTs); err != nil {
		return 0, fmt.Errorf("query last bar timestamp: %w", err)
	}
	if count == 0 {
		return 0, storage.ErrNotFound
	}
	return int64(maxTs), nil
}

// exists checks if a bar with the given key exists.
func (s *BarStore) exists(ctx context.Context, assetID, tf string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM bars
		WHERE asset_id = ? AND tf = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, assetID, tf, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var b domain.Bar
		var timestampMs uint64

		err := rows.Scan(
			&b.AssetID, &b.Tf, &timestampMs,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Roll,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}

		b.TimestampMs = int64(timestampMs)
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
