package clickhouse

import (
	"context"
	"fmt"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// ComovementStore implements storage.ComovementStore using ClickHouse.
type ComovementStore struct {
	conn *Conn
}

// NewComovementStore creates a new ComovementStore.
func NewComovementStore(conn *Conn) *ComovementStore {
	return &ComovementStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ComovementStore = (*ComovementStore)(nil)

// InsertBulk adds stats, skipping rows whose key already exists.
func (s *ComovementStore) InsertBulk(ctx context.Context, stats []*domain.ComovementStat) (int, error) {
	if len(stats) == 0 {
		return 0, nil
	}

	type key struct {
		assetID     string
		tf          string
		seriesA     string
		seriesB     string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(stats))

	var fresh []*domain.ComovementStat
	for _, st := range stats {
		if st == nil || st.AssetID == "" || st.SeriesA == "" || st.SeriesB == "" {
			return 0, storage.ErrInvalidInput
		}
		k := key{st.AssetID, st.Tf, st.SeriesA, st.SeriesB, st.TimestampMs}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		exists, err := s.exists(ctx, st)
		if err != nil {
			return 0, fmt.Errorf("check exists: %w", err)
		}
		if exists {
			continue
		}
		fresh = append(fresh, st)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO comovement_stats (
			asset_id, tf, timestamp_ms, series_a, series_b, window_bars,
			correlation, sign_agreement, best_lag, lead_series
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, st := range fresh {
		err = batch.Append(
			st.AssetID, st.Tf, uint64(st.TimestampMs), st.SeriesA, st.SeriesB, uint32(st.WindowBars),
			st.Correlation, st.SignAgreement, int32(st.BestLag), st.LeadSeries,
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

// GetByAsset retrieves all stats for an asset/timeframe, ordered by timestamp ASC.
func (s *ComovementStore) GetByAsset(ctx context.Context, assetID, tf string) ([]*domain.ComovementStat, error) {
	query := `
		SELECT asset_id, tf, timestamp_ms, series_a, series_b, window_bars,
			correlation, sign_agreement, best_lag, lead_series
		FROM comovement_stats
		WHERE asset_id = ? AND tf = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, tf)
	if err != nil {
		return nil, fmt.Errorf("query comovement by asset: %w", err)
	}
	defer rows.Close()

	return scanComovementStats(rows)
}

// GetByPair retrieves stats for one series pair, ordered by timestamp ASC.
func (s *ComovementStore) GetByPair(ctx context.Context, assetID, tf, seriesA, seriesB string) ([]*domain.ComovementStat, error) {
	query := `
		SELECT asset_id, tf, timestamp_ms, series_a, series_b, window_bars,
			correlation, sign_agreement, best_lag, lead_series
		FROM comovement_stats
		WHERE asset_id = ? AND tf = ? AND series_a = ? AND series_b = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, tf, seriesA, seriesB)
	if err != nil {
		return nil, fmt.Errorf("query comovement by pair: %w", err)
	}
	defer rows.Close()

	return scanComovementStats(rows)
}

// exists checks if a stat with the given key exists.
func (s *ComovementStore) exists(ctx context.Context, st *domain.ComovementStat) (bool, error) {
	query := `
		SELECT count(*) FROM comovement_stats
		WHERE asset_id = ? AND tf = ? AND series_a = ? AND series_b = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query,
		st.AssetID, st.Tf, st.SeriesA, st.SeriesB, uint64(st.TimestampMs),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanComovementStats scans multiple rows.
func scanComovementStats(rows chRows) ([]*domain.ComovementStat, error) {
	var stats []*domain.ComovementStat

	for rows.Next() {
		var st domain.ComovementStat
		var timestampMs uint64
		var windowBars uint32
		var bestLag int32

		err := rows.Scan(
			&st.AssetID, &st.Tf, &timestampMs, &st.SeriesA, &st.SeriesB, &windowBars,
			&st.Correlation, &st.SignAgreement, &bestLag, &st.LeadSeries,
		)
		if err != nil {
			return nil, fmt.Errorf("scan comovement row: %w", err)
		}

		st.TimestampMs = int64(timestampMs)
		st.WindowBars = int(windowBars)
		st.BestLag = int(bestLag)
		stats = append(stats, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comovement rows: %w", err)
	}

	return stats, nil
}
