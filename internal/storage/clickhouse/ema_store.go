package clickhouse

import (
	"context"
	"fmt"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// EmaStore implements storage.EmaStore using ClickHouse.
type EmaStore struct {
	conn *Conn
}

// NewEmaStore creates a new EmaStore.
func NewEmaStore(conn *Conn) *EmaStore {
	return &EmaStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EmaStore = (*EmaStore)(nil)

// InsertBulk adds observations, skipping rows whose key already exists.
// Series from different alignment sources union under their own keys.
func (s *EmaStore) InsertBulk(ctx context.Context, obs []*domain.EmaObservation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	type key struct {
		assetID     string
		tf          string
		period      int
		source      domain.AlignmentSource
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(obs))

	var fresh []*domain.EmaObservation
	for _, o := range obs {
		if o == nil || o.AssetID == "" || o.Tf == "" || o.Period <= 0 {
			return 0, storage.ErrInvalidInput
		}
		k := key{o.AssetID, o.Tf, o.Period, o.AlignmentSource, o.TimestampMs}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		exists, err := s.exists(ctx, o)
		if err != nil {
			return 0, fmt.Errorf("check exists: %w", err)
		}
		if exists {
			continue
		}
		fresh = append(fresh, o)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ema_observations (
			asset_id, tf, period, alignment_source, timestamp_ms,
			ema, d1, d2, roll, d1_roll, d2_roll
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range fresh {
		err = batch.Append(
			o.AssetID, o.Tf, uint32(o.Period), string(o.AlignmentSource), uint64(o.TimestampMs),
			o.Ema, o.D1, o.D2, o.Roll, o.D1Roll, o.D2Roll,
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

// GetSeries retrieves one (asset, tf, period, source) series ordered by timestamp ASC.
func (s *EmaStore) GetSeries(ctx context.Context, assetID, tf string, period int, source domain.AlignmentSource) ([]*domain.EmaObservation, error) {
	query := `
		SELECT asset_id, tf, period, alignment_source, timestamp_ms,
			ema, d1, d2, roll, d1_roll, d2_roll
		FROM ema_observations
		WHERE asset_id = ? AND tf = ? AND period = ? AND alignment_source = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, tf, uint32(period), string(source))
	if err != nil {
		return nil, fmt.Errorf("query ema series: %w", err)
	}
	defer rows.Close()

	return scanEmaObservations(rows)
}

// GetByTimeRange retrieves one series within [start, end] (inclusive).
func (s *EmaStore) GetByTimeRange(ctx context.Context, assetID, tf string, period int, source domain.AlignmentSource, start, end int64) ([]*domain.EmaObservation, error) {
	query := `
		SELECT asset_id, tf, period, alignment_source, timestamp_ms,
			ema, d1, d2, roll, d1_roll, d2_roll
		FROM ema_observations
		WHERE asset_id = ? AND tf = ? AND period = ? AND alignment_source = ?
			AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, tf, uint32(period), string(source), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query ema series by time range: %w", err)
	}
	defer rows.Close()

	return scanEmaObservations(rows)
}

// exists checks if an observation with the given key exists.
func (s *EmaStore) exists(ctx context.Context, o *domain.EmaObservation) (bool, error) {
	query := `
		SELECT count(*) FROM ema_observations
		WHERE asset_id = ? AND tf = ? AND period = ? AND alignment_source = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query,
		o.AssetID, o.Tf, uint32(o.Period), string(o.AlignmentSource), uint64(o.TimestampMs),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanEmaObservations scans multiple rows.
func scanEmaObservations(rows chRows) ([]*domain.EmaObservation, error) {
	var obs []*domain.EmaObservation

	for rows.Next() {
		var o domain.EmaObservation
		var period uint32
		var source string
		var timestampMs uint64

		err := rows.Scan(
			&o.AssetID, &o.Tf, &period, &source, &timestampMs,
			&o.Ema, &o.D1, &o.D2, &o.Roll, &o.D1Roll, &o.D2Roll,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ema row: %w", err)
		}

		o.Period = int(period)
		o.AlignmentSource = domain.AlignmentSource(source)
		o.TimestampMs = int64(timestampMs)
		obs = append(obs, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ema rows: %w", err)
	}

	return obs, nil
}
