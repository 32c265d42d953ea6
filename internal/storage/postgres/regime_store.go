package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// RegimeStore implements storage.RegimeStore using PostgreSQL.
type RegimeStore struct {
	pool *Pool
}

// NewRegimeStore creates a new RegimeStore.
func NewRegimeStore(pool *Pool) *RegimeStore {
	return &RegimeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RegimeStore = (*RegimeStore)(nil)

const regimeColumns = `
	asset_id, timestamp_ms, tf,
	l0, l1, l2, l3, l4,
	regime_key, feature_tier,
	size_mult, stop_mult, orders, gross_cap, pyramids
`

// InsertBulk adds records, skipping rows whose key already exists.
func (s *RegimeStore) InsertBulk(ctx context.Context, recs []*domain.RegimeRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO regimes (` + regimeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (asset_id, tf, feature_tier, timestamp_ms) DO NOTHING
	`

	inserted := 0
	for _, r := range recs {
		if r == nil || r.AssetID == "" || r.RegimeKey == "" {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query,
			r.AssetID, r.TimestampMs, r.Tf,
			r.L0, r.L1, r.L2, r.L3, r.L4,
			r.RegimeKey, r.FeatureTier,
			r.Policy.SizeMult, r.Policy.StopMult, r.Policy.Orders, r.Policy.GrossCap, r.Policy.Pyramids,
		)
		if err != nil {
			return 0, fmt.Errorf("insert regime record: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// GetByAsset retrieves all records for an asset/timeframe/tier, ordered by timestamp ASC.
func (s *RegimeStore) GetByAsset(ctx context.Context, assetID, tf string, tier domain.FeatureTier) ([]*domain.RegimeRecord, error) {
	query := `
		SELECT ` + regimeColumns + `
		FROM regimes
		WHERE asset_id = $1 AND tf = $2 AND feature_tier = $3
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, assetID, tf, tier)
	if err != nil {
		return nil, fmt.Errorf("get regimes by asset: %w", err)
	}
	defer rows.Close()

	return scanRegimeRecords(rows)
}

// GetAt retrieves the record in force at a timestamp.
func (s *RegimeStore) GetAt(ctx context.Context, assetID, tf string, tier domain.FeatureTier, ts int64) (*domain.RegimeRecord, error) {
	query := `
		SELECT ` + regimeColumns + `
		FROM regimes
		WHERE asset_id = $1 AND tf = $2 AND feature_tier = $3 AND timestamp_ms <= $4
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, assetID, tf, tier, ts)
	r, err := scanRegimeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get regime at timestamp: %w", err)
	}
	return r, nil
}

// scanRegimeRecord scans a single row into a RegimeRecord.
func scanRegimeRecord(row pgx.Row) (*domain.RegimeRecord, error) {
	var r domain.RegimeRecord

	err := row.Scan(
		&r.AssetID, &r.TimestampMs, &r.Tf,
		&r.L0, &r.L1, &r.L2, &r.L3, &r.L4,
		&r.RegimeKey, &r.FeatureTier,
		&r.Policy.SizeMult, &r.Policy.StopMult, &r.Policy.Orders, &r.Policy.GrossCap, &r.Policy.Pyramids,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanRegimeRecords scans multiple rows into a slice of RegimeRecord.
func scanRegimeRecords(rows pgx.Rows) ([]*domain.RegimeRecord, error) {
	var recs []*domain.RegimeRecord

	for rows.Next() {
		r, err := scanRegimeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan regime row: %w", err)
		}
		recs = append(recs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regime rows: %w", err)
	}

	return recs, nil
}
