package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, asset_id, tf, started_ms, finished_ms, feature_tier,
	total_positions, win_rate, sharpe, sortino, calmar,
	max_drawdown_pct, var95, expected_shortfall
`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.BacktestRun) error {
	if r == nil || r.RunID == "" || r.AssetID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO backtest_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.AssetID, r.Tf, r.StartedMs, r.FinishedMs, r.FeatureTier,
		r.TotalPositions, r.WinRate, r.Sharpe, r.Sortino, r.Calmar,
		r.MaxDrawdownPct, r.VaR95, r.ExpectedShortfall,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE run_id = $1
	`

	row := s.pool.QueryRow(ctx, query, runID)
	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest run by id: %w", err)
	}
	return r, nil
}

// GetByAsset retrieves all runs for an asset, ordered by start time ASC.
func (s *RunStore) GetByAsset(ctx context.Context, assetID string) ([]*domain.BacktestRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE asset_id = $1
		ORDER BY started_ms ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("get backtest runs by asset: %w", err)
	}
	defer rows.Close()

	var runs []*domain.BacktestRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest run rows: %w", err)
	}

	return runs, nil
}

// scanRun scans a single row into a BacktestRun.
func scanRun(row pgx.Row) (*domain.BacktestRun, error) {
	var r domain.BacktestRun

	err := row.Scan(
		&r.RunID, &r.AssetID, &r.Tf, &r.StartedMs, &r.FinishedMs, &r.FeatureTier,
		&r.TotalPositions, &r.WinRate, &r.Sharpe, &r.Sortino, &r.Calmar,
		&r.MaxDrawdownPct, &r.VaR95, &r.ExpectedShortfall,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}
