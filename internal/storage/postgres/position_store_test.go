package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

func testPosition(signalID string, entryTs int64) *domain.SignalPosition {
	return &domain.SignalPosition{
		AssetID:    "BTC",
		SignalID:   signalID,
		Direction:  domain.DirectionLong,
		State:      domain.PositionOpen,
		EntryTsMs:  entryTs,
		EntryPrice: 100,
		RegimeKey:  ptr("L2=Up-Normal-Normal"),
		FeatureSnapshot: map[string]float64{
			"ema_20": 99.5,
			"ema_50": 98.2,
		},
	}
}

func TestPositionStore_InsertAndClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testPosition("s1", 1000)))

	err := store.Close(ctx, "BTC", 1000, "s1", 2000, 110, 10.0)
	require.NoError(t, err)

	all, err := store.GetByAsset(ctx, "BTC")
	require.NoError(t, err)
	require.Len(t, all, 1)

	p := all[0]
	require.Equal(t, domain.PositionClosed, p.State)
	require.NotNil(t, p.ExitTsMs)
	require.Equal(t, int64(2000), *p.ExitTsMs)
	require.NotNil(t, p.PnlPct)
	require.InDelta(t, 10.0, *p.PnlPct, 1e-9)
	require.Equal(t, 99.5, p.FeatureSnapshot["ema_20"])
	require.NotNil(t, p.RegimeKey)
}

func TestPositionStore_DuplicateKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testPosition("s1", 1000)))

	err := store.Insert(ctx, testPosition("s1", 1000))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPositionStore_CloseExactlyOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testPosition("s1", 1000)))
	require.NoError(t, store.Close(ctx, "BTC", 1000, "s1", 2000, 110, 10.0))

	err := store.Close(ctx, "BTC", 1000, "s1", 3000, 120, 20.0)
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.Close(ctx, "BTC", 1000, "missing", 3000, 120, 20.0)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPositionStore_GetOpen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testPosition("s1", 1000)))
	require.NoError(t, store.Insert(ctx, testPosition("s2", 2000)))
	require.NoError(t, store.Close(ctx, "BTC", 1000, "s1", 3000, 110, 10.0))

	open, err := store.GetOpen(ctx, "BTC")
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "s2", open[0].SignalID)
}

func TestRunStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	run := &domain.BacktestRun{
		RunID:             "run-1",
		AssetID:           "BTC",
		Tf:                "1D",
		StartedMs:         1000,
		FinishedMs:        2000,
		FeatureTier:       domain.TierStandard,
		TotalPositions:    12,
		WinRate:           0.58,
		Sharpe:            1.2,
		Sortino:           1.9,
		Calmar:            0.8,
		MaxDrawdownPct:    14.5,
		VaR95:             -3.2,
		ExpectedShortfall: -4.1,
	}
	require.NoError(t, store.Insert(ctx, run))

	err := store.Insert(ctx, run)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, run.WinRate, got.WinRate)
	require.Equal(t, run.FeatureTier, got.FeatureTier)

	_, err = store.GetByID(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSessionStore(pool)
	ctx := context.Background()

	sess := &domain.TradingSession{
		AssetID:      "SPX",
		SessionID:    "us-equities",
		WeekStartDow: 1,
		WeekEndDow:   5,
		Timezone:     "America/New_York",
	}
	require.NoError(t, store.Insert(ctx, sess))

	err := store.Insert(ctx, sess)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByAsset(ctx, "SPX")
	require.NoError(t, err)
	require.Equal(t, 5, got.WeekEndDow)
	require.Equal(t, "America/New_York", got.Timezone)

	_, err = store.GetByAsset(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
