package memory

import (
	"context"
	"errors"
	"testing"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

func regimeRec(ts int64, tier domain.FeatureTier, key string) *domain.RegimeRecord {
	return &domain.RegimeRecord{
		AssetID:     "BTC",
		Tf:          "1D",
		TimestampMs: ts,
		RegimeKey:   key,
		FeatureTier: tier,
	}
}

func TestRegimeStore_InsertIfAbsent(t *testing.T) {
	store := NewRegimeStore()
	ctx := context.Background()

	recs := []*domain.RegimeRecord{
		regimeRec(1000, domain.TierLite, "L2=Up-Normal-Normal"),
		regimeRec(2000, domain.TierLite, "L2=Up-Normal-Normal"),
	}
	n, err := store.InsertBulk(ctx, recs)
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 inserted, got %d", n)
	}

	// Re-refresh skips existing rows.
	n, err = store.InsertBulk(ctx, recs)
	if err != nil {
		t.Fatalf("Re-insert failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 inserted on re-refresh, got %d", n)
	}
}

func TestRegimeStore_TiersIsolated(t *testing.T) {
	store := NewRegimeStore()
	ctx := context.Background()

	recs := []*domain.RegimeRecord{
		regimeRec(1000, domain.TierLite, "L2=Up-Normal-Normal"),
		regimeRec(1000, domain.TierFull, "L0=Up-Normal-Normal|L1=Up-Normal-Normal|L2=Up-Normal-Normal"),
	}
	if _, err := store.InsertBulk(ctx, recs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	lite, _ := store.GetByAsset(ctx, "BTC", "1D", domain.TierLite)
	if len(lite) != 1 || lite[0].RegimeKey != "L2=Up-Normal-Normal" {
		t.Errorf("Lite tier series polluted: %v", lite)
	}
}

func TestRegimeStore_GetAt(t *testing.T) {
	store := NewRegimeStore()
	ctx := context.Background()

	recs := []*domain.RegimeRecord{
		regimeRec(1000, domain.TierLite, "L2=Up-Normal-Normal"),
		regimeRec(3000, domain.TierLite, "L2=Down-Normal-Normal"),
	}
	if _, err := store.InsertBulk(ctx, recs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	// At 2500 the record from 1000 is still in force.
	rec, err := store.GetAt(ctx, "BTC", "1D", domain.TierLite, 2500)
	if err != nil {
		t.Fatalf("GetAt failed: %v", err)
	}
	if rec.TimestampMs != 1000 {
		t.Errorf("GetAt returned ts %d, want 1000", rec.TimestampMs)
	}

	// Before any record exists.
	if _, err := store.GetAt(ctx, "BTC", "1D", domain.TierLite, 500); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound before first record, got %v", err)
	}
}

func TestFlipStore_InsertAndGetByLayer(t *testing.T) {
	store := NewFlipStore()
	ctx := context.Background()

	old := "A"
	dur := 3
	flips := []*domain.RegimeFlip{
		{AssetID: "BTC", Tf: "1D", Layer: domain.LayerL2, TimestampMs: 1000, NewRegime: "A"},
		{AssetID: "BTC", Tf: "1D", Layer: domain.LayerL2, TimestampMs: 4000, OldRegime: &old, NewRegime: "B", DurationBars: &dur},
		{AssetID: "BTC", Tf: "1D", Layer: domain.LayerL1, TimestampMs: 2000, NewRegime: "X"},
	}
	n, err := store.InsertBulk(ctx, flips)
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 inserted, got %d", n)
	}

	l2, err := store.GetByLayer(ctx, "BTC", "1D", domain.LayerL2)
	if err != nil {
		t.Fatalf("GetByLayer failed: %v", err)
	}
	if len(l2) != 2 {
		t.Fatalf("Expected 2 L2 flips, got %d", len(l2))
	}
	if l2[1].DurationBars == nil || *l2[1].DurationBars != 3 {
		t.Errorf("Flip duration = %v, want 3", l2[1].DurationBars)
	}

	all, _ := store.GetByAsset(ctx, "BTC", "1D")
	if len(all) != 3 {
		t.Errorf("Expected 3 flips total, got %d", len(all))
	}
}
