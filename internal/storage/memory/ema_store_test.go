package memory

import (
	"context"
	"testing"

	"regimelab/internal/domain"
)

func TestEmaStore_AlignmentSourcesUnion(t *testing.T) {
	store := NewEmaStore()
	ctx := context.Background()

	// Same (asset, tf, period, ts) under two alignment sources: both kept.
	obs := []*domain.EmaObservation{
		{AssetID: "BTC", Tf: "1M", Period: 20, AlignmentSource: domain.SourceTfDay, TimestampMs: 1000, Ema: 100},
		{AssetID: "BTC", Tf: "1M", Period: 20, AlignmentSource: domain.SourceCalendar, TimestampMs: 1000, Ema: 101},
	}
	n, err := store.InsertBulk(ctx, obs)
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 inserted, got %d", n)
	}

	tfDay, _ := store.GetSeries(ctx, "BTC", "1M", 20, domain.SourceTfDay)
	cal, _ := store.GetSeries(ctx, "BTC", "1M", 20, domain.SourceCalendar)
	if len(tfDay) != 1 || len(cal) != 1 {
		t.Fatalf("Each source must hold its own series: %d tf_day, %d calendar", len(tfDay), len(cal))
	}
	if tfDay[0].Ema == cal[0].Ema {
		t.Error("Series must not overwrite each other")
	}
}

func TestEmaStore_RefreshIsIdempotent(t *testing.T) {
	store := NewEmaStore()
	ctx := context.Background()

	obs := []*domain.EmaObservation{
		{AssetID: "BTC", Tf: "1D", Period: 20, AlignmentSource: domain.SourceTfDay, TimestampMs: 1000, Ema: 100},
		{AssetID: "BTC", Tf: "1D", Period: 20, AlignmentSource: domain.SourceTfDay, TimestampMs: 2000, Ema: 100.5},
	}
	if _, err := store.InsertBulk(ctx, obs); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	n, err := store.InsertBulk(ctx, obs)
	if err != nil {
		t.Fatalf("Re-insert failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Re-insert must skip all rows, inserted %d", n)
	}

	series, _ := store.GetSeries(ctx, "BTC", "1D", 20, domain.SourceTfDay)
	if len(series) != 2 {
		t.Errorf("Expected 2 observations, got %d", len(series))
	}
}

func TestEmaStore_PeriodsIsolated(t *testing.T) {
	store := NewEmaStore()
	ctx := context.Background()

	obs := []*domain.EmaObservation{
		{AssetID: "BTC", Tf: "1D", Period: 20, AlignmentSource: domain.SourceTfDay, TimestampMs: 1000, Ema: 100},
		{AssetID: "BTC", Tf: "1D", Period: 50, AlignmentSource: domain.SourceTfDay, TimestampMs: 1000, Ema: 99},
	}
	if _, err := store.InsertBulk(ctx, obs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	p20, _ := store.GetSeries(ctx, "BTC", "1D", 20, domain.SourceTfDay)
	if len(p20) != 1 || p20[0].Ema != 100 {
		t.Errorf("Period 20 series polluted: %v", p20)
	}
}

func TestEmaStore_GetByTimeRange(t *testing.T) {
	store := NewEmaStore()
	ctx := context.Background()

	obs := []*domain.EmaObservation{
		{AssetID: "BTC", Tf: "1D", Period: 20, AlignmentSource: domain.SourceTfDay, TimestampMs: 1000, Ema: 100},
		{AssetID: "BTC", Tf: "1D", Period: 20, AlignmentSource: domain.SourceTfDay, TimestampMs: 2000, Ema: 101},
		{AssetID: "BTC", Tf: "1D", Period: 20, AlignmentSource: domain.SourceTfDay, TimestampMs: 3000, Ema: 102},
	}
	if _, err := store.InsertBulk(ctx, obs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "BTC", "1D", 20, domain.SourceTfDay, 2000, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 observations in range, got %d", len(result))
	}
}
