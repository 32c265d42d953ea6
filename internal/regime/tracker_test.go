package regime

import (
	"testing"

	"regimelab/internal/domain"
)

func recordWithL2(ts int64, label string) *domain.RegimeRecord {
	l := label
	return &domain.RegimeRecord{
		AssetID:     "BTC",
		TimestampMs: ts,
		Tf:          "1D",
		L2:          &l,
		FeatureTier: domain.TierLite,
	}
}

func TestTracker_FlipDurations(t *testing.T) {
	tracker := NewTracker()

	// Label sequence [A, A, A, B, B, A].
	sequence := []string{"A", "A", "A", "B", "B", "A"}
	var flips []*domain.RegimeFlip
	for i, label := range sequence {
		flips = append(flips, tracker.Observe(recordWithL2(int64(i+1)*1000, label))...)
	}

	if len(flips) != 3 {
		t.Fatalf("Expected 3 flips, got %d", len(flips))
	}

	// First assignment: nil old regime, nil duration.
	if flips[0].OldRegime != nil || flips[0].DurationBars != nil {
		t.Errorf("First assignment must have nil old regime and duration")
	}
	if flips[0].NewRegime != "A" {
		t.Errorf("First flip new regime = %s, want A", flips[0].NewRegime)
	}

	// A -> B after A persisted 3 bars.
	if flips[1].OldRegime == nil || *flips[1].OldRegime != "A" || flips[1].NewRegime != "B" {
		t.Errorf("Second flip must be A->B")
	}
	if flips[1].DurationBars == nil || *flips[1].DurationBars != 3 {
		t.Errorf("Second flip duration = %v, want 3", flips[1].DurationBars)
	}

	// B -> A after B persisted 2 bars.
	if flips[2].DurationBars == nil || *flips[2].DurationBars != 2 {
		t.Errorf("Third flip duration = %v, want 2", flips[2].DurationBars)
	}
}

func TestTracker_LayersTrackedIndependently(t *testing.T) {
	tracker := NewTracker()

	l1a, l2a := "X", "P"
	rec1 := &domain.RegimeRecord{AssetID: "BTC", TimestampMs: 1000, Tf: "1D", L1: &l1a, L2: &l2a}
	flips := tracker.Observe(rec1)
	if len(flips) != 2 {
		t.Fatalf("Expected 2 first-assignment flips, got %d", len(flips))
	}

	// Only L2 changes.
	l2b := "Q"
	rec2 := &domain.RegimeRecord{AssetID: "BTC", TimestampMs: 2000, Tf: "1D", L1: &l1a, L2: &l2b}
	flips = tracker.Observe(rec2)
	if len(flips) != 1 {
		t.Fatalf("Expected 1 flip for L2 only, got %d", len(flips))
	}
	if flips[0].Layer != domain.LayerL2 {
		t.Errorf("Flip layer = %d, want L2", flips[0].Layer)
	}
}

func TestTracker_AssetsIsolated(t *testing.T) {
	tracker := NewTracker()

	a := recordWithL2(1000, "A")
	b := recordWithL2(1000, "B")
	b.AssetID = "ETH"

	tracker.Observe(a)
	flips := tracker.Observe(b)
	if len(flips) != 1 || flips[0].OldRegime != nil {
		t.Error("Different assets must not share flip state")
	}
}
