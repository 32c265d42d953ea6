package ema

import (
	"errors"
	"math"
	"testing"

	"regimelab/internal/domain"
)

const dayMs = int64(24 * 60 * 60 * 1000)

func makeBars(closes []float64, rollEvery int) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			AssetID:     "BTC",
			TimestampMs: int64(i+1) * dayMs,
			Tf:          "1D",
			Open:        c, High: c, Low: c, Close: c,
			Roll: rollEvery > 0 && (i+1)%rollEvery == 0,
		}
	}
	return bars
}

func TestEngine_SeedAndRecursion(t *testing.T) {
	e := NewEngine(0)
	closes := []float64{100, 102, 101, 104}
	alpha := 0.5

	obs, err := e.ComputeSeries(makeBars(closes, 0), alpha, 2, domain.SourceTfDay)
	if err != nil {
		t.Fatalf("ComputeSeries failed: %v", err)
	}
	if len(obs) != 4 {
		t.Fatalf("Expected 4 observations, got %d", len(obs))
	}

	// First bar seeds the level; no differences yet.
	if obs[0].Ema != 100 {
		t.Errorf("Seed ema = %v, want 100", obs[0].Ema)
	}
	if obs[0].D1 != nil || obs[0].D2 != nil {
		t.Error("First observation must have nil d1/d2")
	}

	// ema_1 = 0.5*102 + 0.5*100 = 101
	if obs[1].Ema != 101 {
		t.Errorf("ema_1 = %v, want 101", obs[1].Ema)
	}
	if obs[1].D1 == nil || *obs[1].D1 != 1 {
		t.Errorf("d1_1 = %v, want 1", obs[1].D1)
	}
	if obs[1].D2 != nil {
		t.Error("d2 must be nil until the third observation")
	}

	// ema_2 = 0.5*101 + 0.5*101 = 101, d1 = 0, d2 = -1
	if obs[2].D2 == nil || *obs[2].D2 != -1 {
		t.Errorf("d2_2 = %v, want -1", obs[2].D2)
	}
}

func TestEngine_RollConditionedDifferences(t *testing.T) {
	e := NewEngine(0)
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108}
	alpha := 0.3

	obs, err := e.ComputeSeries(makeBars(closes, 3), alpha, 5, domain.SourceCalendar)
	if err != nil {
		t.Fatalf("ComputeSeries failed: %v", err)
	}

	// Roll bars are at indexes 2, 5, 8.
	if obs[2].D1Roll != nil {
		t.Error("First roll event has no prior roll; d1_roll must be nil")
	}
	if obs[5].D1Roll == nil {
		t.Fatal("Second roll event must carry d1_roll")
	}
	want := obs[5].Ema - obs[2].Ema
	if *obs[5].D1Roll != want {
		t.Errorf("d1_roll = %v, want ema diff vs previous roll %v", *obs[5].D1Roll, want)
	}
	if obs[5].D2Roll != nil {
		t.Error("d2_roll needs two prior roll differences; must be nil on second roll")
	}
	if obs[8].D2Roll == nil {
		t.Fatal("Third roll event must carry d2_roll")
	}
	wantD2 := *obs[8].D1Roll - *obs[5].D1Roll
	if *obs[8].D2Roll != wantD2 {
		t.Errorf("d2_roll = %v, want %v", *obs[8].D2Roll, wantD2)
	}

	// Non-roll bars never carry roll-conditioned values.
	for _, i := range []int{0, 1, 3, 4, 6, 7} {
		if obs[i].D1Roll != nil || obs[i].D2Roll != nil {
			t.Errorf("bar %d: roll-conditioned values on non-roll bar", i)
		}
	}
}

func TestEngine_RecomputeIsBitIdentical(t *testing.T) {
	e := NewEngine(0)
	closes := make([]float64, 252)
	price := 100.0
	for i := range closes {
		price *= 1 + 0.01*math.Sin(float64(i)/7)
		closes[i] = price
	}
	bars := makeBars(closes, 5)

	first, err := e.ComputeSeries(bars, 2.0/21.0, 20, domain.SourceTfDay)
	if err != nil {
		t.Fatalf("First compute failed: %v", err)
	}
	second, err := e.ComputeSeries(bars, 2.0/21.0, 20, domain.SourceTfDay)
	if err != nil {
		t.Fatalf("Second compute failed: %v", err)
	}

	for i := range first {
		if first[i].Ema != second[i].Ema {
			t.Fatalf("bar %d: ema differs between runs: %v vs %v", i, first[i].Ema, second[i].Ema)
		}
		if !floatPtrEq(first[i].D1, second[i].D1) || !floatPtrEq(first[i].D2, second[i].D2) {
			t.Fatalf("bar %d: differences not bit-identical", i)
		}
	}
}

func TestEngine_NonIncreasingTimestamps(t *testing.T) {
	e := NewEngine(0)
	bars := makeBars([]float64{100, 101, 102}, 0)
	bars[2].TimestampMs = bars[1].TimestampMs // duplicate

	_, err := e.ComputeSeries(bars, 0.5, 2, domain.SourceTfDay)
	if !errors.Is(err, ErrIncompleteBarSequence) {
		t.Errorf("Expected ErrIncompleteBarSequence, got %v", err)
	}
}

func TestEngine_GapBeyondTolerance(t *testing.T) {
	e := NewEngine(7 * dayMs)
	bars := makeBars([]float64{100, 101, 102}, 0)
	bars[2].TimestampMs += 10 * dayMs

	_, err := e.ComputeSeries(bars, 0.5, 2, domain.SourceTfDay)
	if !errors.Is(err, ErrIncompleteBarSequence) {
		t.Errorf("Expected ErrIncompleteBarSequence for 10-day gap, got %v", err)
	}

	// Weekend-sized gaps stay within tolerance.
	bars[2].TimestampMs = bars[1].TimestampMs + 3*dayMs
	if _, err := e.ComputeSeries(bars, 0.5, 2, domain.SourceTfDay); err != nil {
		t.Errorf("3-day gap should pass, got %v", err)
	}
}

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
