package comovement

import (
	"math"
	"testing"
)

func TestCorrelation_PerfectPositive(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	if r := Correlation(x, y); math.Abs(r-1.0) > 1e-12 {
		t.Errorf("Correlation = %v, want 1.0", r)
	}
}

func TestCorrelation_PerfectNegative(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{10, 8, 6, 4, 2}
	if r := Correlation(x, y); math.Abs(r+1.0) > 1e-12 {
		t.Errorf("Correlation = %v, want -1.0", r)
	}
}

func TestCorrelation_ConstantSeries(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{5, 5, 5, 5}
	if r := Correlation(x, y); r != 0 {
		t.Errorf("Constant series correlation = %v, want 0", r)
	}
}

func TestSignAgreement(t *testing.T) {
	// Changes: x = [+,+,-,+], y = [+,-,-,+]; 3 of 4 agree.
	x := []float64{1, 2, 3, 2, 3}
	y := []float64{1, 2, 1, 0, 1}
	got := SignAgreement(x, y)
	if math.Abs(got-0.75) > 1e-12 {
		t.Errorf("SignAgreement = %v, want 0.75", got)
	}
}

func TestSignAgreement_IdenticalSeries(t *testing.T) {
	x := []float64{1, 3, 2, 5, 4}
	if got := SignAgreement(x, x); got != 1.0 {
		t.Errorf("Identical series agreement = %v, want 1.0", got)
	}
}

func TestCompare_DetectsLeader(t *testing.T) {
	// b is a copied two bars behind: a leads with lag +2.
	n := 40
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = math.Sin(float64(i) * 0.7)
	}
	for i := 2; i < n; i++ {
		b[i] = a[i-2]
	}

	an := NewAnalyzer(Config{WindowBars: n, MaxLag: 5})
	stat, err := an.Compare("BTC", "1D", 1000, "ema_20", a, "ema_50", b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if stat.BestLag != 2 {
		t.Errorf("BestLag = %d, want 2", stat.BestLag)
	}
	if stat.LeadSeries != "ema_20" {
		t.Errorf("LeadSeries = %q, want ema_20", stat.LeadSeries)
	}
}

func TestCompare_SymmetricLeader(t *testing.T) {
	n := 40
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = math.Sin(float64(i) * 0.7)
	}
	for i := 2; i < n; i++ {
		a[i] = b[i-2]
	}

	an := NewAnalyzer(Config{WindowBars: n, MaxLag: 5})
	stat, err := an.Compare("BTC", "1D", 1000, "ema_20", a, "ema_50", b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if stat.BestLag != -2 {
		t.Errorf("BestLag = %d, want -2", stat.BestLag)
	}
	if stat.LeadSeries != "ema_50" {
		t.Errorf("LeadSeries = %q, want ema_50", stat.LeadSeries)
	}
}

func TestCompare_Validation(t *testing.T) {
	an := NewAnalyzer(DefaultConfig())

	if _, err := an.Compare("BTC", "1D", 0, "a", []float64{1, 2}, "b", []float64{1, 2, 3}); err == nil {
		t.Error("Expected error for misaligned series")
	}
	if _, err := an.Compare("BTC", "1D", 0, "a", []float64{1, 2}, "b", []float64{1, 2}); err == nil {
		t.Error("Expected error for too-short series")
	}
}

func TestCompare_WindowTruncation(t *testing.T) {
	n := 100
	a := make([]float64, n)
	b := make([]float64, n)
	for i := range a {
		a[i] = float64(i)
		b[i] = float64(i) * 2
	}

	an := NewAnalyzer(Config{WindowBars: 30, MaxLag: 0})
	stat, err := an.Compare("BTC", "1D", 1000, "a", a, "b", b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if stat.WindowBars != 30 {
		t.Errorf("WindowBars = %d, want 30", stat.WindowBars)
	}
	if math.Abs(stat.Correlation-1.0) > 1e-12 {
		t.Errorf("Correlation = %v, want 1.0", stat.Correlation)
	}
}
