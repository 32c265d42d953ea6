package regime

import (
	"errors"
	"strings"
	"testing"

	"regimelab/internal/domain"
)

func obsWithSlope(ema, d1 float64) *domain.EmaObservation {
	d := d1
	return &domain.EmaObservation{Ema: ema, D1: &d}
}

func TestTrendLabel(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	cases := []struct {
		name string
		obs  *domain.EmaObservation
		want string
	}{
		{"rising slope", obsWithSlope(100, 0.5), TrendUp},
		{"falling slope", obsWithSlope(100, -0.5), TrendDown},
		{"flat slope", obsWithSlope(100, 0.00001), TrendSideways},
		{"warm-up nil d1", &domain.EmaObservation{Ema: 100}, TrendSideways},
		{"nil observation", nil, TrendSideways},
	}
	for _, tc := range cases {
		if got := c.trendLabel(tc.obs); got != tc.want {
			t.Errorf("%s: trend = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestLabelSeries_WarmupAndFormat(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	n := 30
	bars := make([]domain.Bar, n)
	emas := make([]*domain.EmaObservation, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= 1.01
		bars[i] = domain.Bar{
			AssetID:     "BTC",
			TimestampMs: int64(i+1) * 86_400_000,
			Tf:          "1D",
			Open:        price * 0.99,
			High:        price * 1.01,
			Low:         price * 0.98,
			Close:       price,
			Volume:      1000,
		}
		emas[i] = obsWithSlope(price, price*0.01)
	}

	labels, err := c.LabelSeries(bars, emas)
	if err != nil {
		t.Fatalf("LabelSeries failed: %v", err)
	}
	if len(labels) != n {
		t.Fatalf("Expected %d labels, got %d", n, len(labels))
	}
	for i, l := range labels {
		parts := strings.Split(l, "-")
		if len(parts) != 3 {
			t.Fatalf("Label %d malformed: %q", i, l)
		}
		if parts[0] != TrendUp {
			t.Errorf("Bar %d: steady uptrend must label Up, got %q", i, l)
		}
	}
	// Warm-up bars default vol and range to Normal.
	if labels[0] != "Up-Normal-Normal" {
		t.Errorf("First bar label = %q, want Up-Normal-Normal", labels[0])
	}
}

func TestLabelSeries_MisalignedSeries(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())
	bars := make([]domain.Bar, 5)
	emas := make([]*domain.EmaObservation, 4)
	if _, err := c.LabelSeries(bars, emas); err == nil {
		t.Error("Expected error for misaligned series lengths")
	}
}

func TestEnabledLayers(t *testing.T) {
	cases := []struct {
		tier domain.FeatureTier
		want []domain.RegimeLayer
	}{
		{domain.TierLite, []domain.RegimeLayer{domain.LayerL2}},
		{domain.TierStandard, []domain.RegimeLayer{domain.LayerL1, domain.LayerL2}},
		{domain.TierFull, []domain.RegimeLayer{domain.LayerL0, domain.LayerL1, domain.LayerL2}},
	}
	for _, tc := range cases {
		got := EnabledLayers(tc.tier)
		if len(got) != len(tc.want) {
			t.Fatalf("tier %s: %d layers, want %d", tc.tier, len(got), len(tc.want))
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("tier %s: layer[%d] = %d, want %d", tc.tier, i, got[i], tc.want[i])
			}
		}
	}
}

func TestResolver_RecordSetsEnabledLayersOnly(t *testing.T) {
	table := NewPolicyTable()
	r := NewResolver(table, domain.TierStandard)

	labels := map[domain.RegimeLayer]string{
		domain.LayerL0: "Up-Normal-Normal",
		domain.LayerL1: "Up-Normal-Normal",
		domain.LayerL2: "Up-Normal-Normal",
	}
	rec, err := r.Record("BTC", 86_400_000, "1D", labels)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec.L0 != nil {
		t.Error("L0 must be nil for standard tier")
	}
	if rec.L1 == nil || rec.L2 == nil {
		t.Fatal("L1 and L2 must be set for standard tier")
	}
	if rec.RegimeKey != "L1=Up-Normal-Normal|L2=Up-Normal-Normal" {
		t.Errorf("Unexpected regime key %q", rec.RegimeKey)
	}
	if rec.Policy.Orders == "" {
		t.Error("Record must carry a resolved policy")
	}
}

func TestResolver_RecordRejectsMissingEnabledLabel(t *testing.T) {
	table := NewPolicyTable()
	r := NewResolver(table, domain.TierStandard)

	// L1 is enabled for the standard tier but absent here. Dropping it from
	// the key would alias the lite-tier key "L2=..." and resolve the wrong
	// tier's policy, so the record must be rejected instead.
	labels := map[domain.RegimeLayer]string{
		domain.LayerL2: "Up-Normal-Normal",
	}
	_, err := r.Record("BTC", 86_400_000, "1D", labels)
	if !errors.Is(err, ErrPolicyUndefined) {
		t.Fatalf("got %v, want ErrPolicyUndefined", err)
	}
}
