package timeframe

import (
	"errors"
	"testing"

	"regimelab/internal/domain"
)

func TestRegistry_ResolveKnown(t *testing.T) {
	r := NewDefaultRegistry()

	d, err := r.Resolve("1W_CAL")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.AlignmentType != domain.AlignmentCalendar {
		t.Errorf("Expected calendar alignment, got %s", d.AlignmentType)
	}
	if d.CalendarAnchor != domain.AnchorWeekEnd {
		t.Errorf("Expected WEEK_END anchor, got %s", d.CalendarAnchor)
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Resolve("4H")
	if !errors.Is(err, ErrUnknownTimeframe) {
		t.Errorf("Expected ErrUnknownTimeframe, got %v", err)
	}
}

func TestRegistry_AlphaBoundsAndMonotonicity(t *testing.T) {
	r := NewDefaultRegistry()

	for _, d := range r.All() {
		prev := 2.0 // above the (0,1] bound, so the first alpha always decreases
		for _, period := range []int{1, 2, 5, 10, 20, 50, 200} {
			a, err := r.Alpha(d.Tf, period)
			if err != nil {
				t.Fatalf("Alpha(%s, %d) failed: %v", d.Tf, period, err)
			}
			if a <= 0 || a > 1 {
				t.Errorf("Alpha(%s, %d) = %v out of (0, 1]", d.Tf, period, a)
			}
			if a >= prev {
				t.Errorf("Alpha(%s, %d) = %v not strictly decreasing (prev %v)", d.Tf, period, a, prev)
			}
			prev = a
		}
	}
}

func TestRegistry_AlphaInvalidPeriod(t *testing.T) {
	r := NewDefaultRegistry()

	for _, period := range []int{0, -1, -20} {
		_, err := r.Alpha("1D", period)
		if !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("Alpha(1D, %d): expected ErrInvalidPeriod, got %v", period, err)
		}
	}
}

func TestRegistry_AlphaUnknownTimeframe(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Alpha("15m", 20)
	if !errors.Is(err, ErrUnknownTimeframe) {
		t.Errorf("Expected ErrUnknownTimeframe, got %v", err)
	}
}

func TestNewRegistry_RejectsAnchorMismatch(t *testing.T) {
	// tf_day frame with an anchor violates the registry invariant.
	_, err := NewRegistry([]domain.TimeframeDef{{
		Tf: "BAD", BaseUnit: domain.UnitDay, TfQty: 1, TfDaysNominal: 1,
		AlignmentType:  domain.AlignmentTfDay,
		CalendarAnchor: domain.AnchorEOM,
		RollPolicy:     domain.RollMultipleOfTf,
	}})
	if err == nil {
		t.Error("Expected error for anchor on tf_day frame")
	}

	// calendar frame without an anchor is equally invalid.
	_, err = NewRegistry([]domain.TimeframeDef{{
		Tf: "BAD2", BaseUnit: domain.UnitMonth, TfQty: 1, TfDaysNominal: 30,
		AlignmentType: domain.AlignmentCalendar,
		RollPolicy:    domain.RollCalendarAnchor,
	}})
	if err == nil {
		t.Error("Expected error for calendar frame without anchor")
	}
}

func TestNewRegistry_RejectsCalendarRollOnTfDay(t *testing.T) {
	_, err := NewRegistry([]domain.TimeframeDef{{
		Tf: "BAD3", BaseUnit: domain.UnitDay, TfQty: 1, TfDaysNominal: 1,
		AlignmentType: domain.AlignmentTfDay,
		RollPolicy:    domain.RollCalendarAnchor,
	}})
	if err == nil {
		t.Error("Expected error for calendar_anchor roll policy on tf_day frame")
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	def := domain.TimeframeDef{
		Tf: "1D", BaseUnit: domain.UnitDay, TfQty: 1, TfDaysNominal: 1,
		AlignmentType: domain.AlignmentTfDay, RollPolicy: domain.RollMultipleOfTf,
	}
	_, err := NewRegistry([]domain.TimeframeDef{def, def})
	if err == nil {
		t.Error("Expected error for duplicate timeframe key")
	}
}
