// Package timeframe holds the canonical timeframe registry and the EMA
// alpha resolver. The registry is the single source of truth for day-count
// assumptions; every other component resolves spans through it.
package timeframe

import (
	"errors"
	"fmt"
	"sort"

	"regimelab/internal/domain"
)

// Resolver errors.
var (
	// ErrUnknownTimeframe is returned when a timeframe key is not registered.
	ErrUnknownTimeframe = errors.New("unknown timeframe")

	// ErrInvalidPeriod is returned for period <= 0.
	ErrInvalidPeriod = errors.New("invalid period: must be positive")
)

// Registry is an immutable lookup of timeframe definitions, built once at
// process start and passed by reference to all workers.
type Registry struct {
	defs map[string]domain.TimeframeDef
}

// NewRegistry builds a registry from the given definitions and validates
// the registry invariants:
//   - calendar_anchor is non-empty iff alignment_type is calendar
//   - roll_policy calendar_anchor implies alignment_type calendar
//   - tf_qty and tf_days_nominal are positive
func NewRegistry(defs []domain.TimeframeDef) (*Registry, error) {
	m := make(map[string]domain.TimeframeDef, len(defs))
	for _, d := range defs {
		if d.Tf == "" {
			return nil, fmt.Errorf("timeframe with empty key")
		}
		if _, exists := m[d.Tf]; exists {
			return nil, fmt.Errorf("duplicate timeframe %q", d.Tf)
		}
		if d.TfQty <= 0 {
			return nil, fmt.Errorf("timeframe %q: tf_qty must be positive", d.Tf)
		}
		if d.TfDaysNominal <= 0 {
			return nil, fmt.Errorf("timeframe %q: tf_days_nominal must be positive", d.Tf)
		}
		hasAnchor := d.CalendarAnchor != domain.AnchorNone
		isCalendar := d.AlignmentType == domain.AlignmentCalendar
		if hasAnchor != isCalendar {
			return nil, fmt.Errorf("timeframe %q: calendar_anchor must be set iff alignment_type is calendar", d.Tf)
		}
		if d.RollPolicy == domain.RollCalendarAnchor && !isCalendar {
			return nil, fmt.Errorf("timeframe %q: calendar_anchor roll policy requires calendar alignment", d.Tf)
		}
		m[d.Tf] = d
	}
	return &Registry{defs: m}, nil
}

// NewDefaultRegistry builds the registry with the built-in timeframe set.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(defaultDefs())
	if err != nil {
		// The built-in set is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return r
}

// Resolve returns the definition for tf or ErrUnknownTimeframe.
func (r *Registry) Resolve(tf string) (domain.TimeframeDef, error) {
	d, ok := r.defs[tf]
	if !ok {
		return domain.TimeframeDef{}, fmt.Errorf("%w: %q", ErrUnknownTimeframe, tf)
	}
	return d, nil
}

// Alpha computes the EMA decay constant for (tf, period) as
// 2 / (span_days + 1) with span_days = tf_days_nominal * period.
func (r *Registry) Alpha(tf string, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
	}
	d, err := r.Resolve(tf)
	if err != nil {
		return 0, err
	}
	spanDays := float64(d.TfDaysNominal) * float64(period)
	return 2.0 / (spanDays + 1.0), nil
}

// All returns every definition ordered by sort_order.
func (r *Registry) All() []domain.TimeframeDef {
	out := make([]domain.TimeframeDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// defaultDefs is the built-in timeframe set: pure day-count horizons,
// semantic weekly/monthly aliases, and calendar-anchored frames.
func defaultDefs() []domain.TimeframeDef {
	return []domain.TimeframeDef{
		{Tf: "1D", BaseUnit: domain.UnitDay, TfQty: 1, TfDaysNominal: 1,
			AlignmentType: domain.AlignmentTfDay, RollPolicy: domain.RollMultipleOfTf,
			HasRollFlag: true, SortOrder: 10},
		{Tf: "3D", BaseUnit: domain.UnitDay, TfQty: 3, TfDaysNominal: 3,
			AlignmentType: domain.AlignmentTfDay, RollPolicy: domain.RollMultipleOfTf,
			HasRollFlag: true, SortOrder: 20},
		{Tf: "1W", BaseUnit: domain.UnitWeek, TfQty: 1, TfDaysNominal: 7,
			AlignmentType: domain.AlignmentTfDay, RollPolicy: domain.RollMultipleOfTf,
			HasRollFlag: true, SortOrder: 30},
		{Tf: "1W_CAL", BaseUnit: domain.UnitWeek, TfQty: 1, TfDaysNominal: 7,
			AlignmentType: domain.AlignmentCalendar, CalendarAnchor: domain.AnchorWeekEnd,
			RollPolicy: domain.RollCalendarAnchor, HasRollFlag: true, SortOrder: 40},
		{Tf: "1M", BaseUnit: domain.UnitMonth, TfQty: 1, TfDaysNominal: 30,
			AlignmentType: domain.AlignmentTfDay, RollPolicy: domain.RollMultipleOfTf,
			HasRollFlag: true, SortOrder: 50},
		{Tf: "1M_CAL", BaseUnit: domain.UnitMonth, TfQty: 1, TfDaysNominal: 30,
			AlignmentType: domain.AlignmentCalendar, CalendarAnchor: domain.AnchorEOM,
			RollPolicy: domain.RollCalendarAnchor, HasRollFlag: true, SortOrder: 60},
		{Tf: "1Q_CAL", BaseUnit: domain.UnitQuarter, TfQty: 1, TfDaysNominal: 91,
			AlignmentType: domain.AlignmentCalendar, CalendarAnchor: domain.AnchorEOQ,
			RollPolicy: domain.RollCalendarAnchor, HasRollFlag: true, SortOrder: 70},
		{Tf: "1Y_CAL", BaseUnit: domain.UnitYear, TfQty: 1, TfDaysNominal: 365,
			AlignmentType: domain.AlignmentCalendar, CalendarAnchor: domain.AnchorEOY,
			RollPolicy: domain.RollCalendarAnchor, HasRollFlag: true, SortOrder: 80},
	}
}
