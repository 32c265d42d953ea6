// Package bars builds per-timeframe observation bar sequences from raw
// daily price series. tf_day frames are a daily pass-through with
// day-count rolls; calendar frames group daily bars by calendar period
// and roll on the period's anchor bar.
package bars

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"regimelab/internal/domain"
)

// ErrMissingCalendarAnchorData is returned when an asset lacks the
// trading-session mapping a calendar-anchored timeframe requires.
var ErrMissingCalendarAnchorData = errors.New("missing trading session data for calendar anchor")

// Aggregator produces the ordered bar sequence for one timeframe from a
// raw daily series. It is stateless; incremental refresh passes the last
// processed timestamp to Append.
type Aggregator struct {
	def     domain.TimeframeDef
	session *domain.TradingSession // required for WEEK_END anchors
	loc     *time.Location
}

// NewAggregator creates an aggregator for the given timeframe definition.
// session may be nil for tf_day frames and for EOM/EOQ/EOY anchors (UTC is
// assumed); WEEK_END anchors fail with ErrMissingCalendarAnchorData.
func NewAggregator(def domain.TimeframeDef, session *domain.TradingSession) (*Aggregator, error) {
	loc := time.UTC
	if def.AlignmentType == domain.AlignmentCalendar {
		if def.CalendarAnchor == domain.AnchorWeekEnd && session == nil {
			return nil, fmt.Errorf("%w: timeframe %s", ErrMissingCalendarAnchorData, def.Tf)
		}
		if session != nil && session.Timezone != "" {
			l, err := time.LoadLocation(session.Timezone)
			if err != nil {
				return nil, fmt.Errorf("%w: bad timezone %q", ErrMissingCalendarAnchorData, session.Timezone)
			}
			loc = l
		}
	}
	return &Aggregator{def: def, session: session, loc: loc}, nil
}

// Rebuild computes the full bar sequence for the timeframe from scratch.
func (a *Aggregator) Rebuild(daily []domain.Bar) ([]domain.Bar, error) {
	return a.aggregate(daily)
}

// Append computes only bars strictly after the last processed timestamp.
// Historical bars are never recomputed; calendar aggregation still reads
// the full daily history so the current period's partial bar is correct.
func (a *Aggregator) Append(daily []domain.Bar, lastProcessedMs int64) ([]domain.Bar, error) {
	all, err := a.aggregate(daily)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, b := range all {
		if b.TimestampMs > lastProcessedMs {
			out = append(out, b)
		}
	}
	return out, nil
}

func (a *Aggregator) aggregate(daily []domain.Bar) ([]domain.Bar, error) {
	if len(daily) == 0 {
		return nil, nil
	}

	sorted := make([]domain.Bar, len(daily))
	copy(sorted, daily)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	switch a.def.AlignmentType {
	case domain.AlignmentTfDay:
		return a.aggregateTfDay(sorted), nil
	case domain.AlignmentCalendar:
		return a.aggregateCalendar(sorted)
	default:
		return nil, fmt.Errorf("unsupported alignment type %q", a.def.AlignmentType)
	}
}

// aggregateTfDay passes daily bars through, flagging roll on every bar
// whose 1-based index is a multiple of tf_qty.
func (a *Aggregator) aggregateTfDay(daily []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(daily))
	for i, b := range daily {
		bar := b
		bar.Tf = a.def.Tf
		bar.Roll = a.def.HasRollFlag && (i+1)%a.def.TfQty == 0
		out[i] = bar
	}
	return out
}

// aggregateCalendar groups daily bars by calendar period and emits one
// aggregated bar per period, timestamped at the period's last trading day.
// Roll is set only on completed periods: a period is complete once a bar
// from a later period exists. A holiday on the nominal anchor date rolls
// back to the last available trading day within the period, never skipping
// the roll.
func (a *Aggregator) aggregateCalendar(daily []domain.Bar) ([]domain.Bar, error) {
	type group struct {
		bar domain.Bar
	}
	var (
		keys   []string
		groups = make(map[string]*group)
	)

	for _, b := range daily {
		key, err := a.periodKey(b.TimestampMs)
		if err != nil {
			return nil, err
		}
		g, ok := groups[key]
		if !ok {
			bar := b
			bar.Tf = a.def.Tf
			groups[key] = &group{bar: bar}
			keys = append(keys, key)
			continue
		}
		// Input is sorted, so b is the latest bar of the period so far.
		g.bar.Close = b.Close
		g.bar.TimestampMs = b.TimestampMs
		g.bar.Volume += b.Volume
		if b.High > g.bar.High {
			g.bar.High = b.High
		}
		if b.Low < g.bar.Low {
			g.bar.Low = b.Low
		}
	}

	out := make([]domain.Bar, 0, len(keys))
	for i, key := range keys {
		bar := groups[key].bar
		// A period is complete once a later period has bars, or once its
		// own nominal anchor date has been reached.
		complete := i < len(keys)-1 || a.onAnchorDate(bar.TimestampMs)
		bar.Roll = a.def.HasRollFlag && complete
		out = append(out, bar)
	}
	return out, nil
}

// onAnchorDate reports whether the timestamp falls on the period's nominal
// anchor date (month/quarter/year end, or the session's week-end weekday).
func (a *Aggregator) onAnchorDate(tsMs int64) bool {
	t := time.UnixMilli(tsMs).In(a.loc)
	switch a.def.CalendarAnchor {
	case domain.AnchorEOM:
		return t.AddDate(0, 0, 1).Month() != t.Month()
	case domain.AnchorEOQ:
		next := t.AddDate(0, 0, 1)
		return next.Month() != t.Month() && int(t.Month())%3 == 0
	case domain.AnchorEOY:
		return t.Month() == time.December && t.Day() == 31
	case domain.AnchorWeekEnd:
		return int(t.Weekday()) == a.session.WeekEndDow
	default:
		return false
	}
}

// periodKey buckets a timestamp into its calendar period per the anchor.
func (a *Aggregator) periodKey(tsMs int64) (string, error) {
	t := time.UnixMilli(tsMs).In(a.loc)
	switch a.def.CalendarAnchor {
	case domain.AnchorEOM:
		return fmt.Sprintf("%04d-%02d", t.Year(), t.Month()), nil
	case domain.AnchorEOQ:
		q := (int(t.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", t.Year(), q), nil
	case domain.AnchorEOY:
		return fmt.Sprintf("%04d", t.Year()), nil
	case domain.AnchorWeekEnd:
		// Week identified by the date of its ending weekday: each trading
		// day belongs to the week closing on the next week_end_dow on or
		// after it.
		daysAhead := (a.session.WeekEndDow - int(t.Weekday()) + 7) % 7
		end := t.AddDate(0, 0, daysAhead)
		return fmt.Sprintf("W%04d-%02d-%02d", end.Year(), end.Month(), end.Day()), nil
	default:
		return "", fmt.Errorf("%w: anchor %q", ErrMissingCalendarAnchorData, a.def.CalendarAnchor)
	}
}

// AnchorFlagged returns the daily series with roll flagged on each completed
// period's anchor bar, without aggregating OHLCV. This is the
// calendar_anchor variant: same roll cadence as the aggregated calendar
// bars, but the EMA runs over the daily sequence.
func (a *Aggregator) AnchorFlagged(daily []domain.Bar) ([]domain.Bar, error) {
	if len(daily) == 0 {
		return nil, nil
	}

	sorted := make([]domain.Bar, len(daily))
	copy(sorted, daily)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	keys := make([]string, len(sorted))
	for i, b := range sorted {
		key, err := a.periodKey(b.TimestampMs)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	out := make([]domain.Bar, len(sorted))
	for i, b := range sorted {
		bar := b
		bar.Tf = a.def.Tf
		// Anchor bar = last bar of a completed period.
		lastOfPeriod := i+1 == len(sorted) || keys[i+1] != keys[i]
		complete := i+1 < len(sorted) || a.onAnchorDate(b.TimestampMs)
		bar.Roll = a.def.HasRollFlag && lastOfPeriod && complete
		out[i] = bar
	}
	return out, nil
}
