// Package ema runs the recursive EMA / difference computation for one
// (asset, timeframe, period, alignment_source) partition. The recursion is
// strictly sequential: each observation depends on the previous state.
package ema

import (
	"errors"
	"fmt"

	"regimelab/internal/domain"
)

// ErrIncompleteBarSequence is returned when the input bar sequence breaks
// the recursion's continuity assumption (non-increasing timestamps,
// duplicate bars, or a gap beyond the configured tolerance). The partition
// halts rather than producing a discontinuous series.
var ErrIncompleteBarSequence = errors.New("incomplete bar sequence")

// Engine computes EMA observation series over validated bar sequences.
type Engine struct {
	// maxGapMs is the largest tolerated distance between consecutive bars.
	// Zero disables the gap check (calendar frames have irregular spacing).
	maxGapMs int64
}

// NewEngine creates an engine with the given gap tolerance in ms.
func NewEngine(maxGapMs int64) *Engine {
	return &Engine{maxGapMs: maxGapMs}
}

// State is the per-partition recursion state: uninitialized until the first
// bar seeds the EMA, running afterwards.
type State struct {
	initialized bool
	ema         float64
	d1          *float64

	// Previous roll event, for roll-conditioned differences.
	rollSeen    bool
	lastRollEma float64
	lastRollD1  *float64

	lastTsMs int64
}

// Step advances the recursion by one bar and returns the observation for it.
func (s *State) Step(bar domain.Bar, alpha float64, period int, source domain.AlignmentSource) *domain.EmaObservation {
	obs := &domain.EmaObservation{
		AssetID:         bar.AssetID,
		TimestampMs:     bar.TimestampMs,
		Tf:              bar.Tf,
		Period:          period,
		AlignmentSource: source,
		Roll:            bar.Roll,
	}

	if !s.initialized {
		// First bar seeds the level; differences stay nil through warm-up.
		s.initialized = true
		s.ema = bar.Close
		obs.Ema = s.ema
	} else {
		prevEma := s.ema
		s.ema = alpha*bar.Close + (1-alpha)*prevEma
		d1 := s.ema - prevEma
		obs.Ema = s.ema
		obs.D1 = &d1
		if s.d1 != nil {
			d2 := d1 - *s.d1
			obs.D2 = &d2
		}
		s.d1 = &d1
	}

	if bar.Roll {
		if s.rollSeen {
			d1r := s.ema - s.lastRollEma
			obs.D1Roll = &d1r
			if s.lastRollD1 != nil {
				d2r := d1r - *s.lastRollD1
				obs.D2Roll = &d2r
			}
			s.lastRollD1 = &d1r
		}
		s.rollSeen = true
		s.lastRollEma = s.ema
	}

	s.lastTsMs = bar.TimestampMs
	return obs
}

// ComputeSeries validates the bar sequence and runs the full recursion,
// producing one observation per bar.
func (e *Engine) ComputeSeries(bars []domain.Bar, alpha float64, period int, source domain.AlignmentSource) ([]*domain.EmaObservation, error) {
	if err := e.validate(bars); err != nil {
		return nil, err
	}

	var state State
	out := make([]*domain.EmaObservation, len(bars))
	for i, bar := range bars {
		out[i] = state.Step(bar, alpha, period, source)
	}
	return out, nil
}

// validate checks the continuity assumptions of the recursion.
func (e *Engine) validate(bars []domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		delta := bars[i].TimestampMs - bars[i-1].TimestampMs
		if delta <= 0 {
			return fmt.Errorf("%w: non-increasing timestamp at index %d", ErrIncompleteBarSequence, i)
		}
		if e.maxGapMs > 0 && delta > e.maxGapMs {
			return fmt.Errorf("%w: gap of %dms at index %d exceeds tolerance %dms",
				ErrIncompleteBarSequence, delta, i, e.maxGapMs)
		}
	}
	return nil
}
