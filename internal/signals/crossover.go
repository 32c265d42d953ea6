package signals

import (
	"fmt"

	"regimelab/internal/domain"
)

// CrossoverRule opens long when the fast EMA crosses above the slow EMA
// and closes (or reverses into short) on the cross back down. Crossings
// are evaluated on consecutive bars, so the first bar never fires.
type CrossoverRule struct {
	FastPeriod int
	SlowPeriod int

	// LongOnly suppresses short entries; the down-cross then only exits.
	LongOnly bool
}

// RegimeLookup returns the composite regime key in force at a timestamp,
// or nil when none exists. Entries must never block on a nil result.
type RegimeLookup func(assetID string, tsMs int64) *string

// Run replays the rule over aligned bar and EMA series and returns every
// position it produced, open one last. bars, fast and slow must be aligned
// one-to-one on timestamp.
func (r *CrossoverRule) Run(book *Book, assetID string, bars []domain.Bar, fast, slow []*domain.EmaObservation, regimes RegimeLookup) ([]*domain.SignalPosition, error) {
	if len(bars) != len(fast) || len(bars) != len(slow) {
		return nil, fmt.Errorf("bar and ema series misaligned: %d bars, %d fast, %d slow", len(bars), len(fast), len(slow))
	}

	var produced []*domain.SignalPosition
	for i := 1; i < len(bars); i++ {
		prevDiff := fast[i-1].Ema - slow[i-1].Ema
		currDiff := fast[i].Ema - slow[i].Ema

		crossUp := prevDiff <= 0 && currDiff > 0
		crossDown := prevDiff >= 0 && currDiff < 0
		if !crossUp && !crossDown {
			continue
		}

		bar := bars[i]
		open := book.OpenPosition(assetID)

		if open != nil {
			exitSignal := (open.Direction == domain.DirectionLong && crossDown) ||
				(open.Direction == domain.DirectionShort && crossUp)
			if exitSignal {
				if _, err := book.Close(assetID, bar.TimestampMs, bar.Close); err != nil {
					return nil, err
				}
				open = nil
			}
		}

		if open == nil {
			dir := domain.DirectionLong
			if crossDown {
				if r.LongOnly {
					continue
				}
				dir = domain.DirectionShort
			}
			var key *string
			if regimes != nil {
				key = regimes(assetID, bar.TimestampMs)
			}
			features := map[string]float64{
				fmt.Sprintf("ema_%d", r.FastPeriod): fast[i].Ema,
				fmt.Sprintf("ema_%d", r.SlowPeriod): slow[i].Ema,
				"close": bar.Close,
			}
			pos, err := book.Open(assetID, dir, bar.TimestampMs, bar.Close, key, features)
			if err != nil {
				return nil, err
			}
			produced = append(produced, pos)
		}
	}
	return produced, nil
}
