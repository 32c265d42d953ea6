package regime

import (
	"fmt"

	"regimelab/internal/domain"
)

// Tracker detects per-layer regime flips across consecutive records for
// the same (asset, timeframe, layer). It holds only in-memory comparison
// state; flip rows are persisted by the caller.
type Tracker struct {
	last map[string]*layerState
}

type layerState struct {
	label    string
	barsHeld int // bars the current label has persisted
	everSeen bool
}

// NewTracker creates an empty flip tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]*layerState)}
}

// Observe compares a new record against the previous one per layer and
// returns the flips it triggers. DurationBars is the bar count the prior
// regime persisted; nil on a layer's first-ever assignment.
func (t *Tracker) Observe(rec *domain.RegimeRecord) []*domain.RegimeFlip {
	labels := layerLabels(rec)

	var flips []*domain.RegimeFlip
	for _, layer := range []domain.RegimeLayer{domain.LayerL0, domain.LayerL1, domain.LayerL2, domain.LayerL3, domain.LayerL4} {
		label, ok := labels[layer]
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s|%s|%d", rec.AssetID, rec.Tf, layer)
		st, ok := t.last[key]
		if !ok || !st.everSeen {
			t.last[key] = &layerState{label: label, barsHeld: 1, everSeen: true}
			flips = append(flips, &domain.RegimeFlip{
				AssetID:     rec.AssetID,
				TimestampMs: rec.TimestampMs,
				Tf:          rec.Tf,
				Layer:       layer,
				NewRegime:   label,
			})
			continue
		}
		if st.label == label {
			st.barsHeld++
			continue
		}
		duration := st.barsHeld
		old := st.label
		flips = append(flips, &domain.RegimeFlip{
			AssetID:      rec.AssetID,
			TimestampMs:  rec.TimestampMs,
			Tf:           rec.Tf,
			Layer:        layer,
			OldRegime:    &old,
			NewRegime:    label,
			DurationBars: &duration,
		})
		st.label = label
		st.barsHeld = 1
	}
	return flips
}

// layerLabels extracts the non-nil layer labels of a record.
func layerLabels(rec *domain.RegimeRecord) map[domain.RegimeLayer]string {
	out := make(map[domain.RegimeLayer]string, 3)
	if rec.L0 != nil {
		out[domain.LayerL0] = *rec.L0
	}
	if rec.L1 != nil {
		out[domain.LayerL1] = *rec.L1
	}
	if rec.L2 != nil {
		out[domain.LayerL2] = *rec.L2
	}
	if rec.L3 != nil {
		out[domain.LayerL3] = *rec.L3
	}
	if rec.L4 != nil {
		out[domain.LayerL4] = *rec.L4
	}
	return out
}
