package domain

// Direction of a signal position.
type Direction string

// Direction constants.
const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// PositionState is the lifecycle state of a signal position.
type PositionState string

// Position state constants.
const (
	PositionOpen   PositionState = "open"
	PositionClosed PositionState = "closed"
)

// SignalPosition is a signal-driven position lifecycle entity.
// Key: (asset_id, entry_ts_ms, signal_id). Created on entry, mutated exactly
// once on exit (open -> closed), never deleted.
type SignalPosition struct {
	AssetID   string
	SignalID  string
	Direction Direction
	State     PositionState

	EntryTsMs  int64
	EntryPrice float64
	ExitTsMs   *int64   // nil while open
	ExitPrice  *float64 // nil while open
	PnlPct     *float64 // direction-signed percent return, set on close

	// RegimeKey captured at entry; nil if no regime row existed yet.
	RegimeKey *string

	// FeatureSnapshot holds the indicator values the entry rule saw,
	// captured for reproducibility.
	FeatureSnapshot map[string]float64
}
