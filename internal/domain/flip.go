package domain

// RegimeFlip records a per-layer regime transition.
// Key: (asset_id, timestamp_ms, tf, layer).
// DurationBars is the number of bars the prior regime persisted; nil on the
// first-ever assignment for the layer.
type RegimeFlip struct {
	AssetID      string
	TimestampMs  int64
	Tf           string
	Layer        RegimeLayer
	OldRegime    *string // nil on first assignment
	NewRegime    string
	DurationBars *int
}
