package domain

// Bar is one observation bar for an (asset, timeframe) series.
// Corresponds to the bars table. Rows are append-only: a bar for a
// historical timestamp is never mutated once computed.
type Bar struct {
	AssetID     string  // asset identifier
	TimestampMs int64   // bar timestamp, Unix ms, last trading day for aggregated bars
	Tf          string  // timeframe key from the registry
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	Roll        bool // true on anchor / multiple-of-horizon bars
}
