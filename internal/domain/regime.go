package domain

// FeatureTier controls which regime layers are enabled for an asset.
type FeatureTier string

// Feature tier constants.
const (
	TierLite     FeatureTier = "lite"     // L2 only
	TierStandard FeatureTier = "standard" // L1 + L2
	TierFull     FeatureTier = "full"     // L0 + L1 + L2
)

// RegimeLayer identifies one horizon of the hierarchical classifier.
type RegimeLayer int

// Regime layer constants. L3/L4 are reserved for intraday horizons and stay
// disabled until intraday data exists.
const (
	LayerL0 RegimeLayer = iota // monthly
	LayerL1                    // weekly
	LayerL2                    // daily
	LayerL3                    // reserved
	LayerL4                    // reserved (execution)
)

// OrderDirections constrains which order directions a policy allows.
type OrderDirections string

// Order direction constants.
const (
	OrdersLong  OrderDirections = "long"
	OrdersShort OrderDirections = "short"
	OrdersMixed OrderDirections = "mixed"
	OrdersNone  OrderDirections = "none"
)

// RegimePolicy is the trading policy tuple attached to a resolved regime.
type RegimePolicy struct {
	SizeMult float64
	StopMult float64
	Orders   OrderDirections
	GrossCap float64
	Pyramids bool
}

// RegimeRecord is the per-bar regime classification for an (asset, timeframe).
// Corresponds to the regimes table. Key: (asset_id, timestamp_ms, tf).
// Layer labels are nil when the layer is disabled for the record's tier.
type RegimeRecord struct {
	AssetID     string
	TimestampMs int64
	Tf          string

	L0 *string
	L1 *string
	L2 *string
	L3 *string
	L4 *string

	RegimeKey   string
	FeatureTier FeatureTier
	Policy      RegimePolicy
}
