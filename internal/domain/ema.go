package domain

// AlignmentSource identifies the method used to build the bar sequence an
// EMA series was computed over. Series with the same nominal timeframe but
// different alignment sources coexist in the canonical table.
type AlignmentSource string

// Alignment source constants.
const (
	SourceTfDay          AlignmentSource = "tf_day"
	SourceCalendar       AlignmentSource = "calendar"
	SourceCalendarAnchor AlignmentSource = "calendar_anchor"
	SourceLegacyV2       AlignmentSource = "legacy_v2"
)

// EmaObservation is one point of an EMA series.
// Key: (asset_id, timestamp_ms, tf, period, alignment_source).
// D1/D2 are bar-over-bar first/second differences; D1Roll/D2Roll are
// differences versus the previous roll event, populated only on roll bars.
// Nil means the value is not yet defined for this point (series warm-up).
type EmaObservation struct {
	AssetID         string
	TimestampMs     int64
	Tf              string
	Period          int
	AlignmentSource AlignmentSource

	Ema    float64
	D1     *float64
	D2     *float64
	Roll   bool
	D1Roll *float64
	D2Roll *float64
}
