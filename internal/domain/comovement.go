package domain

// ComovementStat records trailing-window comovement between two named EMA
// series for one (asset, timeframe). Research output only; not consumed by
// the classifier.
type ComovementStat struct {
	AssetID     string
	Tf          string
	TimestampMs int64 // window end
	SeriesA     string
	SeriesB     string
	WindowBars  int

	Correlation   float64
	SignAgreement float64 // fraction of bars where d1 signs agree
	BestLag       int     // lag of B vs A maximizing cross-correlation, in bars
	LeadSeries    string  // series name that leads at BestLag, "" for lag 0
}
