package domain

// TradingSession maps an asset to its trading-session calendar. Consumed
// from the ingestion collaborator; required by WEEK_END anchored timeframes.
type TradingSession struct {
	AssetID      string
	SessionID    string
	WeekStartDow int    // 0=Sunday .. 6=Saturday
	WeekEndDow   int    // 0=Sunday .. 6=Saturday
	Timezone     string // IANA name, e.g. "America/New_York"
}
