package domain

// BaseUnit is the calendar unit a timeframe is expressed in.
type BaseUnit string

// Base unit constants.
const (
	UnitDay     BaseUnit = "D"
	UnitWeek    BaseUnit = "W"
	UnitMonth   BaseUnit = "M"
	UnitQuarter BaseUnit = "Q"
	UnitYear    BaseUnit = "Y"
)

// AlignmentType describes how a timeframe's bar sequence is built.
type AlignmentType string

// Alignment type constants.
const (
	AlignmentTfDay    AlignmentType = "tf_day"   // pure day-count over daily bars
	AlignmentCalendar AlignmentType = "calendar" // anchored to calendar periods
)

// CalendarAnchor identifies the calendar boundary a calendar-aligned
// timeframe rolls on. Empty for tf_day frames.
type CalendarAnchor string

// Calendar anchor constants.
const (
	AnchorNone    CalendarAnchor = ""
	AnchorEOM     CalendarAnchor = "EOM"
	AnchorEOQ     CalendarAnchor = "EOQ"
	AnchorEOY     CalendarAnchor = "EOY"
	AnchorWeekEnd CalendarAnchor = "WEEK_END"
)

// RollPolicy describes when a bar is flagged as a roll event.
type RollPolicy string

// Roll policy constants.
const (
	RollMultipleOfTf   RollPolicy = "multiple_of_tf"
	RollCalendarAnchor RollPolicy = "calendar_anchor"
)

// TimeframeDef is the canonical definition of a supported timeframe.
// Corresponds to the timeframe registry reference table. Immutable after
// registry construction.
type TimeframeDef struct {
	Tf            string         // unique key, e.g. "1D", "1W_CAL"
	BaseUnit      BaseUnit       // D | W | M | Q | Y
	TfQty         int            // positive multiple of the base unit
	TfDaysNominal int            // approximate span in days, drives alpha
	AlignmentType AlignmentType  // tf_day | calendar
	CalendarAnchor CalendarAnchor // non-empty iff AlignmentType == calendar
	RollPolicy    RollPolicy     // multiple_of_tf | calendar_anchor
	HasRollFlag   bool
	SortOrder     int
}
