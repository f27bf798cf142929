package domain

// BarInterval is the detected sampling cadence of a symbol's price history
// (spec.md §4.1): median inter-sample gap >= 5 days is weekly, else daily.
type BarInterval string

const (
	BarDaily  BarInterval = "daily"
	BarWeekly BarInterval = "weekly"
)

// PctileBucket is a cross-sectional percentile classification.
type PctileBucket string

const (
	PctileLow     PctileBucket = "low"
	PctileMid     PctileBucket = "mid"
	PctileHigh    PctileBucket = "high"
	PctileUnknown PctileBucket = "unknown"
)

// Feature is the immutable per-symbol snapshot produced by the Price &
// Feature Computer (spec.md §4.1, C1).
type Feature struct {
	Symbol              string       `json:"symbol"`
	BarInterval         BarInterval  `json:"bar_interval"`
	Ret60PctileBucket   PctileBucket `json:"ret60_pctile_bucket"`
	VolPctileBucket     PctileBucket `json:"vol_pctile_bucket"`
	Price               float64      `json:"price"`
	Return5             float64      `json:"return_5"`
	Return20            float64      `json:"return_20"`
	Return60            float64      `json:"return_60"`
	Vol20               float64      `json:"vol_20"`
	MDD60               float64      `json:"mdd_60"`
	MA50                float64      `json:"ma_50"`
	MA200               float64      `json:"ma_200"`
	HistorySamples      int          `json:"history_samples"`
	HistoryUniqueCloses int          `json:"history_unique_closes"`
}

// WindowSet is the lookback-bar configuration for one bar interval
// (spec.md §4.1 window constants map).
type WindowSet struct {
	Short     int // return_5 analogue (weekly: 1)
	Medium    int // return_20 analogue (weekly: 4)
	Long      int // return_60 analogue (weekly: 12)
	MAShort   int // ma_50 analogue (weekly: 10)
	MALong    int // ma_200 analogue (weekly: 40)
}

// DailyWindows and WeeklyWindows are the two fixed window sets named in
// spec.md §4.1. The engine is built for the weekly cadence the rest of the
// spec assumes, but both are retained so bar-interval detection has a real
// daily fallback rather than silently reusing weekly windows.
var (
	DailyWindows  = WindowSet{Short: 5, Medium: 20, Long: 60, MAShort: 50, MALong: 200}
	WeeklyWindows = WindowSet{Short: 1, Medium: 4, Long: 12, MAShort: 10, MALong: 40}
)

// WindowsFor returns the window set for a detected bar interval.
func WindowsFor(interval BarInterval) WindowSet {
	if interval == BarDaily {
		return DailyWindows
	}
	return WeeklyWindows
}
