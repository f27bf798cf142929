package domain

// SeverityMetrics holds the three drawdown measures that drive tiering
// (spec.md §4.6).
type SeverityMetrics struct {
	PeakDD float64 `json:"peak_dd"`
	FastDD float64 `json:"fast_dd"`
	SlowDD float64 `json:"slow_dd"`
}

// DislocationSeverity is C6's output (spec.md §3).
type DislocationSeverity struct {
	Name                    string          `json:"name"`
	Metrics                 SeverityMetrics `json:"metrics"`
	Tier                    int             `json:"tier"`
	OverlayExtraExposurePct float64         `json:"overlay_extra_exposure_pct"`
	TierEngaged             bool            `json:"tier_engaged"`
}

// Tier names mirror the four configured severity bands of spec.md §6.
var TierNames = [4]string{"calm", "mild", "severe", "crisis"}
