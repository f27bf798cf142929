package domain

// MappingDiagnostics captures C5's weight-preservation accounting
// (spec.md §4.5).
type MappingDiagnostics struct {
	ExecutedBySymbol  map[string]float64 `json:"executed_by_symbol"`
	MappingReasons    map[string]string  `json:"mapping_reasons"` // universal symbol -> "direct"|"proxy"|"unmapped"|"too_expensive"
	UniversalSum      float64            `json:"universal_sum"`
	ProxySum          float64            `json:"proxy_sum"`
	ExecutedSumRaw    float64            `json:"executed_sum_raw"`
	ExecutedSumNorm   float64            `json:"executed_sum_normalized"`
	UnmappedWeight    float64            `json:"unmapped_weight"`
	RatioPreserved    bool               `json:"ratio_preserved"`
}

// BudgetDiagnostics captures C3's partition for this tick.
type BudgetDiagnostics struct {
	NAVPreInfusion  float64 `json:"nav_pre_infusion"`
	NAVPostInfusion float64 `json:"nav_post_infusion"`
	CoreBudget      float64 `json:"core_budget"`
	ReserveBudget   float64 `json:"reserve_budget"`
	MinCashFloor    float64 `json:"min_cash_floor"`
}

// OverlayDiagnostics captures C9's budget derivation.
type OverlayDiagnostics struct {
	Budget             float64 `json:"budget"`
	Nominal            float64 `json:"nominal"`
	RemainingCapacity  float64 `json:"remaining_capacity"`
	AvailableCash      float64 `json:"available_cash"`
	AddWeekIndex       int     `json:"add_week_index"`
	PacedCap           float64 `json:"paced_cap"`
}

// OptionActionDiagnostics records what C10 decided for each sleeve this
// tick, for observability (spec.md §6 diagnostics block).
type OptionActionDiagnostics struct {
	Insurance string `json:"insurance"` // "OPEN"|"HOLD"|"CLOSE"|"NONE"
	Growth    string `json:"growth"`
}

// Diagnostics is the full per-tick diagnostics bundle named in spec.md §6.
type Diagnostics struct {
	Mapping   MappingDiagnostics      `json:"mapping"`
	Budgets   BudgetDiagnostics       `json:"budgets"`
	Overlay   OverlayDiagnostics      `json:"overlay"`
	Options   OptionActionDiagnostics `json:"options"`
	Phase     Phase                   `json:"phase"`
	Severity  DislocationSeverity     `json:"severity"`
	Flags     []Flag                  `json:"flags"`
}

// InvariantReport is C11's output (spec.md §3, §4.11).
type InvariantReport struct {
	Violations []string `json:"violations"`
	OK         bool     `json:"ok"`
}

// TickResult is the ephemeral per-tick output (spec.md §3).
type TickResult struct {
	Diagnostics     Diagnostics      `json:"diagnostics"`
	InvariantReport InvariantReport  `json:"invariant_report"`
	Orders          []Order          `json:"orders"`
	CashEvents      []CashEvent      `json:"cash_events"`
	Unexecutable    bool             `json:"unexecutable"`
}
