package domain

// EngineState is the full set of state the engine owns between ticks
// (spec.md §5: "Portfolio, SleeveIndex, LifecycleState, OptionSleeves").
// The engine never holds this as a package-level global; callers own an
// instance and thread it through Tick explicitly (spec.md §9's
// global-mutable-state redesign direction).
type EngineState struct {
	Portfolio       Portfolio       `json:"portfolio"`
	SleeveIndex     SleeveIndex     `json:"sleeve_index"`
	LifecycleState  LifecycleState  `json:"lifecycle_state"`
	OptionSleeves   OptionSleeves   `json:"option_sleeves"`
}

// NewEngineState bootstraps a fresh EngineState per spec.md §3's lifecycle
// notes: cash = starting_capital, holdings empty, sleeves empty, lifecycle
// INACTIVE, both option sleeves INACTIVE.
func NewEngineState(startingCapital Money) EngineState {
	return EngineState{
		Portfolio:      NewPortfolio(startingCapital),
		SleeveIndex:    NewSleeveIndex(),
		LifecycleState: NewLifecycleState(),
		OptionSleeves:  NewOptionSleeves(),
	}
}
