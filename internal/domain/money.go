// Package domain holds the closed, enumerated-field records the engine
// operates on: portfolios, features, regimes, lifecycle state, option
// sleeves, orders and cash events. Nothing here performs I/O.
package domain

// Money is a plain USD amount. The engine is single-currency by design
// (spec.md Non-goals exclude multi-currency and FX); Money exists as a named
// type so monetary and non-monetary float64s are never accidentally mixed
// in a function signature.
type Money float64

// Clamp0 floors a Money value at zero. Used anywhere a negative balance
// would indicate a structural bug rather than a valid business state.
func Clamp0(m Money) Money {
	if m < 0 {
		return 0
	}
	return m
}
