// Package mapper implements C5, the Execution Mapper (spec.md §4.5):
// resolves each universal symbol to an executable symbol, preferring self
// then an affordable proxy, and re-normalises executed weights. Grounded
// on the corpus's tagged-result convention (OK/PARTIAL/SKIPPED outcomes
// recorded per candidate rather than thrown) seen in
// internal/modules/opportunities/calculators/rebalance_sells.go's
// ExclusionCollector pattern.
package mapper

import (
	"sort"

	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// Reason is why a universal symbol mapped the way it did.
type Reason string

const (
	ReasonDirect       Reason = "direct"
	ReasonProxy        Reason = "proxy"
	ReasonUnmapped     Reason = "unmapped"
	ReasonTooExpensive Reason = "too_expensive"
)

// WeightedSymbol is one universal-target input to Map.
type WeightedSymbol struct {
	Symbol string
	Weight float64
}

// Mapped is one executed-symbol weight after mapping.
type Mapped struct {
	UniversalSymbol string
	ExecutedSymbol  string
	Reason          Reason
	Weight          float64 // raw, pre-normalisation
}

// Result bundles mapped weights with the diagnostics spec.md §4.5 requires.
type Result struct {
	Mapped      []Mapped
	Diagnostics domain.MappingDiagnostics
	Flags       []domain.Flag
}

// Map implements spec.md §4.5 step by step for every (universal, weight)
// pair in `targets`. `proxyMap` lists proxy symbols in priority order.
func Map(targets []WeightedSymbol, prices map[string]float64, budget float64, proxyMap map[string][]string) Result {
	res := Result{Diagnostics: domain.MappingDiagnostics{
		ExecutedBySymbol: make(map[string]float64),
		MappingReasons:   make(map[string]string),
	}}

	var universalSum, proxySum, rawSum, unmappedWeight float64
	for _, t := range targets {
		universalSum += t.Weight
		allocation := t.Weight * budget
		price, havePrice := prices[t.Symbol]

		if havePrice && price > 0 && allocation >= price {
			res.Mapped = append(res.Mapped, Mapped{UniversalSymbol: t.Symbol, ExecutedSymbol: t.Symbol, Reason: ReasonDirect, Weight: t.Weight})
			res.Diagnostics.MappingReasons[t.Symbol] = string(ReasonDirect)
			rawSum += t.Weight
			continue
		}

		mappedToProxy := false
		for _, proxy := range proxyMap[t.Symbol] {
			proxyPrice, ok := prices[proxy]
			if !ok || proxyPrice <= 0 {
				continue
			}
			if proxyPrice <= allocation {
				res.Mapped = append(res.Mapped, Mapped{UniversalSymbol: t.Symbol, ExecutedSymbol: proxy, Reason: ReasonProxy, Weight: t.Weight})
				res.Diagnostics.MappingReasons[t.Symbol] = string(ReasonProxy)
				rawSum += t.Weight
				proxySum += t.Weight
				mappedToProxy = true
				break
			}
		}
		if mappedToProxy {
			continue
		}

		reason := ReasonTooExpensive
		if !havePrice || price <= 0 {
			reason = ReasonUnmapped
		}
		res.Diagnostics.MappingReasons[t.Symbol] = string(reason)
		unmappedWeight += t.Weight
		res.Flags = append(res.Flags, domain.Flag{
			Code: "MAPPING_WEIGHT_DROPPED", Severity: domain.SeverityWarn,
			Message:  "symbol could not be mapped to an affordable executable symbol",
			Observed: map[string]any{"symbol": t.Symbol, "reason": string(reason), "weight": t.Weight},
		})
	}

	for i := range res.Mapped {
		res.Diagnostics.ExecutedBySymbol[res.Mapped[i].ExecutedSymbol] += res.Mapped[i].Weight
	}

	if rawSum > 0 {
		for symbol, w := range res.Diagnostics.ExecutedBySymbol {
			res.Diagnostics.ExecutedBySymbol[symbol] = w / rawSum
		}
	}

	var normSum float64
	for _, w := range res.Diagnostics.ExecutedBySymbol {
		normSum += w
	}

	res.Diagnostics.UniversalSum = universalSum
	res.Diagnostics.ProxySum = proxySum
	res.Diagnostics.ExecutedSumRaw = rawSum
	res.Diagnostics.ExecutedSumNorm = normSum
	res.Diagnostics.UnmappedWeight = unmappedWeight
	res.Diagnostics.RatioPreserved = approxEqual(rawSum+unmappedWeight, universalSum, 1e-6)

	// Sort mapped output for determinism (spec.md §4.1's "bit-identical
	// output for identical inputs" requirement applies engine-wide).
	sort.SliceStable(res.Mapped, func(i, j int) bool { return res.Mapped[i].UniversalSymbol < res.Mapped[j].UniversalSymbol })

	return res
}

func approxEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}
