// Package config loads BotConfig, the enumerated configuration block of
// spec.md §6, from environment variables with .env support — following the
// corpus's Load()/getEnv*() pattern — and exposes NewDefaultConfiguration
// for zero-setup runs and tests, following the corpus's flat
// PlannerConfiguration convention.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// CapitalConfig is spec.md §6's "capital.*" block.
type CapitalConfig struct {
	CorePct    float64
	ReservePct float64
}

// RebalanceConfig is spec.md §6's "rebalance.*" block.
type RebalanceConfig struct {
	RegimeChangeKeys              []string
	Enabled                       bool
	PortfolioDriftThreshold       float64
	PositionDriftThreshold        float64
	MinTradeNotionalUSD           float64
	RebalanceDustSharesThreshold  int
	AlwaysRebalanceOnRegimeChange bool
	// ProtectHighQuality mirrors the corpus's CalculateSellQualityScore
	// idiom: a sell against a high-return/non-high-vol symbol is
	// diagnostics-flagged and ordered last rather than blocked outright.
	// Scope is deliberately narrower than spec.md's dislocation
	// sell-protection invariant, which this flag never overrides.
	ProtectHighQuality bool
}

// SeverityTier is one row of spec.md §6's "dislocation.tiers" table:
// {tier, peak_dd threshold, overlay_extra_exposure_pct}.
type SeverityTier struct {
	Tier                    int
	PeakDD                  float64
	OverlayExtraExposurePct float64
}

// EarlyExitConfig is spec.md §6's "early_exit.*" block.
type EarlyExitConfig struct {
	RiskOffConfidenceThreshold float64
	DeepDrawdownFailsafePct    float64
}

// DislocationConfig is spec.md §6's "dislocation.*" block.
type DislocationConfig struct {
	AnchorSymbol              string
	OverlayMinBudgetPolicy    string
	Tiers                     []SeverityTier
	EarlyExit                 EarlyExitConfig
	FastT2                    float64
	FastT3                    float64
	SlowT2                    float64
	SlowT3                    float64
	MinActiveTier             int
	FastWindowWeeks           int
	SlowWindowWeeks           int
	PeakLookbackWeeks         int
	DurationWeeksAdd          int
	DurationWeeksHold         int
	CooldownWeeks             int
	OverlayMinBudgetUSD       float64
	MaxTotalExposureCapPct    float64
	TierHysteresisPct         float64
	MinWeeksBetweenTierChange int
	Enabled                   bool
}

// OptionSleeveConfig is shared shape for spec.md §6's "insurance.*" and
// "growth.*" blocks.
type OptionSleeveConfig struct {
	SpendPct  float64
	MinMonths int
	MaxMonths int
}

// BotConfig is the full enumerated configuration of spec.md §6.
type BotConfig struct {
	AnchorSymbol               string
	InsuranceReserveMode       string
	Capital                    CapitalConfig
	Rebalance                  RebalanceConfig
	Dislocation                DislocationConfig
	Insurance                  OptionSleeveConfig
	Growth                     OptionSleeveConfig
	StartingCapitalUSD         float64
	MinCashPct                 float64
	MaxNotionalTradedPctPerRun float64
	MaxPositionPct             float64
	MaxPositions               int
}

// NewDefaultConfiguration returns every default enumerated in spec.md §6.
func NewDefaultConfiguration() BotConfig {
	return BotConfig{
		StartingCapitalUSD: 2000,
		Capital:            CapitalConfig{CorePct: 0.7, ReservePct: 0.3},
		MaxPositions:       4,
		MaxPositionPct:     0.35,
		MinCashPct:         0.0,
		MaxNotionalTradedPctPerRun: 1.0,
		Rebalance: RebalanceConfig{
			Enabled:                       true,
			PortfolioDriftThreshold:       0.05,
			PositionDriftThreshold:        0.05,
			MinTradeNotionalUSD:           25,
			RebalanceDustSharesThreshold:  0,
			AlwaysRebalanceOnRegimeChange: true,
			RegimeChangeKeys:              []string{"equity.label"},
			ProtectHighQuality:            true,
		},
		Dislocation: DislocationConfig{
			Enabled:           true,
			AnchorSymbol:      "SPY",
			MinActiveTier:     2,
			FastWindowWeeks:   1,
			SlowWindowWeeks:   4,
			PeakLookbackWeeks: 26,
			Tiers: []SeverityTier{
				{Tier: 0, PeakDD: 0.0, OverlayExtraExposurePct: 0.0},
				{Tier: 1, PeakDD: 0.10, OverlayExtraExposurePct: 0.05},
				{Tier: 2, PeakDD: 0.20, OverlayExtraExposurePct: 0.10},
				{Tier: 3, PeakDD: 0.30, OverlayExtraExposurePct: 0.15},
			},
			FastT2:                    0.10,
			FastT3:                    0.20,
			SlowT2:                    0.15,
			SlowT3:                    0.30,
			DurationWeeksAdd:          3,
			DurationWeeksHold:         10,
			CooldownWeeks:             2,
			OverlayMinBudgetUSD:       200,
			OverlayMinBudgetPolicy:    "gate",
			MaxTotalExposureCapPct:    0.7,
			TierHysteresisPct:         0.02,
			MinWeeksBetweenTierChange: 1,
			EarlyExit: EarlyExitConfig{
				RiskOffConfidenceThreshold: 0.7,
				DeepDrawdownFailsafePct:    0.3,
			},
		},
		Insurance: OptionSleeveConfig{SpendPct: 0.85, MinMonths: 3, MaxMonths: 6},
		Growth:    OptionSleeveConfig{SpendPct: 0.2, MinMonths: 3, MaxMonths: 6},
		InsuranceReserveMode: "light",
	}
}

// Load reads BotConfig overrides from the environment (.env first, then
// process env), layered on top of NewDefaultConfiguration. Only a subset
// of leaf fields is commonly tuned per-deployment; the rest keep spec.md
// §6 defaults unless explicitly overridden.
func Load() BotConfig {
	_ = godotenv.Load()

	cfg := NewDefaultConfiguration()

	cfg.StartingCapitalUSD = getEnvAsFloat("STARTING_CAPITAL_USD", cfg.StartingCapitalUSD)
	cfg.Capital.CorePct = getEnvAsFloat("CAPITAL_CORE_PCT", cfg.Capital.CorePct)
	cfg.Capital.ReservePct = getEnvAsFloat("CAPITAL_RESERVE_PCT", cfg.Capital.ReservePct)
	cfg.MaxPositions = getEnvAsInt("MAX_POSITIONS", cfg.MaxPositions)
	cfg.MaxPositionPct = getEnvAsFloat("MAX_POSITION_PCT", cfg.MaxPositionPct)
	cfg.MinCashPct = getEnvAsFloat("MIN_CASH_PCT", cfg.MinCashPct)
	cfg.Rebalance.Enabled = getEnvAsBool("REBALANCE_ENABLED", cfg.Rebalance.Enabled)
	cfg.Rebalance.PortfolioDriftThreshold = getEnvAsFloat("PORTFOLIO_DRIFT_THRESHOLD", cfg.Rebalance.PortfolioDriftThreshold)
	cfg.Rebalance.PositionDriftThreshold = getEnvAsFloat("POSITION_DRIFT_THRESHOLD", cfg.Rebalance.PositionDriftThreshold)
	cfg.Rebalance.MinTradeNotionalUSD = getEnvAsFloat("MIN_TRADE_NOTIONAL_USD", cfg.Rebalance.MinTradeNotionalUSD)
	cfg.Rebalance.ProtectHighQuality = getEnvAsBool("REBALANCE_PROTECT_HIGH_QUALITY", cfg.Rebalance.ProtectHighQuality)
	cfg.Dislocation.Enabled = getEnvAsBool("DISLOCATION_ENABLED", cfg.Dislocation.Enabled)
	cfg.Dislocation.AnchorSymbol = getEnv("ANCHOR_SYMBOL", cfg.Dislocation.AnchorSymbol)
	cfg.Dislocation.MinActiveTier = getEnvAsInt("MIN_ACTIVE_TIER", cfg.Dislocation.MinActiveTier)
	cfg.Dislocation.OverlayMinBudgetPolicy = getEnv("OVERLAY_MIN_BUDGET_POLICY", cfg.Dislocation.OverlayMinBudgetPolicy)
	cfg.InsuranceReserveMode = getEnv("INSURANCE_RESERVE_MODE", cfg.InsuranceReserveMode)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
