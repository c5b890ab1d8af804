package riskscore

import (
	"fmt"
	"math"
	"strings"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// DimensionAssessor scores a single risk dimension. Implementations are
// pure: the same observation always yields the same assessment.
type DimensionAssessor interface {
	Dimension() domain.RiskDimension
	Assess(obs Observation) (domain.DimensionAssessment, error)
}

// gradeHigh maps a metric where larger values mean more risk. Cutoffs are
// inclusive on the risky side.
func gradeHigh(v, warn, danger float64) domain.RiskState {
	switch {
	case v >= danger:
		return domain.RiskDangerous
	case v >= warn:
		return domain.RiskWarning
	default:
		return domain.RiskSafe
	}
}

// gradeLow maps a metric where smaller values mean more risk.
func gradeLow(v, warn, danger float64) domain.RiskState {
	switch {
	case v <= danger:
		return domain.RiskDangerous
	case v <= warn:
		return domain.RiskWarning
	default:
		return domain.RiskSafe
	}
}

// buildAssessment folds graded factors into the dimension result. The state
// is the maximum factor state; the reason names the first factor holding it.
func buildAssessment(dim domain.RiskDimension, factors []domain.RiskFactor, thresholds map[string]float64) domain.DimensionAssessment {
	state := domain.RiskSafe
	reason := "all metrics within safe bounds"
	for _, f := range factors {
		if f.State > state {
			state = f.State
			reason = fmt.Sprintf("%s %s (%.4f)", f.Name, f.State, f.Value)
		}
	}
	return domain.DimensionAssessment{
		Dimension:  dim,
		State:      state,
		Reason:     reason,
		Factors:    factors,
		Thresholds: thresholds,
	}
}

// insufficientAssessment is the fail-safe result for a dimension that was
// not given its minimum inputs: assume DANGEROUS rather than guess.
func insufficientAssessment(dim domain.RiskDimension, fields ...string) (domain.DimensionAssessment, error) {
	return domain.DimensionAssessment{
		Dimension: dim,
		State:     domain.RiskDangerous,
		Reason:    "insufficient data: " + strings.Join(fields, ", "),
	}, &MissingFieldsError{Dimension: dim, Fields: fields}
}

// MarketAssessor grades price momentum, funding pressure and order-book
// skew. The 24h price change is the minimum input.
type MarketAssessor struct {
	cfg config.ScoringConfig
}

func NewMarketAssessor(cfg config.ScoringConfig) *MarketAssessor {
	return &MarketAssessor{cfg: cfg}
}

func (a *MarketAssessor) Dimension() domain.RiskDimension { return domain.DimensionMarket }

func (a *MarketAssessor) Assess(obs Observation) (domain.DimensionAssessment, error) {
	if obs.PriceChange24hPct == nil {
		return insufficientAssessment(a.Dimension(), "price_change_24h_pct")
	}

	factors := []domain.RiskFactor{{
		Name:  "price_change_24h_pct",
		Value: *obs.PriceChange24hPct,
		State: gradeHigh(math.Abs(*obs.PriceChange24hPct), a.cfg.PriceChangeWarnPct, a.cfg.PriceChangeDangerPct),
	}}
	if obs.FundingRatePct != nil {
		factors = append(factors, domain.RiskFactor{
			Name:  "funding_rate_pct",
			Value: *obs.FundingRatePct,
			State: gradeHigh(math.Abs(*obs.FundingRatePct), a.cfg.FundingWarnPct, a.cfg.FundingDangerPct),
		})
	}
	if obs.OrderBookImbalance != nil {
		skew := math.Abs(*obs.OrderBookImbalance - 0.5)
		factors = append(factors, domain.RiskFactor{
			Name:  "order_book_imbalance",
			Value: *obs.OrderBookImbalance,
			State: gradeHigh(skew, a.cfg.ImbalanceWarn, a.cfg.ImbalanceDanger),
		})
	}

	return buildAssessment(a.Dimension(), factors, map[string]float64{
		"price_change_warn_pct":   a.cfg.PriceChangeWarnPct,
		"price_change_danger_pct": a.cfg.PriceChangeDangerPct,
		"funding_warn_pct":        a.cfg.FundingWarnPct,
		"funding_danger_pct":      a.cfg.FundingDangerPct,
		"imbalance_warn":          a.cfg.ImbalanceWarn,
		"imbalance_danger":        a.cfg.ImbalanceDanger,
	}), nil
}

// LiquidityAssessor grades spread, book depth and volume participation.
// The bid-ask spread is the minimum input. Depth and volume ratio grade
// inverted: thin books and drying volume are the risk.
type LiquidityAssessor struct {
	cfg config.ScoringConfig
}

func NewLiquidityAssessor(cfg config.ScoringConfig) *LiquidityAssessor {
	return &LiquidityAssessor{cfg: cfg}
}

func (a *LiquidityAssessor) Dimension() domain.RiskDimension { return domain.DimensionLiquidity }

func (a *LiquidityAssessor) Assess(obs Observation) (domain.DimensionAssessment, error) {
	if obs.SpreadPct == nil {
		return insufficientAssessment(a.Dimension(), "spread_pct")
	}

	factors := []domain.RiskFactor{{
		Name:  "spread_pct",
		Value: *obs.SpreadPct,
		State: gradeHigh(*obs.SpreadPct, a.cfg.SpreadWarnPct, a.cfg.SpreadDangerPct),
	}}
	if obs.DepthWithin1Pct != nil {
		factors = append(factors, domain.RiskFactor{
			Name:  "depth_within_1pct",
			Value: *obs.DepthWithin1Pct,
			State: gradeLow(*obs.DepthWithin1Pct, a.cfg.DepthWarnQuote, a.cfg.DepthDangerQuote),
		})
	}
	if obs.VolumeRatio24h != nil {
		factors = append(factors, domain.RiskFactor{
			Name:  "volume_ratio_24h",
			Value: *obs.VolumeRatio24h,
			State: gradeLow(*obs.VolumeRatio24h, a.cfg.VolumeRatioWarn, a.cfg.VolumeRatioDanger),
		})
	}

	return buildAssessment(a.Dimension(), factors, map[string]float64{
		"spread_warn_pct":     a.cfg.SpreadWarnPct,
		"spread_danger_pct":   a.cfg.SpreadDangerPct,
		"depth_warn_quote":    a.cfg.DepthWarnQuote,
		"depth_danger_quote":  a.cfg.DepthDangerQuote,
		"volume_ratio_warn":   a.cfg.VolumeRatioWarn,
		"volume_ratio_danger": a.cfg.VolumeRatioDanger,
	}), nil
}

// VolatilityAssessor grades ATR, realized volatility and Bollinger band
// width, all derived from the raw candle series through the indicator
// bridge. A series long enough for the longest warm-up is the minimum.
type VolatilityAssessor struct {
	cfg config.ScoringConfig
}

func NewVolatilityAssessor(cfg config.ScoringConfig) *VolatilityAssessor {
	return &VolatilityAssessor{cfg: cfg}
}

func (a *VolatilityAssessor) Dimension() domain.RiskDimension { return domain.DimensionVolatility }

func (a *VolatilityAssessor) Assess(obs Observation) (domain.DimensionAssessment, error) {
	ind := ComputeIndicators(obs.Highs, obs.Lows, obs.Closes, a.cfg)
	if ind == nil {
		return insufficientAssessment(a.Dimension(), "candles")
	}

	factors := []domain.RiskFactor{
		{
			Name:  "atr_pct",
			Value: ind.ATRPct,
			State: gradeHigh(ind.ATRPct, a.cfg.ATRWarnPct, a.cfg.ATRDangerPct),
		},
		{
			Name:  "realized_vol_pct",
			Value: ind.RealizedVolPct,
			State: gradeHigh(ind.RealizedVolPct, a.cfg.RealizedVolWarnPct, a.cfg.RealizedVolDangerPct),
		},
		{
			Name:  "bollinger_width",
			Value: ind.BollingerWidth,
			State: gradeHigh(ind.BollingerWidth, a.cfg.BollingerWidthWarn, a.cfg.BollingerWidthDanger),
		},
	}

	return buildAssessment(a.Dimension(), factors, map[string]float64{
		"atr_warn_pct":            a.cfg.ATRWarnPct,
		"atr_danger_pct":          a.cfg.ATRDangerPct,
		"realized_vol_warn_pct":   a.cfg.RealizedVolWarnPct,
		"realized_vol_danger_pct": a.cfg.RealizedVolDangerPct,
		"bollinger_width_warn":    a.cfg.BollingerWidthWarn,
		"bollinger_width_danger":  a.cfg.BollingerWidthDanger,
	}), nil
}

// SystemIntegrityAssessor grades the platform itself: aggregate data-source
// health, the count of CRITICAL sources and the recent processing error
// rate. The aggregate health score is the minimum input. Health cutoffs
// reuse the canonical 85/65 state boundaries so the two subsystems cannot
// disagree about what degraded means.
type SystemIntegrityAssessor struct {
	cfg config.ScoringConfig
}

func NewSystemIntegrityAssessor(cfg config.ScoringConfig) *SystemIntegrityAssessor {
	return &SystemIntegrityAssessor{cfg: cfg}
}

func (a *SystemIntegrityAssessor) Dimension() domain.RiskDimension {
	return domain.DimensionSystemIntegrity
}

func (a *SystemIntegrityAssessor) Assess(obs Observation) (domain.DimensionAssessment, error) {
	if obs.HealthScore == nil {
		return insufficientAssessment(a.Dimension(), "health_score")
	}

	healthState := domain.RiskSafe
	switch domain.HealthStateFromScore(*obs.HealthScore) {
	case domain.HealthDegraded:
		healthState = domain.RiskWarning
	case domain.HealthCritical:
		healthState = domain.RiskDangerous
	}

	factors := []domain.RiskFactor{{
		Name:  "health_score",
		Value: *obs.HealthScore,
		State: healthState,
	}}
	if obs.CriticalSources != nil {
		factors = append(factors, domain.RiskFactor{
			Name:  "critical_sources",
			Value: float64(*obs.CriticalSources),
			State: gradeHigh(float64(*obs.CriticalSources), float64(a.cfg.CriticalSourcesWarn), float64(a.cfg.CriticalSourcesDanger)),
		})
	}
	if obs.ProcessingErrorRate != nil {
		factors = append(factors, domain.RiskFactor{
			Name:  "processing_error_rate",
			Value: *obs.ProcessingErrorRate,
			State: gradeHigh(*obs.ProcessingErrorRate, a.cfg.ErrorRateWarn, a.cfg.ErrorRateDanger),
		})
	}

	return buildAssessment(a.Dimension(), factors, map[string]float64{
		"health_degraded_below":   domain.HealthyScoreMin,
		"health_critical_below":   domain.DegradedScoreMin,
		"critical_sources_warn":   float64(a.cfg.CriticalSourcesWarn),
		"critical_sources_danger": float64(a.cfg.CriticalSourcesDanger),
		"error_rate_warn":         a.cfg.ErrorRateWarn,
		"error_rate_danger":       a.cfg.ErrorRateDanger,
	}), nil
}
