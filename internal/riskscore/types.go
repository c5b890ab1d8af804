package riskscore

import (
	"fmt"
	"strings"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// Observation carries one cycle's raw inputs for the scoring engine. Nil
// fields are absent; each assessor declares the minimum it cannot score
// without, everything else is optional and simply skipped when missing.
type Observation struct {
	Symbol string `json:"symbol"`

	// Market dimension
	PriceChange24hPct  *float64 `json:"price_change_24h_pct,omitempty"`
	FundingRatePct     *float64 `json:"funding_rate_pct,omitempty"`
	OrderBookImbalance *float64 `json:"order_book_imbalance,omitempty"` // bid share of top-of-book volume, 0.5 balanced

	// Liquidity dimension
	SpreadPct       *float64 `json:"spread_pct,omitempty"`
	DepthWithin1Pct *float64 `json:"depth_within_1pct,omitempty"` // quote units on both sides within 1% of mid
	VolumeRatio24h  *float64 `json:"volume_ratio_24h,omitempty"`  // 24h volume over 30d average

	// Volatility dimension, raw candle series oldest first
	Highs  []float64 `json:"highs,omitempty"`
	Lows   []float64 `json:"lows,omitempty"`
	Closes []float64 `json:"closes,omitempty"`

	// System integrity dimension
	HealthScore         *float64 `json:"health_score,omitempty"`
	CriticalSources     *int     `json:"critical_sources,omitempty"`
	ProcessingErrorRate *float64 `json:"processing_error_rate,omitempty"` // fraction of recent cycles that failed
}

// MissingFieldsError reports the minimum inputs a dimension was not given.
// It unwraps to domain.ErrInsufficientData so callers can test with
// errors.Is without caring which dimension starved.
type MissingFieldsError struct {
	Dimension domain.RiskDimension
	Fields    []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s assessor missing %s", e.Dimension, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return domain.ErrInsufficientData }
