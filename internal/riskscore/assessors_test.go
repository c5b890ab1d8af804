package riskscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		PriceChangeWarnPct:   5.0,
		PriceChangeDangerPct: 10.0,
		FundingWarnPct:       0.05,
		FundingDangerPct:     0.10,
		ImbalanceWarn:        0.15,
		ImbalanceDanger:      0.30,

		SpreadWarnPct:     0.10,
		SpreadDangerPct:   0.50,
		DepthWarnQuote:    50_000,
		DepthDangerQuote:  10_000,
		VolumeRatioWarn:   0.50,
		VolumeRatioDanger: 0.25,

		ATRWarnPct:           3.0,
		ATRDangerPct:         6.0,
		RealizedVolWarnPct:   2.5,
		RealizedVolDangerPct: 5.0,
		BollingerWidthWarn:   0.08,
		BollingerWidthDanger: 0.15,

		ATRPeriod:         14,
		RealizedVolPeriod: 20,
		BollingerPeriod:   20,
		BollingerStdDev:   2.0,

		CriticalSourcesWarn:   1,
		CriticalSourcesDanger: 2,
		ErrorRateWarn:         0.10,
		ErrorRateDanger:       0.30,
	}
}

func fp(v float64) *float64 { return &v }

func ip(v int) *int { return &v }

// flatCandles builds a constant-price series long enough for every
// indicator warm-up.
func flatCandles(n int, price float64) (highs, lows, closes []float64) {
	highs = make([]float64, n)
	lows = make([]float64, n)
	closes = make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = price
		lows[i] = price
		closes[i] = price
	}
	return highs, lows, closes
}

func TestMarketAssessor_AllMetricsSafe(t *testing.T) {
	a := NewMarketAssessor(testScoringConfig())

	got, err := a.Assess(Observation{
		PriceChange24hPct:  fp(1.2),
		FundingRatePct:     fp(0.01),
		OrderBookImbalance: fp(0.55),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.DimensionMarket, got.Dimension)
	assert.Equal(t, domain.RiskSafe, got.State)
	assert.Equal(t, "all metrics within safe bounds", got.Reason)
	assert.Len(t, got.Factors, 3)
}

func TestMarketAssessor_CutoffsAreInclusive(t *testing.T) {
	a := NewMarketAssessor(testScoringConfig())

	warning, err := a.Assess(Observation{PriceChange24hPct: fp(5.0)})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskWarning, warning.State)

	danger, err := a.Assess(Observation{PriceChange24hPct: fp(10.0)})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskDangerous, danger.State)
}

func TestMarketAssessor_GradesByMagnitude(t *testing.T) {
	a := NewMarketAssessor(testScoringConfig())

	got, err := a.Assess(Observation{PriceChange24hPct: fp(-12.0)})

	require.NoError(t, err)
	assert.Equal(t, domain.RiskDangerous, got.State)
	assert.Contains(t, got.Reason, "price_change_24h_pct")
}

func TestMarketAssessor_WorstFactorSetsStateAndReason(t *testing.T) {
	a := NewMarketAssessor(testScoringConfig())

	got, err := a.Assess(Observation{
		PriceChange24hPct: fp(2.0),  // SAFE
		FundingRatePct:    fp(0.20), // DANGEROUS
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RiskDangerous, got.State)
	assert.Contains(t, got.Reason, "funding_rate_pct")
}

func TestMarketAssessor_MissingMinimumIsFailSafe(t *testing.T) {
	a := NewMarketAssessor(testScoringConfig())

	got, err := a.Assess(Observation{FundingRatePct: fp(0.01)})

	require.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Equal(t, domain.RiskDangerous, got.State)
	assert.Contains(t, got.Reason, "insufficient data")

	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{"price_change_24h_pct"}, mf.Fields)
}

func TestLiquidityAssessor_ThinDepthIsDangerous(t *testing.T) {
	a := NewLiquidityAssessor(testScoringConfig())

	got, err := a.Assess(Observation{
		SpreadPct:       fp(0.05),
		DepthWithin1Pct: fp(5_000),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RiskDangerous, got.State)
	assert.Contains(t, got.Reason, "depth_within_1pct")
}

func TestLiquidityAssessor_InvertedCutoffsAreInclusive(t *testing.T) {
	a := NewLiquidityAssessor(testScoringConfig())

	warning, err := a.Assess(Observation{
		SpreadPct:      fp(0.01),
		VolumeRatio24h: fp(0.50),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskWarning, warning.State)

	danger, err := a.Assess(Observation{
		SpreadPct:      fp(0.01),
		VolumeRatio24h: fp(0.25),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskDangerous, danger.State)
}

func TestLiquidityAssessor_MissingSpreadIsFailSafe(t *testing.T) {
	a := NewLiquidityAssessor(testScoringConfig())

	got, err := a.Assess(Observation{DepthWithin1Pct: fp(100_000)})

	require.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Equal(t, domain.RiskDangerous, got.State)
}

func TestVolatilityAssessor_FlatSeriesIsSafe(t *testing.T) {
	a := NewVolatilityAssessor(testScoringConfig())
	highs, lows, closes := flatCandles(30, 100)

	got, err := a.Assess(Observation{Highs: highs, Lows: lows, Closes: closes})

	require.NoError(t, err)
	assert.Equal(t, domain.RiskSafe, got.State)
	assert.Len(t, got.Factors, 3)
}

func TestVolatilityAssessor_ShortSeriesIsFailSafe(t *testing.T) {
	a := NewVolatilityAssessor(testScoringConfig())
	highs, lows, closes := flatCandles(5, 100)

	got, err := a.Assess(Observation{Highs: highs, Lows: lows, Closes: closes})

	require.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Equal(t, domain.RiskDangerous, got.State)

	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{"candles"}, mf.Fields)
}

func TestSystemIntegrityAssessor_HealthScoreBands(t *testing.T) {
	a := NewSystemIntegrityAssessor(testScoringConfig())

	cases := []struct {
		score float64
		want  domain.RiskState
	}{
		{100, domain.RiskSafe},
		{85, domain.RiskSafe},
		{84.9, domain.RiskWarning},
		{65, domain.RiskWarning},
		{64.9, domain.RiskDangerous},
		{0, domain.RiskDangerous},
	}
	for _, tc := range cases {
		got, err := a.Assess(Observation{HealthScore: fp(tc.score)})
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.State, "health score %v", tc.score)
	}
}

func TestSystemIntegrityAssessor_CriticalSourceCounts(t *testing.T) {
	a := NewSystemIntegrityAssessor(testScoringConfig())

	warning, err := a.Assess(Observation{HealthScore: fp(95), CriticalSources: ip(1)})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskWarning, warning.State)

	danger, err := a.Assess(Observation{HealthScore: fp(95), CriticalSources: ip(2)})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskDangerous, danger.State)
	assert.Contains(t, danger.Reason, "critical_sources")
}

func TestSystemIntegrityAssessor_ErrorRate(t *testing.T) {
	a := NewSystemIntegrityAssessor(testScoringConfig())

	got, err := a.Assess(Observation{HealthScore: fp(95), ProcessingErrorRate: fp(0.35)})

	require.NoError(t, err)
	assert.Equal(t, domain.RiskDangerous, got.State)
	assert.Contains(t, got.Reason, "processing_error_rate")
}
