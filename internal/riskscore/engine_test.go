package riskscore

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

var scoreTestNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type stubAssessor struct {
	dim   domain.RiskDimension
	state domain.RiskState
	err   error
}

func (s *stubAssessor) Dimension() domain.RiskDimension { return s.dim }

func (s *stubAssessor) Assess(Observation) (domain.DimensionAssessment, error) {
	return domain.DimensionAssessment{
		Dimension: s.dim,
		State:     s.state,
		Reason:    "pinned",
	}, s.err
}

// newPinnedEngine returns an engine whose four assessors report the given
// states regardless of input.
func newPinnedEngine(states map[domain.RiskDimension]domain.RiskState) *Engine {
	e := NewEngine(testScoringConfig(), clock.NewFrozen(scoreTestNow), zerolog.Nop())
	for dim, st := range states {
		e.ReplaceAssessor(&stubAssessor{dim: dim, state: st})
	}
	return e
}

func pinAll(market, liquidity, volatility, integrity domain.RiskState) map[domain.RiskDimension]domain.RiskState {
	return map[domain.RiskDimension]domain.RiskState{
		domain.DimensionMarket:          market,
		domain.DimensionLiquidity:       liquidity,
		domain.DimensionVolatility:      volatility,
		domain.DimensionSystemIntegrity: integrity,
	}
}

func TestEngine_TotalAndLevelCutoffs(t *testing.T) {
	cases := []struct {
		name      string
		states    map[domain.RiskDimension]domain.RiskState
		wantTotal int
		wantLevel domain.RiskLevel
	}{
		{"all safe", pinAll(0, 0, 0, 0), 0, domain.RiskLevelLow},
		{"top of low", pinAll(1, 1, 0, 0), 2, domain.RiskLevelLow},
		{"bottom of medium", pinAll(1, 1, 1, 0), 3, domain.RiskLevelMedium},
		{"top of medium", pinAll(1, 1, 1, 1), 4, domain.RiskLevelMedium},
		{"bottom of high", pinAll(2, 2, 1, 0), 5, domain.RiskLevelHigh},
		{"top of high", pinAll(2, 2, 2, 0), 6, domain.RiskLevelHigh},
		{"bottom of critical", pinAll(2, 2, 2, 1), 7, domain.RiskLevelCritical},
		{"all dangerous", pinAll(2, 2, 2, 2), 8, domain.RiskLevelCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := newPinnedEngine(tc.states).Evaluate(Observation{})

			require.NoError(t, err)
			assert.Equal(t, tc.wantTotal, got.Total)
			assert.Equal(t, tc.wantLevel, got.Level)
			assert.False(t, got.InsufficientData)
		})
	}
}

func TestEngine_EvaluateWithRealAssessors(t *testing.T) {
	e := NewEngine(testScoringConfig(), clock.NewFrozen(scoreTestNow), zerolog.Nop())
	highs, lows, closes := flatCandles(30, 60_000)

	got, err := e.Evaluate(Observation{
		Symbol:              "BTC/USDT",
		PriceChange24hPct:   fp(1.0),
		FundingRatePct:      fp(0.01),
		OrderBookImbalance:  fp(0.52),
		SpreadPct:           fp(0.02),
		DepthWithin1Pct:     fp(250_000),
		VolumeRatio24h:      fp(1.1),
		Highs:               highs,
		Lows:                lows,
		Closes:              closes,
		HealthScore:         fp(96),
		CriticalSources:     ip(0),
		ProcessingErrorRate: fp(0.0),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, got.Total)
	assert.Equal(t, domain.RiskLevelLow, got.Level)
	assert.Len(t, got.Dimensions, 4)
	assert.Equal(t, scoreTestNow, got.EvaluatedAt)
	for _, dim := range domain.RiskDimensions {
		assert.Equal(t, domain.RiskSafe, got.Dimensions[dim].State, string(dim))
	}
}

func TestEngine_InsufficientDataStillScores(t *testing.T) {
	e := NewEngine(testScoringConfig(), clock.NewFrozen(scoreTestNow), zerolog.Nop())

	// Only the liquidity minimum is supplied; the other three dimensions
	// must fail safe to DANGEROUS and be named in the tag.
	got, err := e.Evaluate(Observation{SpreadPct: fp(0.02)})

	require.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.True(t, got.InsufficientData)
	assert.ElementsMatch(t, []string{"price_change_24h_pct", "candles", "health_score"}, got.MissingFields)
	assert.Equal(t, 6, got.Total)
	assert.Equal(t, domain.RiskLevelHigh, got.Level)
	assert.Equal(t, domain.RiskSafe, got.Dimensions[domain.DimensionLiquidity].State)
	assert.Equal(t, domain.RiskDangerous, got.Dimensions[domain.DimensionMarket].State)
}

func TestEngine_DeterministicForSameObservation(t *testing.T) {
	e := NewEngine(testScoringConfig(), clock.NewFrozen(scoreTestNow), zerolog.Nop())
	highs, lows, closes := flatCandles(30, 60_000)
	obs := Observation{
		PriceChange24hPct: fp(6.0),
		SpreadPct:         fp(0.3),
		Highs:             highs,
		Lows:              lows,
		Closes:            closes,
		HealthScore:       fp(70),
	}

	first, err := e.Evaluate(obs)
	require.NoError(t, err)
	second, err := e.Evaluate(obs)
	require.NoError(t, err)

	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.Dimensions, second.Dimensions)
}
