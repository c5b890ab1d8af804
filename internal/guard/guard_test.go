package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clients/refprice"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCandles struct {
	candle *marketdata.Candle
	err    error
}

func (f *fakeCandles) LatestCandle(_, _, _ string) (*marketdata.Candle, error) {
	return f.candle, f.err
}

type fakeRefs struct {
	prices []refprice.Price
}

func (f *fakeRefs) Prices(_ context.Context, _ string) []refprice.Price {
	return f.prices
}

type fakeHalter struct {
	halts []domain.HaltTrigger
}

func (f *fakeHalter) TriggerHalt(t domain.HaltTrigger) {
	f.halts = append(f.halts, t)
}

func testGuardConfig() config.GuardConfig {
	return config.GuardConfig{
		Enabled:         true,
		MaxDeviationPct: 3.0,
		Timeout:         5 * time.Second,
		HaltLevel:       domain.HaltHard,
	}
}

func candleClosedAt(close decimal.Decimal, openTime time.Time) *marketdata.Candle {
	return &marketdata.Candle{
		Symbol:   "BTCUSDT",
		Exchange: "binance",
		Interval: "1m",
		OpenTime: openTime,
		Open:     close,
		High:     close,
		Low:      close,
		Close:    close,
		Volume:   decimal.NewFromInt(10),
	}
}

func refsAt(prices ...float64) *fakeRefs {
	f := &fakeRefs{}
	for _, p := range prices {
		f.prices = append(f.prices, refprice.Price{
			Source: refprice.SourceREST,
			Symbol: "BTCUSDT",
			Price:  decimal.NewFromFloat(p),
		})
	}
	return f
}

func newTestGuard(cfg config.GuardConfig, candles CandleSource, refs ReferencePricer, halter Halter, clk clock.Clock) *Guard {
	return New(cfg, false, Deps{Candles: candles, Refs: refs, Halter: halter}, clk, zerolog.Nop())
}

func TestCheckPassesOnFreshAgreeingData(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	candles := &fakeCandles{candle: candleClosedAt(decimal.NewFromInt(60000), clk.Now().Add(-30*time.Second))}
	halter := &fakeHalter{}

	g := newTestGuard(testGuardConfig(), candles, refsAt(60010, 59990), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.True(t, res.Passed)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.References)
	assert.Empty(t, halter.halts)
}

func TestCheckPassesAtExactlyTwiceInterval(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	candles := &fakeCandles{candle: candleClosedAt(decimal.NewFromInt(60000), clk.Now().Add(-2*time.Minute))}
	halter := &fakeHalter{}

	g := newTestGuard(testGuardConfig(), candles, refsAt(60000), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.True(t, res.Passed, "age exactly at the limit must pass")
	assert.Empty(t, halter.halts)
}

func TestCheckFailsStaleBeyondTwiceInterval(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	candles := &fakeCandles{candle: candleClosedAt(decimal.NewFromInt(60000), clk.Now().Add(-2*time.Minute-time.Second))}
	halter := &fakeHalter{}

	g := newTestGuard(testGuardConfig(), candles, refsAt(60000), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.False(t, res.Passed)
	assert.Equal(t, FailStale, res.Failure)

	require.Len(t, halter.halts, 1)
	assert.Equal(t, domain.TriggerStaleData, halter.halts[0].Trigger)
	assert.Equal(t, domain.CategoryDataIntegrity, halter.halts[0].Category)
	assert.Equal(t, domain.HaltHard, halter.halts[0].Level)
	assert.Equal(t, "BTCUSDT", halter.halts[0].Symbol)
}

func TestCheckFailsStaleWithoutData(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	halter := &fakeHalter{}

	g := newTestGuard(testGuardConfig(), &fakeCandles{}, refsAt(60000), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.False(t, res.Passed)
	assert.Equal(t, FailStale, res.Failure)
	require.Len(t, halter.halts, 1)
	assert.Equal(t, domain.TriggerStaleData, halter.halts[0].Trigger)
}

func TestCheckFailsStaleOnStoreError(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	halter := &fakeHalter{}

	g := newTestGuard(testGuardConfig(), &fakeCandles{err: errors.New("disk gone")}, refsAt(60000), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.False(t, res.Passed)
	assert.Equal(t, FailStale, res.Failure)
}

func TestCheckFailsWithoutReferences(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	candles := &fakeCandles{candle: candleClosedAt(decimal.NewFromInt(60000), clk.Now().Add(-30*time.Second))}
	halter := &fakeHalter{}

	g := newTestGuard(testGuardConfig(), candles, refsAt(), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.False(t, res.Passed)
	assert.Equal(t, FailNoReference, res.Failure)
	require.Len(t, halter.halts, 1)
	assert.Equal(t, domain.TriggerNoReference, halter.halts[0].Trigger)
}

func TestCheckFailsOnPriceDeviation(t *testing.T) {
	// Stored close 60000 against live references 58000 and 58050:
	// median 58025, deviation |60000-58025|/58025 = 3.40% > 3%.
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	candles := &fakeCandles{candle: candleClosedAt(decimal.NewFromInt(60000), clk.Now().Add(-65*time.Second))}
	halter := &fakeHalter{}

	g := newTestGuard(testGuardConfig(), candles, refsAt(58000, 58050), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.False(t, res.Passed)
	assert.Equal(t, FailPriceDeviation, res.Failure)
	assert.True(t, res.LivePrice.Equal(decimal.NewFromInt(58025)))
	assert.InDelta(t, 3.40, res.DeviationPct.InexactFloat64(), 0.01)

	require.Len(t, halter.halts, 1)
	assert.Equal(t, domain.TriggerPriceDeviation, halter.halts[0].Trigger)
	assert.Equal(t, domain.HaltHard, halter.halts[0].Level)
}

func TestCheckPassesAtExactDeviationLimit(t *testing.T) {
	// Stored 103 vs live 100 is exactly 3%; the limit is exclusive.
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	candles := &fakeCandles{candle: candleClosedAt(decimal.NewFromInt(103), clk.Now().Add(-30*time.Second))}
	halter := &fakeHalter{}

	g := newTestGuard(testGuardConfig(), candles, refsAt(100), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.True(t, res.Passed)
	assert.Empty(t, halter.halts)
}

func TestCheckSkipsWhenDisabled(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := testGuardConfig()
	cfg.Enabled = false
	halter := &fakeHalter{}

	// No candle and no references: a disabled guard must not look.
	g := newTestGuard(cfg, &fakeCandles{}, refsAt(), halter, clk)

	res := g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	assert.True(t, res.Passed)
	assert.True(t, res.Skipped)
	assert.Empty(t, halter.halts)
}

func TestCheckEmitsViolationEvent(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	candles := &fakeCandles{candle: candleClosedAt(decimal.NewFromInt(60000), clk.Now().Add(-65*time.Second))}

	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(events.GuardViolation, func(e events.Event) {
		got = append(got, e)
	})

	g := New(testGuardConfig(), false, Deps{
		Candles: candles,
		Refs:    refsAt(58000, 58050),
		Events:  events.NewManager(bus, zerolog.Nop()),
	}, clk, zerolog.Nop())

	g.Check(context.Background(), "BTCUSDT", "binance", "1m")

	require.Len(t, got, 1)
	data, ok := got[0].Data.(*events.GuardViolationData)
	require.True(t, ok)
	assert.Equal(t, string(FailPriceDeviation), data.Kind)
	assert.Equal(t, "BTCUSDT", data.Symbol)
	assert.InDelta(t, 3.40, data.DeviationPct, 0.01)
}

func TestCheckRecordsOutcomes(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	candles := &fakeCandles{candle: candleClosedAt(decimal.NewFromInt(60000), clk.Now().Add(-30*time.Second))}

	var outcomes []string
	g := New(testGuardConfig(), false, Deps{
		Candles: candles,
		Refs:    refsAt(60000),
		Observe: func(outcome string) { outcomes = append(outcomes, outcome) },
	}, clk, zerolog.Nop())

	g.Check(context.Background(), "BTCUSDT", "binance", "1m")
	candles.candle = nil
	g.Check(context.Background(), "BTCUSDT", "binance", "1m")

	assert.Equal(t, []string{"pass", "stale"}, outcomes)
}

func TestMedianPrice(t *testing.T) {
	odd := medianPrice([]refprice.Price{
		{Price: decimal.NewFromInt(3)},
		{Price: decimal.NewFromInt(1)},
		{Price: decimal.NewFromInt(2)},
	})
	assert.True(t, odd.Equal(decimal.NewFromInt(2)))

	even := medianPrice([]refprice.Price{
		{Price: decimal.NewFromInt(58000)},
		{Price: decimal.NewFromInt(58050)},
	})
	assert.True(t, even.Equal(decimal.NewFromInt(58025)))
}
