// Package guard implements the pre-execution data-reality check. Before
// any order leaves the system, the latest stored price is compared against
// independent live references; stale data, missing references, or a price
// that disagrees with reality all halt trading through the System Risk
// Controller. The check cannot be bypassed, only explicitly disabled by
// configuration.
package guard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clients/refprice"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Failure identifies which reality check failed.
type Failure string

const (
	FailStale          Failure = "STALE"
	FailNoReference    Failure = "NO_REFERENCE"
	FailPriceDeviation Failure = "PRICE_DEVIATION"
)

// Trigger maps a guard failure to the halt trigger it raises.
func (f Failure) Trigger() domain.Trigger {
	switch f {
	case FailStale:
		return domain.TriggerStaleData
	case FailNoReference:
		return domain.TriggerNoReference
	default:
		return domain.TriggerPriceDeviation
	}
}

// Result is the outcome of one guard check.
type Result struct {
	Symbol       string
	Passed       bool
	Skipped      bool // guard disabled by configuration
	Failure      Failure
	Reason       string
	StoredClose  decimal.Decimal
	LivePrice    decimal.Decimal
	DeviationPct decimal.Decimal
	DataAge      time.Duration
	References   int
	CheckedAt    time.Time
}

// CandleSource yields the latest stored candle for a symbol.
type CandleSource interface {
	LatestCandle(symbol, exchange, interval string) (*marketdata.Candle, error)
}

// ReferencePricer returns the currently usable reference prices.
type ReferencePricer interface {
	Prices(ctx context.Context, symbol string) []refprice.Price
}

// Halter escalates a failed check into a system halt.
type Halter interface {
	TriggerHalt(t domain.HaltTrigger)
}

// ObserveFunc records one check outcome for metrics.
type ObserveFunc func(outcome string)

// Deps are the guard's collaborators. Halter, Events, and Observe may be
// nil, in which case the corresponding side effect is skipped; the check
// verdict itself never depends on them.
type Deps struct {
	Candles CandleSource
	Refs    ReferencePricer
	Halter  Halter
	Events  *events.Manager
	Observe ObserveFunc
}

// Guard runs the data-reality check immediately before order emission.
type Guard struct {
	cfg       config.GuardConfig
	candles   CandleSource
	refs      ReferencePricer
	halter    Halter
	events    *events.Manager
	observeFn ObserveFunc
	clk       clock.Clock
	log       zerolog.Logger
}

// New creates the guard. A disabled guard in live trading is a deliberate
// operator decision and gets logged at the highest severity once, here.
func New(cfg config.GuardConfig, liveTrading bool, deps Deps, clk clock.Clock, log zerolog.Logger) *Guard {
	lg := log.With().Str("component", "guard").Logger()

	if !cfg.Enabled && liveTrading {
		lg.Error().
			Str("severity", "CRITICAL").
			Msg("Data-reality guard is DISABLED while live trading is enabled")
	}

	return &Guard{
		cfg:       cfg,
		candles:   deps.Candles,
		refs:      deps.Refs,
		halter:    deps.Halter,
		events:    deps.Events,
		observeFn: deps.Observe,
		clk:       clk,
		log:       lg,
	}
}

// Check compares the latest stored price for (symbol, exchange, interval)
// against live references. Any failure requests a halt at the configured
// level with the DATA_INTEGRITY category. Age exactly at twice the
// interval still passes; the deviation limit is exclusive as well.
func (g *Guard) Check(ctx context.Context, symbol, exchange, interval string) Result {
	now := g.clk.Now().UTC()
	res := Result{Symbol: symbol, CheckedAt: now}

	if !g.cfg.Enabled {
		res.Passed = true
		res.Skipped = true
		g.observe("skipped")
		return res
	}

	candle, err := g.candles.LatestCandle(symbol, exchange, interval)
	if err != nil {
		return g.fail(res, FailStale, fmt.Sprintf("failed to read stored candle: %v", err))
	}
	if candle == nil {
		return g.fail(res, FailStale, "no stored market data")
	}

	intervalDur, err := marketdata.ParseInterval(candle.Interval)
	if err != nil {
		return g.fail(res, FailStale, fmt.Sprintf("stored candle has unusable interval %q", candle.Interval))
	}

	res.StoredClose = candle.Close
	res.DataAge = now.Sub(candle.OpenTime)
	maxAge := 2 * intervalDur
	if res.DataAge > maxAge {
		return g.fail(res, FailStale, fmt.Sprintf("stored data is %s old, limit %s", res.DataAge, maxAge))
	}

	refCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	refs := g.refs.Prices(refCtx, symbol)
	res.References = len(refs)
	if len(refs) == 0 {
		return g.fail(res, FailNoReference, "no reference price available")
	}

	live := medianPrice(refs)
	res.LivePrice = live
	if !live.IsPositive() {
		return g.fail(res, FailNoReference, "reference median is not positive")
	}

	res.DeviationPct = candle.Close.Sub(live).Abs().Div(live).Mul(decimal.NewFromInt(100))
	if res.DeviationPct.GreaterThan(decimal.NewFromFloat(g.cfg.MaxDeviationPct)) {
		return g.fail(res, FailPriceDeviation, fmt.Sprintf(
			"stored close %s deviates %s%% from live %s (max %.2f%%)",
			candle.Close.String(), res.DeviationPct.StringFixed(2), live.String(), g.cfg.MaxDeviationPct))
	}

	res.Passed = true
	g.observe("pass")
	return res
}

// fail records the verdict, emits the violation event, and requests the
// halt. The returned Result carries everything the caller may want to log.
func (g *Guard) fail(res Result, failure Failure, reason string) Result {
	res.Passed = false
	res.Failure = failure
	res.Reason = reason

	g.log.Error().
		Str("symbol", res.Symbol).
		Str("failure", string(failure)).
		Str("reason", reason).
		Msg("Data-reality check failed")

	g.observe(strings.ToLower(string(failure)))

	if g.events != nil {
		g.events.Emit("guard", &events.GuardViolationData{
			Symbol:       res.Symbol,
			Kind:         string(failure),
			DeviationPct: res.DeviationPct.InexactFloat64(),
			Reason:       reason,
		})
	}

	if g.halter != nil {
		g.halter.TriggerHalt(domain.HaltTrigger{
			Trigger:  failure.Trigger(),
			Category: domain.CategoryDataIntegrity,
			Level:    g.cfg.HaltLevel,
			Reason:   reason,
			Symbol:   res.Symbol,
		})
	}

	return res
}

func (g *Guard) observe(outcome string) {
	if g.observeFn != nil {
		g.observeFn(outcome)
	}
}

// medianPrice returns the median of the reference prices. An even count
// takes the mean of the two middle values.
func medianPrice(refs []refprice.Price) decimal.Decimal {
	prices := make([]decimal.Decimal, len(refs))
	for i, r := range refs {
		prices[i] = r.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return prices[mid-1].Add(prices[mid]).Div(decimal.NewFromInt(2))
}
