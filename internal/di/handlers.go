package di

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/orchestrator"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/riskscore"
)

// RegisterStageHandlers installs the control plane's own stage handlers.
// PROCESS, STRATEGY, and EXECUTE belong to the trading modules deployed
// next to this binary; the orchestrator skips stages without a handler.
func RegisterStageHandlers(container *Container, cfg *config.Config) {
	container.Pipeline.RegisterHandler(domain.StageIngest, ingestHandler(container, cfg.RefPrice.Symbols))
	container.Pipeline.RegisterHandler(domain.StageRiskScore, riskScoreHandler(container, cfg))
	container.Pipeline.RegisterHandler(domain.StageMonitor, monitorHandler(container))
}

// ingestHandler warms the reference-price cache for every configured symbol
// and records feed freshness for the data-integrity monitor. The underlying
// clients report their own request metrics to the health collector.
func ingestHandler(container *Container, symbols []string) orchestrator.Handler {
	return func(ctx context.Context) error {
		var starved []string
		for _, symbol := range symbols {
			prices := container.RefPrices.Prices(ctx, symbol)
			if len(prices) == 0 {
				starved = append(starved, symbol)
				continue
			}
			newest := prices[0].At
			for _, p := range prices[1:] {
				if p.At.After(newest) {
					newest = p.At
				}
			}
			container.Pipeline.RecordFeed("refprice:"+symbol, newest)
		}
		if len(starved) > 0 {
			return fmt.Errorf("no reference prices for %s", strings.Join(starved, ", "))
		}
		return nil
	}
}

// riskScoreHandler evaluates the trading environment once per cycle. The
// change detector keeps a single baseline, so the handler scores the primary
// symbol rather than looping the whole watchlist. Starved dimensions fall to
// their worst-case score inside the engine; only real store failures abort
// the stage.
func riskScoreHandler(container *Container, cfg *config.Config) orchestrator.Handler {
	var symbol string
	if len(cfg.RefPrice.Symbols) > 0 {
		symbol = cfg.RefPrice.Symbols[0]
	}
	lookback := scoringLookback(cfg.Scoring)

	return func(ctx context.Context) error {
		if symbol == "" {
			return nil
		}
		obs := riskscore.Observation{Symbol: symbol}

		snap, err := container.Market.LoadSnapshot(symbol, cfg.Guard.Exchange)
		if err != nil {
			return fmt.Errorf("failed to load market snapshot: %w", err)
		}
		if snap != nil {
			obs.PriceChange24hPct = &snap.PriceChange24hPct
			obs.FundingRatePct = &snap.FundingRatePct
			obs.OrderBookImbalance = &snap.OrderBookImbalance
			obs.SpreadPct = &snap.SpreadPct
			obs.DepthWithin1Pct = &snap.DepthWithin1Pct
			obs.VolumeRatio24h = &snap.VolumeRatio24h
		}

		series, err := container.Market.CandleSeries(symbol, cfg.Guard.Exchange, cfg.Guard.Interval, lookback)
		if err != nil {
			return fmt.Errorf("failed to load candle series: %w", err)
		}
		obs.Highs, obs.Lows, obs.Closes = series.Highs, series.Lows, series.Closes

		if scores := container.Health.Scores(); len(scores) > 0 {
			minScore := math.MaxFloat64
			critical := 0
			for _, score := range scores {
				if score.FinalScore < minScore {
					minScore = score.FinalScore
				}
				if score.State == domain.HealthCritical {
					critical++
				}
			}
			obs.HealthScore = &minScore
			obs.CriticalSources = &critical
		}

		if proc := container.Pipeline.ProcessingSnapshot(); proc.CyclesInWindow > 0 {
			rate := float64(proc.FailedCycles) / float64(proc.CyclesInWindow)
			obs.ProcessingErrorRate = &rate
		}

		assessment, err := container.Scoring.Evaluate(obs)
		if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
			return fmt.Errorf("risk evaluation failed: %w", err)
		}
		container.RiskChanges.Observe(assessment)
		return nil
	}
}

// monitorHandler refreshes the budget gauges each cycle; otherwise they only
// move when a trade mutates the ledger.
func monitorHandler(container *Container) orchestrator.Handler {
	return func(ctx context.Context) error {
		container.Metrics.ObserveBudget(container.Budget.Snapshot())
		return nil
	}
}

// scoringLookback is the candle depth the volatility assessors need: twice
// the longest configured period plus one so indicators have warm-up room.
func scoringLookback(cfg config.ScoringConfig) int {
	period := cfg.ATRPeriod
	if cfg.RealizedVolPeriod > period {
		period = cfg.RealizedVolPeriod
	}
	if cfg.BollingerPeriod > period {
		period = cfg.BollingerPeriod
	}
	if period <= 0 {
		period = 14
	}
	return period*2 + 1
}
