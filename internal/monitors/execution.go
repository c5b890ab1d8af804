package monitors

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// ExecutionSnapshot summarizes recent order outcomes and the position
// reconciliation against the exchange.
type ExecutionSnapshot struct {
	// Rejections holds the timestamps of recently rejected orders.
	Rejections []time.Time
	// WorstSlippagePct is the largest fill slippage in the window.
	WorstSlippagePct float64
	// PositionMismatch reports tracker and exchange disagreeing on an
	// open position after reconciliation.
	PositionMismatch bool
	MismatchDetail   string
	// OldestPendingOrder is the submit time of the oldest order still
	// neither filled nor cancelled. Zero when nothing is pending.
	OldestPendingOrder time.Time
}

// ExecutionSource supplies the execution monitor's snapshot.
type ExecutionSource interface {
	ExecutionSnapshot() ExecutionSnapshot
}

// Execution halts on rejection bursts, excessive slippage, position
// mismatches, and stuck orders. Everything here except slippage points at
// the exchange or account state disagreeing with ours, so those demand
// HARD; slippage passes with the market and asks for SOFT.
type Execution struct {
	cfg    config.MonitorConfig
	source ExecutionSource
	clk    clock.Clock
	log    zerolog.Logger
}

// NewExecution creates the execution monitor.
func NewExecution(cfg config.MonitorConfig, source ExecutionSource, clk clock.Clock, log zerolog.Logger) *Execution {
	return &Execution{
		cfg:    cfg,
		source: source,
		clk:    clk,
		log:    log.With().Str("monitor", "execution").Logger(),
	}
}

func (m *Execution) ID() string              { return "execution" }
func (m *Execution) Interval() time.Duration { return m.cfg.ExecutionInterval }

func (m *Execution) Check(_ context.Context) domain.MonitorResult {
	started := m.clk.Now().UTC()
	snap := m.source.ExecutionSnapshot()

	recent := 0
	cutoff := started.Add(-m.cfg.RejectionWindow)
	for _, at := range snap.Rejections {
		if at.After(cutoff) {
			recent++
		}
	}

	details := map[string]any{
		"rejections_in_window": recent,
		"worst_slippage_pct":   snap.WorstSlippagePct,
	}

	if snap.PositionMismatch {
		details["mismatch"] = snap.MismatchDetail
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerPositionMismatch, domain.CategoryExecution, domain.HaltHard,
			fmt.Sprintf("exchange position differs from tracker: %s", snap.MismatchDetail), details)
	}

	if recent >= m.cfg.RejectionBurstN {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerRejectionBurst, domain.CategoryExecution, domain.HaltHard,
			fmt.Sprintf("%d order rejections within %s", recent, m.cfg.RejectionWindow), details)
	}

	if !snap.OldestPendingOrder.IsZero() {
		pending := started.Sub(snap.OldestPendingOrder)
		details["oldest_pending_seconds"] = pending.Seconds()
		if pending > m.cfg.OrderStuckAfter {
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerOrderStuck, domain.CategoryExecution, domain.HaltHard,
				fmt.Sprintf("order pending for %s, limit %s", pending.Round(time.Second), m.cfg.OrderStuckAfter), details)
		}
	}

	if snap.WorstSlippagePct > m.cfg.SlippageCapPct {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerSlippage, domain.CategoryExecution, domain.HaltSoft,
			fmt.Sprintf("slippage %.2f%% exceeds cap %.2f%%", snap.WorstSlippagePct, m.cfg.SlippageCapPct), details)
	}

	return healthyResult(m.ID(), m.clk, started, details)
}
