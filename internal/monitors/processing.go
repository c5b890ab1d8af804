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

// ProcessingSnapshot summarizes the pipeline's recent cycles.
type ProcessingSnapshot struct {
	CyclesInWindow int
	FailedCycles   int
	// SlowestCycle is the longest cycle duration in the window.
	SlowestCycle time.Duration
	// StateFlag is non-empty when a stage left the pipeline in an
	// inconsistent state (for example a recovered panic mid-write).
	StateFlag string
	// VersionMismatch reports modules running with different build tags.
	VersionMismatch bool
}

// ProcessingSource supplies the processing monitor's snapshot.
type ProcessingSource interface {
	ProcessingSnapshot() ProcessingSnapshot
}

// Processing halts when the pipeline errors too often, runs too slowly,
// carries an inconsistent-state flag, or mixes module versions. The two
// structural conditions demand HARD; rate and latency recover on their
// own and ask for SOFT.
type Processing struct {
	cfg    config.MonitorConfig
	source ProcessingSource
	clk    clock.Clock
	log    zerolog.Logger
}

// NewProcessing creates the processing monitor.
func NewProcessing(cfg config.MonitorConfig, source ProcessingSource, clk clock.Clock, log zerolog.Logger) *Processing {
	return &Processing{
		cfg:    cfg,
		source: source,
		clk:    clk,
		log:    log.With().Str("monitor", "processing").Logger(),
	}
}

func (m *Processing) ID() string              { return "processing" }
func (m *Processing) Interval() time.Duration { return m.cfg.ProcessingInterval }

func (m *Processing) Check(_ context.Context) domain.MonitorResult {
	started := m.clk.Now().UTC()
	snap := m.source.ProcessingSnapshot()

	details := map[string]any{
		"cycles_in_window": snap.CyclesInWindow,
		"failed_cycles":    snap.FailedCycles,
		"slowest_cycle_ms": snap.SlowestCycle.Milliseconds(),
	}

	if snap.StateFlag != "" {
		details["state_flag"] = snap.StateFlag
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerStateFlag, domain.CategoryProcessing, domain.HaltHard,
			fmt.Sprintf("pipeline state flagged inconsistent: %s", snap.StateFlag), details)
	}

	if snap.VersionMismatch {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerVersionMismatch, domain.CategoryProcessing, domain.HaltHard,
			"modules report mismatched versions", details)
	}

	if snap.CyclesInWindow > 0 {
		rate := float64(snap.FailedCycles) / float64(snap.CyclesInWindow)
		details["error_rate"] = rate
		if rate > m.cfg.MaxErrorRate {
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerProcessingErrors, domain.CategoryProcessing, domain.HaltSoft,
				fmt.Sprintf("cycle error rate %.2f exceeds %.2f", rate, m.cfg.MaxErrorRate), details)
		}
	}

	if snap.SlowestCycle > m.cfg.MaxCycleLatency {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerCycleTimeout, domain.CategoryProcessing, domain.HaltSoft,
			fmt.Sprintf("slowest cycle %s exceeds %s", snap.SlowestCycle.Round(time.Millisecond), m.cfg.MaxCycleLatency), details)
	}

	return healthyResult(m.ID(), m.clk, started, details)
}
