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

// ControlSnapshot is the budget tracker's view plus account facts the
// tracker cannot know.
type ControlSnapshot struct {
	Budget domain.RiskBudgetSnapshot
	// DailyLossPct is today's realized loss as a positive percentage of
	// equity. Gains report as zero.
	DailyLossPct float64
	// Leverage is the account's current leverage; zero when unknown.
	Leverage float64
}

// ControlSource supplies the control monitor's snapshot.
type ControlSource interface {
	ControlSnapshot() ControlSnapshot
}

// Control is the backstop above the risk budget manager. Its drawdown cap
// sits above the manager's own; reaching it means the first line of
// defense failed, which is an EMERGENCY. The remaining caps demand HARD.
type Control struct {
	cfg    config.MonitorConfig
	source ControlSource
	clk    clock.Clock
	log    zerolog.Logger
}

// NewControl creates the control monitor.
func NewControl(cfg config.MonitorConfig, source ControlSource, clk clock.Clock, log zerolog.Logger) *Control {
	return &Control{
		cfg:    cfg,
		source: source,
		clk:    clk,
		log:    log.With().Str("monitor", "control").Logger(),
	}
}

func (m *Control) ID() string              { return "control" }
func (m *Control) Interval() time.Duration { return m.cfg.ControlInterval }

func (m *Control) Check(_ context.Context) domain.MonitorResult {
	started := m.clk.Now().UTC()
	snap := m.source.ControlSnapshot()

	details := map[string]any{
		"drawdown_pct":   snap.Budget.DrawdownPct,
		"open_used_pct":  snap.Budget.OpenUsedPct,
		"daily_loss_pct": snap.DailyLossPct,
		"leverage":       snap.Leverage,
	}

	if snap.Budget.DrawdownPct > m.cfg.DrawdownCapPct {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerDrawdownExceeded, domain.CategoryControl, domain.HaltEmergency,
			fmt.Sprintf("drawdown %.2f%% exceeds control cap %.2f%%", snap.Budget.DrawdownPct, m.cfg.DrawdownCapPct), details)
	}

	if m.cfg.MaxLeverage > 0 && snap.Leverage > m.cfg.MaxLeverage {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerLeverage, domain.CategoryControl, domain.HaltHard,
			fmt.Sprintf("account leverage %.2fx exceeds %.2fx", snap.Leverage, m.cfg.MaxLeverage), details)
	}

	if snap.DailyLossPct > m.cfg.DailyLossCapPct {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerLossLimit, domain.CategoryControl, domain.HaltHard,
			fmt.Sprintf("daily realized loss %.2f%% exceeds %.2f%%", snap.DailyLossPct, m.cfg.DailyLossCapPct), details)
	}

	if snap.Budget.OpenUsedPct > m.cfg.MaxExposurePct {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerExposureLimit, domain.CategoryControl, domain.HaltHard,
			fmt.Sprintf("open exposure %.2f%% exceeds %.2f%%", snap.Budget.OpenUsedPct, m.cfg.MaxExposurePct), details)
	}

	// The budget manager reports its own daily budget exhaustion; the
	// monitor only escalates when usage overshoots the limit, which the
	// manager should have made impossible.
	if snap.Budget.DailyLimitPct > 0 && snap.Budget.DailyUsedPct > snap.Budget.DailyLimitPct {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerDailyBudget, domain.CategoryControl, domain.HaltHard,
			fmt.Sprintf("daily budget used %.2f%% exceeds limit %.2f%%", snap.Budget.DailyUsedPct, snap.Budget.DailyLimitPct), details)
	}

	return healthyResult(m.ID(), m.clk, started, details)
}
