package riskbudget

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/statestore"
)

// AuditSink receives append-only evaluation and equity history records.
// Failures are logged and never change a decision that was already made.
type AuditSink interface {
	RecordEvaluation(resp domain.TradeRiskResponse) error
	RecordDrawdownPoint(p domain.DrawdownPoint) error
	RecordEquitySnapshot(u domain.EquityUpdate) error
}

// PositionStore persists tracker state that must survive restarts.
type PositionStore interface {
	UpsertPosition(pos domain.OpenPositionRisk) error
	UpsertDaily(d domain.DailyRiskUsage) error
	OpenPositions() ([]domain.OpenPositionRisk, error)
	DailyFor(date string) (*domain.DailyRiskUsage, error)
	TrailingConsecutiveLosses(limit int) (int, error)
}

// PeakStore persists the all-time equity peak across restarts.
type PeakStore interface {
	SaveDrawdownPeak(state statestore.DrawdownPeak) error
	LoadDrawdownPeak() (statestore.DrawdownPeak, bool, error)
}

// AlertFunc delivers an alert to the alerting pipeline. Implementations
// must not block; the manager calls it on the evaluation path.
type AlertFunc func(domain.Alert)

// Deps carries the manager's collaborators. Every field may be nil: the
// manager degrades to in-memory operation, which the tests rely on.
type Deps struct {
	Audit      AuditSink
	Store      PositionStore
	Peaks      PeakStore
	Events     *events.Manager
	AlertFn    AlertFunc
	HealthMult func() float64
}

// Manager is the public face of the risk budget module. It owns the
// tracker, resolves clock and health inputs before taking the tracker
// lock, and handles persistence and alerting after releasing it.
type Manager struct {
	cfg     config.BudgetConfig
	tierFor func(float64) domain.CapitalTier
	tracker *Tracker
	clk     clock.Clock
	log     zerolog.Logger

	audit      AuditSink
	store      PositionStore
	peaks      PeakStore
	em         *events.Manager
	alertFn    AlertFunc
	healthMult func() float64

	rateWindow time.Duration
	alertMu    sync.Mutex
	lastAlert  map[string]time.Time
}

// NewManager creates a risk budget manager from the application config.
func NewManager(cfg *config.Config, clk clock.Clock, log zerolog.Logger, deps Deps) *Manager {
	return &Manager{
		cfg:        cfg.Budget,
		tierFor:    cfg.TierFor,
		tracker:    NewTracker(cfg.Budget.ReservationTTL, cfg.Budget.DailyResetHourUTC),
		clk:        clk,
		log:        log.With().Str("component", "riskbudget").Logger(),
		audit:      deps.Audit,
		store:      deps.Store,
		peaks:      deps.Peaks,
		em:         deps.Events,
		alertFn:    deps.AlertFn,
		healthMult: deps.HealthMult,
		rateWindow: cfg.Alerting.RateWindow,
		lastAlert:  make(map[string]time.Time),
	}
}

// Restore seeds the tracker from persisted state. Call once at startup,
// before the first evaluation. Errors here are fatal to startup; a
// half-restored budget would approve trades against phantom headroom.
func (m *Manager) Restore() error {
	now := m.clk.Now().UTC()

	if m.peaks != nil {
		peak, found, err := m.peaks.LoadDrawdownPeak()
		if err != nil {
			return fmt.Errorf("failed to load drawdown peak: %w", err)
		}
		if found {
			m.tracker.RestorePeak(peak.PeakEquity, peak.PeakTS)
		}
	}

	if m.store == nil {
		return nil
	}

	positions, err := m.store.OpenPositions()
	if err != nil {
		return fmt.Errorf("failed to restore open positions: %w", err)
	}
	for _, pos := range positions {
		m.tracker.RestorePosition(pos)
	}

	day := m.tracker.budgetDay(now)
	daily, err := m.store.DailyFor(day)
	if err != nil {
		return fmt.Errorf("failed to restore daily usage: %w", err)
	}
	if daily != nil {
		m.tracker.RestoreDaily(*daily)
	}

	losses, err := m.store.TrailingConsecutiveLosses(0)
	if err != nil {
		return fmt.Errorf("failed to restore loss streak: %w", err)
	}
	m.tracker.RestoreConsecutiveLosses(losses)

	m.log.Info().
		Int("open_positions", len(positions)).
		Bool("daily_found", daily != nil).
		Int("consecutive_losses", losses).
		Msg("Risk budget state restored")
	return nil
}

// Evaluate runs the full pre-trade evaluation protocol and returns the
// decision. Approved budget is held in reservation until the execution
// layer registers the fill or the reservation expires.
func (m *Manager) Evaluate(req domain.TradeRiskRequest) domain.TradeRiskResponse {
	started := m.clk.Monotonic()
	now := m.clk.Now().UTC()

	multiplier := 1.0
	if m.cfg.ApplyHealthMultiplier && m.healthMult != nil {
		multiplier = m.healthMult()
	}

	outcome := m.tracker.evaluate(req, m.cfg, m.tierFor, multiplier, now)
	resp := outcome.response
	resp.DurationMS = float64(m.clk.Monotonic()-started) / float64(time.Millisecond)

	m.persistArchivedDays()

	if outcome.drawdownHalted {
		m.log.Error().
			Float64("drawdown_pct", outcome.drawdownPct).
			Float64("max_drawdown_pct", m.cfg.MaxDrawdownPct).
			Msg("Drawdown limit breached, trading halted")
		m.sendAlert(domain.Alert{
			Priority: domain.AlertEmergency,
			Title:    "Drawdown limit breached",
			Message: fmt.Sprintf("drawdown %.2f%% reached the %.2f%% limit; new entries are halted",
				outcome.drawdownPct, m.cfg.MaxDrawdownPct),
			Trigger:  domain.TriggerDrawdownExceeded,
			Category: domain.CategoryControl,
			Symbol:   req.Symbol,
		})
	}

	if m.audit != nil {
		if err := m.audit.RecordEvaluation(resp); err != nil {
			m.log.Error().Err(err).
				Str("request_id", req.RequestID).
				Msg("Failed to persist trade evaluation")
		}
	}
	if m.em != nil {
		m.em.Emit("riskbudget", &events.TradeEvaluatedData{
			RequestID:     req.RequestID,
			Symbol:        req.Symbol,
			Decision:      resp.Decision,
			PrimaryReason: resp.PrimaryReason,
			AllowedSize:   resp.AllowedSize,
		})
	}

	m.log.Info().
		Str("request_id", req.RequestID).
		Str("symbol", req.Symbol).
		Str("decision", string(resp.Decision)).
		Str("primary_reason", resp.PrimaryReason).
		Float64("allowed_size", resp.AllowedSize).
		Float64("duration_ms", resp.DurationMS).
		Msg("Trade evaluated")
	return resp
}

// UpdateEquity feeds a fresh equity reading into the tracker and records
// the resulting drawdown point.
func (m *Manager) UpdateEquity(u domain.EquityUpdate) {
	if u.Timestamp.IsZero() {
		u.Timestamp = m.clk.Now().UTC()
	}
	dd, peak, newPeak := m.tracker.SetEquity(u)

	if newPeak && m.peaks != nil {
		err := m.peaks.SaveDrawdownPeak(statestore.DrawdownPeak{PeakEquity: peak, PeakTS: u.Timestamp})
		if err != nil {
			m.log.Error().Err(err).Float64("peak", peak).Msg("Failed to persist drawdown peak")
		}
	}
	if m.audit != nil {
		if err := m.audit.RecordEquitySnapshot(u); err != nil {
			m.log.Error().Err(err).Msg("Failed to persist equity snapshot")
		}
		point := domain.DrawdownPoint{Equity: u.Equity, PeakEquity: peak, DrawdownPct: dd, At: u.Timestamp}
		if err := m.audit.RecordDrawdownPoint(point); err != nil {
			m.log.Error().Err(err).Msg("Failed to persist drawdown point")
		}
	}
	if m.em != nil {
		m.em.Emit("riskbudget", &events.EquityUpdatedData{Equity: u.Equity, Source: u.Source})
	}

	if dd >= m.cfg.DrawdownWarningPct && dd < m.cfg.MaxDrawdownPct {
		m.sendAlert(domain.Alert{
			Priority: domain.AlertWarning,
			Title:    "Drawdown approaching limit",
			Message: fmt.Sprintf("drawdown %.2f%% (warning at %.2f%%, halt at %.2f%%)",
				dd, m.cfg.DrawdownWarningPct, m.cfg.MaxDrawdownPct),
			Trigger:  domain.TriggerDrawdownExceeded,
			Category: domain.CategoryControl,
		})
	}

	m.log.Debug().
		Float64("equity", u.Equity).
		Str("source", u.Source).
		Float64("drawdown_pct", dd).
		Bool("new_peak", newPeak).
		Msg("Equity updated")
}

// RegisterPositionOpened converts a reservation into a live position.
// requestID ties the fill back to the evaluation that approved it; an
// unknown or empty requestID still opens the position, it just cannot
// release a hold.
func (m *Manager) RegisterPositionOpened(requestID string, pos domain.OpenPositionRisk) (domain.OpenPositionRisk, error) {
	now := m.clk.Now().UTC()
	opened, err := m.tracker.Open(requestID, pos, m.tierFor, now)
	if err != nil {
		return domain.OpenPositionRisk{}, err
	}

	m.persistArchivedDays()
	m.persistPosition(opened)
	m.persistDaily(now)

	if m.em != nil {
		m.em.Emit("riskbudget", &events.PositionOpenedData{
			PositionID: opened.PositionID,
			Symbol:     opened.Symbol,
			RiskPct:    opened.RiskPct,
		})
	}
	m.checkDailyWarning(now)

	m.log.Info().
		Str("position_id", opened.PositionID).
		Str("symbol", opened.Symbol).
		Float64("risk_pct", opened.RiskPct).
		Float64("risk_amount", opened.RiskAmount).
		Msg("Position registered")
	return opened, nil
}

// UpdateStopLoss re-prices a position's risk after a stop move. Widening
// the stop consumes daily budget; tightening it releases open risk only.
func (m *Manager) UpdateStopLoss(positionID string, newStop float64) (domain.OpenPositionRisk, error) {
	now := m.clk.Now().UTC()
	pos, err := m.tracker.UpdateStop(positionID, newStop, m.tierFor, now)
	if err != nil {
		return domain.OpenPositionRisk{}, err
	}

	m.persistArchivedDays()
	m.persistPosition(pos)
	m.persistDaily(now)

	m.log.Debug().
		Str("position_id", positionID).
		Float64("new_stop", newStop).
		Float64("risk_pct", pos.RiskPct).
		Msg("Stop loss updated")
	return pos, nil
}

// RegisterPositionClosed releases a position's open risk and records the
// realized result. Daily consumed budget is not refunded.
func (m *Manager) RegisterPositionClosed(positionID string, realizedPnL float64) (domain.OpenPositionRisk, error) {
	now := m.clk.Now().UTC()
	closed, err := m.tracker.Close(positionID, realizedPnL, m.tierFor, now)
	if err != nil {
		return domain.OpenPositionRisk{}, err
	}

	m.persistArchivedDays()
	m.persistPosition(closed)
	m.persistDaily(now)

	if m.em != nil {
		m.em.Emit("riskbudget", &events.PositionClosedData{
			PositionID:  closed.PositionID,
			Symbol:      closed.Symbol,
			RealizedPnL: closed.RealizedPnL,
		})
	}

	m.log.Info().
		Str("position_id", positionID).
		Float64("realized_pnl", realizedPnL).
		Msg("Position closed")
	return closed, nil
}

// RegisterPartialClose releases the closed fraction of a position's risk.
func (m *Manager) RegisterPartialClose(positionID string, fraction, realizedPnL float64) (domain.OpenPositionRisk, error) {
	now := m.clk.Now().UTC()
	pos, err := m.tracker.ClosePartial(positionID, fraction, realizedPnL, m.tierFor, now)
	if err != nil {
		return domain.OpenPositionRisk{}, err
	}

	m.persistArchivedDays()
	m.persistPosition(pos)
	m.persistDaily(now)

	m.log.Info().
		Str("position_id", positionID).
		Float64("fraction", fraction).
		Float64("realized_pnl", realizedPnL).
		Msg("Position partially closed")
	return pos, nil
}

// ReleaseReservation drops the hold placed by an approved evaluation that
// the execution layer abandoned.
func (m *Manager) ReleaseReservation(requestID string) {
	m.tracker.ReleaseHold(requestID)
	m.log.Debug().Str("request_id", requestID).Msg("Reservation released")
}

// Snapshot returns a point-in-time view of the budget state.
func (m *Manager) Snapshot() domain.RiskBudgetSnapshot {
	return m.tracker.Snapshot(m.tierFor, m.clk.Now().UTC())
}

// OpenPositions returns copies of the currently tracked positions.
func (m *Manager) OpenPositions() []domain.OpenPositionRisk {
	return m.tracker.OpenPositions()
}

// DailyUsage returns today's consumption against the current tier's daily
// budget. The control monitor reads it to enforce the daily loss cap.
func (m *Manager) DailyUsage() domain.DailyRiskUsage {
	return m.tracker.Daily(m.tierFor, m.clk.Now().UTC())
}

// RolloverDaily forces the date rollover and archives finished days. The
// maintenance job calls it at the reset hour so yesterday's ledger lands
// in daily_risk promptly instead of on the next trade.
func (m *Manager) RolloverDaily() domain.DailyRiskUsage {
	usage := m.tracker.Daily(m.tierFor, m.clk.Now().UTC())
	m.persistArchivedDays()
	return usage
}

// HaltTrading stops new entries until ResumeTrading is called.
func (m *Manager) HaltTrading(reason string) {
	m.tracker.Halt(reason)
	m.log.Warn().Str("reason", reason).Msg("Trading halted")
}

// ResumeTrading lifts a halt. If the halt condition still holds, the next
// evaluation re-imposes it.
func (m *Manager) ResumeTrading() {
	m.tracker.Resume()
	m.log.Warn().Msg("Trading resumed")
}

func (m *Manager) persistArchivedDays() {
	archived := m.tracker.DrainArchivedDays()
	if m.store == nil {
		return
	}
	for _, day := range archived {
		if err := m.store.UpsertDaily(day); err != nil {
			m.log.Error().Err(err).Str("date", day.Date).Msg("Failed to archive daily usage")
		}
	}
}

func (m *Manager) persistPosition(pos domain.OpenPositionRisk) {
	if m.store == nil {
		return
	}
	if err := m.store.UpsertPosition(pos); err != nil {
		m.log.Error().Err(err).Str("position_id", pos.PositionID).Msg("Failed to persist position")
	}
}

func (m *Manager) persistDaily(now time.Time) {
	if m.store == nil {
		return
	}
	if err := m.store.UpsertDaily(m.tracker.Daily(m.tierFor, now)); err != nil {
		m.log.Error().Err(err).Msg("Failed to persist daily usage")
	}
}

func (m *Manager) checkDailyWarning(now time.Time) {
	d := m.tracker.Daily(m.tierFor, now)
	if d.BudgetLimitPct <= 0 {
		return
	}
	if d.ConsumedPct >= m.cfg.DailyWarningRatio*d.BudgetLimitPct {
		m.sendAlert(domain.Alert{
			Priority: domain.AlertWarning,
			Title:    "Daily risk budget running low",
			Message: fmt.Sprintf("consumed %.2f%% of the %.2f%% daily budget",
				d.ConsumedPct, d.BudgetLimitPct),
			Trigger:  domain.TriggerDailyBudget,
			Category: domain.CategoryControl,
		})
	}
}

// sendAlert applies per-key rate limiting and hands off to the alert
// pipeline. Emergencies always go through.
func (m *Manager) sendAlert(a domain.Alert) {
	if m.alertFn == nil {
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = m.clk.Now().UTC()

	key := a.RateKey()
	m.alertMu.Lock()
	last, seen := m.lastAlert[key]
	if seen && a.CreatedAt.Sub(last) < m.rateWindow && a.Priority != domain.AlertEmergency {
		m.alertMu.Unlock()
		return
	}
	m.lastAlert[key] = a.CreatedAt
	m.alertMu.Unlock()

	m.alertFn(a)
}
