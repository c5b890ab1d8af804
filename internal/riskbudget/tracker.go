// Package riskbudget implements the trade risk budget gate: every candidate
// trade passes the evaluation protocol before the execution layer may act,
// and every fill, stop move and close reports back so the budget books stay
// true. All limits are percentages of equity; the same rules govern a 1500
// USD account and a seven-figure one.
package riskbudget

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// hold is budget reserved by an approved evaluation that has not been
// registered as a position yet. Holds keep concurrent evaluations from
// approving the same remaining budget twice; they lapse after the TTL if
// the execution layer never reports a fill.
type hold struct {
	requestID string
	symbol    string
	riskPct   float64
	expiresAt time.Time
}

// Tracker is the in-memory risk budget state. Its mutex is the innermost
// lock in the process: no I/O, no callbacks and no clock reads happen while
// it is held. Callers pass now in; persistence happens after release.
type Tracker struct {
	mu sync.Mutex

	equity          float64
	equitySource    string
	equityUpdatedAt time.Time
	peakEquity      float64
	peakAt          time.Time

	positions   map[string]*domain.OpenPositionRisk
	openUsedPct float64

	holds   map[string]hold
	holdTTL time.Duration

	daily             domain.DailyRiskUsage
	resetHourUTC      int
	archived          []domain.DailyRiskUsage
	consecutiveLosses int

	halted     bool
	haltReason string
}

func NewTracker(holdTTL time.Duration, resetHourUTC int) *Tracker {
	return &Tracker{
		positions:    make(map[string]*domain.OpenPositionRisk),
		holds:        make(map[string]hold),
		holdTTL:      holdTTL,
		resetHourUTC: resetHourUTC,
	}
}

// budgetDay keys daily usage: the risk day rolls at the configured UTC hour,
// not at midnight.
func (t *Tracker) budgetDay(now time.Time) string {
	return now.UTC().Add(-time.Duration(t.resetHourUTC) * time.Hour).Format("2006-01-02")
}

// rolloverDaily archives the previous day and starts a fresh one when the
// risk day changed. Archived days are drained by the manager after the lock
// is released. Caller must hold t.mu.
func (t *Tracker) rolloverDaily(now time.Time, dailyLimitPct float64) {
	day := t.budgetDay(now)
	if t.daily.Date == day {
		return
	}
	if t.daily.Date != "" {
		t.archived = append(t.archived, t.daily)
	}
	t.daily = domain.DailyRiskUsage{Date: day, BudgetLimitPct: dailyLimitPct}
}

// pruneHolds drops lapsed reservations. Caller must hold t.mu.
func (t *Tracker) pruneHolds(now time.Time) {
	for id, h := range t.holds {
		if now.After(h.expiresAt) {
			delete(t.holds, id)
		}
	}
}

// heldPct sums reserved risk, optionally counting only one symbol's holds.
// Caller must hold t.mu.
func (t *Tracker) heldPct(symbol string) (total float64, count int, symbolHeld bool) {
	for _, h := range t.holds {
		total += h.riskPct
		count++
		if symbol != "" && h.symbol == symbol {
			symbolHeld = true
		}
	}
	return total, count, symbolHeld
}

// positionRisk computes the currency at risk for a direction-aware stop.
// A stop that crossed to the profitable side of entry risks nothing.
func positionRisk(direction domain.Direction, entry, stop, size float64) float64 {
	var perUnit float64
	switch direction {
	case domain.DirectionShort:
		perUnit = stop - entry
	default:
		perUnit = entry - stop
	}
	if perUnit < 0 {
		perUnit = 0
	}
	return perUnit * size
}

// drawdownPct is max(0, (peak-equity)/peak*100). Caller must hold t.mu.
func (t *Tracker) drawdownPct() float64 {
	if t.peakEquity <= 0 {
		return 0
	}
	dd := (t.peakEquity - t.equity) / t.peakEquity * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// SetEquity records an equity update, raising the peak when exceeded.
// Returns the resulting drawdown, the peak and whether a new peak was set.
func (t *Tracker) SetEquity(u domain.EquityUpdate) (drawdown, peak float64, newPeak bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.equity = u.Equity
	t.equitySource = u.Source
	t.equityUpdatedAt = u.Timestamp
	if u.Equity > t.peakEquity {
		t.peakEquity = u.Equity
		t.peakAt = u.Timestamp
		newPeak = true
	}
	return t.drawdownPct(), t.peakEquity, newPeak
}

// RestorePeak seeds the drawdown baseline from persisted state at startup.
func (t *Tracker) RestorePeak(peak float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if peak > t.peakEquity {
		t.peakEquity = peak
		t.peakAt = at
	}
}

// RestorePosition re-seats a persisted open position without touching the
// daily budget: its consumption belongs to the day it was opened.
func (t *Tracker) RestorePosition(pos domain.OpenPositionRisk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := pos
	t.positions[p.PositionID] = &p
	t.openUsedPct += p.RiskPct
}

// RestoreDaily seeds today's usage record from persistence.
func (t *Tracker) RestoreDaily(d domain.DailyRiskUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.daily = d
}

// RestoreConsecutiveLosses seeds the loss streak recomputed from the closed
// position history.
func (t *Tracker) RestoreConsecutiveLosses(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > 0 {
		t.consecutiveLosses = n
	}
}

// Halt stops all new approvals until Resume. Drawdown breaches call this
// internally; operators call it through the manager.
func (t *Tracker) Halt(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halted = true
	t.haltReason = reason
}

// Resume clears an operator or drawdown halt. If the drawdown condition
// still stands, the next evaluation halts again.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halted = false
	t.haltReason = ""
}

// ReleaseHold voids a reservation whose execution was abandoned.
func (t *Tracker) ReleaseHold(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.holds, requestID)
}

// DrainArchivedDays returns and clears rolled-over daily records so the
// manager can persist them outside the lock.
func (t *Tracker) DrainArchivedDays() []domain.DailyRiskUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.archived
	t.archived = nil
	return out
}

// Open registers a fill as an open position: consumes daily budget, adds to
// the open aggregate and finalizes the evaluation hold. The tracker fills
// the derived risk fields from current equity.
func (t *Tracker) Open(requestID string, pos domain.OpenPositionRisk, tierFor func(float64) domain.CapitalTier, now time.Time) (domain.OpenPositionRisk, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pos.PositionID == "" {
		return domain.OpenPositionRisk{}, fmt.Errorf("%w: position id is empty", domain.ErrPositionState)
	}
	if _, exists := t.positions[pos.PositionID]; exists {
		return domain.OpenPositionRisk{}, fmt.Errorf("%w: position %s already open", domain.ErrPositionState, pos.PositionID)
	}
	if pos.Size <= 0 || pos.EntryPrice <= 0 {
		return domain.OpenPositionRisk{}, fmt.Errorf("%w: position %s has non-positive size or entry", domain.ErrPositionState, pos.PositionID)
	}

	t.rolloverDaily(now, tierFor(t.equity).DailyPct)
	delete(t.holds, requestID)

	pos.RiskAmount = positionRisk(pos.Direction, pos.EntryPrice, pos.CurrentStop, pos.Size)
	pos.EquityAtEntry = t.equity
	if t.equity > 0 {
		pos.RiskPct = pos.RiskAmount / t.equity * 100
	}
	pos.Status = domain.PositionOpen
	pos.OpenedAt = now
	pos.ClosedAt = nil
	pos.RealizedPnL = nil

	p := pos
	t.positions[p.PositionID] = &p
	t.openUsedPct += p.RiskPct
	t.daily.ConsumedPct += p.RiskPct
	if t.openUsedPct > t.daily.PeakOpenPct {
		t.daily.PeakOpenPct = t.openUsedPct
	}
	t.daily.TradesTaken++

	return p, nil
}

// UpdateStop recomputes a position's risk for a moved stop. Added risk
// consumes additional daily budget; removed risk is released from the open
// aggregate but never refunded to the daily budget.
func (t *Tracker) UpdateStop(positionID string, newStop float64, tierFor func(float64) domain.CapitalTier, now time.Time) (domain.OpenPositionRisk, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[positionID]
	if !ok {
		return domain.OpenPositionRisk{}, fmt.Errorf("%w: position %s is not open", domain.ErrPositionState, positionID)
	}
	if newStop <= 0 {
		return domain.OpenPositionRisk{}, fmt.Errorf("%w: stop must be positive", domain.ErrPositionState)
	}

	t.rolloverDaily(now, tierFor(t.equity).DailyPct)

	newAmount := positionRisk(pos.Direction, pos.EntryPrice, newStop, pos.Size)
	newPct := 0.0
	if pos.EquityAtEntry > 0 {
		newPct = newAmount / pos.EquityAtEntry * 100
	}
	delta := newPct - pos.RiskPct

	pos.CurrentStop = newStop
	pos.RiskAmount = newAmount
	pos.RiskPct = newPct
	t.openUsedPct += delta
	if t.openUsedPct < 0 {
		t.openUsedPct = 0
	}
	if delta > 0 {
		t.daily.ConsumedPct += delta
		if t.openUsedPct > t.daily.PeakOpenPct {
			t.daily.PeakOpenPct = t.openUsedPct
		}
	}

	return *pos, nil
}

// Close removes a position from the open set, releases its open budget and
// updates the loss streak. Daily consumed budget stays: the daily limit is
// cumulative risk taken, not risk currently held.
func (t *Tracker) Close(positionID string, realizedPnL float64, tierFor func(float64) domain.CapitalTier, now time.Time) (domain.OpenPositionRisk, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[positionID]
	if !ok {
		return domain.OpenPositionRisk{}, fmt.Errorf("%w: position %s is not open", domain.ErrPositionState, positionID)
	}

	t.rolloverDaily(now, tierFor(t.equity).DailyPct)
	delete(t.positions, positionID)
	t.openUsedPct -= pos.RiskPct
	if t.openUsedPct < 0 {
		t.openUsedPct = 0
	}

	if realizedPnL < 0 {
		t.consecutiveLosses++
	} else {
		t.consecutiveLosses = 0
	}
	t.daily.RealizedPnL += realizedPnL

	closed := *pos
	closed.Status = domain.PositionClosed
	closedAt := now
	closed.ClosedAt = &closedAt
	pnl := realizedPnL
	closed.RealizedPnL = &pnl
	return closed, nil
}

// ClosePartial releases the closed fraction of a position's budget and
// scales the remainder. The loss streak only moves on full closes.
func (t *Tracker) ClosePartial(positionID string, fraction, realizedPnL float64, tierFor func(float64) domain.CapitalTier, now time.Time) (domain.OpenPositionRisk, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fraction <= 0 || fraction >= 1 {
		return domain.OpenPositionRisk{}, fmt.Errorf("%w: close fraction must be in (0, 1)", domain.ErrPositionState)
	}
	pos, ok := t.positions[positionID]
	if !ok {
		return domain.OpenPositionRisk{}, fmt.Errorf("%w: position %s is not open", domain.ErrPositionState, positionID)
	}

	t.rolloverDaily(now, tierFor(t.equity).DailyPct)

	released := pos.RiskPct * fraction
	pos.Size *= 1 - fraction
	pos.RiskAmount *= 1 - fraction
	pos.RiskPct -= released
	pos.Status = domain.PositionPartiallyClosed
	t.openUsedPct -= released
	if t.openUsedPct < 0 {
		t.openUsedPct = 0
	}
	t.daily.RealizedPnL += realizedPnL

	return *pos, nil
}

// Snapshot builds the point-in-time view of the tracker.
func (t *Tracker) Snapshot(tierFor func(float64) domain.CapitalTier, now time.Time) domain.RiskBudgetSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	tier := tierFor(t.equity)
	t.rolloverDaily(now, tier.DailyPct)
	t.pruneHolds(now)
	return t.snapshotLocked(tier, now)
}

// Daily returns a copy of the current daily usage record.
func (t *Tracker) Daily(tierFor func(float64) domain.CapitalTier, now time.Time) domain.DailyRiskUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverDaily(now, tierFor(t.equity).DailyPct)
	return t.daily
}

// Position returns a copy of one open position.
func (t *Tracker) Position(positionID string) (domain.OpenPositionRisk, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[positionID]
	if !ok {
		return domain.OpenPositionRisk{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of all open positions.
func (t *Tracker) OpenPositions() []domain.OpenPositionRisk {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.OpenPositionRisk, 0, len(t.positions))
	for _, pos := range t.positions {
		out = append(out, *pos)
	}
	return out
}

// evaluationOutcome carries evaluation side effects the manager handles
// after the tracker lock is released.
type evaluationOutcome struct {
	response       domain.TradeRiskResponse
	drawdownHalted bool
	drawdownPct    float64
}

// evaluate runs the whole protocol atomically under the tracker lock. It is
// non-suspending: every input, including now and the health multiplier, is
// resolved by the manager before the lock is taken.
func (t *Tracker) evaluate(req domain.TradeRiskRequest, cfg config.BudgetConfig, tierFor func(float64) domain.CapitalTier, multiplier float64, now time.Time) evaluationOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	tier := tierFor(t.equity)
	t.rolloverDaily(now, tier.DailyPct)
	t.pruneHolds(now)

	resp := domain.TradeRiskResponse{
		RequestID:   req.RequestID,
		Symbol:      req.Symbol,
		Decision:    domain.DecisionReject,
		EvaluatedAt: now,
	}
	reject := func(reason string) evaluationOutcome {
		resp.PrimaryReason = reason
		resp.Snapshot = t.snapshotLocked(tier, now)
		t.daily.TradesRejected++
		return evaluationOutcome{response: resp}
	}

	// Step 1: request validation.
	problems := req.Validate()
	if t.equity <= 0 {
		problems = append(problems, "equity is not positive")
	}
	resp.Checks = append(resp.Checks, domain.BudgetCheck{
		Name:   "parameters",
		Passed: len(problems) == 0,
		Reason: joinProblems(problems),
	})
	if len(problems) > 0 {
		return reject(domain.ReasonInvalidParameters)
	}

	proposedPct := req.RiskPct(t.equity)

	// Step 2: system gate.
	if t.halted {
		resp.Checks = append(resp.Checks, domain.BudgetCheck{Name: "system_gate", Passed: false, Reason: t.haltReason})
		return reject(domain.ReasonTradingHalted)
	}
	equityAge := now.Sub(t.equityUpdatedAt)
	if t.equityUpdatedAt.IsZero() || equityAge >= cfg.EquityMaxStaleness {
		resp.Checks = append(resp.Checks, domain.BudgetCheck{Name: "system_gate", Passed: false, Reason: "equity data stale"})
		return reject(domain.ReasonStaleEquityData)
	}
	if t.equity < cfg.EquityFloor {
		resp.Checks = append(resp.Checks, domain.BudgetCheck{Name: "system_gate", Passed: false, Reason: "equity below floor"})
		return reject(domain.ReasonEquityBelowFloor)
	}
	resp.Checks = append(resp.Checks, domain.BudgetCheck{Name: "system_gate", Passed: true})

	// Data health gate: a zero multiplier means the feeds cannot be trusted.
	if multiplier <= 0 {
		resp.Checks = append(resp.Checks, domain.BudgetCheck{Name: "data_health", Passed: false, Reason: "health multiplier is zero"})
		return reject(domain.ReasonDegradedDataHealth)
	}
	resp.Checks = append(resp.Checks, domain.BudgetCheck{Name: "data_health", Passed: true})

	// Step 3: drawdown.
	dd := t.drawdownPct()
	if dd >= cfg.MaxDrawdownPct {
		t.halted = true
		t.haltReason = domain.ReasonDrawdownLimitBreached
		resp.Checks = append(resp.Checks, domain.BudgetCheck{
			Name:     "drawdown",
			Passed:   false,
			Reason:   domain.ReasonDrawdownLimitBreached,
			LimitPct: cfg.MaxDrawdownPct,
			UsedPct:  dd,
		})
		resp.PrimaryReason = domain.ReasonDrawdownLimitBreached
		resp.Snapshot = t.snapshotLocked(tier, now)
		t.daily.TradesRejected++
		return evaluationOutcome{response: resp, drawdownHalted: true, drawdownPct: dd}
	}
	resp.Checks = append(resp.Checks, domain.BudgetCheck{
		Name:     "drawdown",
		Passed:   true,
		LimitPct: cfg.MaxDrawdownPct,
		UsedPct:  dd,
	})

	// Step 4: per-trade limit, reduced under drawdown pressure and scaled
	// by the data-health multiplier.
	perTradeLimit := tier.PerTradePct * multiplier
	if dd >= cfg.ReduceWhenDrawdownPct {
		perTradeLimit *= cfg.DrawdownReductionFactor
	}
	perTradeCheck := domain.BudgetCheck{
		Name:      "per_trade",
		Passed:    proposedPct <= perTradeLimit,
		LimitPct:  perTradeLimit,
		UsedPct:   proposedPct,
		Remaining: perTradeLimit,
		Reducible: true,
	}
	if !perTradeCheck.Passed {
		perTradeCheck.Reason = domain.ReasonExceedsPerTradeLimit
	}
	resp.Checks = append(resp.Checks, perTradeCheck)

	// Step 5: daily cumulative, net of outstanding holds.
	heldTotal, heldCount, symbolHeld := t.heldPct(req.Symbol)
	dailyLimit := tier.DailyPct * multiplier
	dailyRemaining := dailyLimit - t.daily.ConsumedPct - heldTotal
	dailyCheck := domain.BudgetCheck{
		Name:      "daily",
		Passed:    proposedPct <= dailyRemaining,
		LimitPct:  dailyLimit,
		UsedPct:   t.daily.ConsumedPct + heldTotal,
		Remaining: dailyRemaining,
		Reducible: true,
	}
	if !dailyCheck.Passed {
		if dailyRemaining <= 0 {
			dailyCheck.Reason = domain.ReasonDailyBudgetExhausted
		} else {
			dailyCheck.Reason = domain.ReasonExceedsRemainingDaily
		}
	}
	resp.Checks = append(resp.Checks, dailyCheck)

	// Step 6: open-position aggregate, net of outstanding holds.
	openRemaining := tier.OpenPct - t.openUsedPct - heldTotal
	openCheck := domain.BudgetCheck{
		Name:      "open_risk",
		Passed:    proposedPct <= openRemaining,
		LimitPct:  tier.OpenPct,
		UsedPct:   t.openUsedPct + heldTotal,
		Remaining: openRemaining,
		Reducible: true,
	}
	if !openCheck.Passed {
		if openRemaining <= 0 {
			openCheck.Reason = domain.ReasonOpenRiskLimitReached
		} else {
			openCheck.Reason = domain.ReasonExceedsRemainingOpen
		}
	}
	resp.Checks = append(resp.Checks, openCheck)

	// Step 7: position count, holds included.
	slots := len(t.positions) + heldCount
	countCheck := domain.BudgetCheck{
		Name:      "position_count",
		Passed:    slots < tier.MaxPositions,
		LimitPct:  float64(tier.MaxPositions),
		UsedPct:   float64(slots),
		Remaining: float64(tier.MaxPositions - slots),
	}
	if !countCheck.Passed {
		countCheck.Reason = domain.ReasonMaxPositionsReached
	}
	resp.Checks = append(resp.Checks, countCheck)

	// Step 8: pyramiding.
	hasSymbol := symbolHeld
	for _, pos := range t.positions {
		if pos.Symbol == req.Symbol {
			hasSymbol = true
			break
		}
	}
	pyramidingCheck := domain.BudgetCheck{
		Name:   "pyramiding",
		Passed: cfg.AllowPyramiding || !hasSymbol,
	}
	if !pyramidingCheck.Passed {
		pyramidingCheck.Reason = domain.ReasonDuplicateSymbolPosition
	}
	resp.Checks = append(resp.Checks, pyramidingCheck)

	// Step 9: consecutive losses.
	lossCheck := domain.BudgetCheck{
		Name:      "consecutive_losses",
		Passed:    t.consecutiveLosses < cfg.HardStopAfterLosses,
		LimitPct:  float64(cfg.HardStopAfterLosses),
		UsedPct:   float64(t.consecutiveLosses),
		Remaining: float64(cfg.HardStopAfterLosses - t.consecutiveLosses),
	}
	if !lossCheck.Passed {
		lossCheck.Reason = domain.ReasonConsecutiveLossLimit
	}
	resp.Checks = append(resp.Checks, lossCheck)

	// Synthesis.
	firstFailed := ""
	anyFailed := false
	for _, c := range resp.Checks {
		if !c.Passed && firstFailed == "" {
			firstFailed = c.Reason
		}
		if !c.Passed {
			anyFailed = true
		}
	}

	if !anyFailed {
		resp.Decision = domain.DecisionAllow
		resp.PrimaryReason = domain.ReasonWithinLimits
		resp.AllowedSize = req.PositionSize
		resp.AllowedRiskPct = proposedPct
		t.placeHold(req, proposedPct, now)
		resp.Snapshot = t.snapshotLocked(tier, now)
		return evaluationOutcome{response: resp}
	}

	if !pyramidingCheck.Passed || !lossCheck.Passed || !countCheck.Passed {
		return reject(firstFailed)
	}

	// Only budget-sized dimensions failed: size down to the tightest
	// remaining budget if a meaningful trade survives.
	maxAllowable := perTradeLimit
	if dailyRemaining < maxAllowable {
		maxAllowable = dailyRemaining
	}
	if openRemaining < maxAllowable {
		maxAllowable = openRemaining
	}
	if maxAllowable <= 0 || maxAllowable < cfg.MinRiskPct {
		return reject(priorityReason(resp.Checks))
	}

	resp.Decision = domain.DecisionReduceSize
	resp.PrimaryReason = firstFailed
	resp.AllowedRiskPct = maxAllowable
	resp.AllowedSize = req.PositionSize * maxAllowable / proposedPct
	t.placeHold(req, maxAllowable, now)
	resp.Snapshot = t.snapshotLocked(tier, now)
	return evaluationOutcome{response: resp}
}

// placeHold reserves approved budget until registration or expiry. Caller
// must hold t.mu.
func (t *Tracker) placeHold(req domain.TradeRiskRequest, riskPct float64, now time.Time) {
	if req.RequestID == "" {
		return
	}
	t.holds[req.RequestID] = hold{
		requestID: req.RequestID,
		symbol:    req.Symbol,
		riskPct:   riskPct,
		expiresAt: now.Add(t.holdTTL),
	}
}

// snapshotLocked is Snapshot for callers already holding t.mu.
func (t *Tracker) snapshotLocked(tier domain.CapitalTier, now time.Time) domain.RiskBudgetSnapshot {
	dailyRemaining := tier.DailyPct - t.daily.ConsumedPct
	if dailyRemaining < 0 {
		dailyRemaining = 0
	}
	openRemaining := tier.OpenPct - t.openUsedPct
	if openRemaining < 0 {
		openRemaining = 0
	}
	return domain.RiskBudgetSnapshot{
		Equity:            t.equity,
		PeakEquity:        t.peakEquity,
		DrawdownPct:       t.drawdownPct(),
		Tier:              tier.Name,
		PerTradeLimitPct:  tier.PerTradePct,
		DailyLimitPct:     tier.DailyPct,
		DailyUsedPct:      t.daily.ConsumedPct,
		DailyRemainingPct: dailyRemaining,
		OpenLimitPct:      tier.OpenPct,
		OpenUsedPct:       t.openUsedPct,
		OpenRemainingPct:  openRemaining,
		OpenPositions:     len(t.positions),
		MaxPositions:      tier.MaxPositions,
		ConsecutiveLosses: t.consecutiveLosses,
		Halted:            t.halted,
		HaltReason:        t.haltReason,
		EquityUpdatedAt:   t.equityUpdatedAt,
		TakenAt:           now,
	}
}

func joinProblems(problems []string) string {
	if len(problems) == 0 {
		return ""
	}
	out := problems[0]
	for _, p := range problems[1:] {
		out += "; " + p
	}
	return out
}

// priorityReason picks the most severe failed-budget reason.
func priorityReason(checks []domain.BudgetCheck) string {
	failed := make(map[string]bool)
	for _, c := range checks {
		if !c.Passed && c.Reason != "" {
			failed[c.Reason] = true
		}
	}
	for _, reason := range domain.ReasonPriority {
		if failed[reason] {
			return reason
		}
	}
	for _, c := range checks {
		if !c.Passed {
			return c.Reason
		}
	}
	return domain.ReasonWithinLimits
}
