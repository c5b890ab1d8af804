// Package src implements the System Risk Controller, the absolute
// authority over whether the system may trade. It owns the SystemState,
// runs the monitors on a scheduler, persists every halt and transition to
// the audit log, and answers CanTrade for the rest of the system. Nothing
// may issue orders while the controller denies.
package src

import (
	"fmt"
	"sync"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/monitors"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/statemachine"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/statestore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HaltAudit persists halt events, transitions, and resume requests.
type HaltAudit interface {
	RecordEvent(event domain.HaltEvent) error
	RecordTransition(tr domain.StateTransition) (int64, error)
	RecordResumeRequest(req domain.ResumeRequest) error
}

// StateStore persists the durable system state between restarts.
type StateStore interface {
	SaveHalt(state statestore.HaltState) error
	LoadHalt() (statestore.HaltState, bool, error)
}

// Alerter publishes halt alerts asynchronously.
type Alerter interface {
	PublishHalt(event domain.HaltEvent)
}

// Observer receives controller activity for metrics.
type Observer interface {
	SetSystemState(state domain.SystemState)
	ObserveHalt(event domain.HaltEvent)
	ObserveMonitor(res domain.MonitorResult)
}

// Status is the controller's externally visible condition.
type Status struct {
	State    domain.SystemState              `json:"state"`
	CanTrade bool                            `json:"can_trade"`
	LastHalt *domain.HaltEvent               `json:"last_halt,omitempty"`
	Monitors map[string]domain.MonitorResult `json:"monitors,omitempty"`
}

// Deps are the controller's collaborators. Alerts and Observe may be nil.
type Deps struct {
	Audit   HaltAudit
	States  StateStore
	Events  *events.Manager
	Alerts  Alerter
	Observe Observer
}

// Controller owns the SystemState. All transitions go through the state
// machine; every halt and transition is persisted before the controller
// reports success, and a persistence failure on those writes escalates to
// HALTED_HARD rather than trading on an unrecorded halt.
type Controller struct {
	cfg    config.MonitorConfig
	audit  HaltAudit
	states StateStore
	events *events.Manager
	alerts Alerter
	obs    Observer
	clk    clock.Clock
	log    zerolog.Logger

	mu          sync.RWMutex
	state       domain.SystemState
	lastHalt    *domain.HaltEvent
	haltSeq     int64 // bumped on every accepted halt
	lastResults map[string]monitorRecord

	sched *scheduler
}

type monitorRecord struct {
	result  domain.MonitorResult
	haltSeq int64 // value of haltSeq when the result arrived
}

// NewController creates the controller, reloading the durable state.
// An unreadable state file is corruption and aborts startup; the caller
// exits with the state-corruption code.
func NewController(cfg config.MonitorConfig, deps Deps, clk clock.Clock, log zerolog.Logger) (*Controller, error) {
	c := &Controller{
		cfg:         cfg,
		audit:       deps.Audit,
		states:      deps.States,
		events:      deps.Events,
		alerts:      deps.Alerts,
		obs:         deps.Observe,
		clk:         clk,
		log:         log.With().Str("component", "src").Logger(),
		state:       domain.StateRunning,
		lastResults: make(map[string]monitorRecord),
	}
	c.sched = newScheduler(c, log)

	saved, found, err := c.states.LoadHalt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStateCorrupt, err)
	}
	if found {
		c.state = saved.SystemState
		c.log.Info().
			Str("state", saved.SystemState.String()).
			Bool("requires_manual_resume", saved.RequiresManualResume).
			Msg("Restored system state")
	}

	if c.obs != nil {
		c.obs.SetSystemState(c.state)
	}
	return c, nil
}

// Register adds a monitor to the scheduler. Call before Start.
func (c *Controller) Register(m monitors.Monitor) error {
	return c.sched.register(m)
}

// Start begins scheduled monitor runs.
func (c *Controller) Start() {
	c.sched.start()
	c.log.Info().Str("state", c.State().String()).Msg("System risk controller started")
}

// Stop halts the scheduler and waits for in-flight monitor runs.
func (c *Controller) Stop() {
	c.sched.stop()
	c.log.Info().Msg("System risk controller stopped")
}

// State returns the current system state.
func (c *Controller) State() domain.SystemState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CanTrade reports whether new orders may be issued right now.
func (c *Controller) CanTrade() bool {
	return c.State().AllowsTrading()
}

// Status returns the state, the trading gate, the last halt, and the most
// recent result per monitor.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]domain.MonitorResult, len(c.lastResults))
	for id, rec := range c.lastResults {
		results[id] = rec.result
	}
	return Status{
		State:    c.state,
		CanTrade: c.state.AllowsTrading(),
		LastHalt: c.lastHalt,
		Monitors: results,
	}
}

// TriggerHalt escalates the system to the trigger's target state. Used by
// the guard, the orchestrator, and the health subsystem; monitor results
// arrive through the scheduler instead.
func (c *Controller) TriggerHalt(ht domain.HaltTrigger) {
	c.halt(ht, "")
}

// RequestHalt is the operator-initiated halt from the ops API.
func (c *Controller) RequestHalt(level domain.HaltLevel, reason, operator string) {
	c.halt(domain.HaltTrigger{
		Trigger:  domain.TriggerOperatorHalt,
		Category: domain.CategoryManual,
		Level:    level,
		Reason:   fmt.Sprintf("%s (operator: %s)", reason, operator),
	}, "")
}

func (c *Controller) halt(ht domain.HaltTrigger, monitorID string) {
	event := domain.HaltEvent{
		ID:            uuid.NewString(),
		Trigger:       ht.Trigger,
		Category:      ht.Category,
		Level:         ht.Level,
		Reason:        ht.Reason,
		MonitorID:     monitorID,
		Symbol:        ht.Symbol,
		CorrelationID: uuid.NewString(),
		CreatedAt:     c.clk.Now().UTC(),
	}

	c.mu.Lock()
	from := c.state
	target := ht.Level.TargetState()

	if err := statemachine.Transition(from, target); err != nil {
		c.mu.Unlock()
		// Already at or above this severity. The event is still
		// evidence and goes to the audit log; the state stays put.
		c.log.Warn().
			Str("trigger", string(ht.Trigger)).
			Str("from", from.String()).
			Str("target", target.String()).
			Err(err).
			Msg("Halt did not change state")
		if err := c.audit.RecordEvent(event); err != nil {
			c.log.Error().Err(err).Msg("Failed to record halt event")
		}
		return
	}

	c.state = target
	c.lastHalt = &event
	c.haltSeq++
	c.mu.Unlock()

	c.log.Error().
		Str("trigger", string(ht.Trigger)).
		Str("category", string(ht.Category)).
		Str("level", string(ht.Level)).
		Str("from", from.String()).
		Str("to", target.String()).
		Str("reason", ht.Reason).
		Msg("System halted")

	if err := c.persistHalt(event, from, target); err != nil {
		c.escalatePersistenceFailure(err)
	}

	c.publishTransition(from, target, ht.Trigger, ht.Reason)
	if c.events != nil {
		c.events.Emit("src", &events.HaltTriggeredData{
			EventID:  event.ID,
			Trigger:  ht.Trigger,
			Category: ht.Category,
			Level:    ht.Level,
			Reason:   ht.Reason,
			Symbol:   ht.Symbol,
		})
	}
	if c.alerts != nil {
		c.alerts.PublishHalt(event)
	}
	if c.obs != nil {
		c.obs.ObserveHalt(event)
		c.obs.SetSystemState(target)
	}
}

// persistHalt writes the mandatory records for a halt: the event, the
// transition, and the durable state file.
func (c *Controller) persistHalt(event domain.HaltEvent, from, to domain.SystemState) error {
	if err := c.audit.RecordEvent(event); err != nil {
		return fmt.Errorf("halt event write failed: %w", err)
	}
	if _, err := c.audit.RecordTransition(domain.StateTransition{
		From:      from,
		To:        to,
		Trigger:   event.Trigger,
		Reason:    event.Reason,
		CreatedAt: event.CreatedAt,
	}); err != nil {
		return fmt.Errorf("state transition write failed: %w", err)
	}
	if err := c.states.SaveHalt(statestore.HaltState{
		SystemState:          to,
		LastHaltEventID:      event.ID,
		RequiresManualResume: to.RequiresManualResume(),
	}); err != nil {
		return fmt.Errorf("halt state write failed: %w", err)
	}
	return nil
}

// escalatePersistenceFailure forces the state to at least HALTED_HARD
// after a mandatory write failed. The in-memory state governs CanTrade,
// so the system stops trading even if nothing can be written at all.
func (c *Controller) escalatePersistenceFailure(cause error) {
	c.mu.Lock()
	from := c.state
	target := domain.StateHaltedHard
	if from.Severity() > target.Severity() {
		target = from
	}
	c.state = target
	event := domain.HaltEvent{
		ID:            uuid.NewString(),
		Trigger:       domain.TriggerPersistenceFailure,
		Category:      domain.CategoryInternal,
		Level:         domain.HaltHard,
		Reason:        cause.Error(),
		CorrelationID: uuid.NewString(),
		CreatedAt:     c.clk.Now().UTC(),
	}
	c.lastHalt = &event
	c.haltSeq++
	c.mu.Unlock()

	c.log.Error().
		Err(cause).
		Str("state", target.String()).
		Msg("Persistence failure during halt, escalated")

	// Best effort from here: the escalation itself must not depend on
	// the failing store.
	if err := c.audit.RecordEvent(event); err != nil {
		c.log.Error().Err(err).Msg("Failed to record escalation event")
	}
	if err := c.states.SaveHalt(statestore.HaltState{
		SystemState:          target,
		LastHaltEventID:      event.ID,
		RequiresManualResume: target.RequiresManualResume(),
	}); err != nil {
		c.log.Error().Err(err).Msg("Failed to save escalated state")
	}

	if c.alerts != nil {
		c.alerts.PublishHalt(event)
	}
	if c.obs != nil {
		c.obs.ObserveHalt(event)
		c.obs.SetSystemState(target)
	}
}

// RequestResume processes an operator's request to leave a halted state.
// Every request is recorded, granted or not.
func (c *Controller) RequestResume(req domain.ResumeRequest) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = c.clk.Now().UTC()
	}

	c.mu.Lock()
	from := c.state

	if err := statemachine.Resume(from, req); err != nil {
		c.mu.Unlock()
		req.Granted = false
		req.DenyReason = err.Error()
		if recErr := c.audit.RecordResumeRequest(req); recErr != nil {
			c.log.Error().Err(recErr).Msg("Failed to record denied resume request")
		}
		c.log.Warn().
			Str("operator", req.Operator).
			Str("state", from.String()).
			Err(err).
			Msg("Resume request denied")
		return err
	}

	c.state = domain.StateRunning
	c.mu.Unlock()

	req.Granted = true
	if err := c.audit.RecordResumeRequest(req); err != nil {
		c.log.Error().Err(err).Msg("Failed to record granted resume request")
	}
	if _, err := c.audit.RecordTransition(domain.StateTransition{
		From:      from,
		To:        domain.StateRunning,
		Reason:    fmt.Sprintf("operator resume: %s", req.Reason),
		CreatedAt: req.RequestedAt,
	}); err != nil {
		c.log.Error().Err(err).Msg("Failed to record resume transition")
	}
	// A failed state write here leaves the old halted state on disk; a
	// restart comes back halted, which is the safe direction.
	if err := c.states.SaveHalt(statestore.HaltState{SystemState: domain.StateRunning}); err != nil {
		c.log.Error().Err(err).Msg("Failed to save resumed state")
	}

	c.log.Info().
		Str("operator", req.Operator).
		Str("from", from.String()).
		Msg("Resume granted")

	if c.events != nil {
		c.events.Emit("src", &events.ResumeGrantedData{
			Operator: req.Operator,
			From:     from,
			To:       domain.StateRunning,
		})
	}
	if c.obs != nil {
		c.obs.SetSystemState(domain.StateRunning)
	}
	return nil
}

// SetDegraded moves RUNNING to DEGRADED. The health subsystem calls this
// when aggregate source health drops; trading continues at a reduced risk
// multiplier.
func (c *Controller) SetDegraded(reason string) {
	c.shiftAutomatic(domain.StateDegraded, reason)
}

// ClearDegraded returns DEGRADED to RUNNING once source health recovers.
func (c *Controller) ClearDegraded(reason string) {
	c.shiftAutomatic(domain.StateRunning, reason)
}

// shiftAutomatic performs a non-halt automatic transition (the
// RUNNING↔DEGRADED pair and the monitor-driven HALTED_SOFT→RUNNING).
func (c *Controller) shiftAutomatic(target domain.SystemState, reason string) {
	c.mu.Lock()
	from := c.state
	if from == target {
		c.mu.Unlock()
		return
	}
	if err := statemachine.Transition(from, target); err != nil {
		c.mu.Unlock()
		c.log.Debug().
			Str("from", from.String()).
			Str("target", target.String()).
			Err(err).
			Msg("Automatic transition rejected")
		return
	}
	c.state = target
	c.mu.Unlock()

	c.log.Info().
		Str("from", from.String()).
		Str("to", target.String()).
		Str("reason", reason).
		Msg("System state changed")

	if _, err := c.audit.RecordTransition(domain.StateTransition{
		From:      from,
		To:        target,
		Reason:    reason,
		CreatedAt: c.clk.Now().UTC(),
	}); err != nil {
		c.log.Error().Err(err).Msg("Failed to record automatic transition")
	}
	if err := c.states.SaveHalt(statestore.HaltState{
		SystemState:          target,
		RequiresManualResume: target.RequiresManualResume(),
	}); err != nil {
		c.log.Error().Err(err).Msg("Failed to save state after automatic transition")
	}

	c.publishTransition(from, target, "", reason)
	if c.obs != nil {
		c.obs.SetSystemState(target)
	}
}

func (c *Controller) publishTransition(from, to domain.SystemState, trigger domain.Trigger, reason string) {
	if c.events == nil {
		return
	}
	c.events.Emit("src", &events.SystemStateChangedData{
		From:    from,
		To:      to,
		Trigger: trigger,
		Reason:  reason,
	})
}

// handleResult absorbs one monitor result: record it, halt on unhealthy,
// and consider the soft-halt automatic recovery on healthy.
func (c *Controller) handleResult(res domain.MonitorResult) {
	if c.obs != nil {
		c.obs.ObserveMonitor(res)
	}

	c.mu.Lock()
	c.lastResults[res.MonitorID] = monitorRecord{result: res, haltSeq: c.haltSeq}
	c.mu.Unlock()

	if !res.Healthy && res.Trigger != nil {
		c.halt(*res.Trigger, res.MonitorID)
		return
	}

	c.maybeAutoResume()
}

// maybeAutoResume leaves HALTED_SOFT once every registered monitor has
// reported healthy since the halt. Harder states never resume here.
func (c *Controller) maybeAutoResume() {
	c.mu.RLock()
	if c.state != domain.StateHaltedSoft {
		c.mu.RUnlock()
		return
	}
	seq := c.haltSeq
	registered := c.sched.monitorIDs()
	allClear := len(registered) > 0
	for _, id := range registered {
		rec, ok := c.lastResults[id]
		if !ok || !rec.result.Healthy || rec.haltSeq < seq {
			allClear = false
			break
		}
	}
	c.mu.RUnlock()

	if allClear {
		c.shiftAutomatic(domain.StateRunning, "all monitors healthy after soft halt")
	}
}
