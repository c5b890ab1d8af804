// Package orchestrator drives the staged trading pipeline. Each cycle runs
// the mode's stages in declared order, gates the trading stages behind the
// System Risk Controller and the data-reality guard, persists a cycle
// record, and feeds the processing and data-integrity monitors from its own
// bookkeeping.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/guard"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/monitors"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/statestore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	stageRetryBase = 200 * time.Millisecond
	stageRetryMax  = 5 * time.Second

	// recentCycleWindow bounds the ring the processing monitor reads.
	recentCycleWindow = 20
)

// Handler executes one pipeline stage. The context carries the stage
// timeout; handlers must return promptly once it is done.
type Handler func(ctx context.Context) error

// Authority is the trading gate, answered by the System Risk Controller.
type Authority interface {
	CanTrade() bool
}

// RealityCheck validates stored market data against live references before
// any trading stage runs.
type RealityCheck interface {
	Check(ctx context.Context, symbol, exchange, interval string) guard.Result
}

// Halter receives the emergency escalation when a stage demands it.
type Halter interface {
	TriggerHalt(ht domain.HaltTrigger)
}

// CycleSink persists finished cycle records.
type CycleSink interface {
	RecordCycle(rec domain.CycleRecord) error
}

// StateSaver persists the orchestrator state file between cycles.
type StateSaver interface {
	SaveOrchestrator(state statestore.OrchestratorState) error
	LoadOrchestrator() (statestore.OrchestratorState, bool, error)
}

// Observer receives finished cycles for metrics.
type Observer interface {
	ObserveCycle(rec domain.CycleRecord)
}

// GateSpec names the market data the reality guard validates before the
// trading stages run.
type GateSpec struct {
	Symbols  []string
	Exchange string
	Interval string
}

// Deps are the orchestrator's collaborators. Guard, Halter, Registry,
// Events, and Observe may be nil; Cycles and States are required.
type Deps struct {
	Authority Authority
	Guard     RealityCheck
	Halter    Halter
	Registry  *Registry
	Cycles    CycleSink
	States    StateSaver
	Events    *events.Manager
	Observe   Observer
}

// Orchestrator runs the pipeline loop. One cycle at a time; a non-blocking
// Trigger starts the next cycle early.
type Orchestrator struct {
	cfg  config.OrchestratorConfig
	mode domain.RuntimeMode
	gate GateSpec

	authority Authority
	guard     RealityCheck
	halter    Halter
	registry  *Registry
	cycles    CycleSink
	states    StateSaver
	events    *events.Manager
	obs       Observer
	clk       clock.Clock
	log       zerolog.Logger

	handlers map[domain.Stage]Handler

	baseCtx context.Context
	cancel  context.CancelFunc

	trigger  chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	running     bool
	seq         int64
	lastCycle   *domain.CycleRecord
	recent      []cycleOutcome
	stateFlag   string
	persistErrs int

	latestData       map[string]time.Time
	schemaMismatches int
	ingestFailures   int
}

type cycleOutcome struct {
	success  bool
	duration time.Duration
}

// New creates the orchestrator for one runtime mode. Stage handlers are
// registered afterwards with RegisterHandler; stages without a handler are
// skipped.
func New(cfg config.OrchestratorConfig, mode domain.RuntimeMode, gate GateSpec, deps Deps, clk clock.Clock, log zerolog.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		mode:       mode,
		gate:       gate,
		authority:  deps.Authority,
		guard:      deps.Guard,
		halter:     deps.Halter,
		registry:   deps.Registry,
		cycles:     deps.Cycles,
		states:     deps.States,
		events:     deps.Events,
		obs:        deps.Observe,
		clk:        clk,
		log:        log.With().Str("component", "orchestrator").Logger(),
		handlers:   make(map[domain.Stage]Handler),
		baseCtx:    ctx,
		cancel:     cancel,
		trigger:    make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		latestData: make(map[string]time.Time),
	}
}

// RegisterHandler installs the handler for one stage. Call before Start.
func (o *Orchestrator) RegisterHandler(stage domain.Stage, h Handler) {
	o.handlers[stage] = h
}

// Mode returns the runtime mode this orchestrator was built for.
func (o *Orchestrator) Mode() domain.RuntimeMode { return o.mode }

// Start brings up the registered modules in dependency order and begins
// the cycle loop. A module start failure aborts with everything already
// started stopped again.
func (o *Orchestrator) Start() error {
	if prev, found, err := o.states.LoadOrchestrator(); err != nil {
		return fmt.Errorf("failed to load orchestrator state: %w", err)
	} else if found && !prev.ShutdownClean {
		o.log.Warn().
			Str("last_cycle_id", prev.LastCycleID).
			Time("last_cycle_ts", prev.LastCycleTS).
			Msg("Previous run did not shut down cleanly")
	}

	if o.registry != nil {
		if err := o.registry.StartAll(); err != nil {
			return fmt.Errorf("module startup failed: %w", err)
		}
	}

	o.mu.Lock()
	o.running = true
	o.mu.Unlock()

	go o.loop()
	o.log.Info().
		Str("mode", string(o.mode)).
		Dur("cycle_interval", o.cfg.CycleInterval).
		Msg("Orchestrator started")
	return nil
}

// Stop shuts the loop down: the current stage gets the grace window to
// finish, then its context is cancelled. Modules stop in reverse start
// order and the state file is marked clean.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })

	select {
	case <-o.stopped:
	case <-time.After(o.cfg.ShutdownGrace):
		o.log.Warn().
			Dur("grace", o.cfg.ShutdownGrace).
			Msg("Shutdown grace exceeded, cancelling in-flight stage")
		o.cancel()
		<-o.stopped
	}
	o.cancel()

	if o.registry != nil {
		o.registry.StopAll()
	}

	o.mu.Lock()
	o.running = false
	lastID := ""
	var lastTS time.Time
	if o.lastCycle != nil {
		lastID = o.lastCycle.CycleID
		lastTS = o.lastCycle.FinishedAt
	}
	o.mu.Unlock()

	if err := o.states.SaveOrchestrator(statestore.OrchestratorState{
		CurrentMode:   o.mode,
		LastCycleID:   lastID,
		LastCycleTS:   lastTS,
		ShutdownClean: true,
	}); err != nil {
		o.log.Error().Err(err).Msg("Failed to save final orchestrator state")
	}

	o.log.Info().Msg("Orchestrator stopped")
}

// Trigger starts the next cycle early. Non-blocking; a pending trigger is
// enough.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Running reports whether the cycle loop is alive. False after a
// non-recoverable stage failure stopped orchestration.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// LastCycle returns the most recently finished cycle record, or nil before
// the first cycle completes.
func (o *Orchestrator) LastCycle() *domain.CycleRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastCycle == nil {
		return nil
	}
	rec := *o.lastCycle
	return &rec
}

// PersistFailures counts cycle-record and state-file writes that failed.
// The infrastructure monitor reads it as a database error signal.
func (o *Orchestrator) PersistFailures() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.persistErrs
}

func (o *Orchestrator) loop() {
	defer close(o.stopped)

	ticker := time.NewTicker(o.cfg.CycleInterval)
	defer ticker.Stop()

	// Baseline cycle right away; the ticker covers steady state.
	if !o.runCycle() {
		o.markStopped()
		return
	}

	for {
		select {
		case <-o.stop:
			return
		case <-o.trigger:
			if !o.runCycle() {
				o.markStopped()
				return
			}
		case <-ticker.C:
			if !o.runCycle() {
				o.markStopped()
				return
			}
		}
	}
}

// markStopped flips Running off when the loop dies on its own. Modules
// stay up so operators can inspect and unwind through the ops API.
func (o *Orchestrator) markStopped() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	o.log.Error().Msg("Orchestration lifecycle stopped")
}

// runCycle executes one traversal of the mode's stages. It returns false
// when a non-recoverable or emergency failure must stop the lifecycle.
func (o *Orchestrator) runCycle() bool {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.mu.Unlock()

	cycleID := uuid.NewString()
	started := o.clk.Now().UTC()
	stages := o.mode.Stages()
	results := make([]domain.StageResult, 0, len(stages))

	keepGoing := true
	failed := false
	gateDenied := false
	gateChecked := false

	for _, stage := range stages {
		if failed || o.stopRequested() {
			results = append(results, domain.StageResult{Stage: stage, Status: domain.StageSkipped})
			continue
		}

		// The trading stages sit behind the gate: risk controller first,
		// module vetoes, then the reality guard per symbol.
		if stage == domain.StageStrategy || stage == domain.StageExecute {
			if !gateChecked {
				gateDenied = !o.tradingAllowed()
				gateChecked = true
			}
			if gateDenied || (stage == domain.StageExecute && o.authority != nil && !o.authority.CanTrade()) {
				results = append(results, domain.StageResult{Stage: stage, Status: domain.StageSkipped})
				continue
			}
		}

		res, err := o.runStage(stage)
		results = append(results, res)
		if stage == domain.StageIngest && o.handlers[stage] != nil {
			o.noteIngestOutcome(err)
		}
		if err == nil {
			continue
		}

		failed = true
		switch classify(err) {
		case FailureEmergency:
			o.log.Error().Err(err).Str("stage", string(stage)).Msg("Stage demanded emergency stop")
			if o.halter != nil {
				o.halter.TriggerHalt(domain.HaltTrigger{
					Trigger:  domain.TriggerEmergencyStop,
					Category: domain.CategoryInternal,
					Level:    domain.HaltEmergency,
					Reason:   err.Error(),
				})
			}
			keepGoing = false
		case FailureNonRecoverable:
			o.log.Error().Err(err).Str("stage", string(stage)).Msg("Stage failed non-recoverably")
			keepGoing = false
		default:
			o.log.Warn().Err(err).Str("stage", string(stage)).Msg("Stage failed, cycle abandoned")
		}
	}

	rec := domain.CycleRecord{
		CycleID:    cycleID,
		Mode:       o.mode,
		Sequence:   seq,
		Stages:     results,
		Success:    !failed,
		StartedAt:  started,
		FinishedAt: o.clk.Now().UTC(),
	}
	o.finishCycle(rec)
	return keepGoing
}

// runStage executes one stage with the timeout applied, retrying
// recoverable failures with bounded backoff.
func (o *Orchestrator) runStage(stage domain.Stage) (domain.StageResult, error) {
	handler := o.handlers[stage]
	if handler == nil {
		return domain.StageResult{Stage: stage, Status: domain.StageSkipped}, nil
	}

	started := o.clk.Now().UTC()
	attempts := 1 + o.cfg.MaxStageRetries

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = o.attemptStage(stage, handler)
		if err == nil || classify(err) != FailureRecoverable || attempt == attempts {
			break
		}
		o.log.Warn().
			Err(err).
			Str("stage", string(stage)).
			Int("attempt", attempt).
			Msg("Stage attempt failed, backing off")
		if !o.backoff(attempt) {
			break
		}
	}

	res := domain.StageResult{
		Stage:    stage,
		Status:   domain.StageSuccess,
		Duration: o.clk.Now().UTC().Sub(started),
	}
	if err != nil {
		res.Status = domain.StageFailed
		if errors.Is(err, context.DeadlineExceeded) {
			res.Status = domain.StageTimeout
		}
		res.Error = err.Error()
	}
	return res, err
}

func (o *Orchestrator) attemptStage(stage domain.Stage, handler Handler) (err error) {
	ctx, cancel := context.WithTimeout(o.baseCtx, o.cfg.StageTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().
				Str("stage", string(stage)).
				Interface("panic", r).
				Msg("Stage handler panicked")
			err = Recoverable(stage, fmt.Errorf("stage handler panicked: %v", r))
		}
	}()

	if err := handler(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return Recoverable(stage, fmt.Errorf("timed out after %s: %w", o.cfg.StageTimeout, context.DeadlineExceeded))
		}
		return err
	}
	return nil
}

// backoff sleeps between retry attempts, doubling from the base and
// respecting a stop request. Returns false when stopping.
func (o *Orchestrator) backoff(attempt int) bool {
	delay := stageRetryBase << (attempt - 1)
	if delay > stageRetryMax {
		delay = stageRetryMax
	}
	select {
	case <-o.stop:
		return false
	case <-time.After(delay):
		return true
	}
}

// tradingAllowed is the gate in front of STRATEGY and EXECUTE. The risk
// controller is authoritative; module vetoes and guard failures skip the
// trading stages for this cycle (the guard halts the system itself on a
// violation).
func (o *Orchestrator) tradingAllowed() bool {
	if o.authority != nil && !o.authority.CanTrade() {
		o.log.Debug().Msg("Trading stages skipped, risk controller denies trading")
		return false
	}
	if o.registry != nil {
		if vetoes := o.registry.TradeVetoes(); len(vetoes) > 0 {
			o.log.Info().Strs("modules", vetoes).Msg("Trading stages skipped, module veto")
			return false
		}
	}
	if o.guard != nil {
		for _, symbol := range o.gate.Symbols {
			res := o.guard.Check(o.baseCtx, symbol, o.gate.Exchange, o.gate.Interval)
			if !res.Passed {
				o.log.Warn().
					Str("symbol", symbol).
					Str("failure", string(res.Failure)).
					Msg("Trading stages skipped, reality check failed")
				return false
			}
		}
	}
	return true
}

func (o *Orchestrator) stopRequested() bool {
	select {
	case <-o.stop:
		return true
	default:
		return false
	}
}

// finishCycle records the cycle everywhere it must land: ring buffer,
// audit log, state file, event bus, metrics. Persistence failures are
// counted for the infrastructure monitor but never stall the loop.
func (o *Orchestrator) finishCycle(rec domain.CycleRecord) {
	duration := rec.FinishedAt.Sub(rec.StartedAt)

	o.mu.Lock()
	o.lastCycle = &rec
	o.recent = append(o.recent, cycleOutcome{success: rec.Success, duration: duration})
	if len(o.recent) > recentCycleWindow {
		o.recent = o.recent[len(o.recent)-recentCycleWindow:]
	}
	o.mu.Unlock()

	if err := o.cycles.RecordCycle(rec); err != nil {
		o.notePersistFailure()
		o.log.Error().Err(err).Str("cycle_id", rec.CycleID).Msg("Failed to record cycle")
	}
	if err := o.states.SaveOrchestrator(statestore.OrchestratorState{
		CurrentMode:   o.mode,
		LastCycleID:   rec.CycleID,
		LastCycleTS:   rec.FinishedAt,
		ShutdownClean: false,
	}); err != nil {
		o.notePersistFailure()
		o.log.Error().Err(err).Msg("Failed to save orchestrator state")
	}

	if o.events != nil {
		o.events.Emit("orchestrator", &events.CycleCompletedData{
			CycleID:    rec.CycleID,
			Mode:       rec.Mode,
			Sequence:   rec.Sequence,
			Success:    rec.Success,
			DurationMS: float64(duration.Milliseconds()),
		})
	}
	if o.obs != nil {
		o.obs.ObserveCycle(rec)
	}

	evt := o.log.Info()
	if !rec.Success {
		evt = o.log.Warn()
	}
	evt.Str("cycle_id", rec.CycleID).
		Int64("sequence", rec.Sequence).
		Bool("success", rec.Success).
		Dur("duration", duration).
		Msg("Cycle finished")
}

func (o *Orchestrator) notePersistFailure() {
	o.mu.Lock()
	o.persistErrs++
	o.mu.Unlock()
}

func (o *Orchestrator) noteIngestOutcome(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.ingestFailures++
		return
	}
	o.ingestFailures = 0
}

// RecordFeed notes fresh data on a named feed. Ingest handlers call it so
// the data-integrity monitor can see per-feed staleness.
func (o *Orchestrator) RecordFeed(feed string, ts time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.latestData[feed]; !ok || ts.After(current) {
		o.latestData[feed] = ts
	}
}

// RecordSchemaMismatch notes a payload rejected for shape. The counter is
// cumulative; a mismatch means code and upstream disagree and stays until
// a deploy fixes it.
func (o *Orchestrator) RecordSchemaMismatch(feed string) {
	o.mu.Lock()
	o.schemaMismatches++
	count := o.schemaMismatches
	o.mu.Unlock()
	o.log.Error().Str("feed", feed).Int("total", count).Msg("Schema mismatch on ingested payload")
}

// SetStateFlag marks the pipeline state inconsistent; the processing
// monitor turns a non-empty flag into a hard halt.
func (o *Orchestrator) SetStateFlag(flag string) {
	o.mu.Lock()
	o.stateFlag = flag
	o.mu.Unlock()
	o.log.Error().Str("flag", flag).Msg("Pipeline state flagged inconsistent")
}

// ClearStateFlag removes the inconsistency flag after repair.
func (o *Orchestrator) ClearStateFlag() {
	o.mu.Lock()
	o.stateFlag = ""
	o.mu.Unlock()
}

// IngestSnapshot implements the data-integrity monitor's source.
func (o *Orchestrator) IngestSnapshot() monitors.IngestSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	latest := make(map[string]time.Time, len(o.latestData))
	for feed, ts := range o.latestData {
		latest[feed] = ts
	}
	return monitors.IngestSnapshot{
		LatestData:          latest,
		SchemaMismatches:    o.schemaMismatches,
		ConsecutiveFailures: o.ingestFailures,
	}
}

// ProcessingSnapshot implements the processing monitor's source, built
// from the recent-cycle ring and the module registry's version tags.
func (o *Orchestrator) ProcessingSnapshot() monitors.ProcessingSnapshot {
	o.mu.Lock()
	snap := monitors.ProcessingSnapshot{
		CyclesInWindow: len(o.recent),
		StateFlag:      o.stateFlag,
	}
	for _, out := range o.recent {
		if !out.success {
			snap.FailedCycles++
		}
		if out.duration > snap.SlowestCycle {
			snap.SlowestCycle = out.duration
		}
	}
	o.mu.Unlock()

	snap.VersionMismatch = o.moduleVersionsDiffer()
	return snap
}

// moduleVersionsDiffer compares the "version" detail across module health
// reports; more than one distinct value means a partial deploy.
func (o *Orchestrator) moduleVersionsDiffer() bool {
	if o.registry == nil {
		return false
	}
	versions := make(map[string]struct{})
	for _, health := range o.registry.Health() {
		if v, ok := health.Details["version"]; ok && v != "" {
			versions[v] = struct{}{}
		}
	}
	return len(versions) > 1
}
