package health

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
)

// ScoreSink receives every evaluation for persistence. Writes are
// best-effort; a failing sink is logged and skipped.
type ScoreSink interface {
	RecordScore(domain.HealthScore) error
}

// TransitionFunc is called when a source's health state changes.
type TransitionFunc func(domain.SourceHealthTransition)

// CriticalFunc is called when a source enters CRITICAL.
type CriticalFunc func(source string, score domain.HealthScore)

// Registry evaluates all collected sources on a fixed interval, tracks
// their states, and notifies subscribers only when a state actually
// changes.
type Registry struct {
	collector *MetricsCollector
	scorer    *HealthScorer
	window    time.Duration
	interval  time.Duration
	clk       clock.Clock
	sink      ScoreSink
	em        *events.Manager
	log       zerolog.Logger

	mu     sync.RWMutex
	scores map[string]domain.HealthScore
	states map[string]domain.HealthState

	onTransition []TransitionFunc
	onCritical   []CriticalFunc

	stop    chan struct{}
	stopped chan struct{}
}

// NewRegistry creates a registry over the collector. sink and em may be
// nil when persistence or events are not wired.
func NewRegistry(collector *MetricsCollector, scorer *HealthScorer, window, interval time.Duration, clk clock.Clock, sink ScoreSink, em *events.Manager, log zerolog.Logger) *Registry {
	return &Registry{
		collector: collector,
		scorer:    scorer,
		window:    window,
		interval:  interval,
		clk:       clk,
		sink:      sink,
		em:        em,
		log:       log.With().Str("component", "health_registry").Logger(),
		scores:    make(map[string]domain.HealthScore),
		states:    make(map[string]domain.HealthState),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// OnTransition registers a state-change callback. Registration happens
// during wiring, before Start.
func (r *Registry) OnTransition(fn TransitionFunc) {
	r.onTransition = append(r.onTransition, fn)
}

// OnCritical registers a callback fired when a source turns CRITICAL.
func (r *Registry) OnCritical(fn CriticalFunc) {
	r.onCritical = append(r.onCritical, fn)
}

// Start launches the evaluation loop.
func (r *Registry) Start() {
	go r.run()
	r.log.Info().Dur("interval", r.interval).Msg("Health registry started")
}

// Stop terminates the evaluation loop and waits for it to exit.
func (r *Registry) Stop() {
	close(r.stop)
	<-r.stopped
	r.log.Info().Msg("Health registry stopped")
}

func (r *Registry) run() {
	defer close(r.stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.EvaluateAll()
		case <-r.stop:
			return
		}
	}
}

// EvaluateAll scores every source the collector has seen.
func (r *Registry) EvaluateAll() {
	for _, source := range r.collector.Sources() {
		r.EvaluateSource(source)
	}
}

// EvaluateSource scores one source and applies the debounced transition
// logic. Callbacks run outside the registry lock.
func (r *Registry) EvaluateSource(source string) domain.HealthScore {
	snap := r.collector.Snapshot(source, r.window)
	score := r.scorer.Evaluate(snap)

	r.mu.Lock()
	previous, seen := r.states[source]
	if !seen {
		previous = domain.HealthUnknown
	}
	score.PreviousState = previous
	r.scores[source] = score
	r.states[source] = score.State
	changed := score.State != previous
	r.mu.Unlock()

	if r.sink != nil {
		if err := r.sink.RecordScore(score); err != nil {
			r.log.Warn().Err(err).Str("source", source).Msg("Failed to persist health snapshot")
		}
	}

	if changed {
		transition := domain.SourceHealthTransition{
			Source: source,
			From:   previous,
			To:     score.State,
			Score:  score.FinalScore,
			At:     score.EvaluatedAt,
		}
		r.log.Info().
			Str("source", source).
			Str("from", string(previous)).
			Str("to", string(score.State)).
			Float64("score", score.FinalScore).
			Msg("Source health state changed")

		for _, fn := range r.onTransition {
			fn(transition)
		}
		if score.State == domain.HealthCritical {
			for _, fn := range r.onCritical {
				fn(source, score)
			}
		}
		if r.em != nil {
			r.em.Emit("health_registry", &events.SourceHealthChangedData{
				Source: source,
				From:   previous,
				To:     score.State,
				Score:  score.FinalScore,
			})
		}
	}

	return score
}

// Score returns the latest evaluation for a source.
func (r *Registry) Score(source string) (domain.HealthScore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	score, ok := r.scores[source]
	return score, ok
}

// Scores returns a copy of all latest evaluations.
func (r *Registry) Scores() map[string]domain.HealthScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.HealthScore, len(r.scores))
	for source, score := range r.scores {
		out[source] = score
	}
	return out
}

// RiskMultiplier aggregates the per-source multipliers by taking the
// minimum. With no evaluated sources it returns 1.0; the budget manager
// applies its own gating before any source reports.
func (r *Registry) RiskMultiplier() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	multiplier := 1.0
	for _, score := range r.scores {
		if m := score.RiskMultiplier(); m < multiplier {
			multiplier = m
		}
	}
	return multiplier
}
