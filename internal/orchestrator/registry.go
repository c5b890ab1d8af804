package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Registry starts and stops the external modules (ingestion adapters,
// strategy engines, execution connectors) in dependency order. Modules
// declare what they depend on at registration; start order is a topological
// sort with dependencies first, stop order is the exact reverse of the
// actual start order.
type Registry struct {
	log zerolog.Logger

	mu      sync.Mutex
	entries map[string]*registryEntry
	started []string // names in the order they were started
}

type registryEntry struct {
	module domain.Module
	deps   []string
}

// NewRegistry creates an empty module registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:     log.With().Str("component", "module_registry").Logger(),
		entries: make(map[string]*registryEntry),
	}
}

// Register adds a module and the names of the modules it depends on.
// Dependencies may be registered in any order but must all exist before
// StartAll.
func (r *Registry) Register(m domain.Module, deps ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if name == "" {
		return fmt.Errorf("module has no name")
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("module %s already registered", name)
	}
	for _, dep := range deps {
		if dep == name {
			return fmt.Errorf("module %s depends on itself", name)
		}
	}

	r.entries[name] = &registryEntry{module: m, deps: append([]string(nil), deps...)}
	r.log.Info().Str("module", name).Strs("deps", deps).Msg("Module registered")
	return nil
}

// StartAll starts every module, dependencies first. If any start fails the
// already-started modules are stopped in reverse and the error is returned;
// the caller treats this as a startup failure.
func (r *Registry) StartAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, err := r.startOrder()
	if err != nil {
		return err
	}

	for _, name := range order {
		m := r.entries[name].module
		if err := m.Start(); err != nil {
			r.log.Error().Err(err).Str("module", name).Msg("Module failed to start")
			r.stopStartedLocked()
			return fmt.Errorf("failed to start module %s: %w", name, err)
		}
		r.started = append(r.started, name)
		r.log.Info().Str("module", name).Msg("Module started")
	}
	return nil
}

// StopAll stops the started modules in reverse start order. Stop errors are
// logged, not returned; stop must always run to completion.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopStartedLocked()
}

func (r *Registry) stopStartedLocked() {
	for i := len(r.started) - 1; i >= 0; i-- {
		name := r.started[i]
		if err := r.entries[name].module.Stop(); err != nil {
			r.log.Error().Err(err).Str("module", name).Msg("Module failed to stop")
			continue
		}
		r.log.Info().Str("module", name).Msg("Module stopped")
	}
	r.started = nil
}

// Health reports every registered module's self-reported health.
func (r *Registry) Health() map[string]domain.ModuleHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]domain.ModuleHealth, len(r.entries))
	for name, entry := range r.entries {
		out[name] = entry.module.Health()
	}
	return out
}

// TradeVetoes returns the names of modules that currently veto trading.
// The veto skips the trading stages for a cycle; it does not halt the
// system, that remains the risk controller's call.
func (r *Registry) TradeVetoes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var vetoes []string
	for name, entry := range r.entries {
		if gater, ok := entry.module.(domain.TradeGater); ok && !gater.CanTrade() {
			vetoes = append(vetoes, name)
		}
	}
	sort.Strings(vetoes)
	return vetoes
}

// startOrder is a topological sort of the dependency DAG, dependencies
// first. Names are visited in sorted order so the result is deterministic.
func (r *Registry) startOrder() ([]string, error) {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("module dependency cycle through %s", name)
		}
		entry, ok := r.entries[name]
		if !ok {
			return fmt.Errorf("module %s is required but not registered", name)
		}
		state[name] = visiting
		for _, dep := range entry.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
