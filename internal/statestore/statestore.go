// Package statestore persists small operational state snapshots as JSON
// files on disk. Writes go through a temp file and an atomic rename so a
// crash mid-write never leaves a torn file behind.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

const (
	orchestratorFile = "orchestrator_state.json"
	haltFile         = "halt_state.json"
	drawdownPeakFile = "drawdown_peak.json"
)

// OrchestratorState survives restarts so the pipeline can report whether
// the previous run shut down cleanly.
type OrchestratorState struct {
	CurrentMode   domain.RuntimeMode `json:"current_mode"`
	LastCycleID   string             `json:"last_cycle_id"`
	LastCycleTS   time.Time          `json:"last_cycle_ts"`
	ShutdownClean bool               `json:"shutdown_clean"`
}

// HaltState is the system risk controller's durable view of the current
// system state. It is reloaded on startup before any trading decision.
type HaltState struct {
	SystemState          domain.SystemState `json:"system_state"`
	LastHaltEventID      string             `json:"last_halt_event_id,omitempty"`
	RequiresManualResume bool               `json:"requires_manual_resume"`
}

// DrawdownPeak tracks the all-time equity high-water mark. It only ever
// moves up; restarts must not reset it.
type DrawdownPeak struct {
	PeakEquity float64   `json:"peak_equity"`
	PeakTS     time.Time `json:"peak_ts"`
}

// Store reads and writes the JSON state files under a single directory.
type Store struct {
	dir string
	mu  sync.Mutex
	log zerolog.Logger
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{
		dir: dir,
		log: log.With().Str("component", "statestore").Logger(),
	}, nil
}

// Dir returns the directory holding the state files.
func (s *Store) Dir() string {
	return s.dir
}

// SaveOrchestrator writes orchestrator_state.json atomically.
func (s *Store) SaveOrchestrator(state OrchestratorState) error {
	return s.write(orchestratorFile, state)
}

// LoadOrchestrator reads orchestrator_state.json. found is false when the
// file does not exist yet (first boot).
func (s *Store) LoadOrchestrator() (state OrchestratorState, found bool, err error) {
	found, err = s.read(orchestratorFile, &state)
	return state, found, err
}

// SaveHalt writes halt_state.json atomically.
func (s *Store) SaveHalt(state HaltState) error {
	return s.write(haltFile, state)
}

// LoadHalt reads halt_state.json. found is false when the file does not
// exist yet.
func (s *Store) LoadHalt() (state HaltState, found bool, err error) {
	found, err = s.read(haltFile, &state)
	return state, found, err
}

// SaveDrawdownPeak writes drawdown_peak.json atomically.
func (s *Store) SaveDrawdownPeak(state DrawdownPeak) error {
	return s.write(drawdownPeakFile, state)
}

// LoadDrawdownPeak reads drawdown_peak.json. found is false when the file
// does not exist yet.
func (s *Store) LoadDrawdownPeak() (state DrawdownPeak, found bool, err error) {
	found, err = s.read(drawdownPeakFile, &state)
	return state, found, err
}

func (s *Store) write(name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	final := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file for %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file for %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}

	s.log.Debug().Str("file", name).Msg("State file written")
	return nil
}

func (s *Store) read(name string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.log.Error().Err(err).Str("file", name).Msg("State file is corrupt")
		return true, fmt.Errorf("%w: %s: %v", domain.ErrStateCorrupt, name, err)
	}

	return true, nil
}
