package domain

import "errors"

// Sentinel errors shared across the control plane. Callers match with
// errors.Is after unwrapping.
var (
	// ErrInvalidStateTransition is returned by the state machine for an
	// illegal transition; nothing is persisted for these.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrPositionState is returned for out-of-order position lifecycle
	// calls (open, update stop, close); tracker state is unchanged.
	ErrPositionState = errors.New("position lifecycle violation")

	// ErrInsufficientData tags risk assessments computed without the
	// minimum per-dimension inputs.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrStateCorrupt marks an unreadable state file at startup; the
	// process exits with the state-corruption code.
	ErrStateCorrupt = errors.New("state file corrupt")

	// ErrTradingHalted is returned by operator APIs when the tracker or
	// the system is halted.
	ErrTradingHalted = errors.New("trading halted")

	// ErrManualResumeRequired is returned when an automatic transition
	// out of a hard-halted state is attempted.
	ErrManualResumeRequired = errors.New("manual resume required")

	// ErrNotFound is returned by repositories for missing rows.
	ErrNotFound = errors.New("not found")
)
