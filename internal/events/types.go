// Package events provides the in-process signal bus connecting the
// orchestrator, the risk engines and the controllers.
package events

// EventType represents different event types
type EventType string

const (
	// Controller events
	SystemStateChanged EventType = "SYSTEM_STATE_CHANGED"
	HaltTriggered      EventType = "HALT_TRIGGERED"
	ResumeGranted      EventType = "RESUME_GRANTED"

	// Risk engine events
	RiskStateChanged EventType = "RISK_STATE_CHANGED"
	TradeEvaluated   EventType = "TRADE_EVALUATED"
	PositionOpened   EventType = "POSITION_OPENED"
	PositionClosed   EventType = "POSITION_CLOSED"
	EquityUpdated    EventType = "EQUITY_UPDATED"

	// Data plane events
	SourceHealthChanged EventType = "SOURCE_HEALTH_CHANGED"
	GuardViolation      EventType = "GUARD_VIOLATION"

	// Pipeline events
	CycleCompleted EventType = "CYCLE_COMPLETED"
	ErrorOccurred  EventType = "ERROR_OCCURRED"
)
