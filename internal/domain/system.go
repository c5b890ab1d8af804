// Package domain provides the shared types of the trading control plane:
// system states, halt triggers, risk and health models, budget requests and
// responses, and the records persisted to the audit log.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SystemState is the global trading state owned by the System Risk
// Controller. States are ordered by severity; transitions to a higher
// severity are always legal, transitions downward are restricted.
type SystemState int

const (
	StateRunning SystemState = iota
	StateDegraded
	StateHaltedSoft
	StateHaltedHard
	StateEmergencyLockdown
)

var systemStateNames = map[SystemState]string{
	StateRunning:           "RUNNING",
	StateDegraded:          "DEGRADED",
	StateHaltedSoft:        "HALTED_SOFT",
	StateHaltedHard:        "HALTED_HARD",
	StateEmergencyLockdown: "EMERGENCY_LOCKDOWN",
}

func (s SystemState) String() string {
	if name, ok := systemStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SystemState(%d)", int(s))
}

// Severity returns the ordering value used for monotonicity checks.
func (s SystemState) Severity() int { return int(s) }

// RequiresManualResume reports whether leaving this state needs an
// acknowledged operator request.
func (s SystemState) RequiresManualResume() bool {
	return s >= StateHaltedHard
}

// AllowsTrading reports whether new orders may be issued in this state.
// DEGRADED still trades, at a reduced risk multiplier.
func (s SystemState) AllowsTrading() bool {
	return s == StateRunning || s == StateDegraded
}

// ParseSystemState converts a stored state name back to its value.
func ParseSystemState(name string) (SystemState, error) {
	for s, n := range systemStateNames {
		if n == name {
			return s, nil
		}
	}
	return StateRunning, fmt.Errorf("unknown system state %q", name)
}

func (s SystemState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SystemState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	state, err := ParseSystemState(name)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// HaltLevel is the severity of a requested halt.
type HaltLevel string

const (
	// HaltSoft pauses new entries; open positions are kept.
	HaltSoft HaltLevel = "SOFT"
	// HaltHard freezes trading and cancels pending orders.
	HaltHard HaltLevel = "HARD"
	// HaltEmergency force-closes positions and locks the system down.
	HaltEmergency HaltLevel = "EMERGENCY"
)

// TargetState maps a halt level to the state the system enters.
func (l HaltLevel) TargetState() SystemState {
	switch l {
	case HaltSoft:
		return StateHaltedSoft
	case HaltHard:
		return StateHaltedHard
	case HaltEmergency:
		return StateEmergencyLockdown
	default:
		return StateHaltedHard
	}
}

// Severity orders halt levels for coalescing concurrent monitor results.
func (l HaltLevel) Severity() int {
	switch l {
	case HaltSoft:
		return 1
	case HaltHard:
		return 2
	case HaltEmergency:
		return 3
	default:
		return 0
	}
}

// TriggerCategory groups halt triggers by the subsystem that raised them.
type TriggerCategory string

const (
	CategoryDataIntegrity  TriggerCategory = "DATA_INTEGRITY"
	CategoryProcessing     TriggerCategory = "PROCESSING"
	CategoryExecution      TriggerCategory = "EXECUTION"
	CategoryControl        TriggerCategory = "CONTROL"
	CategoryInfrastructure TriggerCategory = "INFRASTRUCTURE"
	CategoryManual         TriggerCategory = "MANUAL"
	CategoryInternal       TriggerCategory = "INTERNAL"
)

// Trigger is the specific, enumerated reason for a halt.
type Trigger string

const (
	// Data integrity
	TriggerStaleData         Trigger = "DI_STALE_DATA"
	TriggerSchemaMismatch    Trigger = "DI_SCHEMA_MISMATCH"
	TriggerIngestionFailures Trigger = "DI_INGESTION_FAILURES"
	TriggerPriceDeviation    Trigger = "DI_PRICE_DEVIATION"
	TriggerNoReference       Trigger = "DI_NO_REFERENCE"

	// Processing
	TriggerProcessingErrors Trigger = "PR_ERROR_RATE"
	TriggerVersionMismatch  Trigger = "PR_VERSION_MISMATCH"
	TriggerStateFlag        Trigger = "PR_STATE_FLAG"
	TriggerCycleTimeout     Trigger = "PR_CYCLE_TIMEOUT"

	// Execution
	TriggerRejectionBurst   Trigger = "EX_REJECTION_BURST"
	TriggerSlippage         Trigger = "EX_SLIPPAGE_EXCEEDED"
	TriggerPositionMismatch Trigger = "EX_POSITION_MISMATCH"
	TriggerOrderStuck       Trigger = "EX_ORDER_STUCK"

	// Control
	TriggerDrawdownExceeded Trigger = "CT_DRAWDOWN_EXCEEDED"
	TriggerLeverage         Trigger = "CT_UNEXPECTED_LEVERAGE"
	TriggerLossLimit        Trigger = "CT_LOSS_LIMIT"
	TriggerExposureLimit    Trigger = "CT_EXPOSURE_LIMIT"
	TriggerDailyBudget      Trigger = "CT_DAILY_BUDGET"

	// Infrastructure
	TriggerCPUUsage    Trigger = "IN_CPU_USAGE"
	TriggerMemoryUsage Trigger = "IN_MEMORY_USAGE"
	TriggerDiskUsage   Trigger = "IN_DISK_USAGE"
	TriggerClockSkew   Trigger = "IN_CLOCK_SKEW"
	TriggerDBErrors    Trigger = "IN_DB_ERRORS"

	// Manual / internal
	TriggerOperatorHalt       Trigger = "MN_OPERATOR_HALT"
	TriggerMonitorError       Trigger = "IT_MONITOR_ERROR"
	TriggerPersistenceFailure Trigger = "IT_PERSISTENCE_FAILURE"
	TriggerEmergencyStop      Trigger = "IT_EMERGENCY_STOP"
	TriggerDataSourceCritical Trigger = "DI_SOURCE_CRITICAL"
)

// HaltTrigger is the full description of why a halt was requested.
type HaltTrigger struct {
	Trigger  Trigger         `json:"trigger"`
	Category TriggerCategory `json:"category"`
	Level    HaltLevel       `json:"level"`
	Reason   string          `json:"reason"`
	Symbol   string          `json:"symbol,omitempty"`
}

// HaltEvent is the immutable audit record of a system-level stop.
// Constructed once, append-only persisted, never mutated.
type HaltEvent struct {
	ID            string          `json:"id"`
	Trigger       Trigger         `json:"trigger"`
	Category      TriggerCategory `json:"category"`
	Level         HaltLevel       `json:"level"`
	Reason        string          `json:"reason"`
	MonitorID     string          `json:"monitor_id,omitempty"`
	Symbol        string          `json:"symbol,omitempty"`
	Snapshot      map[string]any  `json:"snapshot,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StateTransition records one SystemState change. The persisted ID is
// monotonically increasing, giving a total order per process.
type StateTransition struct {
	ID        int64       `json:"id"`
	From      SystemState `json:"from"`
	To        SystemState `json:"to"`
	Trigger   Trigger     `json:"trigger"`
	Reason    string      `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}

// ResumeRequest is an operator's request to leave a halted state.
// Every request is appended to the audit log, granted or not.
type ResumeRequest struct {
	Operator     string    `json:"operator"`
	Reason       string    `json:"reason"`
	Acknowledged bool      `json:"acknowledged"`
	RequestedAt  time.Time `json:"requested_at"`
	Granted      bool      `json:"granted"`
	DenyReason   string    `json:"deny_reason,omitempty"`
}

// MonitorResult is the outcome of one monitor evaluation. A healthy result
// carries no trigger; an unhealthy one names the halt it demands.
type MonitorResult struct {
	MonitorID string         `json:"monitor_id"`
	Healthy   bool           `json:"healthy"`
	Trigger   *HaltTrigger   `json:"trigger,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	Duration  time.Duration  `json:"duration"`
}

// MoreSevere reports whether r demands a stronger response than other.
// Healthy results rank below any halt; among halts the level decides.
func (r MonitorResult) MoreSevere(other MonitorResult) bool {
	rs, os := 0, 0
	if !r.Healthy && r.Trigger != nil {
		rs = r.Trigger.Level.Severity()
	}
	if !other.Healthy && other.Trigger != nil {
		os = other.Trigger.Level.Severity()
	}
	return rs > os
}
