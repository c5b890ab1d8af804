package domain

import "time"

// ModuleStatus is a module's self-reported condition.
type ModuleStatus string

const (
	ModuleOK       ModuleStatus = "OK"
	ModuleDegraded ModuleStatus = "DEGRADED"
	ModuleError    ModuleStatus = "ERROR"
	ModuleStopped  ModuleStatus = "STOPPED"
)

// ModuleHealth is returned by every registered module's Health call.
type ModuleHealth struct {
	Status        ModuleStatus      `json:"status"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Details       map[string]string `json:"details,omitempty"`
}

// Module is the contract every external collaborator (ingestion, strategy,
// execution adapters) implements toward the orchestrator. Stop must be
// idempotent.
type Module interface {
	Name() string
	Start() error
	Stop() error
	Health() ModuleHealth
}

// TradeGater is optionally implemented by modules that want to veto
// trading. The orchestrator consults it but it is not authoritative; the
// System Risk Controller remains the single halt authority.
type TradeGater interface {
	CanTrade() bool
}
