// Package di wires the control plane: databases, repositories, services,
// monitors, stage handlers, lifecycle modules, and the ops server, built
// in dependency order by Wire. The container is the explicit alternative
// to globals; tests construct their own against temp directories.
package di

import (
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/alerting"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/audit"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/backup"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clients/refprice"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/guard"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/health"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/marketdata"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/metrics"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/monitors"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/orchestrator"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/riskbudget"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/riskscore"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/server"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/src"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/statestore"
)

// Container holds every constructed dependency of the control plane. Wire
// fills it in stages; cmd/server drives the lifecycle through the pipeline
// and Close.
type Container struct {
	// Databases
	AuditDB *database.DB // append-only control audit trail
	StateDB *database.DB // mutable budget state: positions, daily ledger

	// Repositories and stores
	States     *statestore.Store
	Cycles     *audit.CycleRepository
	Halts      *audit.HaltRepository
	HealthLog  *audit.HealthRepository
	RiskLog    *audit.RiskRepository
	BudgetRows *riskbudget.Repository
	Market     *marketdata.Store

	// Observability and events
	Metrics   *metrics.Metrics
	Bus       *events.Bus
	Events    *events.Manager
	Collector *health.MetricsCollector
	Health    *health.Registry
	Alerts    *alerting.Service

	// Authority stack
	Budget      *riskbudget.Manager
	Scoring     *riskscore.Engine
	RiskChanges *riskscore.ChangeDetector
	Guard       *guard.Guard
	Controller  *src.Controller

	// Reference prices
	RefPrices *refprice.Service
	Stream    *refprice.TickerStream // nil without a configured stream URL

	// Execution bookkeeping read by the execution monitor
	Execution *monitors.ExecutionRecorder

	// Orchestration and surfaces
	Modules  *orchestrator.Registry
	Pipeline *orchestrator.Orchestrator
	Backups  *backup.Runner // nil when backups are disabled
	Server   *server.Server

	// Maintenance cron; started by the maintenance module
	Jobs *Jobs
}

// Close releases everything Wire opened. It is safe on a partially built
// container, so failed wiring stages clean up through it.
func (c *Container) Close() {
	if c.Market != nil {
		_ = c.Market.Close()
	}
	if c.StateDB != nil {
		_ = c.StateDB.Close()
	}
	if c.AuditDB != nil {
		_ = c.AuditDB.Close()
	}
}
