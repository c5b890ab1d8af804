package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/audit"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/marketdata"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/riskbudget"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/statestore"
)

// InitializeRepositories builds the persistence layer over the open
// databases: the JSON state files, the four audit repositories, the
// budget rows, and the market-data store.
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	states, err := statestore.New(cfg.DataDir, log)
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}
	container.States = states

	auditConn := container.AuditDB.Conn()
	container.Cycles = audit.NewCycleRepository(auditConn, log)
	container.Halts = audit.NewHaltRepository(auditConn, log)
	container.HealthLog = audit.NewHealthRepository(auditConn, log)
	container.RiskLog = audit.NewRiskRepository(auditConn, log)

	container.BudgetRows = riskbudget.NewRepository(container.StateDB.Conn(), log)

	market, err := marketdata.Open(cfg.DataDir+"/marketdata.db", log)
	if err != nil {
		return fmt.Errorf("failed to open market data store: %w", err)
	}
	container.Market = market

	log.Info().Msg("Repositories initialized")
	return nil
}
