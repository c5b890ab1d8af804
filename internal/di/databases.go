package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
)

// InitializeDatabases opens the control-plane databases and applies their
// schemas. audit.db carries the append-only trail under the safety
// profile; state.db carries the mutable budget rows.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	auditDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/audit.db",
		Profile: database.ProfileAudit,
		Name:    "audit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit database: %w", err)
	}
	container.AuditDB = auditDB

	stateDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/state.db",
		Profile: database.ProfileStandard,
		Name:    "state",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	container.StateDB = stateDB

	for _, db := range []*database.DB{auditDB, stateDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized and schemas applied")
	return container, nil
}
