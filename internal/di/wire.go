package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
)

// Wire builds the fully wired container. Order of operations:
// 1. Open databases and apply schemas
// 2. Initialize repositories and state stores
// 3. Initialize services (authority stack, health, pipeline)
// 4. Register maintenance jobs
// 5. Register modules and stage handlers
// On any failure everything already opened is closed before returning.
func Wire(cfg *config.Config, clk clock.Clock, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, cfg, clk, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if _, err := RegisterJobs(container, cfg, clk, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register maintenance jobs: %w", err)
	}

	if err := RegisterModules(container, clk, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register modules: %w", err)
	}

	RegisterStageHandlers(container, cfg)

	log.Info().Msg("Dependency wiring completed")
	return container, nil
}
