// Package main boots the trading control core: it loads configuration,
// wires the dependency container, starts the orchestrator with its module
// registry, and turns shutdown conditions into the exit codes the process
// supervisor acts on.
package main

import (
	"errors"
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/di"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/orchestrator"
	"github.com/cuongccna/ProjectBotTrading-sub001/pkg/logger"
)

// Exit codes are operational contract: the supervisor restarts on 1,
// pages on 2 and 3, and stays down on 4.
const (
	exitOK            = 0
	exitStartupFailed = 1
	exitStateCorrupt  = 2
	exitLockdown      = 3
	exitInvalidConfig = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	modeFlag := flag.String("mode", "",
		"runtime mode: full, ingest, process, risk, trade, backtest or monitor (overrides RUNTIME_MODE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := bootLog()
		boot.Error().Err(err).Msg("Invalid configuration")
		return exitInvalidConfig
	}
	if *modeFlag != "" {
		mode, err := domain.ParseRuntimeMode(*modeFlag)
		if err != nil {
			boot := bootLog()
			boot.Error().Err(err).Msg("Invalid configuration")
			return exitInvalidConfig
		}
		cfg.Mode = mode
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().
		Str("mode", string(cfg.Mode)).
		Str("data_dir", cfg.DataDir).
		Bool("live_trading", cfg.LiveTrading).
		Msg("Starting trading control core")

	container, err := di.Wire(cfg, clock.NewSystem(), log)
	if err != nil {
		if errors.Is(err, domain.ErrStateCorrupt) {
			log.Error().Err(err).Msg("Persisted state is corrupt, refusing to start")
			return exitStateCorrupt
		}
		log.Error().Err(err).Msg("Failed to wire dependencies")
		return exitStartupFailed
	}
	defer container.Close()

	if err := container.Pipeline.Start(); err != nil {
		if errors.Is(err, domain.ErrStateCorrupt) {
			log.Error().Err(err).Msg("Persisted state is corrupt, refusing to start")
			return exitStateCorrupt
		}
		log.Error().Err(err).Msg("Failed to start orchestrator")
		return exitStartupFailed
	}
	log.Info().Int("port", cfg.Port).Msg("Control core running")

	orchestrator.WaitForShutdown(log,
		func() { container.Pipeline.Stop() },
		func() { os.Exit(exitStartupFailed) },
	)

	// A lockdown survives shutdown: the supervisor must not restart into
	// trading without an operator looking first.
	if container.Controller.State() == domain.StateEmergencyLockdown {
		log.Error().Msg("Exiting under emergency lockdown")
		return exitLockdown
	}

	log.Info().Msg("Shutdown complete")
	return exitOK
}

// bootLog reports configuration problems before the real logger exists.
func bootLog() zerolog.Logger {
	return logger.New(logger.Config{Level: "info", Pretty: true})
}
