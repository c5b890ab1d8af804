package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/alerting"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/backup"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clients/refprice"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/guard"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/health"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/metrics"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/monitors"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/orchestrator"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/riskbudget"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/riskscore"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/server"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/src"
)

// InitializeServices builds the control plane over the repositories:
// metrics, events, the health subsystem, alerting, the authority stack
// (budget manager, scoring engine, guard, risk controller), reference
// prices, the orchestrator with its monitors, backups, and the ops server.
func InitializeServices(container *Container, cfg *config.Config, clk clock.Clock, log zerolog.Logger) error {
	container.Metrics = metrics.New()

	container.Bus = events.NewBus()
	container.Events = events.NewManager(container.Bus, log)

	// Health subsystem. The reference-price clients record into the
	// collector; the registry scores every source it has seen.
	container.Collector = health.NewMetricsCollector(cfg.Health.MaxSamples, clk)
	scorer := health.NewHealthScorer(cfg.Health, log)
	sink := &healthScoreSink{repo: container.HealthLog, obs: container.Metrics}
	container.Health = health.NewRegistry(
		container.Collector,
		scorer,
		time.Duration(cfg.Health.WindowSeconds)*time.Second,
		cfg.Health.EvalInterval,
		clk,
		sink,
		container.Events,
		log,
	)

	transports := []alerting.Transport{alerting.NewLogTransport(log)}
	if cfg.Alerting.WebhookURL != "" {
		transports = append(transports, alerting.NewWebhookTransport(cfg.Alerting.WebhookURL, cfg.Alerting.SendTimeout, log))
	}
	container.Alerts = alerting.NewService(cfg.Alerting, clk, log, alerting.Deps{
		Transports: transports,
		Audit:      container.RiskLog,
		Observe:    container.Metrics.ObserveAlert,
	})

	container.Budget = riskbudget.NewManager(cfg, clk, log, riskbudget.Deps{
		Audit:      container.RiskLog,
		Store:      container.BudgetRows,
		Peaks:      container.States,
		Events:     container.Events,
		AlertFn:    container.Alerts.Publish,
		HealthMult: container.Health.RiskMultiplier,
	})

	container.Scoring = riskscore.NewEngine(cfg.Scoring, clk, log)
	container.RiskChanges = riskscore.NewChangeDetector(container.Events, log)

	// Reference prices. An unset URL leaves the source nil inside the
	// service, which then skips it; assigning a nil concrete pointer to
	// the interface would instead look present and panic.
	var streamSrc refprice.StreamSource
	if cfg.RefPrice.WSURL != "" {
		ws := refprice.NewTickerStream(cfg.RefPrice.WSURL, cfg.RefPrice.Symbols, container.Collector, clk, log)
		container.Stream = ws
		streamSrc = ws
	}
	var restSrc refprice.RESTSource
	if cfg.RefPrice.RESTURL != "" {
		restSrc = refprice.NewRESTClient(cfg.RefPrice.RESTURL, cfg.Guard.Timeout, container.Collector, clk, log)
	}
	container.RefPrices = refprice.NewService(streamSrc, restSrc, cfg.RefPrice.StreamMaxAge, cfg.RefPrice.CacheTTL, clk, log)

	ctrl, err := src.NewController(cfg.Monitors, src.Deps{
		Audit:   container.Halts,
		States:  container.States,
		Events:  container.Events,
		Alerts:  container.Alerts,
		Observe: container.Metrics,
	}, clk, log)
	if err != nil {
		return fmt.Errorf("failed to initialize risk controller: %w", err)
	}
	container.Controller = ctrl

	container.Guard = guard.New(cfg.Guard, cfg.LiveTrading, guard.Deps{
		Candles: container.Market,
		Refs:    container.RefPrices,
		Halter:  container.Controller,
		Events:  container.Events,
		Observe: container.Metrics.ObserveGuard,
	}, clk, log)

	container.Execution = monitors.NewExecutionRecorder(cfg.Monitors.RejectionWindow, clk, log)

	container.Modules = orchestrator.NewRegistry(log)
	container.Pipeline = orchestrator.New(
		cfg.Orchestrator,
		cfg.Mode,
		orchestrator.GateSpec{
			Symbols:  cfg.RefPrice.Symbols,
			Exchange: cfg.Guard.Exchange,
			Interval: cfg.Guard.Interval,
		},
		orchestrator.Deps{
			Authority: container.Controller,
			Guard:     container.Guard,
			Halter:    container.Controller,
			Registry:  container.Modules,
			Cycles:    container.Cycles,
			States:    container.States,
			Events:    container.Events,
			Observe:   container.Metrics,
		},
		clk,
		log,
	)

	// The five monitors. Ingest and processing read the orchestrator's
	// own bookkeeping; execution reads the recorder; control reads the
	// budget manager; infrastructure samples the host and both databases.
	checks := []monitors.Monitor{
		monitors.NewDataIntegrity(cfg.Monitors, container.Pipeline, clk, log),
		monitors.NewProcessing(cfg.Monitors, container.Pipeline, clk, log),
		monitors.NewExecution(cfg.Monitors, container.Execution, clk, log),
		monitors.NewControl(cfg.Monitors, &budgetControlSource{budget: container.Budget}, clk, log),
		monitors.NewInfrastructure(
			cfg.Monitors,
			cfg.DataDir,
			[]*database.DB{container.AuditDB, container.StateDB},
			container.Pipeline.PersistFailures,
			nil,
			clk,
			log,
		),
	}
	for _, m := range checks {
		if err := container.Controller.Register(m); err != nil {
			return fmt.Errorf("failed to register monitor %s: %w", m.ID(), err)
		}
	}

	// Health hooks. A critical source soft-halts; the halt self-heals
	// through the monitors once the source recovers, and the 0.0 risk
	// multiplier keeps the budget rejecting in the meantime. Transitions
	// shift only the RUNNING / DEGRADED pair; harder states stay with the
	// controller's own resume rules.
	container.Health.OnCritical(func(source string, score domain.HealthScore) {
		container.Controller.TriggerHalt(domain.HaltTrigger{
			Trigger:  domain.TriggerDataSourceCritical,
			Category: domain.CategoryDataIntegrity,
			Level:    domain.HaltSoft,
			Reason:   fmt.Sprintf("data source %s turned critical (score %.1f)", source, score.FinalScore),
		})
	})
	container.Health.OnTransition(func(tr domain.SourceHealthTransition) {
		if container.Health.RiskMultiplier() < 1.0 {
			container.Controller.SetDegraded(fmt.Sprintf("source %s is %s", tr.Source, tr.To))
			return
		}
		if container.Controller.State() == domain.StateDegraded {
			container.Controller.ClearDegraded(fmt.Sprintf("source %s recovered, all sources healthy", tr.Source))
		}
	})

	if err := container.Budget.Restore(); err != nil {
		return fmt.Errorf("failed to restore risk budget state: %w", err)
	}

	if cfg.Backup.Enabled {
		store, err := backup.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup store: %w", err)
		}
		svc := backup.New(store, map[string]*database.DB{
			"audit": container.AuditDB,
			"state": container.StateDB,
		}, cfg.DataDir, clk, container.Metrics, log)
		runner, err := backup.NewRunner(svc, cfg.Backup.Schedule, cfg.Backup.RetentionDays, log)
		if err != nil {
			return fmt.Errorf("failed to schedule backups: %w", err)
		}
		container.Backups = runner
	}

	serverCfg := server.Config{
		Port:       cfg.Port,
		Log:        log,
		Clock:      clk,
		Controller: container.Controller,
		Budget:     container.Budget,
		Health:     container.Health,
		Halts:      container.Halts,
		Pipeline:   container.Pipeline,
		Bus:        container.Bus,
		Metrics:    container.Metrics.Handler(),
	}
	if container.Backups != nil {
		serverCfg.Backups = container.Backups
	}
	container.Server = server.New(serverCfg)

	log.Info().Msg("Services initialized")
	return nil
}
