package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/alerting"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clients/refprice"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/health"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/server"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/src"
)

// RegisterModules places the long-lived services under the orchestrator's
// module registry so Start and Stop run in dependency order: alerting
// before the controller so halt alerts have a consumer, the controller
// before the ops server so the API never serves an unstarted authority.
func RegisterModules(container *Container, clk clock.Clock, log zerolog.Logger) error {
	reg := container.Modules

	modules := []struct {
		m    domain.Module
		deps []string
	}{
		{m: &alertingModule{svc: container.Alerts, clk: clk}},
		{m: &healthModule{reg: container.Health, clk: clk}},
		{m: &maintenanceHandle{jobs: container.Jobs}},
		{m: &controllerModule{ctrl: container.Controller, clk: clk}, deps: []string{"alerting"}},
		{m: &serverModule{srv: container.Server, clk: clk, log: log}, deps: []string{"risk_controller", "alerting"}},
	}
	if container.Stream != nil {
		modules = append(modules, struct {
			m    domain.Module
			deps []string
		}{m: &streamModule{ws: container.Stream, clk: clk, log: log}})
	}
	if container.Backups != nil {
		modules = append(modules, struct {
			m    domain.Module
			deps []string
		}{m: container.Backups})
	}

	for _, entry := range modules {
		if err := reg.Register(entry.m, entry.deps...); err != nil {
			return fmt.Errorf("failed to register module %s: %w", entry.m.Name(), err)
		}
	}
	return nil
}

// alertingModule runs the alert dispatcher under the registry.
type alertingModule struct {
	svc *alerting.Service
	clk clock.Clock
}

func (m *alertingModule) Name() string { return "alerting" }

func (m *alertingModule) Start() error {
	m.svc.Start()
	return nil
}

func (m *alertingModule) Stop() error {
	m.svc.Stop()
	return nil
}

func (m *alertingModule) Health() domain.ModuleHealth {
	return domain.ModuleHealth{Status: domain.ModuleOK, LastHeartbeat: m.clk.Now().UTC()}
}

// healthModule runs the source-health evaluation loop.
type healthModule struct {
	reg  *health.Registry
	clk  clock.Clock
	once sync.Once
}

func (m *healthModule) Name() string { return "health_registry" }

func (m *healthModule) Start() error {
	m.reg.Start()
	return nil
}

func (m *healthModule) Stop() error {
	m.once.Do(m.reg.Stop)
	return nil
}

func (m *healthModule) Health() domain.ModuleHealth {
	status := domain.ModuleOK
	mult := m.reg.RiskMultiplier()
	if mult < 1.0 {
		status = domain.ModuleDegraded
	}
	return domain.ModuleHealth{
		Status:        status,
		LastHeartbeat: m.clk.Now().UTC(),
		Details:       map[string]string{"risk_multiplier": strconv.FormatFloat(mult, 'f', 2, 64)},
	}
}

// maintenanceHandle defers to the Jobs module. Registered through a handle
// so the registry never holds a nil *Jobs interface.
type maintenanceHandle struct {
	jobs *Jobs
}

func (m *maintenanceHandle) Name() string                { return m.jobs.Name() }
func (m *maintenanceHandle) Start() error                { return m.jobs.Start() }
func (m *maintenanceHandle) Stop() error                 { return m.jobs.Stop() }
func (m *maintenanceHandle) Health() domain.ModuleHealth { return m.jobs.Health() }

// streamModule runs the reference-price ticker stream.
type streamModule struct {
	ws  *refprice.TickerStream
	clk clock.Clock
	log zerolog.Logger
}

func (m *streamModule) Name() string { return "refprice_stream" }

func (m *streamModule) Start() error {
	// A failed initial connect keeps retrying in the background; until
	// then the guard fails NO_REFERENCE, which is the safe direction.
	if err := m.ws.Start(); err != nil {
		m.log.Warn().Err(err).Msg("Ticker stream started degraded")
	}
	return nil
}

func (m *streamModule) Stop() error {
	return m.ws.Stop()
}

func (m *streamModule) Health() domain.ModuleHealth {
	status := domain.ModuleOK
	if !m.ws.IsConnected() {
		status = domain.ModuleDegraded
	}
	return domain.ModuleHealth{
		Status:        status,
		LastHeartbeat: m.clk.Now().UTC(),
		Details:       map[string]string{"connected": strconv.FormatBool(m.ws.IsConnected())},
	}
}

// controllerModule runs the System Risk Controller's monitor scheduler.
// A halted system is still a healthy module; the state travels in the
// details for operators reading module health.
type controllerModule struct {
	ctrl *src.Controller
	clk  clock.Clock
}

func (m *controllerModule) Name() string { return "risk_controller" }

func (m *controllerModule) Start() error {
	m.ctrl.Start()
	return nil
}

func (m *controllerModule) Stop() error {
	m.ctrl.Stop()
	return nil
}

func (m *controllerModule) Health() domain.ModuleHealth {
	status := m.ctrl.Status()
	return domain.ModuleHealth{
		Status:        domain.ModuleOK,
		LastHeartbeat: m.clk.Now().UTC(),
		Details: map[string]string{
			"state":     status.State.String(),
			"can_trade": strconv.FormatBool(status.CanTrade),
		},
	}
}

// serverModule runs the ops HTTP server.
type serverModule struct {
	srv *server.Server
	clk clock.Clock
	log zerolog.Logger
}

func (m *serverModule) Name() string { return "ops_server" }

func (m *serverModule) Start() error {
	go func() {
		if err := m.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("Ops server stopped unexpectedly")
		}
	}()
	return nil
}

func (m *serverModule) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}

func (m *serverModule) Health() domain.ModuleHealth {
	return domain.ModuleHealth{Status: domain.ModuleOK, LastHeartbeat: m.clk.Now().UTC()}
}
