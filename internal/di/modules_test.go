package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clients/refprice"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/health"
)

func TestAlertingModuleLifecycle(t *testing.T) {
	cfg := diTestConfig(t)
	container := wiredContainer(t, cfg, clock.NewFrozen(diTestNow))

	m := &alertingModule{svc: container.Alerts, clk: clock.NewFrozen(diTestNow)}
	assert.Equal(t, "alerting", m.Name())

	require.NoError(t, m.Start())
	assert.Equal(t, domain.ModuleOK, m.Health().Status)
	require.NoError(t, m.Stop())
}

func TestHealthModuleStopIsIdempotent(t *testing.T) {
	cfg := diTestConfig(t)
	container := wiredContainer(t, cfg, clock.NewFrozen(diTestNow))

	m := &healthModule{reg: container.Health, clk: clock.NewFrozen(diTestNow)}
	require.NoError(t, m.Start())

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

func TestHealthModuleReportsMultiplier(t *testing.T) {
	cfg := diTestConfig(t)
	container := wiredContainer(t, cfg, clock.NewFrozen(diTestNow))

	m := &healthModule{reg: container.Health, clk: clock.NewFrozen(diTestNow)}
	h := m.Health()

	// No evaluated sources yet: full multiplier, nothing degraded.
	assert.Equal(t, domain.ModuleOK, h.Status)
	assert.Equal(t, "1.00", h.Details["risk_multiplier"])
}

func TestControllerModuleExposesStateDetails(t *testing.T) {
	cfg := diTestConfig(t)
	container := wiredContainer(t, cfg, clock.NewFrozen(diTestNow))

	m := &controllerModule{ctrl: container.Controller, clk: clock.NewFrozen(diTestNow)}
	h := m.Health()

	assert.Equal(t, domain.ModuleOK, h.Status)
	assert.Equal(t, "RUNNING", h.Details["state"])
	assert.Equal(t, "true", h.Details["can_trade"])
}

func TestStreamModuleStartsDegradedWhenExchangeUnreachable(t *testing.T) {
	clk := clock.NewFrozen(diTestNow)
	collector := health.NewMetricsCollector(32, clk)
	ws := refprice.NewTickerStream("ws://127.0.0.1:1/stream", []string{"BTCUSDT"}, collector, clk, zerolog.Nop())

	m := &streamModule{ws: ws, clk: clk, log: zerolog.Nop()}

	// A refused dial is not fatal: the stream retries in the background
	// and the module reports degraded until it connects.
	require.NoError(t, m.Start())

	h := m.Health()
	assert.Equal(t, domain.ModuleDegraded, h.Status)
	assert.Equal(t, "false", h.Details["connected"])

	require.NoError(t, m.Stop())
}
