package di

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

var diTestNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// diTestConfig mirrors the Load defaults against a temp data directory,
// with backups disabled and no reference price sources configured.
func diTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Mode:    domain.ModeFull,
		Port:    8090,

		Orchestrator: config.OrchestratorConfig{
			CycleInterval:   time.Minute,
			StageTimeout:    10 * time.Second,
			ShutdownGrace:   time.Second,
			MaxStageRetries: 1,
		},
		Budget: config.BudgetConfig{
			Tiers: []domain.CapitalTier{
				{Name: "micro", MaxEquity: 5000, PerTradePct: 0.5, DailyPct: 1.5, OpenPct: 1.0, MaxPositions: 3},
				{Name: "small", MinEquity: 5000, PerTradePct: 0.75, DailyPct: 2.0, OpenPct: 1.5, MaxPositions: 5},
			},
			MaxDrawdownPct:          15,
			ReduceWhenDrawdownPct:   8,
			DrawdownReductionFactor: 0.5,
			MinRiskPct:              0.05,
			EquityMaxStaleness:      5 * time.Minute,
			EquityFloor:             100,
			HardStopAfterLosses:     5,
			ApplyHealthMultiplier:   true,
			DailyWarningRatio:       0.8,
			DrawdownWarningPct:      10,
			ReservationTTL:          30 * time.Second,
		},
		Guard: config.GuardConfig{
			Enabled:         true,
			MaxDeviationPct: 3,
			Timeout:         5 * time.Second,
			HaltLevel:       domain.HaltHard,
			Exchange:        "binance",
			Interval:        "1m",
		},
		Health: config.HealthConfig{
			Weights: map[domain.HealthDimension]float64{
				domain.HealthAvailability: 0.30,
				domain.HealthFreshness:    0.25,
				domain.HealthConsistency:  0.15,
				domain.HealthCompleteness: 0.15,
				domain.HealthErrorRate:    0.15,
			},
			WindowSeconds:     300,
			MaxSamples:        100,
			MinSamples:        2,
			FreshCutoff:       30 * time.Second,
			StaleCutoff:       5 * time.Minute,
			OutlierZThreshold: 3.5,
			EvalInterval:      time.Second,
		},
		Scoring: config.ScoringConfig{
			PriceChangeWarnPct:   5,
			PriceChangeDangerPct: 10,
			FundingWarnPct:       0.05,
			FundingDangerPct:     0.10,
			ImbalanceWarn:        0.15,
			ImbalanceDanger:      0.30,

			SpreadWarnPct:     0.10,
			SpreadDangerPct:   0.50,
			DepthWarnQuote:    50_000,
			DepthDangerQuote:  10_000,
			VolumeRatioWarn:   0.50,
			VolumeRatioDanger: 0.25,

			ATRWarnPct:           3,
			ATRDangerPct:         6,
			RealizedVolWarnPct:   2.5,
			RealizedVolDangerPct: 5,
			BollingerWidthWarn:   0.08,
			BollingerWidthDanger: 0.15,

			ATRPeriod:         14,
			RealizedVolPeriod: 20,
			BollingerPeriod:   20,
			BollingerStdDev:   2,

			CriticalSourcesWarn:   1,
			CriticalSourcesDanger: 2,
			ErrorRateWarn:         0.10,
			ErrorRateDanger:       0.30,
		},
		Monitors: config.MonitorConfig{
			Timeout: 10 * time.Second,

			DataIntegrityInterval: 30 * time.Second,
			MaxDataAge:            3 * time.Minute,
			MaxIngestionFailures:  5,

			ProcessingInterval: time.Minute,
			MaxErrorRate:       0.5,
			MaxCycleLatency:    2 * time.Minute,

			ExecutionInterval: 30 * time.Second,
			RejectionBurstN:   5,
			RejectionWindow:   5 * time.Minute,
			SlippageCapPct:    1,
			OrderStuckAfter:   2 * time.Minute,

			ControlInterval: 30 * time.Second,
			DrawdownCapPct:  20,
			MaxExposurePct:  100,
			DailyLossCapPct: 5,
			MaxLeverage:     1,

			InfraInterval:    time.Minute,
			CPUThresholdPct:  95,
			MemThresholdPct:  90,
			DiskThresholdPct: 90,
			MaxClockSkew:     2 * time.Second,
			DBErrorBurst:     5,
		},
		Alerting: config.AlertingConfig{
			RateWindow:  5 * time.Minute,
			QueueSize:   16,
			SendTimeout: time.Second,
		},
		Backup: config.BackupConfig{Enabled: false},
		RefPrice: config.RefPriceConfig{
			Symbols:      []string{"BTCUSDT"},
			StreamMaxAge: 30 * time.Second,
			CacheTTL:     10 * time.Second,
		},
	}
}

func TestWireBuildsFullContainer(t *testing.T) {
	cfg := diTestConfig(t)
	clk := clock.NewFrozen(diTestNow)

	container, err := Wire(cfg, clk, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.AuditDB)
	assert.NotNil(t, container.StateDB)
	assert.NotNil(t, container.States)
	assert.NotNil(t, container.Cycles)
	assert.NotNil(t, container.Halts)
	assert.NotNil(t, container.HealthLog)
	assert.NotNil(t, container.RiskLog)
	assert.NotNil(t, container.BudgetRows)
	assert.NotNil(t, container.Market)

	assert.NotNil(t, container.Metrics)
	assert.NotNil(t, container.Bus)
	assert.NotNil(t, container.Events)
	assert.NotNil(t, container.Collector)
	assert.NotNil(t, container.Health)
	assert.NotNil(t, container.Alerts)

	assert.NotNil(t, container.Budget)
	assert.NotNil(t, container.Scoring)
	assert.NotNil(t, container.RiskChanges)
	assert.NotNil(t, container.Guard)
	assert.NotNil(t, container.Controller)
	assert.NotNil(t, container.RefPrices)
	assert.NotNil(t, container.Execution)

	assert.NotNil(t, container.Modules)
	assert.NotNil(t, container.Pipeline)
	assert.NotNil(t, container.Server)
	assert.NotNil(t, container.Jobs)

	// No stream URL and backups disabled leave those slots empty.
	assert.Nil(t, container.Stream)
	assert.Nil(t, container.Backups)

	// Fresh state starts running and tradable.
	assert.Equal(t, domain.StateRunning, container.Controller.State())
	assert.True(t, container.Controller.Status().CanTrade)

	for _, name := range []string{"audit.db", "state.db", "marketdata.db"} {
		_, err := os.Stat(filepath.Join(cfg.DataDir, name))
		assert.NoError(t, err, name)
	}
}

func TestWireRegistersLifecycleModules(t *testing.T) {
	cfg := diTestConfig(t)
	container, err := Wire(cfg, clock.NewFrozen(diTestNow), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	health := container.Modules.Health()
	for _, name := range []string{"alerting", "health_registry", "maintenance", "risk_controller", "ops_server"} {
		assert.Contains(t, health, name)
	}
	// Stream and backups stay out when unconfigured.
	assert.NotContains(t, health, "refprice_stream")
	assert.NotContains(t, health, "backup")
}

func TestWireFailsWhenDataDirIsFile(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "occupied")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	cfg := diTestConfig(t)
	cfg.DataDir = filepath.Join(blocked, "nested")

	container, err := Wire(cfg, clock.NewFrozen(diTestNow), zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, container)
	assert.Contains(t, err.Error(), "failed to initialize databases")
}
