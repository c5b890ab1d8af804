package monitors

import (
	"testing"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
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
		SlippageCapPct:    1.0,
		OrderStuckAfter:   2 * time.Minute,

		ControlInterval: 30 * time.Second,
		DrawdownCapPct:  20.0,
		MaxExposurePct:  100.0,
		DailyLossCapPct: 5.0,
		MaxLeverage:     1.0,

		InfraInterval:    time.Minute,
		CPUThresholdPct:  95.0,
		MemThresholdPct:  90.0,
		DiskThresholdPct: 90.0,
		MaxClockSkew:     2 * time.Second,
		DBErrorBurst:     5,
	}
}

func testClock() *clock.Frozen {
	return clock.NewFrozen(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func requireHalt(t *testing.T, res domain.MonitorResult, trigger domain.Trigger, level domain.HaltLevel) {
	t.Helper()
	require.False(t, res.Healthy)
	require.NotNil(t, res.Trigger)
	assert.Equal(t, trigger, res.Trigger.Trigger)
	assert.Equal(t, level, res.Trigger.Level)
}

func requireHealthy(t *testing.T, res domain.MonitorResult) {
	t.Helper()
	assert.True(t, res.Healthy)
	assert.Nil(t, res.Trigger)
}
