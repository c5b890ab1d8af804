package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.ModeFull, cfg.Mode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LiveTrading)
	assert.True(t, cfg.Guard.Enabled)
	assert.Equal(t, domain.HaltHard, cfg.Guard.HaltLevel)
	assert.NotEmpty(t, cfg.Budget.Tiers)
}

func TestLoad_ModeFromEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("RUNTIME_MODE", "monitor")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, domain.ModeMonitor, cfg.Mode)
}

func TestLoad_InvalidModeFails(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("RUNTIME_MODE", "turbo")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_FlatTierOverride(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("RISK_PER_TRADE_PCT", "0.25")
	t.Setenv("RISK_MAX_POSITIONS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	for _, tier := range cfg.Budget.Tiers {
		assert.Equal(t, 0.25, tier.PerTradePct)
		assert.Equal(t, 2, tier.MaxPositions)
	}
}

func TestValidate_RejectsBadWeights(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("HEALTH_WEIGHT_AVAILABILITY", "0.9")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}

func TestValidate_RejectsBadGuardLevel(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("GUARD_HALT_LEVEL", "CATASTROPHIC")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_RejectsBadResetHour(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("DAILY_RESET_HOUR_UTC", "24")

	_, err := Load()
	assert.Error(t, err)
}

func TestTierFor_SelectsByEquity(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "micro", cfg.TierFor(1500).Name)
	assert.Equal(t, "small", cfg.TierFor(5_000).Name)
	assert.Equal(t, "medium", cfg.TierFor(99_999).Name)
	assert.Equal(t, "large", cfg.TierFor(250_000).Name)
}
