// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// Config holds application configuration. Loaded once at startup; invalid
// values fail the process before any component starts.
type Config struct {
	DataDir     string // Base directory for databases and state files (always absolute)
	Mode        domain.RuntimeMode
	LogLevel    string
	LogPretty   bool
	Port        int
	LiveTrading bool // Paper runs relax the guard-disable rule

	Orchestrator OrchestratorConfig
	Budget       BudgetConfig
	Guard        GuardConfig
	Health       HealthConfig
	Scoring      ScoringConfig
	Monitors     MonitorConfig
	Alerting     AlertingConfig
	Backup       BackupConfig
	RefPrice     RefPriceConfig
}

// OrchestratorConfig drives the pipeline loop.
type OrchestratorConfig struct {
	CycleInterval   time.Duration
	StageTimeout    time.Duration
	ShutdownGrace   time.Duration
	MaxStageRetries int // bounded backoff attempts per cycle for recoverable errors
}

// BudgetConfig holds the Risk Budget Manager limits. All limits are
// percentages of equity; capital tiers select the percentages by bucket.
type BudgetConfig struct {
	Tiers                   []domain.CapitalTier
	MaxDrawdownPct          float64
	ReduceWhenDrawdownPct   float64
	DrawdownReductionFactor float64
	MinRiskPct              float64
	EquityMaxStaleness      time.Duration
	EquityFloor             float64
	AllowPyramiding         bool
	HardStopAfterLosses     int
	DailyResetHourUTC       int
	ApplyHealthMultiplier   bool
	DailyWarningRatio       float64 // fraction of daily budget that triggers a warning alert
	DrawdownWarningPct      float64
	// ReservationTTL bounds how long an approved evaluation keeps budget
	// on hold while waiting for the execution layer to register the fill.
	ReservationTTL time.Duration
}

// GuardConfig controls the pre-execution data-reality check.
type GuardConfig struct {
	Enabled         bool
	MaxDeviationPct float64
	Timeout         time.Duration
	HaltLevel       domain.HaltLevel
	Exchange        string // exchange whose stored candles are validated
	Interval        string // candle interval the staleness window derives from
}

// HealthConfig holds the data-source health weights and windows.
type HealthConfig struct {
	Weights           map[domain.HealthDimension]float64
	WindowSeconds     int
	MaxSamples        int
	MinSamples        int
	FreshCutoff       time.Duration // ages below this score 100
	StaleCutoff       time.Duration // ages above this score 0
	OutlierZThreshold float64
	EvalInterval      time.Duration
}

// ScoringConfig holds the risk scoring engine thresholds. Warning and danger
// cutoffs are inclusive: a metric exactly at a cutoff takes the worse state.
// Depth and volume-ratio cutoffs invert (lower is riskier).
type ScoringConfig struct {
	PriceChangeWarnPct   float64
	PriceChangeDangerPct float64
	FundingWarnPct       float64
	FundingDangerPct     float64
	ImbalanceWarn        float64 // deviation of bid share from 0.5
	ImbalanceDanger      float64

	SpreadWarnPct     float64
	SpreadDangerPct   float64
	DepthWarnQuote    float64
	DepthDangerQuote  float64
	VolumeRatioWarn   float64
	VolumeRatioDanger float64

	ATRWarnPct           float64
	ATRDangerPct         float64
	RealizedVolWarnPct   float64
	RealizedVolDangerPct float64
	BollingerWidthWarn   float64
	BollingerWidthDanger float64

	ATRPeriod         int
	RealizedVolPeriod int
	BollingerPeriod   int
	BollingerStdDev   float64

	CriticalSourcesWarn   int
	CriticalSourcesDanger int
	ErrorRateWarn         float64
	ErrorRateDanger       float64
}

// MonitorConfig holds per-monitor intervals and thresholds for the System
// Risk Controller.
type MonitorConfig struct {
	Timeout time.Duration // hard cap per monitor run

	DataIntegrityInterval time.Duration
	MaxDataAge            time.Duration
	MaxIngestionFailures  int

	ProcessingInterval time.Duration
	MaxErrorRate       float64 // fraction of failed cycles in the window
	MaxCycleLatency    time.Duration

	ExecutionInterval time.Duration
	RejectionBurstN   int
	RejectionWindow   time.Duration
	SlippageCapPct    float64
	OrderStuckAfter   time.Duration

	ControlInterval time.Duration
	DrawdownCapPct  float64 // control monitor cap, above the budget manager's own
	MaxExposurePct  float64
	DailyLossCapPct float64
	MaxLeverage     float64

	InfraInterval    time.Duration
	CPUThresholdPct  float64
	MemThresholdPct  float64
	DiskThresholdPct float64
	MaxClockSkew     time.Duration
	DBErrorBurst     int
}

// AlertingConfig controls the async alert dispatcher.
type AlertingConfig struct {
	WebhookURL  string
	RateWindow  time.Duration // one delivery per (trigger, symbol) key per window
	QueueSize   int
	SendTimeout time.Duration
}

// RefPriceConfig points the guard's reference pricer at its sources.
// Empty URLs disable the corresponding source; with no source configured
// every guard check fails NO_REFERENCE, which is the safe direction.
type RefPriceConfig struct {
	WSURL        string
	RESTURL      string
	Symbols      []string
	StreamMaxAge time.Duration // stream prices older than this are ignored
	CacheTTL     time.Duration // repeated checks within one cycle reuse results
}

// BackupConfig controls the S3 audit backup job.
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Schedule        string // cron spec with seconds field
	RetentionDays   int    // 0 keeps archives forever
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	mode, err := domain.ParseRuntimeMode(getEnv("RUNTIME_MODE", string(domain.ModeFull)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:     absDataDir,
		Mode:        mode,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", false),
		Port:        getEnvAsInt("PORT", 8090),
		LiveTrading: getEnvAsBool("LIVE_TRADING", false),

		Orchestrator: OrchestratorConfig{
			CycleInterval:   getEnvAsDuration("CYCLE_INTERVAL_SECONDS", 60*time.Second),
			StageTimeout:    getEnvAsDuration("STAGE_TIMEOUT_SECONDS", 60*time.Second),
			ShutdownGrace:   getEnvAsDuration("SHUTDOWN_GRACE_SECONDS", 30*time.Second),
			MaxStageRetries: getEnvAsInt("MAX_STAGE_RETRIES", 3),
		},

		Budget: BudgetConfig{
			Tiers:                   loadTiers(),
			MaxDrawdownPct:          getEnvAsFloat("MAX_DRAWDOWN_PCT", 15.0),
			ReduceWhenDrawdownPct:   getEnvAsFloat("REDUCE_WHEN_DRAWDOWN_PCT", 8.0),
			DrawdownReductionFactor: getEnvAsFloat("DRAWDOWN_REDUCTION_FACTOR", 0.5),
			MinRiskPct:              getEnvAsFloat("MIN_RISK_PCT", 0.05),
			EquityMaxStaleness:      getEnvAsDuration("EQUITY_MAX_STALENESS_SECONDS", 300*time.Second),
			EquityFloor:             getEnvAsFloat("EQUITY_FLOOR", 100.0),
			AllowPyramiding:         getEnvAsBool("ALLOW_PYRAMIDING", false),
			HardStopAfterLosses:     getEnvAsInt("HARD_STOP_AFTER_LOSSES", 5),
			DailyResetHourUTC:       getEnvAsInt("DAILY_RESET_HOUR_UTC", 0),
			ApplyHealthMultiplier:   getEnvAsBool("APPLY_HEALTH_MULTIPLIER", true),
			DailyWarningRatio:       getEnvAsFloat("DAILY_WARNING_RATIO", 0.8),
			DrawdownWarningPct:      getEnvAsFloat("DRAWDOWN_WARNING_PCT", 10.0),
			ReservationTTL:          getEnvAsDuration("RESERVATION_TTL_SECONDS", 30*time.Second),
		},

		Guard: GuardConfig{
			Enabled:         getEnvAsBool("GUARD_ENABLED", true),
			MaxDeviationPct: getEnvAsFloat("GUARD_MAX_DEVIATION_PCT", 3.0),
			Timeout:         getEnvAsDuration("GUARD_TIMEOUT_SECONDS", 5*time.Second),
			HaltLevel:       domain.HaltLevel(getEnv("GUARD_HALT_LEVEL", string(domain.HaltHard))),
			Exchange:        getEnv("GUARD_EXCHANGE", "binance"),
			Interval:        getEnv("GUARD_INTERVAL", "1m"),
		},

		Health: HealthConfig{
			Weights: map[domain.HealthDimension]float64{
				domain.HealthAvailability: getEnvAsFloat("HEALTH_WEIGHT_AVAILABILITY", 0.30),
				domain.HealthFreshness:    getEnvAsFloat("HEALTH_WEIGHT_FRESHNESS", 0.25),
				domain.HealthConsistency:  getEnvAsFloat("HEALTH_WEIGHT_CONSISTENCY", 0.15),
				domain.HealthCompleteness: getEnvAsFloat("HEALTH_WEIGHT_COMPLETENESS", 0.15),
				domain.HealthErrorRate:    getEnvAsFloat("HEALTH_WEIGHT_ERROR_RATE", 0.15),
			},
			WindowSeconds:     getEnvAsInt("HEALTH_WINDOW_SECONDS", 300),
			MaxSamples:        getEnvAsInt("HEALTH_MAX_SAMPLES", 1000),
			MinSamples:        getEnvAsInt("HEALTH_MIN_SAMPLES", 5),
			FreshCutoff:       getEnvAsDuration("HEALTH_FRESH_CUTOFF_SECONDS", 30*time.Second),
			StaleCutoff:       getEnvAsDuration("HEALTH_STALE_CUTOFF_SECONDS", 300*time.Second),
			OutlierZThreshold: getEnvAsFloat("HEALTH_OUTLIER_Z", 3.5),
			EvalInterval:      getEnvAsDuration("HEALTH_EVAL_INTERVAL_SECONDS", 30*time.Second),
		},

		Scoring: ScoringConfig{
			PriceChangeWarnPct:   getEnvAsFloat("SCORE_PRICE_CHANGE_WARN_PCT", 5.0),
			PriceChangeDangerPct: getEnvAsFloat("SCORE_PRICE_CHANGE_DANGER_PCT", 10.0),
			FundingWarnPct:       getEnvAsFloat("SCORE_FUNDING_WARN_PCT", 0.05),
			FundingDangerPct:     getEnvAsFloat("SCORE_FUNDING_DANGER_PCT", 0.10),
			ImbalanceWarn:        getEnvAsFloat("SCORE_IMBALANCE_WARN", 0.15),
			ImbalanceDanger:      getEnvAsFloat("SCORE_IMBALANCE_DANGER", 0.30),

			SpreadWarnPct:     getEnvAsFloat("SCORE_SPREAD_WARN_PCT", 0.10),
			SpreadDangerPct:   getEnvAsFloat("SCORE_SPREAD_DANGER_PCT", 0.50),
			DepthWarnQuote:    getEnvAsFloat("SCORE_DEPTH_WARN_QUOTE", 50_000),
			DepthDangerQuote:  getEnvAsFloat("SCORE_DEPTH_DANGER_QUOTE", 10_000),
			VolumeRatioWarn:   getEnvAsFloat("SCORE_VOLUME_RATIO_WARN", 0.50),
			VolumeRatioDanger: getEnvAsFloat("SCORE_VOLUME_RATIO_DANGER", 0.25),

			ATRWarnPct:           getEnvAsFloat("SCORE_ATR_WARN_PCT", 3.0),
			ATRDangerPct:         getEnvAsFloat("SCORE_ATR_DANGER_PCT", 6.0),
			RealizedVolWarnPct:   getEnvAsFloat("SCORE_REALIZED_VOL_WARN_PCT", 2.5),
			RealizedVolDangerPct: getEnvAsFloat("SCORE_REALIZED_VOL_DANGER_PCT", 5.0),
			BollingerWidthWarn:   getEnvAsFloat("SCORE_BB_WIDTH_WARN", 0.08),
			BollingerWidthDanger: getEnvAsFloat("SCORE_BB_WIDTH_DANGER", 0.15),

			ATRPeriod:         getEnvAsInt("SCORE_ATR_PERIOD", 14),
			RealizedVolPeriod: getEnvAsInt("SCORE_REALIZED_VOL_PERIOD", 20),
			BollingerPeriod:   getEnvAsInt("SCORE_BB_PERIOD", 20),
			BollingerStdDev:   getEnvAsFloat("SCORE_BB_STDDEV", 2.0),

			CriticalSourcesWarn:   getEnvAsInt("SCORE_CRITICAL_SOURCES_WARN", 1),
			CriticalSourcesDanger: getEnvAsInt("SCORE_CRITICAL_SOURCES_DANGER", 2),
			ErrorRateWarn:         getEnvAsFloat("SCORE_ERROR_RATE_WARN", 0.10),
			ErrorRateDanger:       getEnvAsFloat("SCORE_ERROR_RATE_DANGER", 0.30),
		},

		Monitors: MonitorConfig{
			Timeout: getEnvAsDuration("MONITOR_TIMEOUT_SECONDS", 10*time.Second),

			DataIntegrityInterval: getEnvAsDuration("MONITOR_DATA_INTERVAL_SECONDS", 30*time.Second),
			MaxDataAge:            getEnvAsDuration("MONITOR_MAX_DATA_AGE_SECONDS", 180*time.Second),
			MaxIngestionFailures:  getEnvAsInt("MONITOR_MAX_INGESTION_FAILURES", 5),

			ProcessingInterval: getEnvAsDuration("MONITOR_PROCESSING_INTERVAL_SECONDS", 60*time.Second),
			MaxErrorRate:       getEnvAsFloat("MONITOR_MAX_ERROR_RATE", 0.5),
			MaxCycleLatency:    getEnvAsDuration("MONITOR_MAX_CYCLE_LATENCY_SECONDS", 120*time.Second),

			ExecutionInterval: getEnvAsDuration("MONITOR_EXECUTION_INTERVAL_SECONDS", 30*time.Second),
			RejectionBurstN:   getEnvAsInt("MONITOR_REJECTION_BURST", 5),
			RejectionWindow:   getEnvAsDuration("MONITOR_REJECTION_WINDOW_SECONDS", 300*time.Second),
			SlippageCapPct:    getEnvAsFloat("MONITOR_SLIPPAGE_CAP_PCT", 1.0),
			OrderStuckAfter:   getEnvAsDuration("MONITOR_ORDER_STUCK_SECONDS", 120*time.Second),

			ControlInterval: getEnvAsDuration("MONITOR_CONTROL_INTERVAL_SECONDS", 30*time.Second),
			DrawdownCapPct:  getEnvAsFloat("MONITOR_DRAWDOWN_CAP_PCT", 20.0),
			MaxExposurePct:  getEnvAsFloat("MONITOR_MAX_EXPOSURE_PCT", 100.0),
			DailyLossCapPct: getEnvAsFloat("MONITOR_DAILY_LOSS_CAP_PCT", 5.0),
			MaxLeverage:     getEnvAsFloat("MONITOR_MAX_LEVERAGE", 1.0),

			InfraInterval:    getEnvAsDuration("MONITOR_INFRA_INTERVAL_SECONDS", 60*time.Second),
			CPUThresholdPct:  getEnvAsFloat("MONITOR_CPU_THRESHOLD_PCT", 95.0),
			MemThresholdPct:  getEnvAsFloat("MONITOR_MEM_THRESHOLD_PCT", 90.0),
			DiskThresholdPct: getEnvAsFloat("MONITOR_DISK_THRESHOLD_PCT", 90.0),
			MaxClockSkew:     getEnvAsDuration("MONITOR_MAX_CLOCK_SKEW_SECONDS", 2*time.Second),
			DBErrorBurst:     getEnvAsInt("MONITOR_DB_ERROR_BURST", 5),
		},

		Alerting: AlertingConfig{
			WebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
			RateWindow:  getEnvAsDuration("ALERT_RATE_WINDOW_SECONDS", 300*time.Second),
			QueueSize:   getEnvAsInt("ALERT_QUEUE_SIZE", 256),
			SendTimeout: getEnvAsDuration("ALERT_SEND_TIMEOUT_SECONDS", 10*time.Second),
		},

		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},

		RefPrice: RefPriceConfig{
			WSURL:        getEnv("REFPRICE_WS_URL", ""),
			RESTURL:      getEnv("REFPRICE_REST_URL", ""),
			Symbols:      splitList(getEnv("REFPRICE_SYMBOLS", "BTCUSDT")),
			StreamMaxAge: getEnvAsDuration("REFPRICE_STREAM_MAX_AGE_SECONDS", 30*time.Second),
			CacheTTL:     getEnvAsDuration("REFPRICE_CACHE_TTL_SECONDS", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadTiers builds the capital tier table. A flat override through the
// RISK_* variables applies the same percentages to every tier.
func loadTiers() []domain.CapitalTier {
	tiers := []domain.CapitalTier{
		{Name: "micro", MinEquity: 0, MaxEquity: 5_000, PerTradePct: 0.5, DailyPct: 1.5, OpenPct: 1.0, MaxPositions: 3},
		{Name: "small", MinEquity: 5_000, MaxEquity: 25_000, PerTradePct: 0.75, DailyPct: 2.0, OpenPct: 1.5, MaxPositions: 5},
		{Name: "medium", MinEquity: 25_000, MaxEquity: 100_000, PerTradePct: 1.0, DailyPct: 2.5, OpenPct: 2.0, MaxPositions: 8},
		{Name: "large", MinEquity: 100_000, MaxEquity: 0, PerTradePct: 1.0, DailyPct: 3.0, OpenPct: 2.5, MaxPositions: 10},
	}

	perTrade := getEnvAsFloat("RISK_PER_TRADE_PCT", 0)
	daily := getEnvAsFloat("RISK_DAILY_PCT", 0)
	open := getEnvAsFloat("RISK_OPEN_PCT", 0)
	maxPos := getEnvAsInt("RISK_MAX_POSITIONS", 0)

	for i := range tiers {
		if perTrade > 0 {
			tiers[i].PerTradePct = perTrade
		}
		if daily > 0 {
			tiers[i].DailyPct = daily
		}
		if open > 0 {
			tiers[i].OpenPct = open
		}
		if maxPos > 0 {
			tiers[i].MaxPositions = maxPos
		}
	}

	return tiers
}

// Validate checks that every threshold is usable. Any error here stops the
// process during bootstrap with the invalid-configuration exit code.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	b := c.Budget
	if len(b.Tiers) == 0 {
		return fmt.Errorf("at least one capital tier is required")
	}
	for _, tier := range b.Tiers {
		if tier.PerTradePct <= 0 || tier.DailyPct <= 0 || tier.OpenPct <= 0 {
			return fmt.Errorf("tier %s: percentages must be positive", tier.Name)
		}
		if tier.MaxPositions <= 0 {
			return fmt.Errorf("tier %s: max positions must be positive", tier.Name)
		}
	}
	if b.MaxDrawdownPct <= 0 || b.MaxDrawdownPct > 100 {
		return fmt.Errorf("max drawdown pct must be in (0, 100], got %v", b.MaxDrawdownPct)
	}
	if b.DrawdownReductionFactor <= 0 || b.DrawdownReductionFactor > 1 {
		return fmt.Errorf("drawdown reduction factor must be in (0, 1], got %v", b.DrawdownReductionFactor)
	}
	if b.MinRiskPct < 0 {
		return fmt.Errorf("min risk pct must not be negative")
	}
	if b.DailyResetHourUTC < 0 || b.DailyResetHourUTC > 23 {
		return fmt.Errorf("daily reset hour must be 0-23, got %d", b.DailyResetHourUTC)
	}
	if b.HardStopAfterLosses <= 0 {
		return fmt.Errorf("hard stop after losses must be positive")
	}
	if b.ReservationTTL <= 0 {
		return fmt.Errorf("reservation ttl must be positive")
	}

	switch c.Guard.HaltLevel {
	case domain.HaltSoft, domain.HaltHard, domain.HaltEmergency:
	default:
		return fmt.Errorf("invalid guard halt level %q", c.Guard.HaltLevel)
	}
	if c.Guard.MaxDeviationPct <= 0 {
		return fmt.Errorf("guard max deviation pct must be positive")
	}

	var weightSum float64
	for _, w := range c.Health.Weights {
		if w < 0 {
			return fmt.Errorf("health weights must not be negative")
		}
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > 1e-6 {
		return fmt.Errorf("health weights must sum to 1.0, got %v", weightSum)
	}

	s := c.Scoring
	for name, pair := range map[string][2]float64{
		"price change":    {s.PriceChangeWarnPct, s.PriceChangeDangerPct},
		"funding":         {s.FundingWarnPct, s.FundingDangerPct},
		"imbalance":       {s.ImbalanceWarn, s.ImbalanceDanger},
		"spread":          {s.SpreadWarnPct, s.SpreadDangerPct},
		"atr":             {s.ATRWarnPct, s.ATRDangerPct},
		"realized vol":    {s.RealizedVolWarnPct, s.RealizedVolDangerPct},
		"bollinger width": {s.BollingerWidthWarn, s.BollingerWidthDanger},
		"error rate":      {s.ErrorRateWarn, s.ErrorRateDanger},
	} {
		if pair[0] <= 0 || pair[1] <= pair[0] {
			return fmt.Errorf("scoring %s cutoffs must satisfy 0 < warn < danger", name)
		}
	}
	if s.DepthDangerQuote <= 0 || s.DepthWarnQuote <= s.DepthDangerQuote {
		return fmt.Errorf("scoring depth cutoffs must satisfy 0 < danger < warn")
	}
	if s.VolumeRatioDanger <= 0 || s.VolumeRatioWarn <= s.VolumeRatioDanger {
		return fmt.Errorf("scoring volume ratio cutoffs must satisfy 0 < danger < warn")
	}
	if s.ATRPeriod <= 0 || s.RealizedVolPeriod <= 0 || s.BollingerPeriod <= 0 {
		return fmt.Errorf("scoring indicator periods must be positive")
	}
	if s.CriticalSourcesWarn <= 0 || s.CriticalSourcesDanger <= s.CriticalSourcesWarn {
		return fmt.Errorf("scoring critical source cutoffs must satisfy 0 < warn < danger")
	}

	if c.Orchestrator.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive")
	}
	if c.Orchestrator.StageTimeout <= 0 {
		return fmt.Errorf("stage timeout must be positive")
	}
	if c.Monitors.Timeout <= 0 {
		return fmt.Errorf("monitor timeout must be positive")
	}

	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("backup enabled but no bucket configured")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup retention days must not be negative")
	}

	return nil
}

// TierFor returns the capital tier for the given equity, falling back to
// the last tier when none matches.
func (c *Config) TierFor(equity float64) domain.CapitalTier {
	for _, tier := range c.Budget.Tiers {
		if tier.Contains(equity) {
			return tier
		}
	}
	return c.Budget.Tiers[len(c.Budget.Tiers)-1]
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsDuration reads a number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// splitList parses a comma-separated list, trimming whitespace and
// dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
