// Package metrics exposes the control plane's Prometheus collectors. All
// collectors live on an explicit registry owned by the Metrics value, so
// tests can construct independent instances without colliding on the
// default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// Metrics holds every collector the control plane publishes.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// Risk budget
	TradeDecisions *prometheus.CounterVec
	Equity         prometheus.Gauge
	DrawdownPct    prometheus.Gauge
	DailyUsedPct   prometheus.Gauge
	OpenRiskPct    prometheus.Gauge
	OpenPositions  prometheus.Gauge

	// System risk controller
	SystemState     prometheus.Gauge
	HaltsTotal      *prometheus.CounterVec
	MonitorRuns     *prometheus.CounterVec
	MonitorDuration *prometheus.HistogramVec

	// Data plane
	SourceHealth   *prometheus.GaugeVec
	RiskMultiplier prometheus.Gauge
	RiskScoreTotal prometheus.Gauge
	GuardChecks    *prometheus.CounterVec

	// Delivery and maintenance
	AlertsTotal  *prometheus.CounterVec
	BackupsTotal *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "controlplane_cycles_total",
			Help: "Completed orchestrator cycles by mode and result",
		}, []string{"mode", "result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "controlplane_cycle_duration_seconds",
			Help:    "Wall-clock duration of one full pipeline cycle",
			Buckets: prometheus.DefBuckets,
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "controlplane_stage_duration_seconds",
			Help:    "Per-stage execution time within a cycle",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "controlplane_stage_failures_total",
			Help: "Stage failures by stage and terminal status",
		}, []string{"stage", "status"}),

		TradeDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "controlplane_trade_decisions_total",
			Help: "Risk budget evaluations by decision and primary reason",
		}, []string{"decision", "reason"}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "controlplane_equity_usd",
			Help: "Last reported account equity",
		}),
		DrawdownPct: factory.NewGauge(prometheus.GaugeOpts{
			Name: "controlplane_drawdown_pct",
			Help: "Current drawdown from peak equity, percent",
		}),
		DailyUsedPct: factory.NewGauge(prometheus.GaugeOpts{
			Name: "controlplane_daily_risk_used_pct",
			Help: "Daily risk budget consumed, percent of equity",
		}),
		OpenRiskPct: factory.NewGauge(prometheus.GaugeOpts{
			Name: "controlplane_open_risk_pct",
			Help: "Aggregate open-position risk, percent of equity",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "controlplane_open_positions",
			Help: "Number of open positions tracked by the budget manager",
		}),

		SystemState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "controlplane_system_state",
			Help: "Current SystemState severity (0=RUNNING .. 4=EMERGENCY_LOCKDOWN)",
		}),
		HaltsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "controlplane_halts_total",
			Help: "Halt events by level and trigger category",
		}, []string{"level", "category"}),
		MonitorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "controlplane_monitor_runs_total",
			Help: "Monitor evaluations by monitor and outcome",
		}, []string{"monitor", "outcome"}),
		MonitorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "controlplane_monitor_duration_seconds",
			Help:    "Monitor evaluation time",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"monitor"}),

		SourceHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "controlplane_source_health_score",
			Help: "Latest composite health score per data source (0-100)",
		}, []string{"source"}),
		RiskMultiplier: factory.NewGauge(prometheus.GaugeOpts{
			Name: "controlplane_health_risk_multiplier",
			Help: "Aggregate health risk multiplier applied to budget limits",
		}),
		RiskScoreTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "controlplane_risk_score_total",
			Help: "Latest environmental risk score total (0-8)",
		}),
		GuardChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "controlplane_guard_checks_total",
			Help: "Data-reality guard checks by outcome",
		}, []string{"outcome"}),

		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "controlplane_alerts_total",
			Help: "Alerts by priority and delivery outcome",
		}, []string{"priority", "outcome"}),
		BackupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "controlplane_backups_total",
			Help: "Audit backup runs by result",
		}, []string{"result"}),
	}
}

// Registry returns the underlying registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one completed pipeline cycle.
func (m *Metrics) ObserveCycle(rec domain.CycleRecord) {
	result := "success"
	if !rec.Success {
		result = "failure"
	}
	m.CyclesTotal.WithLabelValues(string(rec.Mode), result).Inc()
	m.CycleDuration.Observe(rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	for _, stage := range rec.Stages {
		m.StageDuration.WithLabelValues(string(stage.Stage)).Observe(stage.Duration.Seconds())
		if stage.Status == domain.StageFailed || stage.Status == domain.StageTimeout {
			m.StageFailures.WithLabelValues(string(stage.Stage), string(stage.Status)).Inc()
		}
	}
}

// ObserveDecision records one risk budget evaluation.
func (m *Metrics) ObserveDecision(resp domain.TradeRiskResponse) {
	m.TradeDecisions.WithLabelValues(string(resp.Decision), resp.PrimaryReason).Inc()
}

// ObserveBudget mirrors the tracker snapshot into gauges.
func (m *Metrics) ObserveBudget(snap domain.RiskBudgetSnapshot) {
	m.Equity.Set(snap.Equity)
	m.DrawdownPct.Set(snap.DrawdownPct)
	m.DailyUsedPct.Set(snap.DailyUsedPct)
	m.OpenRiskPct.Set(snap.OpenUsedPct)
	m.OpenPositions.Set(float64(snap.OpenPositions))
}

// ObserveHalt records one halt event.
func (m *Metrics) ObserveHalt(event domain.HaltEvent) {
	m.HaltsTotal.WithLabelValues(string(event.Level), string(event.Category)).Inc()
}

// SetSystemState mirrors the current state's severity.
func (m *Metrics) SetSystemState(state domain.SystemState) {
	m.SystemState.Set(float64(state.Severity()))
}

// ObserveMonitor records one monitor run.
func (m *Metrics) ObserveMonitor(res domain.MonitorResult) {
	outcome := "healthy"
	if !res.Healthy {
		outcome = "halt"
	}
	m.MonitorRuns.WithLabelValues(res.MonitorID, outcome).Inc()
	m.MonitorDuration.WithLabelValues(res.MonitorID).Observe(res.Duration.Seconds())
}

// ObserveHealth mirrors one source's composite score.
func (m *Metrics) ObserveHealth(score domain.HealthScore) {
	m.SourceHealth.WithLabelValues(score.Source).Set(score.FinalScore)
}

// ObserveGuard records one guard check outcome ("pass", "stale",
// "no_reference", "price_deviation", "error").
func (m *Metrics) ObserveGuard(outcome string) {
	m.GuardChecks.WithLabelValues(outcome).Inc()
}

// ObserveAlert records one alert delivery attempt.
func (m *Metrics) ObserveAlert(priority domain.AlertPriority, outcome string) {
	m.AlertsTotal.WithLabelValues(string(priority), outcome).Inc()
}

// ObserveBackup records one backup run.
func (m *Metrics) ObserveBackup(result string) {
	m.BackupsTotal.WithLabelValues(result).Inc()
}
