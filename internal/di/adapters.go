package di

import (
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/audit"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/metrics"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/monitors"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/riskbudget"
)

// healthScoreSink fans one health evaluation out to the audit log and the
// Prometheus gauges. The registry takes a single sink.
type healthScoreSink struct {
	repo *audit.HealthRepository
	obs  *metrics.Metrics
}

func (s *healthScoreSink) RecordScore(score domain.HealthScore) error {
	if s.obs != nil {
		s.obs.ObserveHealth(score)
	}
	return s.repo.RecordScore(score)
}

// budgetControlSource feeds the control monitor from the budget manager:
// the live tracker snapshot plus today's realized loss as a positive
// percentage of equity. Leverage stays zero; spot accounts carry none.
type budgetControlSource struct {
	budget *riskbudget.Manager
}

func (s *budgetControlSource) ControlSnapshot() monitors.ControlSnapshot {
	snap := s.budget.Snapshot()
	cs := monitors.ControlSnapshot{Budget: snap}
	if daily := s.budget.DailyUsage(); daily.RealizedPnL < 0 && snap.Equity > 0 {
		cs.DailyLossPct = -daily.RealizedPnL / snap.Equity * 100
	}
	return cs
}
