// Package monitors implements the System Risk Controller's independent
// health checks. Each monitor is pure over a snapshot supplied by its
// source: it reads the snapshot, applies configured thresholds, and
// returns a MonitorResult naming the halt it demands, if any. Scheduling,
// timeouts, panic recovery, and coalescing are the controller's job.
package monitors

import (
	"context"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// Monitor is one independent check over a snapshot of system inputs.
type Monitor interface {
	// ID names the monitor in results, logs, and metrics.
	ID() string
	// Interval is how often the scheduler runs the monitor.
	Interval() time.Duration
	// Check evaluates the monitor once. It must respect ctx and stay
	// well inside the controller's per-run timeout.
	Check(ctx context.Context) domain.MonitorResult
}

// healthyResult builds a passing result with timing filled in.
func healthyResult(id string, clk clock.Clock, started time.Time, details map[string]any) domain.MonitorResult {
	return domain.MonitorResult{
		MonitorID: id,
		Healthy:   true,
		Details:   details,
		CheckedAt: started,
		Duration:  clk.Now().Sub(started),
	}
}

// haltResult builds a failing result demanding the given halt.
func haltResult(id string, clk clock.Clock, started time.Time, trigger domain.Trigger, category domain.TriggerCategory, level domain.HaltLevel, reason string, details map[string]any) domain.MonitorResult {
	return domain.MonitorResult{
		MonitorID: id,
		Healthy:   false,
		Trigger: &domain.HaltTrigger{
			Trigger:  trigger,
			Category: category,
			Level:    level,
			Reason:   reason,
		},
		Details:   details,
		CheckedAt: started,
		Duration:  clk.Now().Sub(started),
	}
}
