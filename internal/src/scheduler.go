package src

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/monitors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// scheduler runs registered monitors at their own intervals. Every run is
// capped at the configured timeout and panics are recovered; both turn
// into a synthetic CRITICAL result, because a monitor that cannot answer
// is itself a reason to stop trading.
type scheduler struct {
	ctrl *Controller
	cron *cron.Cron
	log  zerolog.Logger

	mu       sync.Mutex
	monitors []monitors.Monitor
	wg       sync.WaitGroup
}

func newScheduler(ctrl *Controller, log zerolog.Logger) *scheduler {
	return &scheduler{
		ctrl: ctrl,
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "src_scheduler").Logger(),
	}
}

func (s *scheduler) register(m monitors.Monitor) error {
	schedule := fmt.Sprintf("@every %s", m.Interval())
	if _, err := s.cron.AddFunc(schedule, func() { s.run(m) }); err != nil {
		return fmt.Errorf("failed to schedule monitor %s: %w", m.ID(), err)
	}

	s.mu.Lock()
	s.monitors = append(s.monitors, m)
	s.mu.Unlock()

	s.log.Info().
		Str("monitor", m.ID()).
		Str("schedule", schedule).
		Msg("Monitor registered")
	return nil
}

func (s *scheduler) monitorIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.monitors))
	for i, m := range s.monitors {
		ids[i] = m.ID()
	}
	return ids
}

// start runs every monitor once for a baseline, then begins the schedule.
func (s *scheduler) start() {
	s.runAll()
	s.cron.Start()
}

func (s *scheduler) stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
}

func (s *scheduler) runAll() {
	s.mu.Lock()
	registered := make([]monitors.Monitor, len(s.monitors))
	copy(registered, s.monitors)
	s.mu.Unlock()

	for _, m := range registered {
		s.run(m)
	}
}

// run executes one monitor with the timeout and panic boundary applied.
// A timed-out check's goroutine is left to finish on its own; its late
// result is discarded.
func (s *scheduler) run(m monitors.Monitor) {
	s.wg.Add(1)
	defer s.wg.Done()

	started := s.ctrl.clk.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), s.ctrl.cfg.Timeout)
	defer cancel()

	resultCh := make(chan domain.MonitorResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- domain.MonitorResult{
					MonitorID: m.ID(),
					Healthy:   false,
					Trigger: &domain.HaltTrigger{
						Trigger:  domain.TriggerMonitorError,
						Category: domain.CategoryInternal,
						Level:    domain.HaltHard,
						Reason:   fmt.Sprintf("monitor %s panicked: %v", m.ID(), r),
					},
					CheckedAt: started,
					Duration:  s.ctrl.clk.Now().Sub(started),
				}
			}
		}()
		resultCh <- m.Check(ctx)
	}()

	var res domain.MonitorResult
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		s.log.Error().
			Str("monitor", m.ID()).
			Dur("timeout", s.ctrl.cfg.Timeout).
			Msg("Monitor run timed out")
		res = domain.MonitorResult{
			MonitorID: m.ID(),
			Healthy:   false,
			Trigger: &domain.HaltTrigger{
				Trigger:  domain.TriggerMonitorError,
				Category: domain.CategoryInternal,
				Level:    domain.HaltHard,
				Reason:   fmt.Sprintf("monitor %s exceeded %s timeout", m.ID(), s.ctrl.cfg.Timeout),
			},
			CheckedAt: started,
			Duration:  s.ctrl.cfg.Timeout,
		}
	}

	s.ctrl.handleResult(res)
}
