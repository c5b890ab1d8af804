// Package alerting is the asynchronous notification pipeline. Producers
// hand alerts to Publish and return immediately; a dispatcher goroutine
// rate-limits per (trigger, symbol) key and fans out to the configured
// transports. Alert delivery is best-effort: a failed or dropped alert is
// logged and counted, never propagated to the control path.
package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// AuditSink records delivered alerts to the audit log.
type AuditSink interface {
	RecordAlert(domain.Alert) error
}

// ObserveFunc counts one delivery attempt per priority and outcome
// ("sent", "failed", "suppressed", "dropped").
type ObserveFunc func(priority domain.AlertPriority, outcome string)

// Deps are the service's optional collaborators.
type Deps struct {
	Transports []Transport
	Audit      AuditSink
	Observe    ObserveFunc
}

// Service is the alert dispatcher.
type Service struct {
	cfg config.AlertingConfig
	clk clock.Clock
	log zerolog.Logger

	transports []Transport
	audit      AuditSink
	observe    ObserveFunc

	queue   chan domain.Alert
	stop    chan struct{}
	stopped chan struct{}

	mu       sync.Mutex
	lastSent map[string]time.Time
	running  bool
}

// NewService creates the alert service. Start must be called before
// alerts are delivered; Publish before Start only fills the queue.
func NewService(cfg config.AlertingConfig, clk clock.Clock, log zerolog.Logger, deps Deps) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 128
	}
	observe := deps.Observe
	if observe == nil {
		observe = func(domain.AlertPriority, string) {}
	}
	return &Service{
		cfg:        cfg,
		clk:        clk,
		log:        log.With().Str("component", "alerting").Logger(),
		transports: deps.Transports,
		audit:      deps.Audit,
		observe:    observe,
		queue:      make(chan domain.Alert, queueSize),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		lastSent:   make(map[string]time.Time),
	}
}

// Start launches the dispatcher goroutine.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.run()
	s.log.Info().Int("transports", len(s.transports)).Msg("Alert service started")
}

// Stop drains the queue and waits for the dispatcher to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stop)
	<-s.stopped
	s.log.Info().Msg("Alert service stopped")
}

// Publish enqueues an alert without blocking. When the queue is full the
// alert is dropped and counted; stalling the caller would invert the
// system's priorities.
func (s *Service) Publish(alert domain.Alert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.clk.Now().UTC()
	}

	select {
	case s.queue <- alert:
	default:
		s.observe(alert.Priority, "dropped")
		s.log.Warn().
			Str("alert_id", alert.ID).
			Str("title", alert.Title).
			Msg("Alert queue full, dropping alert")
	}
}

// PublishHalt builds and enqueues the alert for a halt event.
func (s *Service) PublishHalt(event domain.HaltEvent) {
	s.Publish(domain.Alert{
		Priority:      domain.PriorityForHaltLevel(event.Level),
		Title:         "System halt: " + string(event.Trigger),
		Message:       event.Reason,
		Trigger:       event.Trigger,
		Category:      event.Category,
		Symbol:        event.Symbol,
		CorrelationID: event.CorrelationID,
	})
}

func (s *Service) run() {
	defer close(s.stopped)

	for {
		select {
		case alert := <-s.queue:
			s.dispatch(alert)
		case <-s.stop:
			// Drain whatever is queued before exiting.
			for {
				select {
				case alert := <-s.queue:
					s.dispatch(alert)
				default:
					return
				}
			}
		}
	}
}

// dispatch applies rate limiting and fans out to every transport.
func (s *Service) dispatch(alert domain.Alert) {
	if s.suppressed(alert) {
		s.observe(alert.Priority, "suppressed")
		s.log.Debug().
			Str("rate_key", alert.RateKey()).
			Str("alert_id", alert.ID).
			Msg("Alert suppressed by rate limiter")
		return
	}

	if s.audit != nil {
		if err := s.audit.RecordAlert(alert); err != nil {
			s.log.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to record alert")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout())
	defer cancel()

	for _, transport := range s.transports {
		if err := transport.Send(ctx, alert); err != nil {
			s.observe(alert.Priority, "failed")
			s.log.Error().Err(err).
				Str("transport", transport.Name()).
				Str("alert_id", alert.ID).
				Msg("Alert delivery failed")
			continue
		}
		s.observe(alert.Priority, "sent")
	}
}

// suppressed reports whether the rate limiter blocks this alert. One
// delivery per rate key per window; emergencies always pass; alerts with
// no trigger are never grouped.
func (s *Service) suppressed(alert domain.Alert) bool {
	if alert.Priority == domain.AlertEmergency || alert.Trigger == "" {
		return false
	}

	now := s.clk.Now()
	key := alert.RateKey()

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, seen := s.lastSent[key]; seen && now.Sub(last) < s.cfg.RateWindow {
		return true
	}
	s.lastSent[key] = now
	return false
}

func (s *Service) sendTimeout() time.Duration {
	if s.cfg.SendTimeout > 0 {
		return s.cfg.SendTimeout
	}
	return 10 * time.Second
}
