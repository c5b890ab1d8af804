package alerting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

type captureTransport struct {
	mu    sync.Mutex
	sent  []domain.Alert
	errs  int
	fail  bool
	woken chan struct{}
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{woken: make(chan struct{}, 64)}
}

func (t *captureTransport) Name() string { return "capture" }

func (t *captureTransport) Send(_ context.Context, alert domain.Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() { t.woken <- struct{}{} }()
	if t.fail {
		t.errs++
		return assert.AnError
	}
	t.sent = append(t.sent, alert)
	return nil
}

func (t *captureTransport) alerts() []domain.Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Alert, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *captureTransport) wait(tt *testing.T, n int) {
	tt.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-t.woken:
		case <-time.After(2 * time.Second):
			tt.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
}

type captureAudit struct {
	mu       sync.Mutex
	recorded []domain.Alert
}

func (a *captureAudit) RecordAlert(alert domain.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorded = append(a.recorded, alert)
	return nil
}

func testConfig() config.AlertingConfig {
	return config.AlertingConfig{
		RateWindow:  time.Minute,
		QueueSize:   16,
		SendTimeout: time.Second,
	}
}

func TestService_DeliversQueuedAlerts(t *testing.T) {
	transport := newCaptureTransport()
	audit := &captureAudit{}
	clk := clock.NewFrozen(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(testConfig(), clk, zerolog.Nop(), Deps{
		Transports: []Transport{transport},
		Audit:      audit,
	})
	svc.Start()
	defer svc.Stop()

	svc.Publish(domain.Alert{
		Priority: domain.AlertHigh,
		Title:    "test",
		Message:  "hello",
		Trigger:  domain.TriggerStaleData,
		Symbol:   "BTCUSDT",
	})
	transport.wait(t, 1)

	alerts := transport.alerts()
	require.Len(t, alerts, 1)
	assert.NotEmpty(t, alerts[0].ID)
	assert.False(t, alerts[0].CreatedAt.IsZero())

	audit.mu.Lock()
	defer audit.mu.Unlock()
	require.Len(t, audit.recorded, 1)
}

func TestService_RateLimitsPerKey(t *testing.T) {
	transport := newCaptureTransport()
	clk := clock.NewFrozen(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))

	var mu sync.Mutex
	outcomes := map[string]int{}
	svc := NewService(testConfig(), clk, zerolog.Nop(), Deps{
		Transports: []Transport{transport},
		Observe: func(_ domain.AlertPriority, outcome string) {
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		},
	})
	svc.Start()

	alert := domain.Alert{
		Priority: domain.AlertHigh,
		Title:    "repeated",
		Trigger:  domain.TriggerStaleData,
		Symbol:   "BTCUSDT",
	}
	svc.Publish(alert)
	svc.Publish(alert)

	// A different symbol is a different rate key.
	other := alert
	other.Symbol = "ETHUSDT"
	svc.Publish(other)

	transport.wait(t, 2)
	svc.Stop()

	assert.Len(t, transport.alerts(), 2)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, outcomes["suppressed"])
	assert.Equal(t, 2, outcomes["sent"])
}

func TestService_RateWindowExpires(t *testing.T) {
	transport := newCaptureTransport()
	clk := clock.NewFrozen(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(testConfig(), clk, zerolog.Nop(), Deps{Transports: []Transport{transport}})
	svc.Start()
	defer svc.Stop()

	alert := domain.Alert{Priority: domain.AlertHigh, Trigger: domain.TriggerCPUUsage}
	svc.Publish(alert)
	transport.wait(t, 1)

	clk.Advance(61 * time.Second)
	svc.Publish(alert)
	transport.wait(t, 1)

	assert.Len(t, transport.alerts(), 2)
}

func TestService_EmergencyBypassesRateLimit(t *testing.T) {
	transport := newCaptureTransport()
	clk := clock.NewFrozen(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(testConfig(), clk, zerolog.Nop(), Deps{Transports: []Transport{transport}})
	svc.Start()
	defer svc.Stop()

	alert := domain.Alert{
		Priority: domain.AlertEmergency,
		Trigger:  domain.TriggerDrawdownExceeded,
		Symbol:   "BTCUSDT",
	}
	svc.Publish(alert)
	svc.Publish(alert)
	transport.wait(t, 2)

	assert.Len(t, transport.alerts(), 2)
}

func TestService_TransportFailureDoesNotPropagate(t *testing.T) {
	failing := newCaptureTransport()
	failing.fail = true
	working := newCaptureTransport()
	clk := clock.NewFrozen(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(testConfig(), clk, zerolog.Nop(), Deps{
		Transports: []Transport{failing, working},
	})
	svc.Start()
	defer svc.Stop()

	svc.Publish(domain.Alert{Priority: domain.AlertCritical, Trigger: domain.TriggerDBErrors})
	failing.wait(t, 1)
	working.wait(t, 1)

	assert.Len(t, working.alerts(), 1)
}

func TestService_PublishHaltMapsPriority(t *testing.T) {
	transport := newCaptureTransport()
	clk := clock.NewFrozen(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(testConfig(), clk, zerolog.Nop(), Deps{Transports: []Transport{transport}})
	svc.Start()
	defer svc.Stop()

	svc.PublishHalt(domain.HaltEvent{
		ID:       "evt-1",
		Trigger:  domain.TriggerPositionMismatch,
		Category: domain.CategoryExecution,
		Level:    domain.HaltHard,
		Reason:   "tracker and exchange disagree",
		Symbol:   "BTCUSDT",
	})
	transport.wait(t, 1)

	alerts := transport.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertCritical, alerts[0].Priority)
	assert.Equal(t, domain.TriggerPositionMismatch, alerts[0].Trigger)
}

func TestService_QueueOverflowDrops(t *testing.T) {
	clk := clock.NewFrozen(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))
	cfg := testConfig()
	cfg.QueueSize = 2

	var mu sync.Mutex
	dropped := 0
	svc := NewService(cfg, clk, zerolog.Nop(), Deps{
		Observe: func(_ domain.AlertPriority, outcome string) {
			if outcome == "dropped" {
				mu.Lock()
				dropped++
				mu.Unlock()
			}
		},
	})
	// Not started: the queue only fills.
	for i := 0; i < 5; i++ {
		svc.Publish(domain.Alert{Priority: domain.AlertInfo, Title: "overflow"})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, dropped)
}

func TestWebhookTransport_Send(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		mu.Lock()
		bodies = append(bodies, string(buf))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewWebhookTransport(server.URL, time.Second, zerolog.Nop())
	err := transport.Send(context.Background(), domain.Alert{
		ID:       "a-1",
		Priority: domain.AlertCritical,
		Title:    "halt",
		Message:  "position mismatch",
		Trigger:  domain.TriggerPositionMismatch,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], `"priority":"CRITICAL"`)
	assert.Contains(t, bodies[0], `"trigger":"EX_POSITION_MISMATCH"`)
}

func TestWebhookTransport_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	transport := NewWebhookTransport(server.URL, time.Second, zerolog.Nop())
	err := transport.Send(context.Background(), domain.Alert{ID: "a-2", Priority: domain.AlertInfo})
	assert.Error(t, err)
}

func TestWebhookTransport_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	transport := NewWebhookTransport(server.URL, time.Second, zerolog.Nop())
	for i := 0; i < 5; i++ {
		_ = transport.Send(context.Background(), domain.Alert{ID: "a", Priority: domain.AlertInfo})
	}

	server.Close() // breaker should fail fast without dialing
	err := transport.Send(context.Background(), domain.Alert{ID: "b", Priority: domain.AlertInfo})
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
