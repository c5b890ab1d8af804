package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// Transport delivers one alert to one destination. Failures are the
// service's problem: it logs and moves on, never the caller's.
type Transport interface {
	Name() string
	Send(ctx context.Context, alert domain.Alert) error
}

// LogTransport writes alerts to the structured log. It is always
// configured, so every alert leaves at least one trace.
type LogTransport struct {
	log zerolog.Logger
}

// NewLogTransport creates the log transport.
func NewLogTransport(log zerolog.Logger) *LogTransport {
	return &LogTransport{log: log.With().Str("transport", "log").Logger()}
}

// Name identifies this transport in delivery logs.
func (t *LogTransport) Name() string { return "log" }

// Send writes the alert at a level matching its priority.
func (t *LogTransport) Send(_ context.Context, alert domain.Alert) error {
	event := t.log.Warn()
	switch alert.Priority {
	case domain.AlertInfo:
		event = t.log.Info()
	case domain.AlertCritical, domain.AlertEmergency:
		event = t.log.Error()
	}
	event.
		Str("priority", string(alert.Priority)).
		Str("trigger", string(alert.Trigger)).
		Str("symbol", alert.Symbol).
		Str("title", alert.Title).
		Str("correlation_id", alert.CorrelationID).
		Msg(alert.Message)
	return nil
}

// webhookPayload is the JSON body posted to the operator webhook.
type webhookPayload struct {
	ID            string `json:"id"`
	Priority      string `json:"priority"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	Trigger       string `json:"trigger,omitempty"`
	Category      string `json:"category,omitempty"`
	Symbol        string `json:"symbol,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// WebhookTransport posts alerts to an HTTP endpoint. A circuit breaker
// keeps a dead endpoint from stalling every delivery: after five
// consecutive failures sends fail fast for a cooling-off period.
type WebhookTransport struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	url     string
	log     zerolog.Logger
}

// NewWebhookTransport creates the webhook transport.
func NewWebhookTransport(url string, timeout time.Duration, log zerolog.Logger) *WebhookTransport {
	wlog := log.With().Str("transport", "webhook").Logger()

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alert-webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			wlog.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Webhook circuit breaker state changed")
		},
	})

	return &WebhookTransport{
		client:  client,
		breaker: breaker,
		url:     url,
		log:     wlog,
	}
}

// Name identifies this transport in delivery logs.
func (t *WebhookTransport) Name() string { return "webhook" }

// Send posts the alert through the circuit breaker.
func (t *WebhookTransport) Send(ctx context.Context, alert domain.Alert) error {
	payload := webhookPayload{
		ID:            alert.ID,
		Priority:      string(alert.Priority),
		Title:         alert.Title,
		Message:       alert.Message,
		Trigger:       string(alert.Trigger),
		Category:      string(alert.Category),
		Symbol:        alert.Symbol,
		CorrelationID: alert.CorrelationID,
		CreatedAt:     alert.CreatedAt.Format(time.RFC3339),
	}

	_, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.client.R().
			SetContext(ctx).
			SetBody(payload).
			Post(t.url)
		if err != nil {
			return nil, fmt.Errorf("webhook post failed: %w", err)
		}
		if resp.StatusCode() >= 300 {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode())
		}
		return nil, nil
	})
	return err
}
