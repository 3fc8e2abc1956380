// Package notify delivers alerts and escalations to external channels. The
// orchestrator treats delivery as fire-and-forget; a failed send is logged,
// never retried, and never feeds back into incident state.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/KingRain/octrix/internal/models"
	"github.com/KingRain/octrix/internal/repo"
)

// Sink receives alerts and escalation records for delivery.
type Sink interface {
	Notify(alert models.Alert)
	NotifyEscalation(record models.EscalationRecord)
}

// LogSink writes notifications to the structured log. It is the default when
// no webhook is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(alert models.Alert) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("alert",
		slog.String("incident_id", alert.IncidentID),
		slog.String("category", string(alert.Category)),
		slog.String("severity", string(alert.Severity)),
		slog.String("message", alert.Message),
	)
}

func (s LogSink) NotifyEscalation(record models.EscalationRecord) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("escalation",
		slog.String("incident_id", record.IncidentID),
		slog.String("reason", record.Reason),
	)
}

// WebhookSink POSTs notifications as JSON to a configured endpoint. Sends run
// on their own goroutine so a slow receiver never blocks detection or healing.
type WebhookSink struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewWebhookSink constructs a sink targeting url.
func NewWebhookSink(url string, timeout time.Duration, logger *slog.Logger) *WebhookSink {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

type webhookPayload struct {
	Kind       string                   `json:"kind"`
	Alert      *models.Alert            `json:"alert,omitempty"`
	Escalation *models.EscalationRecord `json:"escalation,omitempty"`
}

func (s *WebhookSink) Notify(alert models.Alert) {
	s.deliver(webhookPayload{Kind: "alert", Alert: &alert})
}

func (s *WebhookSink) NotifyEscalation(record models.EscalationRecord) {
	s.deliver(webhookPayload{Kind: "escalation", Escalation: &record})
}

func (s *WebhookSink) deliver(payload webhookPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := repo.PostJSON(ctx, s.client, s.url, payload); err != nil {
			s.logger.Warn("webhook delivery failed", slog.String("kind", payload.Kind), slog.Any("error", err))
		}
	}()
}
