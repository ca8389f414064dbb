package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/config"
)

// WebhookNotifier posts rendered notifications to a webhook endpoint. When no
// webhook is configured it degrades to structured log output so lifecycle
// events are never silently dropped.
type WebhookNotifier struct {
	url       string
	client    *http.Client
	templates *TemplateSet
	logger    *zap.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier loads templates and builds the notifier.
func NewWebhookNotifier(cfg *config.NotifierConfig, logger *zap.Logger) (*WebhookNotifier, error) {
	templates, err := LoadTemplates(cfg.TemplatesPath)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &WebhookNotifier{
		url:       cfg.WebhookURL,
		client:    &http.Client{Timeout: timeout},
		templates: templates,
		logger:    logger,
	}, nil
}

type webhookPayload struct {
	Event   string         `json:"event"`
	Subject string         `json:"subject"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data,omitempty"`
}

// Send renders the event's template and delivers it.
func (n *WebhookNotifier) Send(ctx context.Context, event string, data map[string]any) error {
	subject, body, err := n.templates.Render(event, data)
	if err != nil {
		return err
	}

	if n.url == "" {
		n.logger.Info("notification",
			zap.String("event", event),
			zap.String("subject", subject),
			zap.String("body", body))
		return nil
	}

	payload, err := json.Marshal(webhookPayload{
		Event:   event,
		Subject: subject,
		Body:    body,
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}
