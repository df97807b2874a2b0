package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{{ toJson . }}`

// WebhookPayload is the template context for webhook notifications. Event
// fields are promoted, so templates can use {{ .ServiceID }} directly.
type WebhookPayload struct {
	Event
	GeneratedAt time.Time `json:"generated_at"`
}

// WebhookNotifier sends deployment outcomes to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	channel  *channel
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
// It returns nil when no webhook URL is configured.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		channel:  newChannel(logger, "webhook", webhookURL, defaultTiming),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil {
		return nil
	}

	payload := WebhookPayload{
		Event:       event,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	attempts, err := n.channel.deliver(ctx, event, buf.Bytes())
	if err != nil {
		return err
	}

	n.logger.Debug().
		Str("service_id", event.ServiceID).
		Str("slice", event.Slice).
		Str("status", string(event.Status)).
		Int("attempts", attempts).
		Msg("webhook notification sent")

	return nil
}
