package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// SlackNotifier posts deployment outcomes to a Slack incoming webhook.
type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	channel    *channel
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.channel = newChannel(logger, "slack", webhookURL, notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(buildSlackMessage(event))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	attempts, err := n.channel.deliver(ctx, event, payload)
	if err != nil {
		return err
	}

	n.logger.Debug().
		Str("service_id", event.ServiceID).
		Str("slice", event.Slice).
		Str("status", string(event.Status)).
		Int("attempts", attempts).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessage(event Event) slack.WebhookMessage {
	summary := fmt.Sprintf("Deployment %s of %s: %s", deploymentLabel(event), event.serviceKey(), statusLabel(event.Status))
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))

	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Service: *%s*", event.serviceKey()), false, false),
	}
	if event.Slice != "" {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Slice: *%s*", event.Slice), false, false))
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, contextBlock}
	for _, stage := range event.Stages {
		blocks = append(blocks, buildStageBlock(stage))
	}
	if event.Error != "" {
		text := slack.NewTextBlockObject("mrkdwn", "*Error:*\n```"+event.Error+"```", false, false)
		blocks = append(blocks, slack.NewSectionBlock(text, nil, nil))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildStageBlock(stage StageResult) slack.Block {
	title := fmt.Sprintf("*%s*: `%s`", stage.Name, statusLabel(stage.Status))
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", "*Duration:*\n"+stage.Duration.Round(time.Millisecond).String(), false, false),
	}
	if stage.Error != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Error:*\n"+stage.Error, false, false))
	}

	return slack.NewSectionBlock(text, fields, nil)
}

func deploymentLabel(event Event) string {
	if event.DeploymentID == "" {
		return "(unknown)"
	}
	return event.DeploymentID
}

func statusLabel(status Status) string {
	if status == "" {
		return "UNKNOWN"
	}
	return string(status)
}
