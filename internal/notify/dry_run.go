package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// DryRunNotifier logs deployment outcomes without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, event Event) error {
	stages := make([]string, 0, len(event.Stages))
	for _, stage := range event.Stages {
		stages = append(stages, stage.Name+"="+string(stage.Status))
	}
	n.logger.Info().
		Str("service_id", event.ServiceID).
		Str("slice", event.Slice).
		Str("deployment_id", event.DeploymentID).
		Str("status", string(event.Status)).
		Strs("stages", stages).
		Str("error", event.Error).
		Msg("[DRY-RUN] would notify")
	return nil
}
