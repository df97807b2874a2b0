package notify

import (
	"context"
	"errors"
)

// MultiNotifier fans out notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that dispatches to all provided notifiers.
// Nil notifiers are dropped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier == nil {
			continue
		}
		filtered = append(filtered, notifier)
	}
	return &MultiNotifier{notifiers: filtered}
}

// Notify implements Notifier. Every notifier is attempted; failures are joined.
func (m *MultiNotifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
