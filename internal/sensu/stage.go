package sensu

import "github.com/nholik/sensu-hooks/internal/metrics"

// Option customizes the Sensu stages.
type Option func(*stageOptions)

type stageOptions struct {
	metrics *metrics.Metrics
}

// WithMetrics records registration and removal counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *stageOptions) {
		o.metrics = m
	}
}

func newStageOptions(opts []Option) stageOptions {
	var o stageOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
