package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/nholik/sensu-hooks/internal/deployment"
	"github.com/nholik/sensu-hooks/internal/metrics"
	"github.com/nholik/sensu-hooks/internal/notify"
	"github.com/rs/zerolog"
)

// Stage is one step of a deployment hook run.
type Stage interface {
	Name() string
	Run(ctx context.Context, d *deployment.Deployment) error
}

// Error reports the stage that aborted a pipeline run.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Pipeline runs stages in order and stops at the first failure.
type Pipeline struct {
	logger   zerolog.Logger
	stages   []Stage
	metrics  *metrics.Metrics
	notifier notify.Notifier
	now      func() time.Time
}

// Option customizes pipeline behavior.
type Option func(*Pipeline)

// WithMetrics records stage durations and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithNotifier reports the outcome of every run.
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline constructs a pipeline over the given stages.
func NewPipeline(logger zerolog.Logger, stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: logger,
		stages: stages,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notifier == nil {
		p.notifier = notify.NewNoop(logger, "")
	}
	return p
}

// Run executes every stage against d. A failing stage aborts the run; later
// stages are reported as skipped. The outcome is sent to the notifier, whose
// errors are logged and never fail the run.
func (p *Pipeline) Run(ctx context.Context, d *deployment.Deployment) error {
	logger := p.logger.With().
		Str("deployment_id", d.ID).
		Str("service_id", d.Service.ID).
		Str("slice", d.Service.Slice).
		Logger()

	results := make([]notify.StageResult, 0, len(p.stages))
	var runErr error
	for _, st := range p.stages {
		if runErr != nil {
			results = append(results, notify.StageResult{Name: st.Name(), Status: notify.StatusSkipped})
			continue
		}

		stageLogger := logger.With().Str("stage", st.Name()).Logger()
		stageLogger.Info().Msg("stage started")

		start := p.now()
		err := st.Run(ctx, d)
		duration := p.now().Sub(start)
		p.metrics.ObserveStageDuration(st.Name(), duration)

		result := notify.StageResult{Name: st.Name(), Status: notify.StatusSucceeded, Duration: duration}
		if err != nil {
			p.metrics.IncStageFailures(st.Name())
			stageLogger.Error().Err(err).Dur("duration", duration).Msg("stage failed")
			result.Status = notify.StatusFailed
			result.Error = err.Error()
			runErr = &Error{Stage: st.Name(), Err: err}
		} else {
			stageLogger.Info().Dur("duration", duration).Msg("stage finished")
		}
		results = append(results, result)
	}

	event := notify.Event{
		ServiceID:    d.Service.ID,
		Slice:        d.Service.Slice,
		DeploymentID: d.ID,
		Status:       notify.StatusSucceeded,
		Stages:       results,
		FinishedAt:   p.now().UTC(),
	}
	if runErr != nil {
		event.Status = notify.StatusFailed
		event.Error = runErr.Error()
	} else {
		p.metrics.SetLastSuccessfulDeploymentTimestamp(event.FinishedAt)
	}

	if err := p.notifier.Notify(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("failed to send deployment notification")
	}

	return runErr
}
