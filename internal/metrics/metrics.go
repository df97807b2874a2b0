package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps Prometheus collectors for sensu-hooks.
type Metrics struct {
	registry                 *prometheus.Registry
	stageDurationSeconds     *prometheus.HistogramVec
	stageFailuresTotal       *prometheus.CounterVec
	checksRegisteredTotal    *prometheus.CounterVec
	checksDeregisteredTotal  *prometheus.CounterVec
	validationFailuresTotal  *prometheus.CounterVec
	lastSuccessfulDeployment prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensu_hooks_stage_duration_seconds",
			Help:    "Duration of deployment stages in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		stageFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensu_hooks_stage_failures_total",
			Help: "Total failed deployment stages by stage.",
		}, []string{"stage"}),
		checksRegisteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensu_hooks_checks_registered_total",
			Help: "Total Sensu check definitions written by service.",
		}, []string{"service"}),
		checksDeregisteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensu_hooks_checks_deregistered_total",
			Help: "Total Sensu check definition removals by service and outcome.",
		}, []string{"service", "outcome"}),
		validationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensu_hooks_validation_failures_total",
			Help: "Total rejected health check sets by service.",
		}, []string{"service"}),
		lastSuccessfulDeployment: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensu_hooks_last_successful_deployment_timestamp",
			Help: "Unix timestamp of the last successful deployment run.",
		}),
	}

	registry.MustRegister(
		m.stageDurationSeconds,
		m.stageFailuresTotal,
		m.checksRegisteredTotal,
		m.checksDeregisteredTotal,
		m.validationFailuresTotal,
		m.lastSuccessfulDeployment,
	)

	return m
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveStageDuration records the duration of a completed stage.
func (m *Metrics) ObserveStageDuration(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncStageFailures increments the failure counter for the given stage.
func (m *Metrics) IncStageFailures(stage string) {
	if m == nil {
		return
	}
	m.stageFailuresTotal.WithLabelValues(stage).Inc()
}

// IncChecksRegistered counts one written check definition.
func (m *Metrics) IncChecksRegistered(service string) {
	if m == nil {
		return
	}
	m.checksRegisteredTotal.WithLabelValues(service).Inc()
}

// IncChecksDeregistered counts one removal attempt with its outcome.
func (m *Metrics) IncChecksDeregistered(service string, outcome string) {
	if m == nil {
		return
	}
	m.checksDeregisteredTotal.WithLabelValues(service, outcome).Inc()
}

// IncValidationFailures counts a rejected set of health checks.
func (m *Metrics) IncValidationFailures(service string) {
	if m == nil {
		return
	}
	m.validationFailuresTotal.WithLabelValues(service).Inc()
}

// SetLastSuccessfulDeploymentTimestamp sets the last successful deployment time.
func (m *Metrics) SetLastSuccessfulDeploymentTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulDeployment.Set(float64(t.Unix()))
}
