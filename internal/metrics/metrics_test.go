package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUpdates(t *testing.T) {
	m := New()

	m.ObserveStageDuration("RegisterSensuHealthChecks", 2*time.Second)
	m.IncStageFailures("RegisterSensuHealthChecks")
	m.IncChecksRegistered("svc-a")
	m.IncChecksRegistered("svc-a")
	m.IncChecksDeregistered("svc-a", "removed")
	m.IncChecksDeregistered("svc-a", "not_found")
	m.IncValidationFailures("svc-a")
	m.SetLastSuccessfulDeploymentTimestamp(time.Unix(100, 0))

	if got := testutil.ToFloat64(m.stageFailuresTotal.WithLabelValues("RegisterSensuHealthChecks")); got != 1 {
		t.Fatalf("expected stage failures 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.checksRegisteredTotal.WithLabelValues("svc-a")); got != 2 {
		t.Fatalf("expected registered checks 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.checksDeregisteredTotal.WithLabelValues("svc-a", "not_found")); got != 1 {
		t.Fatalf("expected not_found removals 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.validationFailuresTotal.WithLabelValues("svc-a")); got != 1 {
		t.Fatalf("expected validation failures 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccessfulDeployment); got != 100 {
		t.Fatalf("expected last successful deployment 100, got %v", got)
	}
	if count := testutil.CollectAndCount(m.stageDurationSeconds); count == 0 {
		t.Fatalf("expected stage duration histogram to be collected")
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.ObserveStageDuration("stage", time.Second)
	m.IncStageFailures("stage")
	m.IncChecksRegistered("svc")
	m.IncChecksDeregistered("svc", "removed")
	m.IncValidationFailures("svc")
	m.SetLastSuccessfulDeploymentTimestamp(time.Now())
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "out.prom")); err != nil {
		t.Fatalf("expected nil metrics to skip writing, got %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.IncChecksRegistered("svc-a")

	path := filepath.Join(t.TempDir(), "sensu_hooks.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `sensu_hooks_checks_registered_total{service="svc-a"} 1`) {
		t.Fatalf("expected registered counter in textfile, got:\n%s", data)
	}
}
