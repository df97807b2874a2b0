package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nholik/sensu-hooks/internal/config"
	"github.com/nholik/sensu-hooks/internal/metrics"
	"github.com/nholik/sensu-hooks/internal/notify"
	"github.com/nholik/sensu-hooks/internal/sensu"
	"github.com/nholik/sensu-hooks/internal/state"
	"github.com/rs/zerolog"
)

type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) error {
	n.events = append(n.events, event)
	return nil
}

type fixture struct {
	root     string
	cfg      config.Config
	notifier *recordingNotifier
	runner   *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	checks := filepath.Join(root, "checks")
	if err := os.MkdirAll(checks, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	tagsFile := filepath.Join(root, "tags.yml")
	writeFile(t, tagsFile, "tags:\n  Environment: prod\n  aws:autoscaling:groupName: web-blue\n")

	cfg := config.Config{
		SensuCheckPath:    checks,
		SearchPaths:       []string{filepath.Join(root, "plugins")},
		StatePath:         filepath.Join(root, "state", "state.json"),
		LogLevel:          "info",
		InstanceTagsFile:  tagsFile,
		ReservedTagPrefix: "aws:",
		MetricsTextfile:   filepath.Join(root, "sensu_hooks.prom"),
	}
	notifier := &recordingNotifier{}
	r, err := New(zerolog.Nop(), cfg,
		WithNotifier(notifier),
		WithMetrics(metrics.New()),
		WithClock(func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return &fixture{root: root, cfg: cfg, notifier: notifier, runner: r}
}

// archive creates an unpacked deployment archive holding the given appspec.
func (f *fixture) archive(t *testing.T, id, appspecBody string) string {
	t.Helper()
	dir := filepath.Join(f.root, "deployments", id, "deployment-archive")
	writeFile(t, filepath.Join(dir, "appspec.yml"), appspecBody)
	return dir
}

func (f *fixture) checkFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.cfg.SensuCheckPath)
	if err != nil {
		t.Fatalf("read checks: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const twoChecks = `sensu_healthchecks:
  disk:
    name: web-disk
    local_script: check-disk.rb
  api:
    name: web-api
    http: http://localhost/health
`

const oneCheck = `sensu_healthchecks:
  api:
    name: web-api
    http: http://localhost/health
`

func TestRunner_DeployRecordsStateAndRemovesStaleChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := Request{DeploymentID: "d-1", ServiceID: "web", Slice: "blue", ArchiveDir: f.archive(t, "d-1", twoChecks)}
	if err := f.runner.Run(ctx, ModeDeploy, first); err != nil {
		t.Fatalf("first deploy: %v", err)
	}
	if got := strings.Join(f.checkFiles(t), ","); got != "web-api-blue.json,web-disk-blue.json" {
		t.Fatalf("unexpected files after first deploy: %s", got)
	}

	history, err := state.NewFileStore(f.cfg.StatePath, zerolog.Nop()).Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	record, ok := history.Previous("web", "blue")
	if !ok || record.DeploymentID != "d-1" || record.ArchiveDir != first.ArchiveDir {
		t.Fatalf("unexpected state record: %+v", record)
	}
	if strings.Join(record.Checks, ",") != "web-disk-blue.json,web-api-blue.json" {
		t.Fatalf("unexpected recorded checks: %v", record.Checks)
	}

	second := Request{DeploymentID: "d-2", ServiceID: "web", Slice: "blue", ArchiveDir: f.archive(t, "d-2", oneCheck)}
	if err := f.runner.Run(ctx, ModeDeploy, second); err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if got := strings.Join(f.checkFiles(t), ","); got != "web-api-blue.json" {
		t.Fatalf("unexpected files after second deploy: %s", got)
	}

	def, err := sensu.ReadDefinition(filepath.Join(f.cfg.SensuCheckPath, "web-api-blue.json"))
	if err != nil {
		t.Fatalf("read definition: %v", err)
	}
	if def.Checks["web-api"]["ttl_environment"] != "prod" {
		t.Fatalf("expected instance tag in definition, got %v", def.Checks["web-api"])
	}

	if len(f.notifier.events) != 2 || f.notifier.events[1].Status != notify.StatusSucceeded {
		t.Fatalf("unexpected notifications: %+v", f.notifier.events)
	}

	metricsText, err := os.ReadFile(f.cfg.MetricsTextfile)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	if !strings.Contains(string(metricsText), `sensu_hooks_checks_deregistered_total{outcome="removed",service="web"} 2`) {
		t.Fatalf("expected deregistration metric, got:\n%s", metricsText)
	}
}

func TestRunner_FailedRunLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := Request{DeploymentID: "d-1", ServiceID: "web", ArchiveDir: f.archive(t, "d-1", oneCheck)}
	if err := f.runner.Run(ctx, ModeRegister, first); err != nil {
		t.Fatalf("first register: %v", err)
	}

	broken := Request{DeploymentID: "d-2", ServiceID: "web", ArchiveDir: f.archive(t, "d-2", `sensu_healthchecks:
  api:
    name: "web api"
    http: http://localhost/health
`)}
	err := f.runner.Run(ctx, ModeDeploy, broken)
	if !errors.Is(err, sensu.ErrInvalidName) {
		t.Fatalf("expected invalid name error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), sensu.RegisterStageName+": ") {
		t.Fatalf("expected error prefixed with stage name, got %q", err.Error())
	}

	history, err := state.NewFileStore(f.cfg.StatePath, zerolog.Nop()).Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if record, _ := history.Previous("web", ""); record.DeploymentID != "d-1" {
		t.Fatalf("expected state to keep d-1, got %+v", record)
	}

	last := f.notifier.events[len(f.notifier.events)-1]
	if !last.Failed() {
		t.Fatalf("expected failure notification, got %+v", last)
	}
}

func TestRunner_DeregisterOnlyDoesNotRecordState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := Request{DeploymentID: "d-1", ServiceID: "web", ArchiveDir: f.archive(t, "d-1", oneCheck)}
	if err := f.runner.Run(ctx, ModeRegister, first); err != nil {
		t.Fatalf("register: %v", err)
	}

	next := Request{DeploymentID: "d-2", ServiceID: "web", ArchiveDir: f.archive(t, "d-2", oneCheck)}
	if err := f.runner.Run(ctx, ModeDeregister, next); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if files := f.checkFiles(t); len(files) != 0 {
		t.Fatalf("expected checks removed, got %v", files)
	}

	history, err := state.NewFileStore(f.cfg.StatePath, zerolog.Nop()).Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if record, _ := history.Previous("web", "none"); record.DeploymentID != "d-1" {
		t.Fatalf("expected deregister to leave state at d-1, got %+v", record)
	}
}

func TestRunner_ExplicitPreviousDeploymentOverridesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	previous := f.archive(t, "external", oneCheck)
	writeFile(t, filepath.Join(f.cfg.SensuCheckPath, "web-api-none.json"), "{}")

	req := Request{
		DeploymentID:     "d-9",
		ServiceID:        "web",
		ArchiveDir:       f.archive(t, "d-9", "version: 0.0\n"),
		LastDeploymentID: "external",
		LastArchiveDir:   previous,
	}
	if err := f.runner.Run(ctx, ModeDeploy, req); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if files := f.checkFiles(t); len(files) != 0 {
		t.Fatalf("expected stale check removed, got %v", files)
	}
}

func TestRunner_DeployRemovesChecksFromAppspecOutsideArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	external := filepath.Join(f.root, "etc", "web-appspec.yml")
	writeFile(t, external, twoChecks)
	first := Request{
		DeploymentID: "d-1",
		ServiceID:    "web",
		Slice:        "blue",
		ArchiveDir:   f.archive(t, "d-1", "version: 0.0\n"),
		AppspecPath:  external,
	}
	if err := f.runner.Run(ctx, ModeDeploy, first); err != nil {
		t.Fatalf("first deploy: %v", err)
	}

	history, err := state.NewFileStore(f.cfg.StatePath, zerolog.Nop()).Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if record, _ := history.Previous("web", "blue"); record.AppspecPath != external {
		t.Fatalf("expected recorded appspec path %q, got %+v", external, record)
	}

	second := Request{DeploymentID: "d-2", ServiceID: "web", Slice: "blue", ArchiveDir: f.archive(t, "d-2", oneCheck)}
	if err := f.runner.Run(ctx, ModeDeploy, second); err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if got := strings.Join(f.checkFiles(t), ","); got != "web-api-blue.json" {
		t.Fatalf("expected disk check removed, got %s", got)
	}

	history, err = state.NewFileStore(f.cfg.StatePath, zerolog.Nop()).Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if record, _ := history.Previous("web", "blue"); record.DeploymentID != "d-2" || record.AppspecPath != "" {
		t.Fatalf("unexpected record after second deploy: %+v", record)
	}
}

func TestRunner_RecordPrunesSlicesWithMissingArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	green := Request{DeploymentID: "g-1", ServiceID: "web", Slice: "green", ArchiveDir: f.archive(t, "g-1", oneCheck)}
	if err := f.runner.Run(ctx, ModeRegister, green); err != nil {
		t.Fatalf("green register: %v", err)
	}
	if err := os.RemoveAll(filepath.Dir(green.ArchiveDir)); err != nil {
		t.Fatalf("remove green archive: %v", err)
	}

	blue := Request{DeploymentID: "b-1", ServiceID: "web", Slice: "blue", ArchiveDir: f.archive(t, "b-1", oneCheck)}
	if err := f.runner.Run(ctx, ModeDeploy, blue); err != nil {
		t.Fatalf("blue deploy: %v", err)
	}

	history, err := state.NewFileStore(f.cfg.StatePath, zerolog.Nop()).Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if _, ok := history.Previous("web", "green"); ok {
		t.Fatalf("expected green record with purged archive to be pruned")
	}
	if record, ok := history.Previous("web", "blue"); !ok || record.DeploymentID != "b-1" {
		t.Fatalf("unexpected blue record: %+v", record)
	}
}

func TestRequestValidate(t *testing.T) {
	valid := Request{DeploymentID: "d-1", ServiceID: "web", ArchiveDir: "/opt/archive"}
	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing deployment id", func(r *Request) { r.DeploymentID = "" }},
		{"missing service id", func(r *Request) { r.ServiceID = "" }},
		{"missing archive dir", func(r *Request) { r.ArchiveDir = "" }},
		{"relative archive dir", func(r *Request) { r.ArchiveDir = "archive" }},
		{"last archive without id", func(r *Request) { r.LastArchiveDir = "/opt/old" }},
		{"last appspec without id", func(r *Request) { r.LastAppspecPath = "/etc/old.yml" }},
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			if err := req.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestRunner_RejectsInvalidRequestAndMode(t *testing.T) {
	f := newFixture(t)

	var opErr *OpError
	err := f.runner.Run(context.Background(), ModeDeploy, Request{ServiceID: "web"})
	if !errors.As(err, &opErr) || opErr.Op != "validate request" {
		t.Fatalf("expected request validation error, got %v", err)
	}

	req := Request{DeploymentID: "d-1", ServiceID: "web", ArchiveDir: f.archive(t, "d-1", oneCheck)}
	err = f.runner.Run(context.Background(), Mode("rollback"), req)
	if !errors.As(err, &opErr) || opErr.Op != "select stages" {
		t.Fatalf("expected mode error, got %v", err)
	}
}

func TestNewNotifier(t *testing.T) {
	n, err := NewNotifier(zerolog.Nop(), config.Config{NotifyDryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := n.(*notify.DryRunNotifier); !ok {
		t.Fatalf("expected dry-run notifier, got %T", n)
	}

	if _, err := NewNotifier(zerolog.Nop(), config.Config{WebhookURL: "http://example.com", WebhookTemplate: "{{"}); err == nil {
		t.Fatalf("expected template error")
	}
}
