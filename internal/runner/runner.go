package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nholik/sensu-hooks/internal/config"
	"github.com/nholik/sensu-hooks/internal/deployment"
	"github.com/nholik/sensu-hooks/internal/metrics"
	"github.com/nholik/sensu-hooks/internal/notify"
	"github.com/nholik/sensu-hooks/internal/sensu"
	"github.com/nholik/sensu-hooks/internal/stage"
	"github.com/nholik/sensu-hooks/internal/state"
	"github.com/rs/zerolog"
)

// Mode selects which stages a run executes.
type Mode string

const (
	ModeDeregister Mode = "deregister"
	ModeRegister   Mode = "register"
	ModeDeploy     Mode = "deploy"
)

// Request carries the per-invocation deployment identity.
type Request struct {
	DeploymentID string
	ServiceID    string
	Slice        string
	ArchiveDir   string
	AppspecPath  string
	// LastDeploymentID, LastArchiveDir and LastAppspecPath override the state
	// store when set.
	LastDeploymentID string
	LastArchiveDir   string
	LastAppspecPath  string
}

// Validate checks the request fields every mode needs.
func (r Request) Validate() error {
	if r.DeploymentID == "" {
		return errors.New("deployment id is required")
	}
	if r.ServiceID == "" {
		return errors.New("service id is required")
	}
	if r.ArchiveDir == "" {
		return errors.New("archive dir is required")
	}
	if !filepath.IsAbs(r.ArchiveDir) {
		return fmt.Errorf("archive dir %q must be an absolute path", r.ArchiveDir)
	}
	if r.LastArchiveDir != "" && r.LastDeploymentID == "" {
		return errors.New("last archive dir requires a last deployment id")
	}
	if r.LastAppspecPath != "" && r.LastDeploymentID == "" {
		return errors.New("last appspec requires a last deployment id")
	}
	return nil
}

// Runner wires configuration, state and the Sensu stages for one hook invocation.
type Runner struct {
	logger   zerolog.Logger
	cfg      config.Config
	store    state.Store
	metrics  *metrics.Metrics
	notifier notify.Notifier
	now      func() time.Time
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithStateStore overrides the deployment history store.
func WithStateStore(store state.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithMetrics records stage and check metrics during the run.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New constructs a Runner for the given configuration.
func New(logger zerolog.Logger, cfg config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.store == nil {
		r.store = state.NewFileStore(cfg.StatePath, logger)
	}
	if r.notifier == nil {
		notifier, err := NewNotifier(logger, cfg)
		if err != nil {
			return nil, err
		}
		r.notifier = notifier
	}

	return r, nil
}

// NewNotifier builds the notifier chain described by the configuration.
func NewNotifier(logger zerolog.Logger, cfg config.Config) (notify.Notifier, error) {
	notifiers := []notify.Notifier{notify.NewSlackNotifier(logger, cfg.SlackWebhookURL)}

	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
	if err != nil {
		return nil, err
	}
	if webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.NotifyDryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier, nil
}

// Run executes the stages selected by mode for the request. Successful
// register and deploy runs are recorded in the state store so the next
// deployment can deregister these checks. The metrics textfile is written
// whether or not the run succeeds.
func (r *Runner) Run(ctx context.Context, mode Mode, req Request) error {
	if err := req.Validate(); err != nil {
		return &OpError{Op: "validate request", Err: err}
	}

	d, err := r.buildDeployment(ctx, req)
	if err != nil {
		return err
	}

	register := sensu.NewRegisterStage(sensu.WithMetrics(r.metrics))
	deregister := sensu.NewDeregisterStage(sensu.WithMetrics(r.metrics))

	var stages []stage.Stage
	switch mode {
	case ModeDeregister:
		stages = []stage.Stage{deregister}
	case ModeRegister:
		stages = []stage.Stage{register}
	case ModeDeploy:
		stages = []stage.Stage{deregister, register}
	default:
		return &OpError{Op: "select stages", Err: fmt.Errorf("unknown mode %q", mode)}
	}

	pipeline := stage.NewPipeline(r.logger, stages,
		stage.WithMetrics(r.metrics),
		stage.WithNotifier(r.notifier),
		stage.WithClock(r.now),
	)
	runErr := pipeline.Run(ctx, d)

	if runErr == nil && mode != ModeDeregister {
		if err := r.recordDeployment(ctx, d, register.Registrations()); err != nil {
			runErr = err
		}
	}

	if err := r.metrics.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
		r.logger.Warn().Err(err).Str("path", r.cfg.MetricsTextfile).Msg("failed to write metrics textfile")
	}

	return runErr
}

func (r *Runner) buildDeployment(ctx context.Context, req Request) (*deployment.Deployment, error) {
	tags, err := config.LoadInstanceTags(r.cfg.InstanceTagsFile)
	if err != nil {
		return nil, &OpError{Op: "load instance tags", Err: err}
	}

	logger := r.logger.With().
		Str("deployment_id", req.DeploymentID).
		Str("service_id", req.ServiceID).
		Logger()

	d := &deployment.Deployment{
		ID:                req.DeploymentID,
		ArchiveDir:        req.ArchiveDir,
		AppspecPath:       req.AppspecPath,
		LastID:            req.LastDeploymentID,
		LastArchiveDir:    req.LastArchiveDir,
		LastAppspecPath:   req.LastAppspecPath,
		Service:           deployment.Service{ID: req.ServiceID, Slice: req.Slice},
		InstanceTags:      tags,
		ReservedTagPrefix: r.cfg.ReservedTagPrefix,
		Sensu: deployment.SensuSettings{
			CheckPath:   r.cfg.SensuCheckPath,
			SearchPaths: r.cfg.SearchPaths,
		},
		Logger: logger,
	}

	if d.LastID != "" {
		return d, nil
	}

	history, err := r.store.Load(ctx)
	if err != nil {
		return nil, &OpError{Op: "load state", Err: err}
	}
	if previous, ok := history.Previous(req.ServiceID, req.Slice); ok {
		d.LastID = previous.DeploymentID
		d.LastArchiveDir = previous.ArchiveDir
		d.LastAppspecPath = previous.AppspecPath
		logger.Debug().
			Str("last_id", previous.DeploymentID).
			Str("last_archive_dir", previous.ArchiveDir).
			Str("last_appspec", previous.AppspecPath).
			Msg("found previous deployment")
	}
	return d, nil
}

// recordDeployment stores d as the previous deployment of its service slice.
// Records of other slices whose archive has since been removed are pruned.
func (r *Runner) recordDeployment(ctx context.Context, d *deployment.Deployment, registrations []sensu.Registration) error {
	files := make([]string, 0, len(registrations))
	for _, registration := range registrations {
		files = append(files, filepath.Base(registration.Path))
	}

	var pruned []string
	err := r.store.Update(ctx, func(history *state.State) error {
		pruned = history.Prune(archiveExists)
		history.Put(d.Service.ID, d.Service.Slice, state.Record{
			DeploymentID: d.ID,
			ArchiveDir:   d.ArchiveDir,
			AppspecPath:  d.AppspecPath,
			Checks:       files,
			DeployedAt:   r.now().UTC(),
		})
		return nil
	})
	if err != nil {
		return &OpError{Op: "save state", Err: err}
	}
	if len(pruned) > 0 {
		d.Logger.Info().Strs("services", pruned).Msg("pruned deployment records with missing archives")
	}
	return nil
}

func archiveExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
