package sensu

import (
	"context"
	"errors"

	"github.com/nholik/sensu-hooks/internal/appspec"
	"github.com/nholik/sensu-hooks/internal/deployment"
	"github.com/rs/zerolog"
)

// RegisterStageName is the stage name reported to the pipeline.
const RegisterStageName = "RegisterSensuHealthChecks"

// Registration records a written check definition.
type Registration struct {
	CheckID     string
	Name        string
	Path        string
	Fingerprint string
}

// RegisterStage validates the current package's checks and writes their definitions.
type RegisterStage struct {
	opts          stageOptions
	registrations []Registration
}

// NewRegisterStage constructs the registration stage.
func NewRegisterStage(opts ...Option) *RegisterStage {
	return &RegisterStage{opts: newStageOptions(opts)}
}

// Name implements stage.Stage.
func (s *RegisterStage) Name() string {
	return RegisterStageName
}

// Run implements stage.Stage.
func (s *RegisterStage) Run(ctx context.Context, d *deployment.Deployment) error {
	registrations, err := s.Register(ctx, d)
	s.registrations = registrations
	return err
}

// Registrations returns the definitions written by the last Run.
func (s *RegisterStage) Registrations() []Registration {
	return s.registrations
}

// Register validates all declared checks, then writes one definition per check
// in declaration order. Nothing is written if validation fails; a write failure
// stops the stage and leaves earlier definitions from this run in place.
func (s *RegisterStage) Register(ctx context.Context, d *deployment.Deployment) ([]Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := d.Logger.With().Str("stage", s.Name()).Logger()
	logger.Info().Msg("registering Sensu checks")

	spec, err := appspec.Load(d.ManifestPath())
	switch {
	case errors.Is(err, appspec.ErrNotFound):
		logger.Debug().Str("path", d.ManifestPath()).Msg("no appspec in archive")
	case err != nil:
		return nil, &DeploymentError{Msg: "failed to read appspec", Err: err}
	}

	decls, baseDir, err := appspec.FindHealthChecks(Monitor, d.ArchiveDir, spec, logger)
	if err != nil {
		return nil, &DeploymentError{Msg: "failed to discover Sensu checks", Err: err}
	}
	if decls == nil {
		logger.Info().Msg("no Sensu checks to register")
		return nil, nil
	}

	checks, err := ValidateChecks(decls, baseDir, d)
	if err != nil {
		s.opts.metrics.IncValidationFailures(d.Service.ID)
		return nil, err
	}

	registrations := make([]Registration, 0, len(checks))
	for _, check := range checks {
		registration, err := s.registerCheck(check, d, logger)
		if err != nil {
			return registrations, err
		}
		registrations = append(registrations, registration)
	}
	return registrations, nil
}

func (s *RegisterStage) registerCheck(check Check, d *deployment.Deployment, logger zerolog.Logger) (Registration, error) {
	def := GenerateDefinition(check, d)
	path := DefinitionPath(d.Sensu.CheckPath, d.Service.ID, check.ID, d.Service.Slice)

	sum, err := WriteDefinition(path, def)
	if err != nil {
		logger.Error().Err(err).Str("check_id", check.ID).Str("path", path).Msg("failed to write Sensu check definition")
		return Registration{}, checkError(check.ID, err)
	}

	logger.Info().Str("path", path).Str("sha256", sum).Msg("created Sensu check definition")
	s.opts.metrics.IncChecksRegistered(d.Service.ID)
	return Registration{CheckID: check.ID, Name: check.Name, Path: path, Fingerprint: sum}, nil
}
