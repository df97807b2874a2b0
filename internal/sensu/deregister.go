package sensu

import (
	"context"
	"errors"
	"fmt"

	"github.com/nholik/sensu-hooks/internal/appspec"
	"github.com/nholik/sensu-hooks/internal/deployment"
)

// DeregisterStageName is the stage name reported to the pipeline.
const DeregisterStageName = "DeregisterOldSensuHealthChecks"

// Removal records what happened to one previously registered check definition.
type Removal struct {
	CheckID string
	Path    string
	Outcome DeleteOutcome
	Err     error
}

// DeregisterStage deletes the check definitions written by the previous deployment.
type DeregisterStage struct {
	opts stageOptions
}

// NewDeregisterStage constructs the deregistration stage.
func NewDeregisterStage(opts ...Option) *DeregisterStage {
	return &DeregisterStage{opts: newStageOptions(opts)}
}

// Name implements stage.Stage.
func (s *DeregisterStage) Name() string {
	return DeregisterStageName
}

// Run implements stage.Stage.
func (s *DeregisterStage) Run(ctx context.Context, d *deployment.Deployment) error {
	_, err := s.Deregister(ctx, d)
	return err
}

// Deregister removes every definition file the previous deployment's checks map to.
// The current service id and slice are used, since both are stable across a
// redeploy. Missing files are logged and skipped; removal failures do not stop
// the remaining removals but fail the stage once all have been attempted.
func (s *DeregisterStage) Deregister(ctx context.Context, d *deployment.Deployment) ([]Removal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := d.Logger.With().Str("stage", s.Name()).Logger()

	if !d.HasPrevious() {
		logger.Info().Msg("no previous deployment, skipping stage")
		return nil, nil
	}

	logger.Info().Str("last_id", d.LastID).Msg("deregistering Sensu checks from previous deployment")
	exists, err := appspec.PreviousArchiveExists(d)
	if err != nil {
		return nil, &DeploymentError{Msg: "failed to read previous deployment", Err: err}
	}
	if !exists {
		logger.Warn().Str("last_id", d.LastID).Str("path", d.LastArchiveDir).Msg("previous deployment directory not found")
		return nil, nil
	}

	// Registration accepts archives without an appspec, so a missing previous
	// appspec still leaves the dedicated health check file to search.
	previous, err := appspec.LoadPrevious(d)
	if err != nil {
		return nil, &DeploymentError{Msg: "failed to read previous appspec", Err: err}
	}
	if previous == nil {
		logger.Debug().Str("path", d.PreviousManifestPath()).Msg("previous deployment has no appspec")
	}

	checks, _, err := appspec.FindHealthChecks(Monitor, d.LastArchiveDir, previous, logger)
	if err != nil {
		return nil, &DeploymentError{Msg: "failed to discover previous Sensu checks", Err: err}
	}
	logger.Debug().Strs("check_ids", declarationIDs(checks)).Msg("Sensu checks to remove")
	if checks == nil {
		logger.Warn().Msg("no Sensu checks will be removed")
		return nil, nil
	}

	removals := make([]Removal, 0, len(checks))
	var failures []error
	for _, check := range checks {
		logger.Debug().Str("check_id", check.ID).Msg("looking for Sensu check")
		path := DefinitionPath(d.Sensu.CheckPath, d.Service.ID, check.ID, d.Service.Slice)
		outcome, err := DeleteDefinition(path)
		switch outcome {
		case DeleteRemoved:
			logger.Info().Str("path", path).Msg("removed Sensu check definition")
		case DeleteNotFound:
			logger.Warn().Str("path", path).Msg("could not find Sensu check definition")
		default:
			logger.Error().Err(err).Str("path", path).Msg("failed to remove Sensu check definition")
			failures = append(failures, fmt.Errorf("%s: %w", check.ID, err))
		}
		s.opts.metrics.IncChecksDeregistered(d.Service.ID, outcome.String())
		removals = append(removals, Removal{CheckID: check.ID, Path: path, Outcome: outcome, Err: err})
	}

	if len(failures) > 0 {
		return removals, &DeploymentError{Msg: "failed to deregister Sensu checks", Err: errors.Join(failures...)}
	}
	return removals, nil
}
