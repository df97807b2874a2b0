// Command sensu-hooks manages Sensu check definitions during application
// deployments. Run it from the deployment agent's lifecycle hooks:
//
//	sensu-hooks deregister ...   before the new revision is installed
//	sensu-hooks register ...     after the new revision is installed
//	sensu-hooks deploy ...       both, in that order
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nholik/sensu-hooks/internal/config"
	"github.com/nholik/sensu-hooks/internal/logging"
	"github.com/nholik/sensu-hooks/internal/metrics"
	"github.com/nholik/sensu-hooks/internal/runner"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var req runner.Request

	root := &cobra.Command{
		Use:           "sensu-hooks",
		Short:         "Register and deregister Sensu health checks during deployments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&req.DeploymentID, "deployment-id", os.Getenv("DEPLOYMENT_ID"), "id of the deployment being installed")
	flags.StringVar(&req.ServiceID, "service-id", "", "service identifier used in check file names")
	flags.StringVar(&req.Slice, "slice", "", "deployment slice such as blue or green (none for no slice)")
	flags.StringVar(&req.ArchiveDir, "archive-dir", "", "absolute path of the unpacked deployment archive")
	flags.StringVar(&req.AppspecPath, "appspec", "", "appspec path (default <archive-dir>/appspec.yml)")
	flags.StringVar(&req.LastDeploymentID, "last-deployment-id", "", "previous deployment id, overrides the state file")
	flags.StringVar(&req.LastArchiveDir, "last-archive-dir", "", "previous deployment archive, overrides the state file")
	flags.StringVar(&req.LastAppspecPath, "last-appspec", "", "previous deployment appspec when it was read from outside the archive")

	root.AddCommand(
		newModeCmd(runner.ModeDeregister, "Remove the previous deployment's Sensu check definitions", &req),
		newModeCmd(runner.ModeRegister, "Validate and write the current deployment's Sensu check definitions", &req),
		newModeCmd(runner.ModeDeploy, "Deregister the previous deployment's checks, then register the current ones", &req),
	)
	return root
}

func newModeCmd(mode runner.Mode, short string, req *runner.Request) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), mode, *req)
		},
	}
}

func run(ctx context.Context, mode runner.Mode, req runner.Request) error {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New()
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	logger := logging.NewWithLevel(cfg.LogLevel).With().Str("mode", string(mode)).Logger()

	r, err := runner.New(logger, cfg, runner.WithMetrics(metrics.New()))
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize")
		return err
	}

	if err := r.Run(ctx, mode, req); err != nil {
		logger.Error().Err(err).Msg("deployment hook failed")
		return err
	}
	logger.Info().Msg("deployment hook finished")
	return nil
}
