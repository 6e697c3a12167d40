package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/cf-guard/internal/config"
	"github.com/oshokin/cf-guard/internal/logger"
	"github.com/oshokin/cf-guard/internal/service/guard"
	"github.com/oshokin/cf-guard/internal/version"
)

var (
	// configPath to the configuration file; empty means CF_GUARD_CONFIG or the default.
	configPath string

	// rootCmd represents the single reconciliation run.
	rootCmd = newRootCommand()
)

// newRootCommand builds the cf-guard command.
func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cf-guard",
		Short: "Toggle Cloudflare Under Attack mode based on server load.",
		Long: `Runs one reconciliation step and exits. Meant to be started by cron or a systemd timer.

Reads the current Cloudflare security level of the zone, syncs the local cache when
it was changed by hand, then compares the 5-minute load average with LOAD_THRESHOLD.
Under Attack mode is enabled when load is above the threshold and kept for
COOLDOWN_HOURS after entry; afterwards the zone returns to LOW_LOAD_MODE.

Settings are read from ` + config.DefaultConfigPath + ` unless CF_GUARD_CONFIG
or --config points elsewhere.

Exit codes: 0 success, 1 missing ZONE_ID/CF_API_TOKEN or unreadable config,
2 current Cloudflare mode could not be read.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			// A hung API call is bounded by its own timeout; signals cut the run short.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return guard.Run(ctx, &guard.Options{
				ConfigPath: configPath,
			})
		},
	}
}

// Execute runs the cf-guard CLI and exits with the status matching the failure.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.ErrorKV(context.Background(), "cf-guard failed", "error", err)
		logger.Sync()
		os.Exit(guard.ExitCode(err))
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default $"+
		config.ConfigPathEnv+" or "+config.DefaultConfigPath+")")
}
