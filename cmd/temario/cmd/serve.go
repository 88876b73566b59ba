package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ecervera/temario/internal/logging"
	"github.com/ecervera/temario/internal/output"
	"github.com/ecervera/temario/internal/platform"
	"github.com/ecervera/temario/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing and relay event loop",
		Long: `Starts the long-running service: inbound arrivals are indexed into
the catalog, and config edits are applied without a restart.

Stops cleanly on SIGINT/SIGTERM; an in-flight relay attempt finishes
before shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())

	lock := service.NewInstanceLock(cfg.LockPath())
	acquired, err := lock.TryAcquire()
	if err != nil {
		return err
	}
	if !acquired {
		out.Errorf("another instance is already running (lock: %s)", lock.Path())
		return fmt.Errorf("instance lock held")
	}
	defer func() { _ = lock.Release() }()

	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	logger, cleanup, err := logging.SetupServiceMode(level)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	client := platform.NewSocketClient(cfg.Platform.SocketPath, cfg.Platform.Timeout, logger)
	defer func() { _ = client.Close() }()

	svc := service.New(cfg, cfgPath, st, client, logger)

	// Seed the hot-swappable state from the config on startup.
	if err := svc.Reconfigure(ctx); err != nil {
		logger.Warn("initial config apply failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out.Statusf("▶", "temario serving (socket: %s, data: %s)", cfg.Platform.SocketPath, cfg.Paths.DataDir)
	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	out.Success("shut down cleanly")
	return nil
}
