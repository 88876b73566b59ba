package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecervera/temario/internal/output"
	"github.com/ecervera/temario/internal/platform"
	"github.com/ecervera/temario/internal/service"
)

func newSendCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "send <topic-id> <destination>",
		Short: "Relay a topic's full message list to a destination",
		Long: `Relays every indexed message of a topic to the destination chat, one
item at a time and in insertion order.

Rate-limit waits announced by the provider are honored in full and the
item is retried; transient failures retry on a fixed delay; permanently
failed items are skipped and counted. Ctrl-C finishes the in-flight
attempt and reports a partial summary.

Examples:
  temario send topic-42 -1001234567890
  temario send topic-42 -1001234567890 --mode copy`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			client := platform.NewSocketClient(cfg.Platform.SocketPath, cfg.Platform.Timeout, nil)
			defer func() { _ = client.Close() }()

			svc := service.New(cfg, cfgPath, st, client, nil)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			origin, err := svc.ResolveOriginChat(ctx)
			if err != nil {
				return err
			}

			// An explicit --mode wins over state and config.
			jobMode := svc.ResolveRelayMode(ctx)
			if mode != "" {
				jobMode = platform.ParseRelayMode(mode)
			}

			job, err := svc.Relays().Start(ctx, args[0], origin, args[1], jobMode)
			if err != nil {
				return err
			}
			defer svc.Relays().Remove(job.ID)

			out := output.New(cmd.OutOrStdout())
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					out.RelayProgress(job.Progress.Snapshot())
				case <-job.Done():
					summary, runErr := job.Result()
					if runErr != nil {
						return runErr
					}
					out.ProgressDone()
					out.RelaySummary(job.Progress.Snapshot().Status, summary)
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Relay mode: forward or copy (default from config)")
	return cmd
}
