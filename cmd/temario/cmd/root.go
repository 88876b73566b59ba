// Package cmd provides the CLI commands for temario.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ecervera/temario/internal/config"
	"github.com/ecervera/temario/internal/logging"
	"github.com/ecervera/temario/internal/store"
	"github.com/ecervera/temario/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the temario CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "temario",
		Short: "Topic catalog and reliable relay for chat-space content",
		Long: `Temario indexes chat-space topics into an alphabetic catalog and
relays a topic's full message history to a destination, one item at a
time, honoring provider rate limits.

Run 'temario serve' to start the event loop, then browse the catalog
with 'temario list', 'temario recent', and 'temario search'.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("temario version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: "+config.DefaultPath()+")")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to "+logging.DefaultLogDir())

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRecentCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newTopicCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig resolves the active configuration for a command invocation.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// openStore opens the SQLite topic store for cfg.
func openStore(cfg *config.Config) (store.TopicStore, error) {
	return store.NewSQLiteStore(cfg.DatabasePath())
}
