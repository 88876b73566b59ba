package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecervera/temario/internal/indexer"
	"github.com/ecervera/temario/internal/output"
	"github.com/ecervera/temario/internal/store"
)

func newTopicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Administer topics: catalog designation, muting, deletion",
	}

	cmd.AddCommand(newMarkCatalogCmd())
	cmd.AddCommand(newMuteCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}

// withIndexer opens the store and hands an indexer to fn.
func withIndexer(cmd *cobra.Command, fn func(ix *indexer.Indexer, st store.TopicStore, out *output.Writer) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ix := indexer.New(st, nil, slog.Default())
	return fn(ix, st, output.New(cmd.OutOrStdout()))
}

func newMarkCatalogCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "mark-catalog <topic-id>",
		Short: "Designate the media-catalog topic",
		Long: `Marks a topic as the media catalog. Captions of media arriving in this
topic are indexed as searchable titles. Only one catalog topic can
exist; marking the same topic again is a no-op.

An unknown topic id is created when --name is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndexer(cmd, func(ix *indexer.Indexer, _ store.TopicStore, out *output.Writer) error {
				if err := ix.MarkAsCatalog(cmd.Context(), args[0], name); err != nil {
					return err
				}
				out.Successf("topic %s is now the media catalog", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name when creating a new catalog topic")
	return cmd
}

func newMuteCmd() *cobra.Command {
	var unmute bool

	cmd := &cobra.Command{
		Use:   "mute <topic-id>",
		Short: "Mute a topic so new arrivals are ignored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndexer(cmd, func(ix *indexer.Indexer, _ store.TopicStore, out *output.Writer) error {
				if err := ix.SetMuted(cmd.Context(), args[0], !unmute); err != nil {
					return err
				}
				if unmute {
					out.Successf("topic %s unmuted", args[0])
				} else {
					out.Successf("topic %s muted", args[0])
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&unmute, "undo", false, "Unmute instead")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <topic-id>",
		Short: "Delete one topic and its message index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndexer(cmd, func(ix *indexer.Indexer, _ store.TopicStore, out *output.Writer) error {
				if err := ix.DeleteTopic(cmd.Context(), args[0]); err != nil {
					return err
				}
				out.Successf("topic %s deleted", args[0])
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every topic and start over",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIndexer(cmd, func(ix *indexer.Indexer, _ store.TopicStore, out *output.Writer) error {
				if !yes && !confirm(cmd, "This removes ALL topics. Continue? [y/N] ") {
					out.Status("", "aborted")
					return nil
				}
				if err := ix.Reset(cmd.Context()); err != nil {
					return err
				}
				out.Success("all topics removed")
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
