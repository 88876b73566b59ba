package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecervera/temario/internal/catalog"
	"github.com/ecervera/temario/internal/output"
)

func newListCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "list <letter>",
		Short: "List topics under one letter bucket",
		Long: `Lists the topics whose names start with the given letter.

Ñ is its own bucket between N and O; '#' collects names starting with
digits or symbols. Accented names sort before their plain counterparts.

Examples:
  temario list A
  temario list Ñ
  temario list '#' --page 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			engine := catalog.NewEngine(st)
			result, err := engine.ListByLetter(cmd.Context(), args[0], page, cfg.Catalog.PageSize)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.TopicPage(fmt.Sprintf("Topics: %s", args[0]), result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number (1-indexed)")
	return cmd
}

func newRecentCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recently created topics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = cfg.Catalog.RecentLimit
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			engine := catalog.NewEngine(st)
			topics, err := engine.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.TopicList("Recent topics", topics)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of topics (default from config)")
	return cmd
}
