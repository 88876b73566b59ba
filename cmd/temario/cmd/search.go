package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecervera/temario/internal/catalog"
	"github.com/ecervera/temario/internal/output"
)

func newSearchCmd() *cobra.Command {
	var titles bool
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search topic names, or media titles with --titles",
		Long: `Searches topic names by case- and accent-insensitive substring.

With --titles, searches the indexed captions of the media-catalog topic
instead; this requires a catalog topic to be configured first
('temario topic mark-catalog').

Examples:
  temario search angel
  temario search "night" --titles`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = cfg.Catalog.SearchLimit
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			engine := catalog.NewEngine(st)
			out := output.New(cmd.OutOrStdout())

			if titles {
				hits, err := engine.SearchMediaTitles(cmd.Context(), query, limit)
				if err != nil {
					return err
				}
				out.TitleHits(query, hits)
				return nil
			}

			topics, err := engine.SearchByName(cmd.Context(), query, limit)
			if err != nil {
				return err
			}
			out.TopicList("Topics matching \""+query+"\"", topics)
			return nil
		},
	}

	cmd.Flags().BoolVar(&titles, "titles", false, "Search media-catalog titles instead of topic names")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from config)")
	return cmd
}
