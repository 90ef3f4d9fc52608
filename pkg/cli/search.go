package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/go-modpackinstaller/pkg/model"
	"github.com/go-modpackinstaller/pkg/provider"
)

func newSearchCommand(e *env) *cobra.Command {
	var (
		providerName string
		contentType  string
		gameVersion  string
		loaderName   string
		pages        int
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search a marketplace for modpacks or mods",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := provider.New(providerName, e.cfg, e.logger)
			if err != nil {
				return err
			}
			filters := model.Filters{
				Type:        model.ContentType(normalizeType(contentType)),
				GameVersion: gameVersion,
				Loader:      loaderName,
			}
			if len(args) == 1 {
				filters.Query = args[0]
			}

			var results []*model.ModDetail
			for i := 0; i < pages; i++ {
				if i > 0 && p.ReachedLastPage() {
					break
				}
				results, err = p.Search(cmd.Context(), filters, results)
				if err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tDOWNLOADS")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.ID, r.Title, r.Author, r.Downloads)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if p.ReachedLastPage() {
				fmt.Fprintf(e.out, "%d results (end of results)\n", len(results))
			} else {
				fmt.Fprintf(e.out, "%d results (more available)\n", len(results))
			}
			return nil
		},
	}
	providerFlag(cmd, &providerName)
	contentTypeFlag(cmd, &contentType)
	cmd.Flags().StringVar(&gameVersion, "game-version", "", "Only content for this game version")
	cmd.Flags().StringVar(&loaderName, "loader", "", "Only content for this loader (forge, fabric)")
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of result pages to fetch")
	return cmd
}

func newDetailsCommand(e *env) *cobra.Command {
	var (
		providerName string
		constraint   string
	)
	cmd := &cobra.Command{
		Use:   "details <id>",
		Short: "List the versions of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := provider.New(providerName, e.cfg, e.logger)
			if err != nil {
				return err
			}
			detail := &model.ModDetail{ID: args[0]}
			if err := p.LoadDetails(cmd.Context(), detail); err != nil {
				return err
			}

			w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tVERSION\tGAME VERSIONS\tLOADERS\tFILE")
			matching, err := provider.FilterByGameVersion(detail.Versions, constraint)
			if err != nil {
				return err
			}
			keep := make(map[string]bool, len(matching))
			for _, v := range matching {
				keep[v.ID] = true
			}
			// indexes refer to the unfiltered list, which is what install takes
			for i, v := range detail.Versions {
				if !keep[v.ID] {
					continue
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, v.VersionNumber,
					strings.Join(v.GameVersions, ","), strings.Join(v.Loaders, ","), v.Primary.FileName)
			}
			return w.Flush()
		},
	}
	providerFlag(cmd, &providerName)
	cmd.Flags().StringVar(&constraint, "game-version", "", `Only versions matching a game version or range ("1.20.1", "~1.20")`)
	return cmd
}
