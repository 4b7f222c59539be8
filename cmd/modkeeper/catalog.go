package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Build and inspect the plugin catalog",
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the catalog from the registry and curated repositories",
	Long: `Fetch the catalog from the registry and the curated repository list.

A cached catalog younger than cache.duration is reused unless --force is
given. When the sources are unreachable or rate limited, the last stored
catalog is used instead.`,
	RunE: runCatalogRefresh,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog packages",
	RunE:  runCatalogList,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy-search the catalog by package name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var (
	catalogForce bool
	catalogLimit int
	searchLimit  int
)

func init() {
	rootCmd.AddCommand(catalogCmd, searchCmd)
	catalogCmd.AddCommand(catalogRefreshCmd, catalogListCmd)

	catalogRefreshCmd.Flags().BoolVar(&catalogForce, "force", false, "Ignore a fresh cached catalog")
	catalogListCmd.Flags().IntVar(&catalogLimit, "limit", 50, "Maximum packages to list (0 for all)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
}

func runCatalogRefresh(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		res, err := s.engine.RefreshCatalog(ctx, catalogForce)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		age := time.Since(res.BuiltAt).Round(time.Second)
		switch {
		case res.Stale:
			fmt.Fprintln(out, warnLine(fmt.Sprintf("Sources unavailable, using stored catalog from %s ago (%d packages)", age, len(res.Packages))))
		case res.FromCache:
			fmt.Fprintln(out, okLine(fmt.Sprintf("Catalog is fresh (%d packages, %s old)", len(res.Packages), age)))
		default:
			fmt.Fprintln(out, okLine(fmt.Sprintf("Catalog refreshed: %d packages", len(res.Packages))))
		}
		return nil
	})
}

func runCatalogList(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		c, err := s.engine.Catalog(ctx)
		if err != nil {
			return err
		}
		printPackages(cmd.OutOrStdout(), catalog.Search(c.Packages(), "", catalogLimit))
		if catalogLimit > 0 && c.Len() > catalogLimit {
			fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render(fmt.Sprintf("... %d more", c.Len()-catalogLimit)))
		}
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		found, err := s.engine.Search(ctx, args[0], searchLimit)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No packages found.")
			return nil
		}
		printPackages(cmd.OutOrStdout(), found)
		return nil
	})
}

func printPackages(w io.Writer, packages []catalog.Package) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, styles.Title.Render("PACKAGE")+"\tVERSION\tDESCRIPTION")
	for _, p := range packages {
		name := p.FullName
		if p.SecondaryAuthor != "" {
			name += " (fork of " + p.SecondaryAuthor + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, p.LatestVersion.VersionNumber, truncate(p.Description, 60))
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
