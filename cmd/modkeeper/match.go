package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkeeper/internal/domain/matcher"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match loaded plugins to catalog packages",
	Long: `Match every plugin the host has loaded to a catalog package.

A package is accepted when it scores at least 60 points and no other
candidate comes within 5 points of it. --report prints how each eligible
candidate scored.`,
	RunE: runMatch,
}

var outdatedCmd = &cobra.Command{
	Use:   "outdated",
	Short: "List loaded plugins with a newer catalog version",
	RunE:  runOutdated,
}

var matchReport bool

func init() {
	rootCmd.AddCommand(matchCmd, outdatedCmd)
	matchCmd.Flags().BoolVar(&matchReport, "report", false, "Show score reports for each candidate")
}

func runMatch(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		matches, err := s.engine.MatchInstalled(ctx)
		if err != nil {
			return err
		}
		printMatches(cmd.OutOrStdout(), matches, matchReport)
		return nil
	})
}

func printMatches(w io.Writer, matches []matcher.Match, report bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, styles.Title.Render("PLUGIN")+"\tVERSION\tPACKAGE\tSCORE")
	for _, m := range matches {
		d := m.Decision
		switch {
		case d.Matched():
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", m.Local.ID, m.Local.InstalledVersion, d.Package.FullName, d.Best.Total)
		case d.Ambiguous:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", m.Local.ID, m.Local.InstalledVersion, styles.Warning.Render("ambiguous"), d.Best.Total)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\t-\n", m.Local.ID, m.Local.InstalledVersion, styles.Muted.Render("no match"))
		}
		if report {
			for _, c := range d.Contenders {
				fmt.Fprintf(tw, "\t\t%s\n", styles.Muted.Render(c.String()))
			}
		}
	}
	_ = tw.Flush()
}

func runOutdated(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		updates, err := s.engine.Outdated(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(updates) == 0 {
			fmt.Fprintln(out, okLine("All matched plugins are up to date."))
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, styles.Title.Render("PLUGIN")+"\tINSTALLED\tLATEST\tPACKAGE")
		for _, u := range updates {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Plugin.ID, u.Plugin.InstalledVersion, styles.Version.Render(u.Latest()), u.Package.FullName)
		}
		_ = tw.Flush()
		fmt.Fprintf(out, "\n%d update(s) available. Run 'modkeeper update <plugin>' to install.\n", len(updates))
		return nil
	})
}
