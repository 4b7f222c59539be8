package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkeeper/internal/adapters/host"
	"github.com/felixgeelhaar/modkeeper/internal/domain/guard"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

var startupCmd = &cobra.Command{
	Use:   "startup",
	Short: "Verify pending installs after the host has started",
	Long: `Verify pending installs after the host has started.

Waits startup.delay for the host to finish loading, removes leftover
renamed-aside files, and checks every pending install against the loaded
plugins. A version that did not load is ignored so it is not offered again
until it shows up installed.`,
	RunE: runStartup,
}

var ignoredCmd = &cobra.Command{
	Use:   "ignored",
	Short: "Manage versions ignored after failed installs",
}

var ignoredListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ignored versions",
	RunE:  runIgnoredList,
}

var ignoredClearCmd = &cobra.Command{
	Use:   "clear [id]",
	Short: "Forget ignored versions for one id, or all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIgnoredClear,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep plugin metadata fresh while files change",
	Long: `Watch the plugin directories and drop cached plugin metadata whenever
files change, logging the loaded plugin count after each change.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(startupCmd, ignoredCmd, watchCmd)
	ignoredCmd.AddCommand(ignoredListCmd, ignoredClearCmd)
}

func runStartup(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		report, err := s.engine.StartupCheck(ctx)
		if err != nil {
			return err
		}
		printStartup(cmd.OutOrStdout(), report.Guard, report.BackupsRemoved)
		return nil
	})
}

func printStartup(w io.Writer, r *guard.Report, backups int) {
	for _, rec := range r.Confirmed {
		fmt.Fprintln(w, okLine(fmt.Sprintf("%s %s loaded", rec.ID, rec.Version)))
	}
	for _, rec := range r.Failed {
		fmt.Fprintln(w, failLine(fmt.Sprintf("%s %s did not load; this version is now ignored", rec.ID, rec.Version)))
	}
	for _, rec := range r.Healed {
		fmt.Fprintln(w, okLine(fmt.Sprintf("%s %s is installed again; no longer ignored", rec.ID, rec.Version)))
	}
	if backups > 0 {
		fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("Removed %d leftover backup(s)", backups)))
	}
	if len(r.Confirmed)+len(r.Failed)+len(r.Healed) == 0 {
		fmt.Fprintln(w, okLine("Nothing pending."))
	}
}

func runIgnoredList(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(_ context.Context, s *session) error {
		out := cmd.OutOrStdout()
		ignored := s.engine.Ignored()
		if len(ignored) == 0 {
			fmt.Fprintln(out, "No ignored versions.")
			return nil
		}
		for _, rec := range ignored {
			fmt.Fprintf(out, "%s %s\n", rec.ID, styles.Muted.Render(rec.Version))
		}
		return nil
	})
}

func runIgnoredClear(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(_ context.Context, s *session) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		n, err := s.engine.ClearIgnored(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okLine(fmt.Sprintf("Cleared %d ignored version(s)", n)))
		return nil
	})
}

func runWatch(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
		defer stop()

		w, err := host.NewWatcher(refreshingHost{s}, host.DefaultDebounce, s.logger)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()

		paths := s.settings.HostPaths()
		if err := w.Add(paths.PluginRoot, paths.PatcherRoot, paths.ConfigRoot); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", paths.RuntimeRoot)
		return w.Run(ctx)
	})
}

// refreshingHost invalidates the host cache and re-reads it so the new
// plugin count is logged.
type refreshingHost struct {
	s *session
}

func (r refreshingHost) InvalidateCache() {
	r.s.host.InvalidateCache()
	ctx := context.Background()
	plugins, err := r.s.host.LoadedPlugins(ctx)
	if err != nil {
		r.s.logger.Warn(ctx, "could not re-read plugins", ports.Err(err))
		return
	}
	r.s.logger.Info(ctx, "plugin metadata refreshed", ports.F("plugins", len(plugins)))
}
