package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkeeper/internal/app"
)

var installCmd = &cobra.Command{
	Use:   "install <fullName>",
	Short: "Install a catalog package and its missing dependencies",
	Long: `Install a catalog package by its full name (Author-Name).

Direct dependencies that are not installed yet are installed first, one at a
time. Files already on disk are renamed aside rather than overwritten, so
installing while the host is running is safe; the new version loads on the
next host start.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

var updateCmd = &cobra.Command{
	Use:   "update <plugin>",
	Short: "Update a loaded plugin to its latest catalog version",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <plugin>",
	Short: "Remove a loaded plugin",
	Long: `Remove a loaded plugin.

Plugins installed by modkeeper lose exactly the files they installed. Other
plugins lose their directory, or only their DLL when it sits in a shared
directory. Locked files are renamed aside and deleted on a later start.`,
	Args: cobra.ExactArgs(1),
	RunE: runUninstall,
}

var uninstallDeleteConfig bool

func init() {
	rootCmd.AddCommand(installCmd, updateCmd, uninstallCmd)
	uninstallCmd.Flags().BoolVar(&uninstallDeleteConfig, "delete-config", false, "Also delete the plugin's .cfg file")
}

func runInstall(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		done, err := s.engine.Install(ctx, args[0])
		printInstalled(cmd.OutOrStdout(), done)
		if err != nil {
			return err
		}
		printRestartHint(cmd.OutOrStdout(), s.engine)
		return nil
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		inst, err := s.engine.Update(ctx, args[0])
		if err != nil {
			return err
		}
		printInstalled(cmd.OutOrStdout(), []app.Installed{*inst})
		printRestartHint(cmd.OutOrStdout(), s.engine)
		return nil
	})
}

func runUninstall(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		res, err := s.engine.Uninstall(ctx, args[0], uninstallDeleteConfig)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, okLine(fmt.Sprintf("Removed %s (%d files, scope %s)", args[0], len(res.Removed), res.Scope)))
		if len(res.Deferred) > 0 {
			fmt.Fprintln(out, warnLine(fmt.Sprintf("%d locked file(s) will be deleted on the next start", len(res.Deferred))))
		}
		if res.ConfigRemoved {
			fmt.Fprintln(out, okLine("Removed config file"))
		}
		printRestartHint(out, s.engine)
		return nil
	})
}

func printInstalled(w io.Writer, done []app.Installed) {
	for _, inst := range done {
		msg := fmt.Sprintf("Installed %s %s -> %s (%s, %d files)",
			inst.Package.FullName,
			styles.Version.Render(inst.Version),
			inst.Result.Layout.TargetDir,
			inst.Result.Layout.Kind,
			len(inst.Result.Files))
		fmt.Fprintln(w, okLine(msg))
		if n := len(inst.Result.Backups); n > 0 {
			fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("  %d existing file(s) renamed aside", n)))
		}
	}
}

func printRestartHint(w io.Writer, e *app.Engine) {
	if e.RestartRequired() {
		fmt.Fprintln(w, warnLine("Restart the game to load the changes, then run 'modkeeper startup'."))
	}
}
