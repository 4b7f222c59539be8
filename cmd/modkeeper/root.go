package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkeeper/internal/adapters/filesystem"
	"github.com/felixgeelhaar/modkeeper/internal/adapters/host"
	"github.com/felixgeelhaar/modkeeper/internal/adapters/logging"
	"github.com/felixgeelhaar/modkeeper/internal/app"
	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
	"github.com/felixgeelhaar/modkeeper/internal/domain/config"
	"github.com/felixgeelhaar/modkeeper/internal/domain/installer"
	"github.com/felixgeelhaar/modkeeper/internal/domain/network"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "modkeeper",
	Short: "Keep host plugins installed and up to date",
	Long: `Modkeeper builds a plugin catalog from the package registry and curated
source repositories, matches it against the plugins the host has loaded,
and installs, updates and removes plugins without fighting locked files.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: modkeeper.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
	})
}

// session is everything a command needs to talk to the host.
type session struct {
	settings *config.Settings
	host     *host.SnapshotHost
	engine   *app.Engine
	logger   ports.Logger
	closer   io.Closer
}

func (s *session) Close() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

// openSession loads settings and wires the engine. Console output follows
// log.level (debug with --verbose); the diagnostic log always records
// debug detail.
func openSession(ctx context.Context) (*session, error) {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := ports.ParseLevel(settings.Log.Level)
	if verbose {
		level = ports.LevelDebug
	}
	console := logging.NewConsoleLogger(
		logging.WithOutput(os.Stderr),
		logging.WithLevel(level),
		logging.WithJSONFormat(settings.Log.JSON),
	)

	s := &session{settings: settings, logger: console}
	diag, closer, err := logging.OpenDiagnosticLog(settings.LogFile(), ports.LevelDebug)
	if err != nil {
		console.Warn(ctx, "diagnostic log unavailable", ports.Err(err))
	} else {
		s.logger, s.closer = logging.NewMultiLogger(console, diag), closer
	}

	fsys := filesystem.NewRealFileSystem()
	s.host = host.NewSnapshotHost(fsys, settings.HostPaths(), settings.SnapshotFile(), s.logger)
	client := network.NewClient(network.Config{
		Timeout:   settings.Network.Timeout,
		Backoff:   settings.Network.Backoff,
		UserAgent: settings.Network.UserAgent,
	}, s.logger)

	s.engine, err = app.New(ctx, app.ConfigFromSettings(settings, fsys), fsys, s.host, client, s.logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// withSession runs fn with an open session.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(ctx, s); err != nil {
		s.logger.Error(ctx, "command failed", ports.F("command", cmd.CommandPath()), ports.Err(err))
		return toUserError(err)
	}
	return nil
}

// toUserError translates domain errors into short, actionable messages.
func toUserError(err error) error {
	var ue *config.UserError
	switch {
	case errors.As(err, &ue):
		return err
	case network.IsRateLimited(err):
		return config.NewUserError(config.ErrCodeRateLimited, "the package source is rate limiting requests").
			WithSuggestion("Wait a few minutes, or set github.token_file to raise the limit.").
			WithUnderlying(err)
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		return config.NewUserError(config.ErrCodeCatalog, "the plugin catalog could not be loaded").
			WithSuggestion("Check your network connection and run 'modkeeper catalog refresh' again.").
			WithUnderlying(err)
	case errors.Is(err, installer.ErrProtected):
		return config.NewUserError(config.ErrCodeProtected, "this plugin is part of the host runtime and cannot be removed").
			WithUnderlying(err)
	case errors.Is(err, app.ErrPackageNotFound):
		return config.NewUserError(config.ErrCodeNotFound, "no such package in the catalog").
			WithSuggestion("Use 'modkeeper search <name>' to find the full name.").
			WithUnderlying(err)
	case errors.Is(err, app.ErrPluginNotFound):
		return config.NewUserError(config.ErrCodeNotFound, "no loaded plugin with that id").
			WithSuggestion("Use 'modkeeper match' to list loaded plugins.").
			WithUnderlying(err)
	case errors.Is(err, app.ErrNotMatched):
		return config.NewUserError(config.ErrCodeNotFound, "the plugin could not be matched to a catalog package").
			WithSuggestion("Run 'modkeeper match --report' to see how candidates scored.").
			WithUnderlying(err)
	}
	return err
}

// formatError returns a user-friendly error message. verbose adds the
// underlying error.
func formatError(err error) string {
	ue := config.GetUserError(err)
	if ue == nil {
		return err.Error()
	}
	msg := ue.Error()
	if ue.Suggestion != "" {
		msg += fmt.Sprintf("\n\nSuggestion: %s", ue.Suggestion)
	}
	if verbose && ue.Underlying != nil {
		msg += fmt.Sprintf("\n\nTechnical details: %v", ue.Underlying)
	}
	return msg
}

// printError prints an error message to stderr.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.Error.Render("Error:"), formatError(err))
}
