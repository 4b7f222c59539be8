package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkeeper/internal/app"
	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
	"github.com/felixgeelhaar/modkeeper/internal/domain/config"
	"github.com/felixgeelhaar/modkeeper/internal/domain/guard"
	"github.com/felixgeelhaar/modkeeper/internal/domain/installer"
	"github.com/felixgeelhaar/modkeeper/internal/domain/matcher"
	"github.com/felixgeelhaar/modkeeper/internal/domain/network"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

func TestRootCommand_UseLine(t *testing.T) {
	assert.Equal(t, "modkeeper", rootCmd.Use)
	assert.True(t, rootCmd.SilenceErrors)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRootCommand_HasPersistentFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	t.Run("config flag exists", func(t *testing.T) {
		flag := flags.Lookup("config")
		require.NotNil(t, flag)
		assert.Empty(t, flag.DefValue)
	})

	t.Run("verbose flag exists", func(t *testing.T) {
		flag := flags.Lookup("verbose")
		require.NotNil(t, flag)
		assert.Equal(t, "v", flag.Shorthand)
		assert.Equal(t, "false", flag.DefValue)
	})
}

func TestRootCommand_Subcommands(t *testing.T) {
	paths := [][]string{
		{"catalog", "refresh"},
		{"catalog", "list"},
		{"search"},
		{"match"},
		{"outdated"},
		{"install"},
		{"update"},
		{"uninstall"},
		{"startup"},
		{"ignored", "list"},
		{"ignored", "clear"},
		{"watch"},
		{"config", "init"},
		{"config", "show"},
		{"version"},
	}
	for _, p := range paths {
		t.Run(strings.Join(p, " "), func(t *testing.T) {
			cmd, rest, err := rootCmd.Find(p)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, p[len(p)-1], cmd.Name())
		})
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  []string
		flag string
		def  string
	}{
		{[]string{"catalog", "refresh"}, "force", "false"},
		{[]string{"catalog", "list"}, "limit", "50"},
		{[]string{"search"}, "limit", "20"},
		{[]string{"match"}, "report", "false"},
		{[]string{"uninstall"}, "delete-config", "false"},
		{[]string{"config", "init"}, "path", "modkeeper.yaml"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.cmd, " ")+" --"+tt.flag, func(t *testing.T) {
			cmd, _, err := rootCmd.Find(tt.cmd)
			require.NoError(t, err)
			flag := cmd.Flags().Lookup(tt.flag)
			require.NotNil(t, flag)
			assert.Equal(t, tt.def, flag.DefValue)
		})
	}
}

func TestToUserError(t *testing.T) {
	t.Parallel()

	rateLimited := fmt.Errorf("%w: %w", catalog.ErrCatalogUnavailable, &network.StatusError{StatusCode: 429, URL: "https://x"})

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"rate limited wins over unavailable", rateLimited, config.ErrCodeRateLimited},
		{"catalog unavailable", fmt.Errorf("build: %w", catalog.ErrCatalogUnavailable), config.ErrCodeCatalog},
		{"protected", fmt.Errorf("%w: BepInEx", installer.ErrProtected), config.ErrCodeProtected},
		{"package not found", fmt.Errorf("%w: A-B", app.ErrPackageNotFound), config.ErrCodeNotFound},
		{"plugin not found", app.ErrPluginNotFound, config.ErrCodeNotFound},
		{"not matched", app.ErrNotMatched, config.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ue := config.GetUserError(toUserError(tt.err))
			require.NotNil(t, ue)
			assert.Equal(t, tt.code, ue.Code)
			assert.ErrorIs(t, ue, tt.err)
		})
	}

	t.Run("user errors pass through", func(t *testing.T) {
		t.Parallel()
		in := config.NewUserError(config.ErrCodeConfigParse, "bad")
		assert.Same(t, in, toUserError(in))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		t.Parallel()
		in := errors.New("boom")
		assert.Equal(t, in, toUserError(in))
	})
}

func TestFormatError(t *testing.T) {
	plain := errors.New("plain failure")
	assert.Equal(t, "plain failure", formatError(plain))

	ue := config.NewUserError(config.ErrCodeNotFound, "no such package").
		WithSuggestion("Search first.").
		WithUnderlying(errors.New("lookup A-B"))

	msg := formatError(ue)
	assert.Contains(t, msg, "no such package")
	assert.Contains(t, msg, "Suggestion: Search first.")
	assert.NotContains(t, msg, "Technical details")

	verbose = true
	t.Cleanup(func() { verbose = false })
	assert.Contains(t, formatError(ue), "Technical details: lookup A-B")
}

func TestPrintErrorTo(t *testing.T) {
	var buf bytes.Buffer
	printErrorTo(&buf, errors.New("disk full"))
	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), "disk full")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "modkeeper.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", "--path", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configInitPath = config.FileName + ".yaml"
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "runtime_dir: BepInEx")

	err = rootCmd.ExecuteContext(context.Background())
	ue := config.GetUserError(err)
	require.NotNil(t, ue)
	assert.Equal(t, config.ErrCodeConfigExists, ue.Code)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "modkeeper")
	assert.Contains(t, out.String(), "commit: none")
}

func TestPrintMatches(t *testing.T) {
	t.Parallel()

	pkg := catalog.Package{FullName: "Team-CoolMod"}
	best := matcher.ScoreMatch("team.coolmod", "CoolMod", pkg)
	matches := []matcher.Match{
		{
			Local:    ports.LocalPlugin{ID: "team.coolmod", InstalledVersion: "1.0.0"},
			Decision: matcher.Decision{Package: &pkg, Best: &best, Contenders: []matcher.Report{best}},
		},
		{
			Local:    ports.LocalPlugin{ID: "twin", InstalledVersion: "2.0.0"},
			Decision: matcher.Decision{Best: &best, Ambiguous: true},
		},
		{
			Local: ports.LocalPlugin{ID: "lonely", InstalledVersion: "0.1.0"},
		},
	}

	var buf bytes.Buffer
	printMatches(&buf, matches, true)
	out := buf.String()

	assert.Contains(t, out, "Team-CoolMod")
	assert.Contains(t, out, "ambiguous")
	assert.Contains(t, out, "no match")
	assert.Contains(t, out, best.String())
}

func TestPrintStartup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printStartup(&buf, &guard.Report{
		Confirmed: []guard.Record{{ID: "a", Version: "1.0.0"}},
		Failed:    []guard.Record{{ID: "b", Version: "2.0.0"}},
	}, 3)
	out := buf.String()
	assert.Contains(t, out, "a 1.0.0 loaded")
	assert.Contains(t, out, "b 2.0.0 did not load")
	assert.Contains(t, out, "Removed 3 leftover backup(s)")

	buf.Reset()
	printStartup(&buf, &guard.Report{}, 0)
	assert.Contains(t, buf.String(), "Nothing pending.")
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"line one\nline two", 40, "line one line two"},
		{"abcdefghij", 5, "abcd…"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n))
	}
}
