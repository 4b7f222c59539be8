package installer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkeeper/internal/adapters/filesystem"
	"github.com/felixgeelhaar/modkeeper/internal/testutil"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	paths := testutil.HostPathsUnder("/game")

	tests := []struct {
		name       string
		files      []string
		strategy   TargetStrategy
		wantKind   Kind
		wantRoot   string
		wantSource string
		wantTarget string
		wantPatch  string
	}{
		{
			name:       "nested plugins folder without manifest",
			files:      []string{"plugins/ModA/ModA.dll"},
			wantKind:   KindRuntimeRoot,
			wantRoot:   "plugins/ModA",
			wantSource: ".",
			wantTarget: paths.RuntimeRoot,
		},
		{
			name:       "single subfolder",
			files:      []string{"Cool/Cool.dll"},
			wantKind:   KindContainer,
			wantRoot:   "Cool",
			wantSource: "Cool",
			wantTarget: filepath.Join(paths.PluginRoot, "Cool"),
		},
		{
			name:       "single subfolder with metadata at top",
			files:      []string{"manifest.json", "icon.png", "README.md", "Cool/Cool.dll", "Cool/lang/en.json"},
			wantKind:   KindContainer,
			wantRoot:   ".",
			wantSource: "Cool",
			wantTarget: filepath.Join(paths.PluginRoot, "Cool"),
		},
		{
			name:       "loose files",
			files:      []string{"manifest.json", "Flat.dll", "Flat.pdb"},
			wantKind:   KindFlat,
			wantRoot:   ".",
			wantSource: ".",
			wantTarget: paths.PluginRoot,
		},
		{
			name:       "packaged BepInEx folder",
			files:      []string{"manifest.json", "BepInEx/plugins/X/X.dll", "winhttp.dll"},
			wantKind:   KindGameRoot,
			wantRoot:   ".",
			wantSource: ".",
			wantTarget: paths.GameRoot,
		},
		{
			name:       "double wrapped pack",
			files:      []string{"manifest.json", "BepInExPack/BepInEx/core/BepInEx.dll", "BepInExPack/winhttp.dll"},
			wantKind:   KindGameRoot,
			wantRoot:   "BepInExPack",
			wantSource: "BepInExPack",
			wantTarget: paths.GameRoot,
		},
		{
			name:       "config folder with manifest",
			files:      []string{"manifest.json", "config/x.cfg", "plugins/X.dll"},
			wantKind:   KindRuntimeRoot,
			wantRoot:   ".",
			wantSource: ".",
			wantTarget: paths.RuntimeRoot,
		},
		{
			name:       "patchers side channel",
			files:      []string{"Mod.dll", "patchers/Pre.dll"},
			wantKind:   KindFlat,
			wantRoot:   ".",
			wantSource: ".",
			wantTarget: paths.PluginRoot,
			wantPatch:  "patchers",
		},
		{
			name:       "patchers only",
			files:      []string{"patchers/Pre.dll"},
			wantKind:   KindPatchers,
			wantRoot:   "patchers",
			wantSource: "patchers",
			wantTarget: paths.PatcherRoot,
		},
		{
			name:       "mixed layout uses fresh install strategy",
			files:      []string{"A/a.dll", "B/b.dll", "notes.txt"},
			wantKind:   KindDefault,
			wantRoot:   "A",
			wantSource: ".",
			wantTarget: filepath.Join(paths.PluginRoot, "Team-Mixed"),
		},
		{
			name:       "mixed layout updates in place",
			files:      []string{"A/a.dll", "B/b.dll"},
			strategy:   UpdateInPlace("/game/BepInEx/plugins/Existing"),
			wantKind:   KindDefault,
			wantRoot:   "A",
			wantSource: ".",
			wantTarget: "/game/BepInEx/plugins/Existing",
		},
		{
			name:       "no dll and no manifest",
			files:      []string{"docs/readme.txt"},
			wantKind:   KindContainer,
			wantRoot:   ".",
			wantSource: "docs",
			wantTarget: filepath.Join(paths.PluginRoot, "docs"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			for _, f := range tt.files {
				testutil.WriteTempFile(t, dir, f, "x")
			}
			strategy := tt.strategy
			if strategy == nil {
				strategy = FreshInstall("Team-Mixed")
			}

			l, err := Resolve(filesystem.NewRealFileSystem(), dir, paths, strategy)
			require.NoError(t, err)

			assert.Equal(t, tt.wantKind, l.Kind, l.Kind.String())
			assert.Equal(t, filepath.Join(dir, filepath.FromSlash(tt.wantRoot)), l.Root)
			assert.Equal(t, filepath.Join(dir, filepath.FromSlash(tt.wantSource)), l.SourceDir)
			assert.Equal(t, tt.wantTarget, l.TargetDir)
			if tt.wantPatch == "" {
				assert.Empty(t, l.Patchers)
			} else {
				assert.Equal(t, filepath.Join(dir, tt.wantPatch), l.Patchers)
			}
		})
	}
}

func TestResolve_Empty(t *testing.T) {
	t.Parallel()

	_, err := Resolve(filesystem.NewRealFileSystem(), t.TempDir(), testutil.HostPathsUnder("/game"), FreshInstall("a-b"))
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestResolve_OnlyMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTempFile(t, dir, "manifest.json", "{}")
	testutil.WriteTempFile(t, dir, "icon.png", "png")

	_, err := Resolve(filesystem.NewRealFileSystem(), dir, testutil.HostPathsUnder("/game"), FreshInstall("a-b"))
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "runtime-root", KindRuntimeRoot.String())
	assert.Equal(t, "default", Kind(99).String())
}
