package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkeeper/internal/adapters/filesystem"
	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
	"github.com/felixgeelhaar/modkeeper/internal/testutil"
)

type fixture struct {
	in        *Installer
	host      *testutil.FakeHost
	paths     ports.HostPaths
	downloads string
	scratch   string
}

func newFixture(t *testing.T, fsys ports.FileSystem) *fixture {
	t.Helper()

	if fsys == nil {
		fsys = filesystem.NewRealFileSystem()
	}
	host := testutil.NewFakeHost(t)
	data := t.TempDir()
	scratch := filepath.Join(data, "scratch")
	store := NewManifestStore(filepath.Join(data, "manifests"), fsys)

	in := New(fsys, host, store, Config{
		ScratchDir:   scratch,
		ProtectedIDs: []string{"com.modkeeper.engine", "BepInEx"},
	}, nil)
	in.now = func() time.Time { return fixedNow }

	return &fixture{in: in, host: host, paths: host.Paths(), downloads: t.TempDir(), scratch: scratch}
}

func (f *fixture) install(t *testing.T, archive string, pkg catalog.Package, strategy TargetStrategy) *Result {
	t.Helper()

	res, err := f.in.Install(context.Background(), Request{Path: archive, Package: pkg, Strategy: strategy})
	require.NoError(t, err)
	return res
}

func pkg(fullName, version string) catalog.Package {
	return testutil.NewPackageBuilder(fullName).WithVersion(version).Build()
}

func TestInstall_PluginsFolderMergesIntoRuntimeRoot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	archive := testutil.NewZipBuilder().
		WithFile("plugins/ModA/ModA.dll", "a").
		Write(t, f.downloads, "moda.zip")

	res := f.install(t, archive, pkg("Team-ModA", "1.0.0"), nil)

	assert.Equal(t, KindRuntimeRoot, res.Layout.Kind)
	assert.Equal(t, f.paths.RuntimeRoot, res.Layout.TargetDir)
	assert.Equal(t, []string{"plugins/ModA/ModA.dll"}, res.Files)
	testutil.AssertFileEquals(t, filepath.Join(f.paths.PluginRoot, "ModA", "ModA.dll"), "a")

	m, err := f.in.Manifests().Load("Team-ModA")
	require.NoError(t, err)
	assert.Equal(t, f.paths.RuntimeRoot, m.TargetDir)
	assert.Equal(t, []string{"plugins/ModA/ModA.dll"}, m.Files)
}

func TestInstall_SingleSubfolderIsNotDoubleNested(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	archive := testutil.NewZipBuilder().
		WithFile("Cool/Cool.dll", "c").
		Write(t, f.downloads, "cool.zip")

	res := f.install(t, archive, pkg("Team-Cool", "1.0.0"), nil)

	assert.Equal(t, KindContainer, res.Layout.Kind)
	assert.Equal(t, filepath.Join(f.paths.PluginRoot, "Cool"), res.Layout.TargetDir)
	testutil.AssertFileExists(t, filepath.Join(f.paths.PluginRoot, "Cool", "Cool.dll"))
	testutil.AssertFileNotExists(t, filepath.Join(f.paths.PluginRoot, "Cool", "Cool"))
	assert.Equal(t, []string{"Cool.dll"}, res.Manifest.Files)
}

func TestInstall_FlatSkipsMetadata(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	archive := testutil.NewZipBuilder().
		WithManifest("", "Flat", "1.0.0").
		WithFile("icon.png", "png").
		WithFile("README.md", "# Flat").
		WithFile("CHANGELOG.md", "1.0.0").
		WithFile("Flat.dll", "f").
		Write(t, f.downloads, "flat.zip")

	res := f.install(t, archive, pkg("Team-Flat", "1.0.0"), nil)

	assert.Equal(t, KindFlat, res.Layout.Kind)
	assert.Equal(t, "1.0.0", res.DeclaredVersion)
	assert.Equal(t, []string{"Flat.dll"}, res.Files)
	assert.Equal(t, []string{"Flat.dll"}, testutil.ListFiles(t, f.paths.PluginRoot))
	assert.Equal(t, 1, f.host.Invalidations())
}

func TestInstall_DoubleWrappedPackMergesIntoGameRoot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	archive := testutil.NewZipBuilder().
		WithManifest("", "BepInExPack", "5.4.2100").
		WithFile("BepInExPack/BepInEx/core/BepInEx.dll", "core").
		WithFile("BepInExPack/winhttp.dll", "proxy").
		WithFile("BepInExPack/doorstop_config.ini", "ini").
		Write(t, f.downloads, "pack.zip")

	res := f.install(t, archive, pkg("BepInEx-BepInExPack", "5.4.2100"), nil)

	assert.Equal(t, KindGameRoot, res.Layout.Kind)
	testutil.AssertFileEquals(t, filepath.Join(f.paths.GameRoot, "winhttp.dll"), "proxy")
	testutil.AssertFileEquals(t, filepath.Join(f.paths.RuntimeRoot, "core", "BepInEx.dll"), "core")
	assert.ElementsMatch(t, []string{"BepInEx/core/BepInEx.dll", "doorstop_config.ini", "winhttp.dll"}, res.Files)
}

func TestInstall_PatchersAreUntracked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	archive := testutil.NewZipBuilder().
		WithFile("Mod.dll", "m").
		WithFile("patchers/Pre.dll", "p").
		Write(t, f.downloads, "mod.zip")

	res := f.install(t, archive, pkg("Team-Mod", "1.0.0"), nil)

	testutil.AssertFileEquals(t, filepath.Join(f.paths.PatcherRoot, "Pre.dll"), "p")
	testutil.AssertFileEquals(t, filepath.Join(f.paths.PluginRoot, "Mod.dll"), "m")
	assert.Equal(t, []string{filepath.Join(f.paths.PatcherRoot, "Pre.dll")}, res.Patchers)
	assert.Equal(t, []string{"Mod.dll"}, res.Manifest.Files)
}

func TestInstall_DefaultStrategies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	build := func(name string) string {
		return testutil.NewZipBuilder().
			WithFile("A/a.dll", "a").
			WithFile("B/b.dll", "b").
			Write(t, f.downloads, name)
	}

	res := f.install(t, build("fresh.zip"), pkg("Team-Mixed", "1.0.0"), nil)
	assert.Equal(t, filepath.Join(f.paths.PluginRoot, "Team-Mixed"), res.Layout.TargetDir)
	testutil.AssertFileExists(t, filepath.Join(f.paths.PluginRoot, "Team-Mixed", "A", "a.dll"))

	existing := filepath.Join(f.paths.PluginRoot, "LegacyMixed")
	res = f.install(t, build("update.zip"), pkg("Team-Other", "2.0.0"), UpdateInPlace(existing))
	assert.Equal(t, existing, res.Layout.TargetDir)
	testutil.AssertFileExists(t, filepath.Join(existing, "B", "b.dll"))
}

func TestInstall_HotSwapKeepsBackup(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	v1 := testutil.NewZipBuilder().WithFile("Swap/Swap.dll", "v1").Write(t, f.downloads, "v1.zip")
	v2 := testutil.NewZipBuilder().WithFile("Swap/Swap.dll", "v2").Write(t, f.downloads, "v2.zip")

	f.install(t, v1, pkg("Team-Swap", "1.0.0"), nil)
	res := f.install(t, v2, pkg("Team-Swap", "2.0.0"), nil)

	dest := filepath.Join(f.paths.PluginRoot, "Swap", "Swap.dll")
	backups := testutil.BackupsOf(t, dest)
	require.Len(t, backups, 1)
	assert.Equal(t, backups, res.Backups)
	testutil.AssertFileEquals(t, backups[0], "v1")
	testutil.AssertFileEquals(t, dest, "v2")

	m, err := f.in.Manifests().Load("Team-Swap")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", m.LatestVersion.VersionNumber)
	assert.Equal(t, []string{"Swap.dll"}, m.Files)
}

func TestInstall_SingleDLLArchivesDuplicates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	stale := testutil.WriteTempFile(t, f.paths.PluginRoot, "OldFolder/Solo.dll", "old")
	download := testutil.WriteTempFile(t, f.downloads, "Solo.dll", "new")

	res, err := f.in.Install(context.Background(), Request{
		Path:         download,
		Package:      pkg("Team-Solo", "1.1.0"),
		RemoveSource: true,
	})
	require.NoError(t, err)

	assert.Equal(t, KindFlat, res.Layout.Kind)
	testutil.AssertFileEquals(t, filepath.Join(f.paths.PluginRoot, "Solo.dll"), "new")
	testutil.AssertFileNotExists(t, stale)
	require.Len(t, testutil.BackupsOf(t, stale), 1)
	assert.Contains(t, res.Backups, testutil.BackupsOf(t, stale)[0])

	testutil.AssertFileNotExists(t, download)
	assertScratchClean(t, f.scratch)
}

func TestInstall_FailureCleansUp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	bad := testutil.WriteTempFile(t, f.downloads, "broken.zip", "this is not a zip archive")

	_, err := f.in.Install(context.Background(), Request{Path: bad, Package: pkg("Team-Broken", "1.0.0"), RemoveSource: true})
	require.Error(t, err)

	testutil.AssertFileNotExists(t, bad)
	assertScratchClean(t, f.scratch)
	assert.False(t, f.in.Manifests().Has("Team-Broken"))
	assert.Zero(t, f.host.Invalidations())
}

func TestInstall_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	empty := testutil.NewZipBuilder().Write(t, f.downloads, "empty.zip")
	_, err := f.in.Install(context.Background(), Request{Path: empty, Package: pkg("Team-Empty", "1.0.0")})
	assert.ErrorIs(t, err, ErrNoPayload)

	text := testutil.WriteTempFile(t, f.downloads, "notes.txt", "plain text")
	_, err = f.in.Install(context.Background(), Request{Path: text, Package: pkg("Team-Text", "1.0.0")})
	assert.ErrorIs(t, err, ErrUnsupportedArchive)
	testutil.AssertFileExists(t, text)

	_, err = f.in.Install(context.Background(), Request{Path: text})
	assert.Error(t, err)
}

func assertScratchClean(t *testing.T, scratch string) {
	t.Helper()

	entries, err := os.ReadDir(scratch)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}
