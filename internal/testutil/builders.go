package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
)

// ZipBuilder builds zip fixtures.
type ZipBuilder struct {
	files map[string]string
}

// NewZipBuilder creates an empty ZipBuilder.
func NewZipBuilder() *ZipBuilder {
	return &ZipBuilder{files: make(map[string]string)}
}

// WithFile adds an entry. Names use forward slashes.
func (b *ZipBuilder) WithFile(name, content string) *ZipBuilder {
	b.files[name] = content
	return b
}

// WithManifest adds a package manifest.json at dir ("" for the top level).
func (b *ZipBuilder) WithManifest(dir, name, version string) *ZipBuilder {
	body := `{"name":"` + name + `","version_number":"` + version + `"}`
	if dir == "" {
		return b.WithFile("manifest.json", body)
	}
	return b.WithFile(strings.TrimSuffix(dir, "/")+"/manifest.json", body)
}

// Write writes the archive to dir/name and returns its path.
func (b *ZipBuilder) Write(t testing.TB, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	names := make([]string, 0, len(b.files))
	for n := range b.files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err, "failed to create entry %s", n)
		_, err = w.Write([]byte(b.files[n]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return path
}

// PackageBuilder builds catalog packages.
type PackageBuilder struct {
	pkg catalog.Package
}

// NewPackageBuilder starts a package named after the part of fullName
// following the first dash.
func NewPackageBuilder(fullName string) *PackageBuilder {
	name := fullName
	if i := strings.Index(fullName, "-"); i >= 0 {
		name = fullName[i+1:]
	}
	return &PackageBuilder{pkg: catalog.Package{Name: name, FullName: fullName}}
}

// WithVersion sets the latest version number.
func (b *PackageBuilder) WithVersion(v string) *PackageBuilder {
	b.pkg.LatestVersion.VersionNumber = v
	return b
}

// WithDownload sets the latest version's download URL.
func (b *PackageBuilder) WithDownload(url string) *PackageBuilder {
	b.pkg.LatestVersion.DownloadURL = url
	return b
}

// WithDependencies sets the latest version's dependency strings.
func (b *PackageBuilder) WithDependencies(deps ...string) *PackageBuilder {
	b.pkg.LatestVersion.Dependencies = deps
	return b
}

// WithWebsite sets the website URL.
func (b *PackageBuilder) WithWebsite(url string) *PackageBuilder {
	b.pkg.WebsiteURL = url
	return b
}

// Build returns the package.
func (b *PackageBuilder) Build() catalog.Package {
	return b.pkg
}
