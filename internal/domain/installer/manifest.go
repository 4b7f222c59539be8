package installer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// ManifestVersion is the version block of an InstallManifest.
type ManifestVersion struct {
	VersionNumber string `json:"versionNumber"`
}

// InstallManifest records which files an install placed and where.
// Files are relative to TargetDir and use forward slashes.
type InstallManifest struct {
	Name          string          `json:"name"`
	FullName      string          `json:"fullName"`
	Description   string          `json:"description,omitempty"`
	WebsiteURL    string          `json:"websiteUrl,omitempty"`
	LatestVersion ManifestVersion `json:"latestVersion"`
	TargetDir     string          `json:"targetDir"`
	Files         []string        `json:"files"`
}

// NewManifest creates a manifest for pkg with no files.
func NewManifest(pkg catalog.Package, targetDir string) *InstallManifest {
	return &InstallManifest{
		Name:          pkg.Name,
		FullName:      pkg.FullName,
		Description:   pkg.Description,
		WebsiteURL:    pkg.WebsiteURL,
		LatestVersion: ManifestVersion{VersionNumber: pkg.LatestVersion.VersionNumber},
		TargetDir:     targetDir,
	}
}

// AbsFiles returns the tracked files as absolute paths. Entries that are
// absolute or escape TargetDir are dropped.
func (m *InstallManifest) AbsFiles() []string {
	out := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		rel, ok := cleanEntry(f)
		if !ok {
			continue
		}
		abs := filepath.Join(m.TargetDir, filepath.FromSlash(rel))
		if isWithin(m.TargetDir, abs) {
			out = append(out, abs)
		}
	}
	return out
}

// cleanEntry normalizes a manifest file entry. It rejects empty, absolute
// and parent-relative entries.
func cleanEntry(f string) (string, bool) {
	f = strings.ReplaceAll(strings.TrimSpace(f), `\`, "/")
	if f == "" || path.IsAbs(f) || filepath.IsAbs(filepath.FromSlash(f)) || filepath.VolumeName(filepath.FromSlash(f)) != "" {
		return "", false
	}
	f = path.Clean(f)
	if f == "." || f == ".." || strings.HasPrefix(f, "../") {
		return "", false
	}
	return f, true
}

// cleanEntries keeps the valid entries of files, normalized.
func cleanEntries(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if rel, ok := cleanEntry(f); ok {
			out = append(out, rel)
		}
	}
	return out
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName turns a package full name into a safe file or directory name.
func SanitizeName(fullName string) string {
	s := unsafeName.ReplaceAllString(strings.TrimSpace(fullName), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "package"
	}
	return s
}

// ManifestStore keeps one manifest file per package below a directory.
type ManifestStore struct {
	dir string
	fs  ports.FileSystem
}

// NewManifestStore creates a store rooted at dir.
func NewManifestStore(dir string, fsys ports.FileSystem) *ManifestStore {
	return &ManifestStore{dir: dir, fs: fsys}
}

func (s *ManifestStore) path(fullName string) string {
	return filepath.Join(s.dir, SanitizeName(fullName)+".json")
}

// Load reads the manifest of fullName.
func (s *ManifestStore) Load(fullName string) (*InstallManifest, error) {
	data, err := s.fs.ReadFile(s.path(fullName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, fullName)
		}
		return nil, err
	}
	var m InstallManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", fullName, err)
	}
	return &m, nil
}

// Has reports whether a manifest exists for fullName.
func (s *ManifestStore) Has(fullName string) bool {
	return s.fs.Exists(s.path(fullName))
}

// Save writes m, replacing any previous manifest for the same package.
func (s *ManifestStore) Save(m *InstallManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.WriteFile(s.path(m.FullName), data, 0o644)
}

// Merge folds m into the stored manifest. When the target directory is
// unchanged the file lists are unioned, keeping only old entries that still
// exist on disk; otherwise m replaces the stored manifest.
func (s *ManifestStore) Merge(m *InstallManifest) (*InstallManifest, error) {
	merged := *m
	merged.Files = cleanEntries(m.Files)
	prev, err := s.Load(m.FullName)
	switch {
	case errors.Is(err, ErrManifestNotFound):
	case err != nil:
		return nil, err
	case filepath.Clean(prev.TargetDir) == filepath.Clean(m.TargetDir):
		seen := make(map[string]struct{}, len(merged.Files))
		files := append([]string(nil), merged.Files...)
		for _, f := range files {
			seen[f] = struct{}{}
		}
		for _, f := range cleanEntries(prev.Files) {
			if _, ok := seen[f]; ok {
				continue
			}
			if s.fs.Exists(filepath.Join(prev.TargetDir, filepath.FromSlash(f))) {
				files = append(files, f)
				seen[f] = struct{}{}
			}
		}
		merged.Files = files
	}

	sort.Strings(merged.Files)
	if err := s.Save(&merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Delete removes the manifest of fullName. A missing manifest is not an
// error.
func (s *ManifestStore) Delete(fullName string) error {
	err := s.fs.Remove(s.path(fullName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns every stored manifest. Unreadable files are skipped.
func (s *ManifestStore) List() ([]*InstallManifest, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []*InstallManifest
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := s.fs.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var m InstallManifest
		if json.Unmarshal(data, &m) != nil || m.FullName == "" {
			continue
		}
		out = append(out, &m)
	}
	return out, nil
}

// declaredVersion reads version_number from dir/manifest.json.
func declaredVersion(fsys ports.FileSystem, dir string) string {
	data, err := fsys.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return ""
	}
	var m struct {
		VersionNumber string `json:"version_number"`
	}
	if json.Unmarshal(data, &m) != nil {
		return ""
	}
	return strings.TrimSpace(m.VersionNumber)
}
