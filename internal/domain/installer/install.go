// Package installer places downloaded plugin payloads into the host's
// directories and removes them again.
//
// Installs never overwrite a file in place: an existing file is renamed
// aside first, which works even while the host keeps the old DLL open. Every
// file an install places is recorded in a per-package InstallManifest so a
// later uninstall removes exactly those files.
package installer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// Config configures an Installer.
type Config struct {
	// ScratchDir holds temporary extraction directories.
	ScratchDir string
	// ProtectedIDs are plugin ids that may never be uninstalled.
	ProtectedIDs []string
}

// Installer runs the install and uninstall pipelines against one host.
type Installer struct {
	fs     ports.FileSystem
	host   ports.Host
	store  *ManifestStore
	config Config
	logger ports.Logger
	now    func() time.Time
}

// New creates an Installer.
func New(fsys ports.FileSystem, host ports.Host, store *ManifestStore, config Config, logger ports.Logger) *Installer {
	return &Installer{
		fs:     fsys,
		host:   host,
		store:  store,
		config: config,
		logger: ports.OrNop(logger),
		now:    time.Now,
	}
}

// Manifests returns the manifest store.
func (in *Installer) Manifests() *ManifestStore {
	return in.store
}

// Request describes one install.
type Request struct {
	// Path is the downloaded archive or DLL.
	Path string
	// Package is the catalog entry being installed.
	Package catalog.Package
	// Strategy picks the target for payloads without a recognizable layout.
	// Defaults to FreshInstall.
	Strategy TargetStrategy
	// RemoveSource deletes Path once the install finishes, successful or not.
	RemoveSource bool
}

// Result reports what an install placed.
type Result struct {
	Layout Layout
	// Files are relative to Layout.TargetDir.
	Files []string
	// Backups are the rename-aside artifacts the install created.
	Backups []string
	// Patchers are absolute paths placed by the untracked patchers folder.
	Patchers []string
	Manifest *InstallManifest
	// DeclaredVersion is the version_number of the payload's own
	// manifest.json, if it has one.
	DeclaredVersion string
}

// Install extracts req.Path, resolves its layout, hot-swaps its files into
// place and records them in the package's manifest.
func (in *Installer) Install(ctx context.Context, req Request) (*Result, error) {
	if req.Package.FullName == "" {
		return nil, fmt.Errorf("install %s: package has no full name", filepath.Base(req.Path))
	}
	if req.Strategy == nil {
		req.Strategy = FreshInstall(req.Package.FullName)
	}

	scratch := filepath.Join(in.config.ScratchDir, "install-"+uuid.NewString()[:8])
	defer in.cleanup(ctx, scratch, req)

	logger := in.logger.With(ports.F("package", req.Package.FullName))
	payload := filepath.Join(scratch, "payload")
	if isDLL(req.Path) {
		if err := in.fs.CopyFile(req.Path, filepath.Join(payload, filepath.Base(req.Path))); err != nil {
			return nil, fmt.Errorf("stage %s: %w", filepath.Base(req.Path), err)
		}
	} else if err := Extract(ctx, req.Path, payload); err != nil {
		return nil, err
	}

	paths := in.host.Paths()
	layout, err := Resolve(in.fs, payload, paths, req.Strategy)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "resolved layout",
		ports.F("kind", layout.Kind.String()),
		ports.F("source", layout.SourceDir),
		ports.F("target", layout.TargetDir))

	res := &Result{Layout: layout, DeclaredVersion: declaredVersion(in.fs, layout.Root)}
	if layout.Patchers != "" {
		placed, backups, err := in.copyTree(layout.Patchers, paths.PatcherRoot, "", false)
		res.Backups = append(res.Backups, backups...)
		if err != nil {
			return res, fmt.Errorf("install patchers: %w", err)
		}
		for _, rel := range placed {
			res.Patchers = append(res.Patchers, filepath.Join(paths.PatcherRoot, filepath.FromSlash(rel)))
		}
	}

	files, backups, err := in.copyTree(layout.SourceDir, layout.TargetDir, layout.Patchers, true)
	res.Files = files
	res.Backups = append(res.Backups, backups...)
	if err != nil {
		return res, err
	}
	if len(files) == 0 && len(res.Patchers) == 0 {
		return res, ErrNoPayload
	}

	if layout.Kind == KindFlat {
		for _, rel := range files {
			if !isDLL(rel) {
				continue
			}
			archived := in.archiveDuplicates(ctx, paths.PluginRoot, filepath.Join(layout.TargetDir, filepath.FromSlash(rel)))
			res.Backups = append(res.Backups, archived...)
		}
	}

	if len(files) > 0 {
		manifest := NewManifest(req.Package, layout.TargetDir)
		manifest.Files = files
		merged, err := in.store.Merge(manifest)
		if err != nil {
			return res, fmt.Errorf("write manifest: %w", err)
		}
		res.Manifest = merged
	}

	in.host.InvalidateCache()
	logger.Info(ctx, "installed",
		ports.F("version", req.Package.LatestVersion.VersionNumber),
		ports.F("target", layout.TargetDir),
		ports.F("files", len(files)),
		ports.F("backups", len(res.Backups)))
	return res, nil
}

// copyTree hot-swaps every file below src into dst and returns the copied
// paths relative to dst. With skipMeta, metadata files at the top level of
// src are skipped. A skip directory is never descended into.
func (in *Installer) copyTree(src, dst, skip string, skipMeta bool) (files, backups []string, err error) {
	now := in.now()
	err = in.fs.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if skip != "" && path == skip {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if skipMeta && !strings.ContainsRune(rel, filepath.Separator) && isIgnored(rel) {
			return nil
		}

		backup, err := swapIn(in.fs, path, filepath.Join(dst, rel), now)
		if backup != "" {
			backups = append(backups, backup)
		}
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, backups, err
}

// archiveDuplicates moves loose copies of placed's file name found elsewhere
// under root aside so the host does not load two versions.
func (in *Installer) archiveDuplicates(ctx context.Context, root, placed string) []string {
	name := filepath.Base(placed)
	var dupes []string
	_ = in.fs.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && IsBackup(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if path != placed && strings.EqualFold(d.Name(), name) {
			dupes = append(dupes, path)
		}
		return nil
	})

	var archived []string
	now := in.now()
	for _, path := range dupes {
		backup, err := moveAside(in.fs, path, now)
		if err != nil {
			in.logger.Warn(ctx, "could not archive duplicate", ports.F("path", path), ports.Err(err))
			continue
		}
		in.logger.Info(ctx, "archived duplicate", ports.F("path", path))
		archived = append(archived, backup)
	}
	return archived
}

// cleanup removes the scratch directory and, when asked, the downloaded
// payload. Failures are logged only.
func (in *Installer) cleanup(ctx context.Context, scratch string, req Request) {
	if err := in.fs.RemoveAll(scratch); err != nil {
		in.logger.Debug(ctx, "scratch cleanup failed", ports.F("path", scratch), ports.Err(err))
	}
	if req.RemoveSource && req.Path != "" {
		if err := in.fs.Remove(req.Path); err != nil {
			in.logger.Debug(ctx, "download cleanup failed", ports.F("path", req.Path), ports.Err(err))
		}
	}
}
