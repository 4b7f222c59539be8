package installer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// Scope says how an uninstall decided which files to remove.
type Scope string

// Uninstall scopes.
const (
	ScopeManifest  Scope = "manifest"
	ScopeSidecar   Scope = "sidecar"
	ScopeFile      Scope = "file"
	ScopeDirectory Scope = "directory"
)

// UninstallRequest describes one uninstall.
type UninstallRequest struct {
	Plugin ports.LocalPlugin
	// FullName is the matched package, used to find its manifest. May be
	// empty for plugins that were never matched.
	FullName string
	// DeleteConfig also removes <ConfigRoot>/<id>.cfg.
	DeleteConfig bool
}

// UninstallResult reports what an uninstall removed.
type UninstallResult struct {
	Scope   Scope
	Removed []string
	// Deferred are rename-aside artifacts that could not be deleted yet,
	// usually because the host still holds them open. SweepBackups removes
	// them on a later start.
	Deferred      []string
	ConfigRemoved bool
}

// IsProtected reports whether id may never be uninstalled.
func (in *Installer) IsProtected(id string) bool {
	if id == "" {
		return false
	}
	for _, p := range in.config.ProtectedIDs {
		if strings.EqualFold(p, id) {
			return true
		}
	}
	return false
}

// Uninstall removes a plugin's files. Tracked plugins lose exactly their
// manifest's files; untracked plugins lose their whole directory unless it
// is one of the host's shared directories.
func (in *Installer) Uninstall(ctx context.Context, req UninstallRequest) (*UninstallResult, error) {
	for _, id := range []string{req.Plugin.ID, req.FullName} {
		if in.IsProtected(id) {
			return nil, fmt.Errorf("%w: %s", ErrProtected, id)
		}
	}

	paths := in.host.Paths()
	if loc := req.Plugin.FileLocation; loc != "" && isProtectedDir(loc, paths) {
		return nil, fmt.Errorf("%w: %s is a shared host directory", ErrProtected, loc)
	}

	var manifest *InstallManifest
	if req.FullName != "" {
		m, err := in.store.Load(req.FullName)
		if err != nil && !errors.Is(err, ErrManifestNotFound) {
			return nil, err
		}
		manifest = m
	}

	pluginDir := ""
	switch loc := req.Plugin.FileLocation; {
	case loc == "":
	case in.fs.IsDir(loc):
		pluginDir = loc
	default:
		pluginDir = filepath.Dir(loc)
	}

	res := &UninstallResult{}
	var errs []error
	switch {
	case manifest != nil:
		res.Scope = ScopeManifest
		errs = append(errs, in.removeFiles(manifest.AbsFiles(), res)...)
		in.prune(manifest.AbsFiles(), manifest.TargetDir, paths)
		if err := in.store.Delete(manifest.FullName); err != nil {
			errs = append(errs, err)
		}
	case pluginDir != "" && in.readSidecar(pluginDir) != nil:
		sidecar := in.readSidecar(pluginDir)
		res.Scope = ScopeSidecar
		files := append(sidecar.AbsFiles(), filepath.Join(pluginDir, manifestFile))
		errs = append(errs, in.removeFiles(files, res)...)
		in.prune(files, pluginDir, paths)
	case pluginDir != "" && isProtectedDir(pluginDir, paths):
		res.Scope = ScopeFile
		errs = append(errs, in.removeFiles([]string{req.Plugin.FileLocation}, res)...)
	case pluginDir != "":
		res.Scope = ScopeDirectory
		errs = append(errs, in.removeDir(pluginDir, res)...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNothingToRemove, req.Plugin.ID)
	}

	if req.DeleteConfig && req.Plugin.ID != "" {
		cfg := filepath.Join(paths.ConfigRoot, req.Plugin.ID+".cfg")
		if in.fs.Exists(cfg) {
			if _, err := discard(in.fs, cfg, in.now()); err != nil {
				errs = append(errs, err)
			} else {
				res.ConfigRemoved = true
			}
		}
	}

	in.host.InvalidateCache()
	in.logger.Info(ctx, "uninstalled",
		ports.F("id", req.Plugin.ID),
		ports.F("scope", string(res.Scope)),
		ports.F("removed", len(res.Removed)),
		ports.F("deferred", len(res.Deferred)))

	if err := errors.Join(errs...); err != nil {
		return res, fmt.Errorf("uninstall %s: %w", req.Plugin.ID, err)
	}
	return res, nil
}

// readSidecar parses a manifest.json beside a plugin that lists its files,
// with paths relative to dir.
func (in *Installer) readSidecar(dir string) *InstallManifest {
	data, err := in.fs.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil
	}
	var m InstallManifest
	if json.Unmarshal(data, &m) != nil || len(m.Files) == 0 {
		return nil
	}
	m.TargetDir = dir
	return &m
}

// removeFiles discards the regular files among files. Directories are
// skipped.
func (in *Installer) removeFiles(files []string, res *UninstallResult) []error {
	now := in.now()
	var errs []error
	for _, f := range files {
		if !in.fs.Exists(f) || in.fs.IsDir(f) {
			continue
		}
		leftover, err := discard(in.fs, f, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res.Removed = append(res.Removed, f)
		if leftover != "" {
			res.Deferred = append(res.Deferred, leftover)
		}
	}
	return errs
}

// removeDir moves dir aside and deletes it. When the directory cannot be
// moved as a whole it falls back to removing its files one by one.
func (in *Installer) removeDir(dir string, res *UninstallResult) []error {
	now := in.now()
	if backup, err := moveAside(in.fs, dir, now); err == nil {
		res.Removed = append(res.Removed, dir)
		if err := in.fs.RemoveAll(backup); err != nil {
			res.Deferred = append(res.Deferred, backup)
		}
		return nil
	}

	var files, dirs []string
	walkErr := in.fs.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		} else {
			files = append(files, path)
		}
		return nil
	})
	errs := in.removeFiles(files, res)
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	removeEmptyDirs(in.fs, dirs)
	return errs
}

// prune removes directories emptied by an uninstall, walking up from each
// removed file to and including top. Shared host directories are kept.
func (in *Installer) prune(files []string, top string, paths ports.HostPaths) {
	seen := make(map[string]struct{})
	var dirs []string
	for _, f := range files {
		for d := filepath.Dir(f); isWithin(top, d) && !isProtectedDir(d, paths); d = filepath.Dir(d) {
			if _, ok := seen[d]; ok {
				break
			}
			seen[d] = struct{}{}
			dirs = append(dirs, d)
			if d == filepath.Clean(top) {
				break
			}
		}
	}
	removeEmptyDirs(in.fs, dirs)
}

// removeEmptyDirs removes the empty directories among dirs, deepest first.
func removeEmptyDirs(fsys ports.FileSystem, dirs []string) {
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		entries, err := fsys.ReadDir(d)
		if err == nil && len(entries) == 0 {
			_ = fsys.Remove(d)
		}
	}
}

func isWithin(top, path string) bool {
	rel, err := filepath.Rel(top, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// isProtectedDir reports whether dir is one of the host's shared directories
// or an ancestor of one.
func isProtectedDir(dir string, paths ports.HostPaths) bool {
	dir = filepath.Clean(dir)
	for _, root := range []string{paths.GameRoot, paths.RuntimeRoot, paths.PluginRoot, paths.PatcherRoot, paths.ConfigRoot} {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if strings.EqualFold(dir, root) || isWithin(dir, root) {
			return true
		}
	}
	return false
}
