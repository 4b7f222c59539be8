// Package host adapts a host installation to ports.Host.
//
// The host bridge writes the list of plugins it loaded to a snapshot file on
// every start. When no snapshot exists the adapter discovers plugins from the
// manifest.json files below the plugin root, which is what the host itself
// would load on the next start.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/modkeeper/internal/domain/installer"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

const manifestFile = "manifest.json"

// packageManifest is the subset of a package manifest.json the host reads.
type packageManifest struct {
	Name          string `json:"name"`
	VersionNumber string `json:"version_number"`
	WebsiteURL    string `json:"website_url"`
}

// SnapshotHost reads loaded plugins from a snapshot file with a manifest
// discovery fallback. Results are cached until InvalidateCache.
type SnapshotHost struct {
	fs       ports.FileSystem
	paths    ports.HostPaths
	snapshot string
	logger   ports.Logger

	mu     sync.Mutex
	cached []ports.LocalPlugin
	valid  bool
}

// NewSnapshotHost creates a host for paths. snapshot may be empty to always
// use discovery.
func NewSnapshotHost(fsys ports.FileSystem, paths ports.HostPaths, snapshot string, logger ports.Logger) *SnapshotHost {
	return &SnapshotHost{fs: fsys, paths: paths, snapshot: snapshot, logger: ports.OrNop(logger)}
}

// Paths returns the host directories.
func (h *SnapshotHost) Paths() ports.HostPaths {
	return h.paths
}

// InvalidateCache forces the next LoadedPlugins call to re-read disk.
func (h *SnapshotHost) InvalidateCache() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cached, h.valid = nil, false
}

// LoadedPlugins returns the loaded plugins.
func (h *SnapshotHost) LoadedPlugins(ctx context.Context) ([]ports.LocalPlugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.valid {
		return append([]ports.LocalPlugin(nil), h.cached...), nil
	}

	plugins, err := h.read(ctx)
	if err != nil {
		return nil, err
	}
	h.cached, h.valid = plugins, true
	return append([]ports.LocalPlugin(nil), plugins...), nil
}

func (h *SnapshotHost) read(ctx context.Context) ([]ports.LocalPlugin, error) {
	if h.snapshot != "" && h.fs.Exists(h.snapshot) {
		plugins, err := h.readSnapshot()
		if err == nil {
			h.logger.Debug(ctx, "loaded plugin snapshot", ports.F("path", h.snapshot), ports.F("plugins", len(plugins)))
			return plugins, nil
		}
		h.logger.Warn(ctx, "plugin snapshot unreadable, discovering from manifests",
			ports.F("path", h.snapshot), ports.Err(err))
	}
	return h.discover(ctx)
}

func (h *SnapshotHost) readSnapshot() ([]ports.LocalPlugin, error) {
	data, err := h.fs.ReadFile(h.snapshot)
	if err != nil {
		return nil, err
	}
	var plugins []ports.LocalPlugin
	if err := json.Unmarshal(data, &plugins); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	out := plugins[:0]
	for _, p := range plugins {
		if strings.TrimSpace(p.ID) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// discover walks the plugin root for package manifests. A manifest's id and
// display name are its name; the location is the first DLL beside it.
func (h *SnapshotHost) discover(ctx context.Context) ([]ports.LocalPlugin, error) {
	root := h.paths.PluginRoot
	if !h.fs.IsDir(root) {
		return nil, nil
	}

	var plugins []ports.LocalPlugin
	err := h.fs.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if installer.IsBackup(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(d.Name(), manifestFile) {
			return nil
		}

		lp, ok := h.fromManifest(ctx, path)
		if ok {
			plugins = append(plugins, lp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover plugins: %w", err)
	}

	sort.SliceStable(plugins, func(i, j int) bool { return plugins[i].ID < plugins[j].ID })
	return plugins, nil
}

func (h *SnapshotHost) fromManifest(ctx context.Context, path string) (ports.LocalPlugin, bool) {
	data, err := h.fs.ReadFile(path)
	if err != nil {
		h.logger.Warn(ctx, "skipping unreadable manifest", ports.F("path", path), ports.Err(err))
		return ports.LocalPlugin{}, false
	}
	var m packageManifest
	if err := json.Unmarshal(data, &m); err != nil || strings.TrimSpace(m.Name) == "" {
		h.logger.Debug(ctx, "skipping manifest without name", ports.F("path", path))
		return ports.LocalPlugin{}, false
	}

	dir := filepath.Dir(path)
	return ports.LocalPlugin{
		ID:               m.Name,
		DisplayName:      m.Name,
		InstalledVersion: m.VersionNumber,
		FileLocation:     h.firstDLL(dir),
	}, true
}

// firstDLL returns the first DLL in dir, or dir itself when it has none.
// The shared plugin root is never returned as a location.
func (h *SnapshotHost) firstDLL(dir string) string {
	entries, err := h.fs.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".dll") && !installer.IsBackup(e.Name()) {
				return filepath.Join(dir, e.Name())
			}
		}
	}
	if filepath.Clean(dir) == filepath.Clean(h.paths.PluginRoot) {
		return ""
	}
	return dir
}

var _ ports.Host = (*SnapshotHost)(nil)
