package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// HostPathsUnder lays out the standard host directories below gameRoot.
func HostPathsUnder(gameRoot string) ports.HostPaths {
	runtime := filepath.Join(gameRoot, "BepInEx")
	return ports.HostPaths{
		GameRoot:    gameRoot,
		RuntimeRoot: runtime,
		PluginRoot:  filepath.Join(runtime, "plugins"),
		PatcherRoot: filepath.Join(runtime, "patchers"),
		ConfigRoot:  filepath.Join(runtime, "config"),
	}
}

// FakeHost is a thread-safe ports.Host with a settable plugin list.
type FakeHost struct {
	mu            sync.Mutex
	paths         ports.HostPaths
	plugins       []ports.LocalPlugin
	err           error
	invalidations int
}

// NewFakeHost creates the host directories below t.TempDir().
func NewFakeHost(t testing.TB) *FakeHost {
	t.Helper()

	paths := HostPathsUnder(t.TempDir())
	for _, dir := range []string{paths.PluginRoot, paths.PatcherRoot, paths.ConfigRoot} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return &FakeHost{paths: paths}
}

// SetPlugins replaces the loaded plugin list.
func (h *FakeHost) SetPlugins(plugins ...ports.LocalPlugin) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plugins = append([]ports.LocalPlugin(nil), plugins...)
}

// SetError makes LoadedPlugins fail.
func (h *FakeHost) SetError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// LoadedPlugins returns the configured plugins.
func (h *FakeHost) LoadedPlugins(context.Context) ([]ports.LocalPlugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return append([]ports.LocalPlugin(nil), h.plugins...), nil
}

// InvalidateCache counts invalidations.
func (h *FakeHost) InvalidateCache() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalidations++
}

// Invalidations returns how often InvalidateCache was called.
func (h *FakeHost) Invalidations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invalidations
}

// Paths returns the host directories.
func (h *FakeHost) Paths() ports.HostPaths {
	return h.paths
}

var _ ports.Host = (*FakeHost)(nil)
