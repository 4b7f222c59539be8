package ports

import "context"

// LocalPlugin is the host's read-only view of a loaded plugin.
type LocalPlugin struct {
	ID               string `json:"id"`
	DisplayName      string `json:"name"`
	InstalledVersion string `json:"version"`
	FileLocation     string `json:"location"`
}

// HostPaths are the directories of the host installation.
type HostPaths struct {
	// GameRoot is the host root; a packaged BepInEx folder merges here.
	GameRoot string
	// RuntimeRoot is the plugin-runtime root (GameRoot/BepInEx).
	RuntimeRoot string
	// PluginRoot is the shared plugin directory.
	PluginRoot string
	// PatcherRoot receives packaged patchers folders.
	PatcherRoot string
	// ConfigRoot holds per-plugin .cfg files.
	ConfigRoot string
}

// Host is the integration layer that knows which plugins are loaded.
type Host interface {
	// LoadedPlugins returns the plugins currently loaded by the host.
	LoadedPlugins(ctx context.Context) ([]LocalPlugin, error)
	// InvalidateCache drops any cached plugin metadata so newly written
	// files are picked up on the next LoadedPlugins call.
	InvalidateCache()
	// Paths returns the host directories.
	Paths() HostPaths
}
