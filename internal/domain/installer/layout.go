package installer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// Kind says how an extracted payload maps onto the host directories.
type Kind int

const (
	// KindDefault places the payload where the caller's TargetStrategy says.
	KindDefault Kind = iota
	// KindFlat copies loose files straight into the plugin root.
	KindFlat
	// KindContainer copies a single wrapping folder into the plugin root.
	KindContainer
	// KindGameRoot merges a packaged BepInEx folder into the game root.
	KindGameRoot
	// KindRuntimeRoot merges packaged plugins/config folders into the
	// runtime root.
	KindRuntimeRoot
	// KindPatchers installs a payload that only carries a patchers folder.
	KindPatchers
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindContainer:
		return "container"
	case KindGameRoot:
		return "game-root"
	case KindRuntimeRoot:
		return "runtime-root"
	case KindPatchers:
		return "patchers"
	default:
		return "default"
	}
}

// Layout is the resolved placement of an extracted payload.
type Layout struct {
	Kind Kind
	// Root is the package root located inside the extraction.
	Root string
	// SourceDir is the directory whose contents are copied.
	SourceDir string
	// TargetDir receives the copied files; manifest paths are relative to it.
	TargetDir string
	// Patchers is a packaged patchers folder copied into the patcher root
	// without manifest tracking. Empty when absent.
	Patchers string
}

// TargetStrategy picks the target directory for payloads without a
// recognizable layout.
type TargetStrategy func(paths ports.HostPaths) string

// UpdateInPlace targets the directory of the plugin being updated.
func UpdateInPlace(dir string) TargetStrategy {
	return func(ports.HostPaths) string { return dir }
}

// FreshInstall targets a plugin-root folder named after the package.
func FreshInstall(fullName string) TargetStrategy {
	return func(paths ports.HostPaths) string {
		return filepath.Join(paths.PluginRoot, SanitizeName(fullName))
	}
}

const (
	manifestFile = "manifest.json"
	packWrapper  = "bepinexpack"
)

var ignoredNames = map[string]struct{}{
	"manifest.json": {},
	"icon.png":      {},
	"readme.md":     {},
	"changelog.md":  {},
}

func isIgnored(name string) bool {
	_, ok := ignoredNames[strings.ToLower(name)]
	return ok
}

func isLayoutMarker(name string) bool {
	switch strings.ToLower(name) {
	case "bepinex", "plugins", "config", "patchers":
		return true
	}
	return false
}

func isDLL(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".dll")
}

// Resolve locates the package root inside extractDir and classifies where
// its contents belong.
func Resolve(fsys ports.FileSystem, extractDir string, paths ports.HostPaths, strategy TargetStrategy) (Layout, error) {
	root, hasManifest, err := findRoot(fsys, extractDir)
	if err != nil {
		return Layout{}, err
	}
	base := layoutBase(root, extractDir, hasManifest)

	layout, err := classify(fsys, base, paths, strategy)
	if err != nil {
		return Layout{}, err
	}
	layout.Root = root
	return layout, nil
}

// findRoot returns the directory of the shallowest manifest.json, unwrapping
// a nested BepInExPack folder, or else the directory of the shallowest DLL,
// or else extractDir itself.
func findRoot(fsys ports.FileSystem, extractDir string) (string, bool, error) {
	var (
		manifestDir, dllDir string
		anyFile             bool
	)
	manifestDepth, dllDepth := -1, -1
	err := fsys.WalkDir(extractDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		anyFile = true
		dir := filepath.Dir(path)
		depth := depthBelow(extractDir, dir)
		switch {
		case strings.EqualFold(d.Name(), manifestFile) && (manifestDepth < 0 || depth < manifestDepth):
			manifestDir, manifestDepth = dir, depth
		case isDLL(d.Name()) && (dllDepth < 0 || depth < dllDepth):
			dllDir, dllDepth = dir, depth
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("scan payload: %w", err)
	}
	if !anyFile {
		return "", false, ErrNoPayload
	}

	if manifestDir != "" {
		entries, err := fsys.ReadDir(manifestDir)
		if err != nil {
			return "", false, err
		}
		for _, e := range entries {
			if e.IsDir() && strings.EqualFold(e.Name(), packWrapper) {
				return filepath.Join(manifestDir, e.Name()), true, nil
			}
		}
		return manifestDir, true, nil
	}
	if dllDir != "" {
		return dllDir, false, nil
	}
	return extractDir, false, nil
}

// layoutBase is the directory whose top level is classified. A layout folder
// (BepInEx, plugins, config, patchers) anywhere between root and extractDir
// pulls the base up to that folder's parent so host-relative trees merge
// intact.
func layoutBase(root, extractDir string, hasManifest bool) string {
	top := ""
	for d := root; d != extractDir && strings.HasPrefix(d, extractDir); d = filepath.Dir(d) {
		if isLayoutMarker(filepath.Base(d)) {
			top = d
		}
	}
	switch {
	case top != "":
		return filepath.Dir(top)
	case hasManifest:
		return root
	default:
		return extractDir
	}
}

func classify(fsys ports.FileSystem, base string, paths ports.HostPaths, strategy TargetStrategy) (Layout, error) {
	entries, err := fsys.ReadDir(base)
	if err != nil {
		return Layout{}, fmt.Errorf("read payload root: %w", err)
	}

	var (
		dirs, files         []string
		patchers            string
		hasGame, hasRuntime bool
	)
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			if !isIgnored(name) {
				files = append(files, name)
			}
			continue
		}
		switch strings.ToLower(name) {
		case "bepinex":
			hasGame = true
		case "plugins", "config":
			hasRuntime = true
		case "patchers":
			patchers = filepath.Join(base, name)
			continue
		}
		dirs = append(dirs, name)
	}

	l := Layout{SourceDir: base, Patchers: patchers}
	switch {
	case hasGame:
		l.Kind, l.TargetDir = KindGameRoot, paths.GameRoot
	case hasRuntime:
		l.Kind, l.TargetDir = KindRuntimeRoot, paths.RuntimeRoot
	case len(dirs) == 0 && len(files) > 0:
		l.Kind, l.TargetDir = KindFlat, paths.PluginRoot
	case len(dirs) == 1 && len(files) == 0:
		l.Kind = KindContainer
		l.SourceDir = filepath.Join(base, dirs[0])
		l.TargetDir = filepath.Join(paths.PluginRoot, dirs[0])
	case len(dirs) == 0 && patchers != "":
		l.Kind, l.SourceDir, l.TargetDir, l.Patchers = KindPatchers, patchers, paths.PatcherRoot, ""
	case len(dirs) == 0:
		return Layout{}, ErrNoPayload
	default:
		l.Kind, l.TargetDir = KindDefault, strategy(paths)
	}
	return l, nil
}

func depthBelow(base, dir string) int {
	rel, err := filepath.Rel(base, dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
