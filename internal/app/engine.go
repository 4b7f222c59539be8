// Package app wires the catalog, matcher, installer and update guard into
// the operations the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
	"github.com/felixgeelhaar/modkeeper/internal/domain/config"
	"github.com/felixgeelhaar/modkeeper/internal/domain/guard"
	"github.com/felixgeelhaar/modkeeper/internal/domain/installer"
	"github.com/felixgeelhaar/modkeeper/internal/domain/matcher"
	"github.com/felixgeelhaar/modkeeper/internal/domain/network"
	"github.com/felixgeelhaar/modkeeper/internal/domain/version"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

var (
	// ErrPackageNotFound is returned for a fullName missing from the catalog.
	ErrPackageNotFound = errors.New("package not found")
	// ErrPluginNotFound is returned for a local id the host has not loaded.
	ErrPluginNotFound = errors.New("plugin not loaded")
	// ErrNotMatched is returned when a loaded plugin has no catalog match.
	ErrNotMatched = errors.New("plugin has no catalog match")
)

// Config holds the engine's locations and tuning.
type Config struct {
	RegistryURL   string
	Curated       catalog.CuratedConfig
	CacheFile     string
	CacheDuration time.Duration
	ManifestsDir  string
	GuardFile     string
	DownloadsDir  string
	ScratchDir    string
	MaxRetries    int
	StartupDelay  time.Duration
	ProtectedIDs  []string
}

// ConfigFromSettings derives the engine config from loaded settings.
func ConfigFromSettings(s *config.Settings, fsys ports.FileSystem) Config {
	curated := catalog.DefaultCuratedConfig()
	curated.ListURL = s.Curated.URL
	curated.APIBaseURL = s.GitHub.APIURL
	curated.RawBaseURL = s.GitHub.RawURL
	curated.Token = catalog.ReadToken(fsys, s.TokenFile())
	curated.MaxRetries = s.Network.MaxRetries

	return Config{
		RegistryURL:   s.Registry.URL,
		Curated:       curated,
		CacheFile:     s.CacheFile(),
		CacheDuration: s.Cache.Duration,
		ManifestsDir:  s.ManifestsDir(),
		GuardFile:     s.GuardFile(),
		DownloadsDir:  s.DownloadsDir(),
		ScratchDir:    s.ScratchDir(),
		MaxRetries:    s.Network.MaxRetries,
		StartupDelay:  s.Startup.Delay,
		ProtectedIDs:  s.ProtectedIDs(),
	}
}

// Engine is the application context. One engine serves one host; its
// operations are not meant to run concurrently with each other.
type Engine struct {
	config    Config
	fs        ports.FileSystem
	host      ports.Host
	client    *network.Client
	builder   *catalog.Builder
	matcher   *matcher.Matcher
	installer *installer.Installer
	guard     *guard.Guard
	logger    ports.Logger

	mu      sync.Mutex
	catalog *catalog.Catalog
}

// New creates an engine and loads the guard state.
func New(ctx context.Context, cfg Config, fsys ports.FileSystem, host ports.Host, client *network.Client, logger ports.Logger) (*Engine, error) {
	logger = ports.OrNop(logger)

	g, err := guard.Open(ctx, cfg.GuardFile, fsys, logger)
	if err != nil {
		return nil, err
	}

	cache := catalog.NewCache(cfg.CacheFile, fsys)
	builder := catalog.NewBuilder(catalog.BuilderConfig{CacheDuration: cfg.CacheDuration}, cache, logger,
		catalog.NewRegistrySource(cfg.RegistryURL, client, cfg.MaxRetries, logger),
		catalog.NewCuratedSource(cfg.Curated, client, logger),
	)
	store := installer.NewManifestStore(cfg.ManifestsDir, fsys)
	in := installer.New(fsys, host, store, installer.Config{
		ScratchDir:   cfg.ScratchDir,
		ProtectedIDs: cfg.ProtectedIDs,
	}, logger)

	return &Engine{
		config:    cfg,
		fs:        fsys,
		host:      host,
		client:    client,
		builder:   builder,
		matcher:   matcher.New(logger),
		installer: in,
		guard:     g,
		logger:    logger,
	}, nil
}

// Guard returns the update-loop guard.
func (e *Engine) Guard() *guard.Guard {
	return e.guard
}

// Host returns the host adapter.
func (e *Engine) Host() ports.Host {
	return e.host
}

// RefreshCatalog builds the catalog and keeps it for later operations.
func (e *Engine) RefreshCatalog(ctx context.Context, force bool) (*catalog.Result, error) {
	res, err := e.builder.Build(ctx, force)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.catalog = catalog.New(res.Packages)
	e.mu.Unlock()
	return res, nil
}

// Catalog returns the current catalog, building it on first use.
func (e *Engine) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	e.mu.Lock()
	c := e.catalog
	e.mu.Unlock()
	if c != nil {
		return c, nil
	}
	if _, err := e.RefreshCatalog(ctx, false); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog, nil
}

// Search ranks catalog packages by fuzzy match on their full name.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]catalog.Package, error) {
	c, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Search(c.Packages(), query, limit), nil
}

// MatchInstalled pairs every loaded plugin with its catalog package.
func (e *Engine) MatchInstalled(ctx context.Context) ([]matcher.Match, error) {
	loaded, err := e.host.LoadedPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loaded plugins: %w", err)
	}
	c, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return e.matcher.MatchAll(ctx, loaded, c.Packages()), nil
}

// Update is an available newer version of a loaded plugin.
type Update struct {
	Plugin  ports.LocalPlugin
	Package catalog.Package
}

// Latest returns the catalog version.
func (u Update) Latest() string {
	return u.Package.LatestVersion.VersionNumber
}

// Outdated lists matched plugins whose catalog version is newer than the
// installed one. Versions the guard ignores are left out.
func (e *Engine) Outdated(ctx context.Context) ([]Update, error) {
	matches, err := e.MatchInstalled(ctx)
	if err != nil {
		return nil, err
	}

	var out []Update
	for _, m := range matches {
		if !m.Decision.Matched() {
			continue
		}
		pkg := *m.Decision.Package
		latest := pkg.LatestVersion.VersionNumber
		if !version.IsNewer(m.Local.InstalledVersion, latest) {
			continue
		}
		if e.guard.IsIgnored(m.Local.ID, latest) || e.guard.IsIgnored(pkg.FullName, latest) {
			e.logger.Debug(ctx, "skipping ignored update", ports.F("id", m.Local.ID), ports.F("version", latest))
			continue
		}
		out = append(out, Update{Plugin: m.Local, Package: pkg})
	}
	return out, nil
}

// Installed describes one completed install.
type Installed struct {
	Package catalog.Package
	// Version is the version the host is expected to load.
	Version string
	Result  *installer.Result
}

// Install installs fullName after its direct dependencies that are not
// installed yet. Packages install one at a time; the first failure stops
// the run and the installs completed so far are returned with the error.
func (e *Engine) Install(ctx context.Context, fullName string) ([]Installed, error) {
	c, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	pkg, ok := c.Find(fullName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, fullName)
	}

	plan := append(e.missingDependencies(ctx, c, pkg), pkg)
	done := make([]Installed, 0, len(plan))
	for _, p := range plan {
		strategy := installer.FreshInstall(p.FullName)
		if m, err := e.installer.Manifests().Load(p.FullName); err == nil && m.TargetDir != "" {
			strategy = installer.UpdateInPlace(m.TargetDir)
		}
		inst, err := e.installOne(ctx, c, p, p.FullName, strategy)
		if err != nil {
			return done, err
		}
		done = append(done, *inst)
	}
	return done, nil
}

// missingDependencies resolves pkg's direct dependencies. Dependencies on
// the host runtime, unknown packages and installed packages are skipped.
func (e *Engine) missingDependencies(ctx context.Context, c *catalog.Catalog, pkg catalog.Package) []catalog.Package {
	if len(pkg.LatestVersion.Dependencies) == 0 {
		return nil
	}

	installed := e.installedNames(ctx, c)
	seen := map[string]bool{strings.ToLower(pkg.FullName): true}
	var deps []catalog.Package
	for _, raw := range pkg.LatestVersion.Dependencies {
		name := catalog.DependencyFullName(raw)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true

		namespace, _, _ := strings.Cut(name, "-")
		switch {
		case e.installer.IsProtected(name) || e.installer.IsProtected(namespace):
			continue
		case installed[key]:
			e.logger.Debug(ctx, "dependency already installed", ports.F("dependency", name))
			continue
		}
		dep, ok := c.Find(name)
		if !ok {
			e.logger.Warn(ctx, "dependency not in catalog", ports.F("package", pkg.FullName), ports.F("dependency", name))
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}

// installedNames returns the lower-cased full names of packages with an
// install manifest or a matched loaded plugin.
func (e *Engine) installedNames(ctx context.Context, c *catalog.Catalog) map[string]bool {
	out := make(map[string]bool)
	manifests, err := e.installer.Manifests().List()
	if err != nil {
		e.logger.Warn(ctx, "could not list install manifests", ports.Err(err))
	}
	for _, m := range manifests {
		out[strings.ToLower(m.FullName)] = true
	}

	loaded, err := e.host.LoadedPlugins(ctx)
	if err != nil {
		e.logger.Warn(ctx, "could not list loaded plugins", ports.Err(err))
		return out
	}
	for _, m := range e.matcher.MatchAll(ctx, loaded, c.Packages()) {
		if m.Decision.Matched() {
			out[strings.ToLower(m.Decision.Package.FullName)] = true
		}
	}
	return out
}

// installOne downloads and installs pkg and registers the expected version
// with the guard under guardID.
func (e *Engine) installOne(ctx context.Context, c *catalog.Catalog, pkg catalog.Package, guardID string, strategy installer.TargetStrategy) (*Installed, error) {
	url := pkg.LatestVersion.DownloadURL
	if url == "" {
		return nil, fmt.Errorf("install %s: no download url", pkg.FullName)
	}
	path, err := e.client.Download(ctx, url, e.config.DownloadsDir, nil, e.config.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", pkg.FullName, err)
	}

	res, err := e.installer.Install(ctx, installer.Request{
		Path:         path,
		Package:      pkg,
		Strategy:     strategy,
		RemoveSource: true,
	})
	if err != nil {
		return nil, fmt.Errorf("install %s: %w", pkg.FullName, err)
	}

	ver := pkg.LatestVersion.VersionNumber
	if res.DeclaredVersion != "" && !version.Equal(res.DeclaredVersion, ver) {
		e.logger.Info(ctx, "payload declares a different version",
			ports.F("package", pkg.FullName), ports.F("catalog", ver), ports.F("declared", res.DeclaredVersion))
		c.PatchVersion(pkg.FullName, res.DeclaredVersion)
		ver = res.DeclaredVersion
	}
	if err := e.guard.RecordInstall(guardID, ver); err != nil {
		return nil, err
	}
	return &Installed{Package: pkg, Version: ver, Result: res}, nil
}

// Update installs the catalog's latest version of a loaded plugin into the
// plugin's current directory.
func (e *Engine) Update(ctx context.Context, localID string) (*Installed, error) {
	lp, err := e.findLocal(ctx, localID)
	if err != nil {
		return nil, err
	}
	c, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	d := e.matcher.FindBestMatch(ctx, lp.ID, lp.DisplayName, c.Packages())
	if !d.Matched() {
		return nil, fmt.Errorf("%w: %s", ErrNotMatched, lp.ID)
	}

	strategy := installer.FreshInstall(d.Package.FullName)
	if dir := pluginDir(lp); dir != "" {
		strategy = installer.UpdateInPlace(dir)
	}
	return e.installOne(ctx, c, *d.Package, lp.ID, strategy)
}

// Uninstall removes a loaded plugin. The install manifest is found by file
// location first and by catalog match second, so tracked plugins are
// removed precisely even without network access.
func (e *Engine) Uninstall(ctx context.Context, localID string, deleteConfig bool) (*installer.UninstallResult, error) {
	lp, err := e.findLocal(ctx, localID)
	if err != nil {
		return nil, err
	}

	fullName := e.manifestOwning(ctx, lp.FileLocation)
	if fullName == "" {
		if c, err := e.Catalog(ctx); err != nil {
			e.logger.Warn(ctx, "catalog unavailable, uninstalling without package match", ports.Err(err))
		} else if d := e.matcher.FindBestMatch(ctx, lp.ID, lp.DisplayName, c.Packages()); d.Matched() {
			fullName = d.Package.FullName
		}
	}

	res, err := e.installer.Uninstall(ctx, installer.UninstallRequest{
		Plugin:       *lp,
		FullName:     fullName,
		DeleteConfig: deleteConfig,
	})
	if err != nil {
		return res, err
	}
	if err := e.guard.RecordUninstall(lp.ID, lp.InstalledVersion); err != nil {
		return res, err
	}
	return res, nil
}

// manifestOwning returns the full name of the install manifest that lists
// location, or "".
func (e *Engine) manifestOwning(ctx context.Context, location string) string {
	if location == "" {
		return ""
	}
	manifests, err := e.installer.Manifests().List()
	if err != nil {
		e.logger.Warn(ctx, "could not list install manifests", ports.Err(err))
		return ""
	}
	want := filepath.Clean(location)
	for _, m := range manifests {
		for _, f := range m.AbsFiles() {
			if filepath.Clean(f) == want {
				return m.FullName
			}
		}
	}
	return ""
}

// findLocal returns the loaded plugin whose id equals localID, ignoring
// case. Update and uninstall act on exactly the plugin the user named.
func (e *Engine) findLocal(ctx context.Context, localID string) (*ports.LocalPlugin, error) {
	loaded, err := e.host.LoadedPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loaded plugins: %w", err)
	}
	want := strings.TrimSpace(localID)
	if want != "" {
		for i := range loaded {
			if strings.EqualFold(loaded[i].ID, want) {
				lp := loaded[i]
				return &lp, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, localID)
}

func pluginDir(lp *ports.LocalPlugin) string {
	if lp.FileLocation == "" {
		return ""
	}
	if strings.EqualFold(filepath.Ext(lp.FileLocation), ".dll") {
		return filepath.Dir(lp.FileLocation)
	}
	return lp.FileLocation
}

// StartupReport summarizes a startup pass.
type StartupReport struct {
	Guard          *guard.Report
	BackupsRemoved int
}

// StartupCheck runs after the host has started: it waits for the configured
// delay, sweeps leftover rename-aside artifacts, verifies pending installs
// and clears pending uninstalls.
func (e *Engine) StartupCheck(ctx context.Context) (*StartupReport, error) {
	if d := e.config.StartupDelay; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	paths := e.host.Paths()
	removed, err := installer.SweepBackups(e.fs, paths.RuntimeRoot)
	if err != nil {
		e.logger.Warn(ctx, "some backups are still locked", ports.Err(err))
	}
	// Loader files such as winhttp.dll sit directly in the game root.
	top, err := installer.SweepTopLevelBackups(e.fs, paths.GameRoot)
	if err != nil {
		e.logger.Warn(ctx, "some backups are still locked", ports.Err(err))
	}
	removed += top

	e.host.InvalidateCache()
	loaded, err := e.host.LoadedPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("startup check: %w", err)
	}
	report, err := e.guard.Verify(ctx, loaded)
	if err != nil {
		return nil, err
	}
	if err := e.guard.ClearPendingUninstalls(); err != nil {
		return nil, err
	}

	e.logger.Info(ctx, "startup check complete",
		ports.F("confirmed", len(report.Confirmed)),
		ports.F("failed", len(report.Failed)),
		ports.F("healed", len(report.Healed)),
		ports.F("backups_removed", removed))
	return &StartupReport{Guard: report, BackupsRemoved: removed}, nil
}

// RestartRequired reports whether installs or uninstalls wait for a host
// restart.
func (e *Engine) RestartRequired() bool {
	return e.guard.RestartRequired()
}

// Ignored returns the versions the guard suppresses.
func (e *Engine) Ignored() []guard.Record {
	return e.guard.Ignored()
}

// ClearIgnored drops ignored versions for id, or all when id is empty.
func (e *Engine) ClearIgnored(id string) (int, error) {
	return e.guard.ClearIgnored(id)
}
