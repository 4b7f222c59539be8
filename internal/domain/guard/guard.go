// Package guard stops update loops across restarts.
//
// Before the host restarts to load a freshly installed plugin the engine
// records what version it expects. On the next start Verify checks the
// loaded plugins: an expected version that did not land is added to the
// ignored set so the update is not offered again. An ignored version that
// later shows up installed is removed from the set again.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/modkeeper/internal/domain/version"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// Record is an (id, version) pair.
type Record struct {
	ID      string
	Version string
}

func (r Record) String() string {
	return r.ID + "|" + r.Version
}

func parseRecord(s string) (Record, bool) {
	id, ver, ok := strings.Cut(s, "|")
	if !ok || id == "" {
		return Record{}, false
	}
	return Record{ID: id, Version: ver}, true
}

// state is the persisted form.
type state struct {
	PendingInstalls   []string `json:"pendingInstalls"`
	IgnoredVersions   []string `json:"ignoredVersions"`
	PendingUninstalls []string `json:"pendingUninstalls"`
}

// Report summarizes one Verify pass.
type Report struct {
	// Confirmed pending installs whose version landed.
	Confirmed []Record
	// Failed pending installs, now ignored.
	Failed []Record
	// Healed ignored entries whose version is now installed.
	Healed []Record
}

// Guard holds the pending and ignored sets and persists every change.
type Guard struct {
	mu     sync.Mutex
	path   string
	fs     ports.FileSystem
	logger ports.Logger

	pending     []Record
	ignored     []Record
	uninstalled []Record
}

// Open loads the guard state from path. A missing file yields empty sets;
// an unreadable one is logged and replaced on the next write.
func Open(ctx context.Context, path string, fsys ports.FileSystem, logger ports.Logger) (*Guard, error) {
	g := &Guard{path: path, fs: fsys, logger: ports.OrNop(logger)}
	if !fsys.Exists(path) {
		return g, nil
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guard state: %w", err)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		g.logger.Warn(ctx, "guard state unreadable, starting empty", ports.F("path", path), ports.Err(err))
		return g, nil
	}
	g.pending = parseAll(st.PendingInstalls)
	g.ignored = parseAll(st.IgnoredVersions)
	g.uninstalled = parseAll(st.PendingUninstalls)
	return g, nil
}

func parseAll(keys []string) []Record {
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		if r, ok := parseRecord(k); ok {
			out = append(out, r)
		}
	}
	return out
}

func keys(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.String())
	}
	sort.Strings(out)
	return out
}

// save persists the state. Callers hold g.mu.
func (g *Guard) save() error {
	data, err := json.MarshalIndent(state{
		PendingInstalls:   keys(g.pending),
		IgnoredVersions:   keys(g.ignored),
		PendingUninstalls: keys(g.uninstalled),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := g.fs.WriteFile(g.path, data, 0o644); err != nil {
		return fmt.Errorf("write guard state: %w", err)
	}
	return nil
}

func addRecord(set []Record, r Record) []Record {
	for _, existing := range set {
		if strings.EqualFold(existing.ID, r.ID) && version.Equal(existing.Version, r.Version) {
			return set
		}
	}
	return append(set, r)
}

// RecordInstall registers an install whose version must be loaded after the
// next restart.
func (g *Guard) RecordInstall(id, ver string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.pending[:0]
	for _, r := range g.pending {
		if !strings.EqualFold(r.ID, id) {
			kept = append(kept, r)
		}
	}
	g.pending = append(kept, Record{ID: id, Version: ver})
	return g.save()
}

// RecordUninstall registers an uninstall that completes on restart.
func (g *Guard) RecordUninstall(id, ver string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.uninstalled = addRecord(g.uninstalled, Record{ID: id, Version: ver})
	return g.save()
}

// RestartRequired reports whether installs or uninstalls are waiting for a
// host restart.
func (g *Guard) RestartRequired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending) > 0 || len(g.uninstalled) > 0
}

// Pending returns the pending installs.
func (g *Guard) Pending() []Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Record(nil), g.pending...)
}

// PendingUninstalls returns the uninstalls waiting for a restart.
func (g *Guard) PendingUninstalls() []Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Record(nil), g.uninstalled...)
}

// Ignored returns the ignored versions.
func (g *Guard) Ignored() []Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Record(nil), g.ignored...)
}

// IsIgnored reports whether version ver of id is suppressed.
func (g *Guard) IsIgnored(id, ver string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range g.ignored {
		if strings.EqualFold(r.ID, id) && version.Equal(r.Version, ver) {
			return true
		}
	}
	return false
}

// ClearIgnored drops ignored entries for id, or all of them when id is
// empty, and returns how many were removed.
func (g *Guard) ClearIgnored(id string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.ignored[:0]
	for _, r := range g.ignored {
		if id != "" && !strings.EqualFold(r.ID, id) {
			kept = append(kept, r)
		}
	}
	removed := len(g.ignored) - len(kept)
	g.ignored = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, g.save()
}

// ClearPendingUninstalls forgets uninstalls once the host has restarted.
func (g *Guard) ClearPendingUninstalls() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.uninstalled) == 0 {
		return nil
	}
	g.uninstalled = nil
	return g.save()
}

// Verify checks every pending install against the loaded plugins, then
// re-validates the ignored set. Pending installs are always cleared.
func (g *Guard) Verify(ctx context.Context, loaded []ports.LocalPlugin) (*Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	report := &Report{}
	for _, rec := range g.pending {
		lp := FindLoaded(rec.ID, loaded)
		switch {
		case lp == nil:
			g.logger.Warn(ctx, "installed plugin did not load, ignoring version",
				ports.F("id", rec.ID), ports.F("expected", rec.Version))
		case !version.Equal(lp.InstalledVersion, rec.Version):
			g.logger.Warn(ctx, "installed version did not apply, ignoring version",
				ports.F("id", rec.ID), ports.F("expected", rec.Version), ports.F("loaded", lp.InstalledVersion))
		default:
			report.Confirmed = append(report.Confirmed, rec)
			continue
		}
		g.ignored = addRecord(g.ignored, rec)
		report.Failed = append(report.Failed, rec)
	}
	changed := len(g.pending) > 0
	g.pending = nil

	kept := g.ignored[:0]
	for _, rec := range g.ignored {
		if lp := FindLoaded(rec.ID, loaded); lp != nil && version.Equal(lp.InstalledVersion, rec.Version) {
			g.logger.Info(ctx, "ignored version is now installed, clearing",
				ports.F("id", rec.ID), ports.F("version", rec.Version))
			report.Healed = append(report.Healed, rec)
			continue
		}
		kept = append(kept, rec)
	}
	g.ignored = kept

	if !changed && len(report.Healed) == 0 {
		return report, nil
	}
	return report, g.save()
}
