package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/felixgeelhaar/modkeeper/internal/domain/network"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// CuratedEntry is one operator-maintained repository reference.
type CuratedEntry struct {
	Repo        string `json:"repo"`
	Description string `json:"description"`
}

// CuratedConfig locates the curated list and the source host.
type CuratedConfig struct {
	// ListURL serves a JSON array (or single object) of CuratedEntry.
	ListURL string
	// APIBaseURL is the source-host REST root.
	APIBaseURL string
	// RawBaseURL serves raw file contents at {repo}/{sha}/{path}.
	RawBaseURL string
	// Token, when set, is sent as a bearer token.
	Token      string
	MaxRetries int
}

// DefaultCuratedConfig returns the public source-host endpoints.
func DefaultCuratedConfig() CuratedConfig {
	return CuratedConfig{
		APIBaseURL: "https://api.github.com",
		RawBaseURL: "https://raw.githubusercontent.com",
		MaxRetries: 2,
	}
}

// CuratedCategory tags every package produced by the curated pass.
const CuratedCategory = "Curated"

// fallbackVersion is used for packages synthesized from a file tree,
// which carry no release tag.
const fallbackVersion = "0.0.0"

var (
	bodyZipLink   = regexp.MustCompile(`https?://[^\s"'<>()\[\]]+?\.zip\b`)
	versionSuffix = regexp.MustCompile(`(?i)[-_ ]v?\d+(\.\d+)*$`)
)

// CuratedSource turns curated repositories into packages.
type CuratedSource struct {
	config  CuratedConfig
	fetcher Fetcher
	logger  ports.Logger
}

// NewCuratedSource creates the curated pass.
func NewCuratedSource(config CuratedConfig, fetcher Fetcher, logger ports.Logger) *CuratedSource {
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")
	config.RawBaseURL = strings.TrimRight(config.RawBaseURL, "/")
	return &CuratedSource{config: config, fetcher: fetcher, logger: ports.OrNop(logger)}
}

// Name identifies the pass in logs.
func (s *CuratedSource) Name() string { return "curated" }

// Fetch processes every listed repository concurrently. Packages are
// returned in completion order. A rate-limit response from any repository
// aborts the whole pass with an error matching network.ErrRateLimited.
func (s *CuratedSource) Fetch(ctx context.Context) ([]Package, error) {
	if s.config.ListURL == "" {
		return nil, nil
	}

	body, err := s.fetcher.Get(ctx, s.config.ListURL, nil, s.config.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("curated list: %w", err)
	}
	entries, err := parseCuratedList(body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		packages    []Package
		rateLimited error
	)
	for _, entry := range entries {
		wg.Add(1)
		go func(entry CuratedEntry) {
			defer wg.Done()

			found, err := s.fetchRepo(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				packages = append(packages, found...)
			case network.IsRateLimited(err):
				if rateLimited == nil {
					rateLimited = fmt.Errorf("curated repo %s: %w", entry.Repo, err)
					cancel()
				}
			case rateLimited == nil:
				s.logger.Warn(ctx, "skipping curated repository", ports.F("repo", entry.Repo), ports.Err(err))
			}
		}(entry)
	}
	wg.Wait()

	if rateLimited != nil {
		return nil, rateLimited
	}
	s.logger.Debug(ctx, "curated pass complete", ports.F("repos", len(entries)), ports.F("packages", len(packages)))
	return packages, nil
}

func parseCuratedList(body []byte) ([]CuratedEntry, error) {
	trimmed := bytes.TrimSpace(body)
	var entries []CuratedEntry
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("%w: curated list: %v", ErrMalformedPayload, err)
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var single CuratedEntry
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("%w: curated list: %v", ErrMalformedPayload, err)
		}
		entries = []CuratedEntry{single}
	default:
		return nil, fmt.Errorf("%w: curated list is neither array nor object", ErrMalformedPayload)
	}

	valid := entries[:0]
	for _, e := range entries {
		e.Repo = strings.Trim(strings.TrimSpace(e.Repo), "/")
		if strings.Count(e.Repo, "/") == 1 {
			valid = append(valid, e)
		}
	}
	return valid, nil
}

// fetchRepo derives the packages of one repository: release assets first,
// release-body links second, and the HEAD file tree as a last resort.
func (s *CuratedSource) fetchRepo(ctx context.Context, entry CuratedEntry) ([]Package, error) {
	owner := entry.Repo[:strings.Index(entry.Repo, "/")]
	base := repoPackage{
		owner:       owner,
		description: entry.Description,
		website:     "https://github.com/" + entry.Repo,
	}

	var repo github.Repository
	if err := s.getJSON(ctx, s.apiURL(entry.Repo, ""), &repo); err != nil {
		if network.IsRateLimited(err) {
			return nil, err
		}
		s.logger.Debug(ctx, "repository metadata unavailable", ports.F("repo", entry.Repo), ports.Err(err))
	} else if repo.GetFork() {
		base.secondaryAuthor = repo.GetParent().GetOwner().GetLogin()
	}

	var releases []*github.RepositoryRelease
	if err := s.getJSON(ctx, s.apiURL(entry.Repo, "/releases"), &releases); err != nil {
		if network.IsRateLimited(err) {
			return nil, err
		}
		s.logger.Debug(ctx, "releases unavailable", ports.F("repo", entry.Repo), ports.Err(err))
	}

	if release := pickRelease(releases); release != nil {
		if found := base.fromRelease(release); len(found) > 0 {
			return found, nil
		}
	}
	return s.fromTree(ctx, entry.Repo, base)
}

func (s *CuratedSource) fromTree(ctx context.Context, repo string, base repoPackage) ([]Package, error) {
	var commit github.RepositoryCommit
	if err := s.getJSON(ctx, s.apiURL(repo, "/commits/HEAD"), &commit); err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	sha := commit.GetSHA()
	if sha == "" {
		return nil, fmt.Errorf("%w: HEAD commit without sha", ErrMalformedPayload)
	}

	var tree github.Tree
	if err := s.getJSON(ctx, s.apiURL(repo, "/git/trees/"+sha), &tree); err != nil {
		return nil, fmt.Errorf("fetch tree: %w", err)
	}

	short := sha
	if len(short) > 7 {
		short = short[:7]
	}

	// Only top-level blobs are release payloads.
	var found []Package
	for _, e := range tree.Entries {
		p := e.GetPath()
		if e.GetType() != "blob" || strings.Contains(p, "/") || !isPayloadName(p) || isSourceArchive(p) {
			continue
		}
		found = base.add(found, path.Base(p), fallbackVersion+"+"+short,
			fmt.Sprintf("%s/%s/%s/%s", s.config.RawBaseURL, repo, sha, p), int64(e.GetSize()), "")
	}
	return found, nil
}

func (s *CuratedSource) apiURL(repo, suffix string) string {
	return s.config.APIBaseURL + "/repos/" + repo + suffix
}

func (s *CuratedSource) getJSON(ctx context.Context, url string, into interface{}) error {
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if s.config.Token != "" {
		headers["Authorization"] = "Bearer " + s.config.Token
	}

	body, err := s.fetcher.Get(ctx, url, headers, s.config.MaxRetries)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, url, err)
	}
	return nil
}

// pickRelease returns the first published, tagged release.
func pickRelease(releases []*github.RepositoryRelease) *github.RepositoryRelease {
	for _, r := range releases {
		tag := strings.ToLower(r.GetTagName())
		if r.GetDraft() || tag == "" || strings.HasPrefix(tag, "untagged") {
			continue
		}
		return r
	}
	return nil
}

// repoPackage carries the per-repository fields shared by its packages.
type repoPackage struct {
	owner           string
	description     string
	website         string
	secondaryAuthor string
}

func (b repoPackage) fromRelease(r *github.RepositoryRelease) []Package {
	published := ""
	if ts := r.GetPublishedAt(); !ts.IsZero() {
		published = ts.UTC().Format(time.RFC3339)
	}

	var found []Package
	if len(r.Assets) > 0 {
		for _, a := range r.Assets {
			if !isPayloadName(a.GetName()) || isSourceArchive(a.GetName()) {
				continue
			}
			found = b.add(found, a.GetName(), r.GetTagName(), a.GetBrowserDownloadURL(), int64(a.GetSize()), published)
		}
		return found
	}

	for _, link := range bodyZipLink.FindAllString(r.GetBody(), -1) {
		found = b.add(found, path.Base(link), r.GetTagName(), link, 0, published)
	}
	return found
}

// add appends a package derived from fileName unless one with the same
// full name is already present.
func (b repoPackage) add(found []Package, fileName, versionNumber, url string, size int64, updated string) []Package {
	name := DeriveName(fileName)
	if name == "" {
		return found
	}
	fullName := b.owner + "-" + name
	for _, p := range found {
		if strings.EqualFold(p.FullName, fullName) {
			return found
		}
	}
	return append(found, Package{
		Name:        name,
		FullName:    fullName,
		Description: b.description,
		WebsiteURL:  b.website,
		DateUpdated: updated,
		Categories:  []string{CuratedCategory},
		LatestVersion: LatestVersion{
			VersionNumber: versionNumber,
			DownloadURL:   url,
			FileSizeBytes: size,
			Dependencies:  []string{},
		},
		SecondaryAuthor: b.secondaryAuthor,
	})
}

// DeriveName turns an asset file name into a package name: the extension
// and any trailing version ("-1.2.3", "-v2") are removed and spaces become
// underscores.
func DeriveName(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	if stripped := versionSuffix.ReplaceAllString(name, ""); stripped != "" {
		name = stripped
	}
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

func isPayloadName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".zip") || strings.HasSuffix(lower, ".dll")
}

// isSourceArchive reports names that look like source snapshots.
func isSourceArchive(p string) bool {
	lower := strings.ToLower(p)
	for _, marker := range []string{"source code", "source_code", "source-code", "sourcecode"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	for _, seg := range strings.Split(lower, "/") {
		base := strings.TrimSuffix(strings.TrimSuffix(seg, ".zip"), ".dll")
		if base == "src" || strings.HasPrefix(base, "src-") || strings.HasPrefix(base, "src_") {
			return true
		}
	}
	return false
}
