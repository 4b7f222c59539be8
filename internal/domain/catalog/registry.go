package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// Fetcher performs a GET with retries. *network.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string, maxRetries int) ([]byte, error)
}

// Source produces packages for one catalog pass.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Package, error)
}

// registryEntry holds the fields read from one element of the bulk
// listing. Versions stay raw so only the first one is decoded.
type registryEntry struct {
	Name        string            `json:"name"`
	FullName    string            `json:"full_name"`
	Owner       string            `json:"owner"`
	PackageURL  string            `json:"package_url"`
	DateUpdated string            `json:"date_updated"`
	Categories  []string          `json:"categories"`
	Versions    []json.RawMessage `json:"versions"`
}

type registryVersion struct {
	VersionNumber string   `json:"version_number"`
	DownloadURL   string   `json:"download_url"`
	Description   string   `json:"description"`
	WebsiteURL    string   `json:"website_url"`
	FileSize      int64    `json:"file_size"`
	Dependencies  []string `json:"dependencies"`
}

// RegistrySource reads the bulk package listing of the registry.
type RegistrySource struct {
	baseURL    string
	fetcher    Fetcher
	maxRetries int
	logger     ports.Logger
}

// NewRegistrySource creates the registry pass for baseURL.
func NewRegistrySource(baseURL string, fetcher Fetcher, maxRetries int, logger ports.Logger) *RegistrySource {
	return &RegistrySource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		fetcher:    fetcher,
		maxRetries: maxRetries,
		logger:     ports.OrNop(logger),
	}
}

// Name identifies the pass in logs.
func (s *RegistrySource) Name() string { return "registry" }

// Fetch downloads and decodes the listing. Packages are sorted by name,
// ignoring case.
func (s *RegistrySource) Fetch(ctx context.Context) ([]Package, error) {
	body, err := s.fetcher.Get(ctx, s.baseURL+"/package/", map[string]string{"Accept": "application/json"}, s.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("registry listing: %w", err)
	}

	packages, err := decodeRegistry(body)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	sort.SliceStable(packages, func(i, j int) bool {
		a, b := fold.String(packages[i].Name), fold.String(packages[j].Name)
		if a != b {
			return a < b
		}
		return packages[i].FullName < packages[j].FullName
	})

	s.logger.Debug(ctx, "registry pass complete", ports.F("packages", len(packages)))
	return packages, nil
}

// decodeRegistry scans the top-level array one element at a time.
func decodeRegistry(body []byte) ([]Package, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: registry listing: %v", ErrMalformedPayload, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: registry listing is not an array", ErrMalformedPayload)
	}

	var packages []Package
	for dec.More() {
		var entry registryEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: registry entry %d: %v", ErrMalformedPayload, len(packages), err)
		}
		if pkg, ok := entry.toPackage(); ok {
			packages = append(packages, pkg)
		}
	}
	return packages, nil
}

func (e registryEntry) toPackage() (Package, bool) {
	if e.Name == "" || len(e.Versions) == 0 {
		return Package{}, false
	}

	var latest registryVersion
	if err := json.Unmarshal(e.Versions[0], &latest); err != nil {
		return Package{}, false
	}

	fullName := e.FullName
	if fullName == "" && e.Owner != "" {
		fullName = e.Owner + "-" + e.Name
	}
	if fullName == "" {
		return Package{}, false
	}

	website := latest.WebsiteURL
	if website == "" {
		website = e.PackageURL
	}
	deps := latest.Dependencies
	if deps == nil {
		deps = []string{}
	}

	return Package{
		Name:        e.Name,
		FullName:    fullName,
		Description: latest.Description,
		WebsiteURL:  website,
		DateUpdated: e.DateUpdated,
		Categories:  e.Categories,
		LatestVersion: LatestVersion{
			VersionNumber: latest.VersionNumber,
			DownloadURL:   latest.DownloadURL,
			FileSizeBytes: latest.FileSize,
			Dependencies:  deps,
		},
	}, true
}
