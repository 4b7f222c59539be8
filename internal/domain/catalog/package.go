// Package catalog builds, caches and searches the remote plugin catalog.
//
// The catalog merges two sources: a bulk package registry and a list of
// curated source repositories whose releases (or file trees) are turned
// into synthetic packages.
package catalog

import (
	"regexp"
	"strings"
)

// LatestVersion is the newest published version of a package.
type LatestVersion struct {
	VersionNumber string   `json:"versionNumber"`
	DownloadURL   string   `json:"downloadUrl"`
	FileSizeBytes int64    `json:"fileSizeBytes"`
	Dependencies  []string `json:"dependencies"`
}

// Package is one remote catalog entry. FullName ("Author-Name") is unique
// within one build.
type Package struct {
	Name            string        `json:"name"`
	FullName        string        `json:"fullName"`
	Description     string        `json:"description"`
	WebsiteURL      string        `json:"websiteUrl"`
	DateUpdated     string        `json:"dateUpdated"`
	Categories      []string      `json:"categories"`
	LatestVersion   LatestVersion `json:"latestVersion"`
	SecondaryAuthor string        `json:"secondaryAuthor,omitempty"`
}

// Namespace returns the author part of FullName.
func (p Package) Namespace() string {
	if p.Name != "" && strings.HasSuffix(p.FullName, "-"+p.Name) {
		return strings.TrimSuffix(p.FullName, "-"+p.Name)
	}
	if i := strings.Index(p.FullName, "-"); i > 0 {
		return p.FullName[:i]
	}
	return ""
}

// Catalog is an indexed package list.
type Catalog struct {
	packages []Package
	byName   map[string]int
}

// New indexes packages by lower-cased FullName.
func New(packages []Package) *Catalog {
	c := &Catalog{packages: packages, byName: make(map[string]int, len(packages))}
	for i, p := range packages {
		c.byName[strings.ToLower(p.FullName)] = i
	}
	return c
}

// Packages returns the packages in build order.
func (c *Catalog) Packages() []Package {
	return c.packages
}

// Len returns the number of packages.
func (c *Catalog) Len() int {
	return len(c.packages)
}

// Find looks a package up by FullName, ignoring case.
func (c *Catalog) Find(fullName string) (Package, bool) {
	i, ok := c.byName[strings.ToLower(fullName)]
	if !ok {
		return Package{}, false
	}
	return c.packages[i], true
}

// PatchVersion replaces the latest version number of a package with a
// freshly observed one. It reports whether the package was found.
func (c *Catalog) PatchVersion(fullName, versionNumber string) bool {
	i, ok := c.byName[strings.ToLower(fullName)]
	if !ok || versionNumber == "" {
		return false
	}
	c.packages[i].LatestVersion.VersionNumber = versionNumber
	return true
}

var dependencyVersion = regexp.MustCompile(`-\d+(\.\d+)*$`)

// DependencyFullName strips the trailing "-1.2.3" from a registry
// dependency string ("Author-Name-1.2.3").
func DependencyFullName(dep string) string {
	return dependencyVersion.ReplaceAllString(strings.TrimSpace(dep), "")
}
