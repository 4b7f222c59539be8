package catalog

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

type fullNames []Package

func (f fullNames) String(i int) string { return f[i].FullName }
func (f fullNames) Len() int            { return len(f) }

// Search ranks packages by fuzzy match of query against FullName. An empty
// query returns the first limit packages unchanged. limit <= 0 means all.
func Search(packages []Package, query string, limit int) []Package {
	query = strings.TrimSpace(query)
	if query == "" {
		return head(packages, limit)
	}

	matches := fuzzy.FindFrom(query, fullNames(packages))
	out := make([]Package, 0, len(matches))
	for _, m := range matches {
		out = append(out, packages[m.Index])
	}
	return head(out, limit)
}

func head(packages []Package, limit int) []Package {
	if limit > 0 && len(packages) > limit {
		return packages[:limit]
	}
	return packages
}

// ReadToken returns the trimmed contents of the token file, or "" when the
// file is absent or unreadable.
func ReadToken(fs ports.FileSystem, path string) string {
	if path == "" || !fs.Exists(path) {
		return ""
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
