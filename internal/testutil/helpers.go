// Package testutil provides test helpers and fixtures for modkeeper tests.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTempFile writes content to dir/name, creating parent directories.
func WriteTempFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write temp file: %s", name)

	return path
}

// WriteTempDir creates dir/name.
func WriteTempDir(t testing.TB, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(path, 0o755), "failed to create temp subdirectory: %s", name)

	return path
}

// ListFiles returns every regular file below root as sorted slash paths
// relative to root.
func ListFiles(t testing.TB, root string) []string {
	t.Helper()

	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)

	return out
}
