package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertFileExists asserts that a regular file exists at path.
func AssertFileExists(t testing.TB, path string) {
	t.Helper()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		assert.Fail(t, "file does not exist", "expected file to exist: %s", path)
		return
	}
	require.NoError(t, err)
	assert.False(t, info.IsDir(), "expected file but got directory: %s", path)
}

// AssertFileNotExists asserts that nothing exists at path.
func AssertFileNotExists(t testing.TB, path string) {
	t.Helper()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected file to not exist: %s", path)
}

// AssertDirExists asserts that a directory exists at path.
func AssertDirExists(t testing.TB, path string) {
	t.Helper()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		assert.Fail(t, "directory does not exist", "expected directory to exist: %s", path)
		return
	}
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "expected directory but got file: %s", path)
}

// AssertFileEquals asserts that a file contains exactly expected.
func AssertFileEquals(t testing.TB, path, expected string) {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	assert.Equal(t, expected, string(content), path)
}

// BackupsOf returns the rename-aside artifacts of path, i.e. its siblings
// named <base>.bak-<timestamp>.
func BackupsOf(t testing.TB, path string) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)

	prefix := filepath.Base(path) + ".bak-"
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			out = append(out, filepath.Join(filepath.Dir(path), e.Name()))
		}
	}
	return out
}
