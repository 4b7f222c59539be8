package ports

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo contains file metadata.
type FileInfo struct {
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
}

// FileSystem is the set of filesystem operations the install, uninstall and
// persistence code performs. Tests substitute it to simulate locked files.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	// WriteFile writes data atomically (temp file + rename) and creates
	// missing parent directories.
	WriteFile(path string, data []byte, perm os.FileMode) error
	Exists(path string) bool
	IsDir(path string) bool
	Remove(path string) error
	RemoveAll(path string) error
	MkdirAll(path string, perm os.FileMode) error
	Rename(oldPath, newPath string) error
	CopyFile(src, dest string) error
	ReadDir(path string) ([]os.DirEntry, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
	GetFileInfo(path string) (FileInfo, error)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
