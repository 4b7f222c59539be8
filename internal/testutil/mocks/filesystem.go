// Package mocks provides test doubles for testing.
package mocks

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// ErrLocked is returned for operations on paths marked as locked.
var ErrLocked = errors.New("file is locked by another process")

// FileSystem is a thread-safe ports.FileSystem wrapper that injects
// failures. Locked paths refuse Remove and RemoveAll; paths marked
// non-renamable refuse Rename. Everything else is delegated.
type FileSystem struct {
	ports.FileSystem

	mu       sync.RWMutex
	locked   map[string]bool
	noRename map[string]bool
	calls    []string
}

// NewFileSystem wraps inner.
func NewFileSystem(inner ports.FileSystem) *FileSystem {
	return &FileSystem{
		FileSystem: inner,
		locked:     make(map[string]bool),
		noRename:   make(map[string]bool),
	}
}

// Lock makes Remove and RemoveAll fail for path.
func (m *FileSystem) Lock(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked[path] = true
}

// DenyRename makes Rename fail when path is the source.
func (m *FileSystem) DenyRename(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noRename[path] = true
}

// Calls returns the recorded mutating calls as "op path" strings.
func (m *FileSystem) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls...)
}

func (m *FileSystem) record(op, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op+" "+path)
}

func (m *FileSystem) isLocked(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locked[path]
}

// Remove fails for locked paths.
func (m *FileSystem) Remove(path string) error {
	m.record("remove", path)
	if m.isLocked(path) {
		return &fs.PathError{Op: "remove", Path: path, Err: ErrLocked}
	}
	return m.FileSystem.Remove(path)
}

// RemoveAll fails for locked paths.
func (m *FileSystem) RemoveAll(path string) error {
	m.record("removeall", path)
	if m.isLocked(path) {
		return &fs.PathError{Op: "removeall", Path: path, Err: ErrLocked}
	}
	return m.FileSystem.RemoveAll(path)
}

// Rename fails for non-renamable sources. A rename carries a lock over to the
// new path.
func (m *FileSystem) Rename(oldPath, newPath string) error {
	m.record("rename", oldPath)
	m.mu.Lock()
	denied := m.noRename[oldPath]
	m.mu.Unlock()
	if denied {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: ErrLocked}
	}
	if err := m.FileSystem.Rename(oldPath, newPath); err != nil {
		return err
	}
	m.mu.Lock()
	if m.locked[oldPath] {
		m.locked[newPath] = true
		delete(m.locked, oldPath)
	}
	m.mu.Unlock()
	return nil
}

var _ ports.FileSystem = (*FileSystem)(nil)
