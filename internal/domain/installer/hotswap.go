package installer

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"time"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

const (
	backupTag        = ".bak-"
	backupTimeFormat = "20060102T150405"
)

var backupPattern = regexp.MustCompile(`\.bak-\d{8}T\d{6}(-\d+)?$`)

// IsBackup reports whether name is a rename-aside artifact.
func IsBackup(name string) bool {
	return backupPattern.MatchString(name)
}

func backupName(fsys ports.FileSystem, path string, now time.Time) string {
	base := path + backupTag + now.Format(backupTimeFormat)
	name := base
	for i := 1; fsys.Exists(name); i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	return name
}

// moveAside renames path to a timestamped sibling. Renames succeed on
// Windows even while the host holds the file open.
func moveAside(fsys ports.FileSystem, path string, now time.Time) (string, error) {
	backup := backupName(fsys, path, now)
	if err := fsys.Rename(path, backup); err != nil {
		return "", fmt.Errorf("move aside %s: %w", path, err)
	}
	return backup, nil
}

// swapIn copies src to dest. An existing dest is moved aside first and never
// overwritten in place; the backup path is returned.
func swapIn(fsys ports.FileSystem, src, dest string, now time.Time) (string, error) {
	var backup string
	if fsys.Exists(dest) {
		b, err := moveAside(fsys, dest, now)
		if err != nil {
			return "", err
		}
		backup = b
	}
	if err := fsys.CopyFile(src, dest); err != nil {
		return backup, fmt.Errorf("copy %s: %w", filepath.Base(dest), err)
	}
	return backup, nil
}

// discard moves path aside and then tries to delete the backup. When the
// delete fails the backup stays for SweepBackups and is returned as leftover.
func discard(fsys ports.FileSystem, path string, now time.Time) (leftover string, err error) {
	backup, err := moveAside(fsys, path, now)
	if err != nil {
		if rmErr := fsys.RemoveAll(path); rmErr != nil {
			return "", err
		}
		return "", nil
	}
	if err := fsys.RemoveAll(backup); err != nil {
		return backup, nil
	}
	return "", nil
}

// SweepBackups deletes rename-aside artifacts below each root and returns how
// many were removed. Artifacts that are still locked are left for the next
// sweep.
func SweepBackups(fsys ports.FileSystem, roots ...string) (int, error) {
	removed := 0
	var errs []error
	for _, root := range roots {
		if root == "" || !fsys.IsDir(root) {
			continue
		}
		var found []string
		walkErr := fsys.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if path != root && IsBackup(d.Name()) {
				found = append(found, path)
				if d.IsDir() {
					return filepath.SkipDir
				}
			}
			return nil
		})
		if walkErr != nil {
			errs = append(errs, walkErr)
		}
		n, err := removeBackups(fsys, found)
		removed += n
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}

// SweepTopLevelBackups is SweepBackups for the entries directly inside each
// dir. Subdirectories are not entered.
func SweepTopLevelBackups(fsys ports.FileSystem, dirs ...string) (int, error) {
	removed := 0
	var errs []error
	for _, dir := range dirs {
		if dir == "" || !fsys.IsDir(dir) {
			continue
		}
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var found []string
		for _, e := range entries {
			if IsBackup(e.Name()) {
				found = append(found, filepath.Join(dir, e.Name()))
			}
		}
		n, err := removeBackups(fsys, found)
		removed += n
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}

func removeBackups(fsys ports.FileSystem, paths []string) (int, error) {
	removed := 0
	var errs []error
	for _, path := range paths {
		if err := fsys.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
