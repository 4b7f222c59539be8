package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// maxEntrySize caps a single extracted file.
const maxEntrySize = 512 << 20

// Extract unpacks the archive at archivePath into dest. The format is
// detected from the file name and header, so zip, 7z, rar and the tar
// family are all accepted. Symlinks are skipped and entries that would
// land outside dest fail the extraction.
func Extract(ctx context.Context, archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	format, stream, err := archives.Identify(ctx, filepath.Base(archivePath), f)
	if err != nil {
		if errors.Is(err, archives.NoMatch) {
			return fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
		}
		return fmt.Errorf("identify archive: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	return extractor.Extract(ctx, stream, func(ctx context.Context, info archives.FileInfo) error {
		target, err := safeJoin(dest, info.NameInArchive)
		if err != nil {
			return err
		}
		if target == dest {
			return nil
		}
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if info.LinkTarget != "" || !info.Mode().IsRegular() {
			return nil
		}
		return writeEntry(info, target)
	})
}

func writeEntry(info archives.FileInfo, target string) error {
	rc, err := info.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", info.NameInArchive, err)
	}
	defer func() { _ = rc.Close() }()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", info.NameInArchive, err)
	}
	if n > maxEntrySize {
		_ = out.Close()
		return fmt.Errorf("extract %s: entry exceeds %d bytes", info.NameInArchive, maxEntrySize)
	}
	return out.Close()
}

// safeJoin resolves an archive entry name below dest. Archives built on
// Windows may use backslash separators.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || filepath.VolumeName(name) != "" {
		return "", &PathTraversalError{Entry: name}
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &PathTraversalError{Entry: name}
	}
	return filepath.Join(dest, clean), nil
}
