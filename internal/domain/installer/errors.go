package installer

import (
	"errors"
	"fmt"
)

var (
	// ErrProtected is returned when an operation targets a protected
	// plugin identity.
	ErrProtected = errors.New("protected plugin")
	// ErrNoPayload is returned when an archive contains nothing to install.
	ErrNoPayload = errors.New("archive contains no installable files")
	// ErrManifestNotFound is returned when no install manifest exists for a
	// package.
	ErrManifestNotFound = errors.New("install manifest not found")
	// ErrUnsupportedArchive is returned for payloads that are neither a DLL
	// nor a recognized archive format.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	// ErrNothingToRemove is returned when an uninstall cannot determine any
	// file to delete.
	ErrNothingToRemove = errors.New("no files to remove")
)

// PathTraversalError reports an archive entry that would escape the
// extraction directory.
type PathTraversalError struct {
	Entry string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("archive entry %q escapes extraction directory", e.Entry)
}
