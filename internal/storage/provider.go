// Package storage is the file-system side of a notes repository.
//
// Paths handed to a Provider are relative to the repository root and use
// "/" as separator; the root itself is "".
package storage

import (
	"strings"
	"time"
)

// TempPrefix starts the name of every temporary file Write creates next to
// its target before the rename.
const TempPrefix = ".gitnote-tmp-"

// IsTemp reports whether name is one of Write's temporary files.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}

// Entry describes one child of a directory.
type Entry struct {
	Name    string
	Dir     bool
	Symlink bool
	Size    int64
	ModTime time.Time
}

// Hidden reports whether the entry name starts with a dot.
func (e Entry) Hidden() bool {
	return len(e.Name) > 0 && e.Name[0] == '.'
}

// Provider is the interface for repository file operations. Missing paths
// are reported with apperr.ErrNotFound, other failures with apperr.ErrIO.
type Provider interface {
	// Root is the absolute location of the repository.
	Root() string
	// List returns the direct children of dir sorted by name. Symlinks are
	// reported, not followed.
	List(dir string) ([]Entry, error)
	// Stat describes a single path without following symlinks.
	Stat(path string) (Entry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces or creates the file at path.
	Write(path string, content []byte) error
	// Create writes a new file and fails with apperr.ErrAlreadyExists if
	// path is taken.
	Create(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath, refusing to overwrite.
	Move(oldPath, newPath string) error
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// RemoveAll deletes dir and everything under it.
	RemoveAll(dir string) error
}
