package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/gitnote/internal/apperr"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the repository
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, wrapErr("stat root", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s: %w", abs, apperr.ErrInvalidPath)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute repository path.
func (f *FS) Root() string { return f.root }

func wrapErr(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("storage: %s %s: %w: %w", op, path, apperr.ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("storage: %s %s: %w: %w", op, path, apperr.ErrAlreadyExists, err)
	default:
		return fmt.Errorf("storage: %s %s: %w: %w", op, path, apperr.ErrIO, err)
	}
}

// safePath resolves a relative path against the root and rejects any
// result that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", rel, apperr.ErrInvalidPath)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes repository root: %s: %w", rel, apperr.ErrInvalidPath)
	}
	return abs, nil
}

func entryOf(name string, info fs.FileInfo) Entry {
	return Entry{
		Name:    name,
		Dir:     info.IsDir(),
		Symlink: info.Mode()&fs.ModeSymlink != 0,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// List returns the children of dir.
func (f *FS) List(dir string) ([]Entry, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(abs)
	if err != nil {
		return nil, wrapErr("list", dir, err)
	}
	out := make([]Entry, 0, len(des))
	for _, d := range des {
		info, err := d.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, entryOf(d.Name(), info))
	}
	return out, nil
}

// Stat describes path.
func (f *FS) Stat(path string) (Entry, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return Entry{}, wrapErr("stat", path, err)
	}
	return entryOf(filepath.Base(abs), info), nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapErr("read", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file, fsync, rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: write root: %w", apperr.ErrInvalidPath)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrapErr("mkdir", path, err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return wrapErr("create temp", path, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return wrapErr("write temp", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return wrapErr("fsync", path, err)
	}
	if err := tmp.Close(); err != nil {
		return wrapErr("close temp", path, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return wrapErr("rename", path, err)
	}
	success = true
	return nil
}

// Create writes a new file, failing if it already exists.
func (f *FS) Create(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return wrapErr("mkdir", path, err)
	}
	file, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return wrapErr("create", path, err)
	}
	if _, err := file.Write(content); err != nil {
		_ = file.Close()
		_ = os.Remove(abs)
		return wrapErr("create", path, err)
	}
	if err := file.Close(); err != nil {
		return wrapErr("create", path, err)
	}
	return nil
}

// Delete removes a file.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return wrapErr("delete", path, err)
	}
	return nil
}

// Move renames a file or directory.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if absOld == absNew {
		return nil
	}
	if _, err := os.Lstat(absNew); err == nil {
		return fmt.Errorf("storage: move %s: %s: %w", oldPath, newPath, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return wrapErr("mkdir for move", newPath, err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return wrapErr("move", oldPath, err)
	}
	return nil
}

// MkdirAll creates a directory tree.
func (f *FS) MkdirAll(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return wrapErr("mkdir", dir, err)
	}
	return nil
}

// RemoveAll deletes a directory tree. The root cannot be removed.
func (f *FS) RemoveAll(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: remove root: %w", apperr.ErrInvalidPath)
	}
	if err := os.RemoveAll(abs); err != nil {
		return wrapErr("remove", dir, err)
	}
	return nil
}
