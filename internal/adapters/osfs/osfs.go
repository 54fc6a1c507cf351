// Package osfs provides a filesystem adapter using the standard library os package.
package osfs

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// OSFileSystem implements ports.FileSystem using the standard library.
type OSFileSystem struct{}

// New creates a new OSFileSystem adapter.
func New() *OSFileSystem {
	return &OSFileSystem{}
}

// Exists reports whether the named file or directory exists.
func (f *OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// ReadDir reads the named directory and returns directory entries.
func (f *OSFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

// Stat returns file info for the named file.
func (f *OSFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// MkdirAll creates a directory along with any necessary parents.
func (f *OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// WriteFile writes data to the named file, creating it if necessary.
func (f *OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// ReadFile reads the named file and returns the contents.
func (f *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Remove removes the named file or empty directory.
func (f *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// RemoveAll removes path and any children it contains.
func (f *OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Rename renames (moves) oldpath to newpath.
func (f *OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Open opens the named file for reading.
func (f *OSFileSystem) Open(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// Chtimes changes the access and modification times of the named file.
func (f *OSFileSystem) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// FileLocker implements ports.Locker with advisory file locks. The lock is
// taken on "<path>.lock" so the guarded file itself can be replaced by rename.
type FileLocker struct{}

// NewLocker creates a new FileLocker adapter.
func NewLocker() *FileLocker {
	return &FileLocker{}
}

// Lock blocks until the exclusive lock for path is held.
func (l *FileLocker) Lock(path string) (func() error, error) {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return fl.Unlock, nil
}

// Compile-time checks.
var (
	_ ports.FileSystem = (*OSFileSystem)(nil)
	_ ports.Locker     = (*FileLocker)(nil)
)
