// Package mocks provides mock implementations for testing.
package mocks

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// MockFileSystem implements ports.FileSystem for testing.
type MockFileSystem struct {
	// Files maps paths to file contents for ReadFile/WriteFile
	Files map[string][]byte
	// Dirs maps paths to directory entries for ReadDir. When a directory has
	// no explicit entries, ReadDir lists the Files directly inside it.
	Dirs map[string][]os.DirEntry
	// Stats maps paths to FileInfo for Stat
	Stats map[string]os.FileInfo
	// ModTimes maps paths to modification times (set by Chtimes)
	ModTimes map[string]time.Time
	// Errors maps paths to errors (for simulating failures)
	Errors map[string]error
	// Removed records every path passed to Remove or RemoveAll
	Removed []string
}

// NewMockFileSystem creates a new mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:    make(map[string][]byte),
		Dirs:     make(map[string][]os.DirEntry),
		Stats:    make(map[string]os.FileInfo),
		ModTimes: make(map[string]time.Time),
		Errors:   make(map[string]error),
	}
}

// Exists reports whether the named file or directory exists.
func (m *MockFileSystem) Exists(name string) bool {
	_, err := m.Stat(name)
	return err == nil
}

// ReadDir reads the named directory and returns directory entries.
func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if entries, ok := m.Dirs[name]; ok {
		return entries, nil
	}

	var entries []os.DirEntry
	for path := range m.Files {
		if filepath.Dir(path) == filepath.Clean(name) {
			entries = append(entries, &MockDirEntry{EntryName: filepath.Base(path)})
		}
	}
	if entries == nil {
		if info, ok := m.Stats[name]; ok && info.IsDir() {
			return nil, nil
		}
		return nil, os.ErrNotExist
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// Stat returns file info for the named file.
func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if info, ok := m.Stats[name]; ok {
		return info, nil
	}
	// Check if we have file content (implies file exists)
	if content, ok := m.Files[name]; ok {
		return &MockFileInfo{
			FileName:    filepath.Base(name),
			FileSize:    int64(len(content)),
			FileModTime: m.ModTimes[name],
		}, nil
	}
	return nil, os.ErrNotExist
}

// MkdirAll creates a directory along with any necessary parents.
func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if err, ok := m.Errors[path]; ok {
		return err
	}
	// Mark directory as existing
	m.Stats[path] = &MockFileInfo{FileName: filepath.Base(path), Dir: true}
	return nil
}

// WriteFile writes data to the named file, creating it if necessary.
func (m *MockFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	m.Files[name] = append([]byte(nil), data...)
	if _, ok := m.ModTimes[name]; !ok {
		m.ModTimes[name] = time.Now()
	}
	return nil
}

// ReadFile reads the named file and returns the contents.
func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if content, ok := m.Files[name]; ok {
		return content, nil
	}
	return nil, os.ErrNotExist
}

// Open returns a reader over the file contents.
func (m *MockFileSystem) Open(name string) (io.ReadCloser, error) {
	content, err := m.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Remove removes the named file or empty directory.
func (m *MockFileSystem) Remove(name string) error {
	m.Removed = append(m.Removed, name)
	if err, ok := m.Errors[name]; ok {
		return err
	}
	_, isFile := m.Files[name]
	_, isStat := m.Stats[name]
	if !isFile && !isStat {
		return os.ErrNotExist
	}
	delete(m.Files, name)
	delete(m.Stats, name)
	delete(m.ModTimes, name)
	return nil
}

// RemoveAll removes path and any children it contains.
func (m *MockFileSystem) RemoveAll(path string) error {
	m.Removed = append(m.Removed, path)
	if err, ok := m.Errors[path]; ok {
		return err
	}
	// Remove all entries with this prefix
	for k := range m.Files {
		if k == path || strings.HasPrefix(k, path+"/") {
			delete(m.Files, k)
		}
	}
	for k := range m.Stats {
		if k == path || strings.HasPrefix(k, path+"/") {
			delete(m.Stats, k)
		}
	}
	return nil
}

// Rename renames (moves) oldpath to newpath.
func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	if err, ok := m.Errors[oldpath]; ok {
		return err
	}
	if content, ok := m.Files[oldpath]; ok {
		m.Files[newpath] = content
		delete(m.Files, oldpath)
	}
	if info, ok := m.Stats[oldpath]; ok {
		m.Stats[newpath] = info
		delete(m.Stats, oldpath)
	}
	if mt, ok := m.ModTimes[oldpath]; ok {
		m.ModTimes[newpath] = mt
		delete(m.ModTimes, oldpath)
	}
	return nil
}

// Chtimes changes the access and modification times of the named file.
func (m *MockFileSystem) Chtimes(name string, atime, mtime time.Time) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	if !m.Exists(name) {
		return os.ErrNotExist
	}
	m.ModTimes[name] = mtime
	return nil
}

// MockFileInfo implements os.FileInfo for testing.
type MockFileInfo struct {
	FileName    string
	FileSize    int64
	FileMode    os.FileMode
	FileModTime time.Time
	Dir         bool
}

func (fi *MockFileInfo) Name() string       { return fi.FileName }
func (fi *MockFileInfo) Size() int64        { return fi.FileSize }
func (fi *MockFileInfo) Mode() os.FileMode  { return fi.FileMode }
func (fi *MockFileInfo) ModTime() time.Time { return fi.FileModTime }
func (fi *MockFileInfo) IsDir() bool        { return fi.Dir }
func (fi *MockFileInfo) Sys() interface{}   { return nil }

// MockDirEntry implements os.DirEntry for testing.
type MockDirEntry struct {
	EntryName string
	Dir       bool
}

func (e *MockDirEntry) Name() string               { return e.EntryName }
func (e *MockDirEntry) IsDir() bool                { return e.Dir }
func (e *MockDirEntry) Type() os.FileMode          { return 0 }
func (e *MockDirEntry) Info() (os.FileInfo, error) { return &MockFileInfo{FileName: e.EntryName, Dir: e.Dir}, nil }

// MockLocker implements ports.Locker for testing with in-process mutexes.
type MockLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	// LockCalls records every locked path
	LockCalls []string
	// Errors maps paths to errors
	Errors map[string]error
}

// NewMockLocker creates a new mock locker.
func NewMockLocker() *MockLocker {
	return &MockLocker{
		locks:  make(map[string]*sync.Mutex),
		Errors: make(map[string]error),
	}
}

// Lock blocks until the lock for path is held.
func (m *MockLocker) Lock(path string) (func() error, error) {
	m.mu.Lock()
	m.LockCalls = append(m.LockCalls, path)
	if err, ok := m.Errors[path]; ok {
		m.mu.Unlock()
		return nil, err
	}
	l, ok := m.locks[path]
	if !ok {
		l = &sync.Mutex{}
		m.locks[path] = l
	}
	m.mu.Unlock()

	l.Lock()
	return func() error {
		l.Unlock()
		return nil
	}, nil
}

// Compile-time checks.
var (
	_ ports.FileSystem = (*MockFileSystem)(nil)
	_ ports.Locker     = (*MockLocker)(nil)
)
