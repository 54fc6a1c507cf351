package mocks

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// MockCompressor implements ports.Compressor for testing.
type MockCompressor struct {
	// NameResult is returned by Name
	NameResult string
	// Archives maps zip paths to their files (name -> content)
	Archives map[string]map[string][]byte
	// FS, when set, receives a placeholder zip on Create
	FS *MockFileSystem
	// CreateCalls records calls to Create
	CreateCalls []ports.CreateOptions
	// ExtractCalls records calls to Extract
	ExtractCalls []ExtractCall
	// GetFileCalls records the file argument of GetFile calls
	GetFileCalls []string
	// Errors maps method names to errors
	Errors map[string]error
	// CreateResult is the default file count to return
	CreateResult int
}

// ExtractCall records parameters of an Extract call.
type ExtractCall struct {
	ZipPath string
	DestDir string
}

// NewMockCompressor creates a new mock compressor.
func NewMockCompressor() *MockCompressor {
	return &MockCompressor{
		NameResult:   "native",
		Archives:     make(map[string]map[string][]byte),
		Errors:       make(map[string]error),
		CreateResult: 1, // Default to 1 file
	}
}

// Name returns the compressor identifier.
func (m *MockCompressor) Name() string {
	return m.NameResult
}

// Create records the call and stores opts.Extra as the archive's content.
func (m *MockCompressor) Create(opts ports.CreateOptions) (int, error) {
	m.CreateCalls = append(m.CreateCalls, opts)
	if err, ok := m.Errors["Create"]; ok {
		return 0, err
	}
	files := make(map[string][]byte)
	for name, content := range opts.Extra {
		files[name] = content
	}
	m.Archives[opts.DestPath] = files
	if m.FS != nil {
		_ = m.FS.WriteFile(opts.DestPath, []byte("PK"), 0644)
	}
	return m.CreateResult + len(opts.Extra), nil
}

// Extract records the call.
func (m *MockCompressor) Extract(zipPath, destDir string) error {
	m.ExtractCalls = append(m.ExtractCalls, ExtractCall{
		ZipPath: zipPath,
		DestDir: destDir,
	})
	if err, ok := m.Errors["Extract"]; ok {
		return err
	}
	if _, ok := m.Archives[zipPath]; !ok {
		return os.ErrNotExist
	}
	return nil
}

// Browse lists the immediate children of dir, sorted by name.
func (m *MockCompressor) Browse(zipPath, dir string) ([]ports.ArchiveEntry, error) {
	if err, ok := m.Errors["Browse"]; ok {
		return nil, err
	}
	files, ok := m.Archives[zipPath]
	if !ok {
		return nil, os.ErrNotExist
	}

	prefix := strings.Trim(dir, "/")
	if prefix != "" {
		prefix += "/"
	}
	seen := make(map[string]bool)
	var entries []ports.ArchiveEntry
	for name, content := range files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if idx := strings.Index(rest, "/"); idx != -1 {
			child := prefix + rest[:idx]
			if !seen[child] {
				seen[child] = true
				entries = append(entries, ports.ArchiveEntry{Name: child, IsDir: true})
			}
			continue
		}
		entries = append(entries, ports.ArchiveEntry{Name: name, Size: int64(len(content)), LastModified: time.Unix(0, 0)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// GetFile returns the named file from the archive, or nothing when absent.
func (m *MockCompressor) GetFile(zipPath, file string) ([]ports.ArchiveFile, error) {
	m.GetFileCalls = append(m.GetFileCalls, file)
	if err, ok := m.Errors["GetFile"]; ok {
		return nil, err
	}
	files, ok := m.Archives[zipPath]
	if !ok {
		return nil, os.ErrNotExist
	}
	content, ok := files[file]
	if !ok {
		return nil, nil
	}
	return []ports.ArchiveFile{{
		ArchiveEntry: ports.ArchiveEntry{Name: file, Size: int64(len(content))},
		Content:      content,
	}}, nil
}

// Compile-time check that MockCompressor implements ports.Compressor.
var _ ports.Compressor = (*MockCompressor)(nil)
