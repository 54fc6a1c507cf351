package mocks

import (
	"context"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// MockTUIService implements ports.TUIService for testing.
type MockTUIService struct {
	// Rows and Counts are returned by ListArchives
	Rows   []ports.TUIArchiveRow
	Counts []ports.TUICount
	// ListError is the error to return from ListArchives
	ListError error

	// DetailsResults maps filenames to details. A browsed directory is
	// looked up as filename + "/" + dir.
	DetailsResults map[string]ports.TUIDetails
	// DetailsError is the error to return from Details
	DetailsError error

	// BackupResult is the filename returned by RunBackup
	BackupResult string
	// BackupError is the error to return from RunBackup
	BackupError error

	// ProtectError is the error to return from SetProtected
	ProtectError error

	// Comparison is returned by Compare
	Comparison ports.TUIComparison
	// FileDiffs maps paths to the result of CompareFile
	FileDiffs map[string]ports.TUIFileDiff
	// CompareError is the error to return from Compare and CompareFile
	CompareError error

	// Call tracking
	ListArchivesCalls int
	DetailsCalls      []string
	RunBackupCalls    int
	ProtectCalls      map[string]bool
	CompareCalls      [][2]string
}

// NewMockTUIService creates a new mock TUI service.
func NewMockTUIService() *MockTUIService {
	return &MockTUIService{
		DetailsResults: make(map[string]ports.TUIDetails),
		ProtectCalls:   make(map[string]bool),
		FileDiffs:      make(map[string]ports.TUIFileDiff),
		BackupResult:   "sitebak-abc123-site-20240101-000000.zip",
	}
}

// ListArchives returns the configured rows and counts.
func (m *MockTUIService) ListArchives(ctx context.Context) ([]ports.TUIArchiveRow, []ports.TUICount, error) {
	m.ListArchivesCalls++
	if m.ListError != nil {
		return nil, nil, m.ListError
	}
	return m.Rows, m.Counts, nil
}

// Details returns the configured details of filename.
func (m *MockTUIService) Details(ctx context.Context, filename, dir string) (ports.TUIDetails, error) {
	m.DetailsCalls = append(m.DetailsCalls, filename)
	if m.DetailsError != nil {
		return ports.TUIDetails{}, m.DetailsError
	}
	key := filename
	if dir != "" {
		key += "/" + dir
	}
	if d, ok := m.DetailsResults[key]; ok {
		return d, nil
	}
	return ports.TUIDetails{Filename: filename}, nil
}

// RunBackup records the call and returns BackupResult.
func (m *MockTUIService) RunBackup(ctx context.Context) (string, error) {
	m.RunBackupCalls++
	if m.BackupError != nil {
		return "", m.BackupError
	}
	return m.BackupResult, nil
}

// SetProtected records the requested protection state.
func (m *MockTUIService) SetProtected(ctx context.Context, filename string, protected bool) error {
	if m.ProtectError != nil {
		return m.ProtectError
	}
	m.ProtectCalls[filename] = protected
	for i := range m.Rows {
		if m.Rows[i].Filename == filename {
			m.Rows[i].Protected = protected
		}
	}
	return nil
}

// Compare records the call and returns Comparison.
func (m *MockTUIService) Compare(ctx context.Context, oldFile, newFile string) (ports.TUIComparison, error) {
	m.CompareCalls = append(m.CompareCalls, [2]string{oldFile, newFile})
	if m.CompareError != nil {
		return ports.TUIComparison{}, m.CompareError
	}
	c := m.Comparison
	c.Old, c.New = oldFile, newFile
	return c, nil
}

// CompareFile returns the configured diff of path.
func (m *MockTUIService) CompareFile(ctx context.Context, oldFile, newFile, path string) (ports.TUIFileDiff, error) {
	if m.CompareError != nil {
		return ports.TUIFileDiff{}, m.CompareError
	}
	if d, ok := m.FileDiffs[path]; ok {
		return d, nil
	}
	return ports.TUIFileDiff{Path: path}, nil
}

// Compile-time check that MockTUIService implements ports.TUIService.
var _ ports.TUIService = (*MockTUIService)(nil)
