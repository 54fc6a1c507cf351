package mocks

import (
	"context"
	"os"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// MockRemoteProvider implements ports.RemoteProvider for testing.
type MockRemoteProvider struct {
	KeyResult   string
	TitleResult string
	Setup       bool
	// Remote holds the archives the provider reports from List
	Remote []ports.RemoteArchive
	// UploadCalls records uploaded file paths
	UploadCalls []string
	// DownloadCalls records downloaded filenames
	DownloadCalls []string
	// Errors maps method names to errors
	Errors map[string]error
}

// NewMockRemoteProvider creates a set-up mock provider with the given key and title.
func NewMockRemoteProvider(key, title string) *MockRemoteProvider {
	return &MockRemoteProvider{
		KeyResult:   key,
		TitleResult: title,
		Setup:       true,
		Errors:      make(map[string]error),
	}
}

// Key returns the provider key.
func (m *MockRemoteProvider) Key() string { return m.KeyResult }

// Title returns the provider title.
func (m *MockRemoteProvider) Title() string { return m.TitleResult }

// IsSetup reports whether the provider is configured.
func (m *MockRemoteProvider) IsSetup() bool { return m.Setup }

// Upload records the call. A successful upload makes the file part of List.
func (m *MockRemoteProvider) Upload(ctx context.Context, filepath string) error {
	m.UploadCalls = append(m.UploadCalls, filepath)
	if err, ok := m.Errors["Upload"]; ok {
		return err
	}
	m.Remote = append(m.Remote, ports.RemoteArchive{Filename: baseName(filepath)})
	return nil
}

// List returns the configured remote archives.
func (m *MockRemoteProvider) List(ctx context.Context) ([]ports.RemoteArchive, error) {
	if err, ok := m.Errors["List"]; ok {
		return nil, err
	}
	return m.Remote, nil
}

// Download records the call.
func (m *MockRemoteProvider) Download(ctx context.Context, filename, destPath string) error {
	m.DownloadCalls = append(m.DownloadCalls, filename)
	if err, ok := m.Errors["Download"]; ok {
		return err
	}
	for _, r := range m.Remote {
		if r.Filename == filename {
			return nil
		}
	}
	return os.ErrNotExist
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// Compile-time check that MockRemoteProvider implements ports.RemoteProvider.
var _ ports.RemoteProvider = (*MockRemoteProvider)(nil)
