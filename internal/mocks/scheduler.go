package mocks

import (
	"github.com/mcdonaldj/sitebak/internal/ports"
)

// MockScheduler implements ports.Scheduler for testing.
type MockScheduler struct {
	// Installed tracks whether the service is "installed"
	Installed bool
	// StatusResult is the status to return
	StatusResult string
	// UnitPathResult is the unit path to return
	UnitPathResult string
	// LogPathResult is the log path to return
	LogPathResult string
	// InstallCalls records calls to Install
	InstallCalls []InstallCall
	// Errors maps method names to errors
	Errors map[string]error
}

// InstallCall records parameters of an Install call.
type InstallCall struct {
	ExecPath        string
	ConfigPath      string
	IntervalMinutes int
}

// NewMockScheduler creates a new mock scheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		StatusResult:   "not installed",
		UnitPathResult: "/tmp/mock.plist",
		LogPathResult:  "/tmp/mock.log",
		Errors:         make(map[string]error),
	}
}

// UnitPath returns the path where the service definition is stored.
func (m *MockScheduler) UnitPath() string {
	return m.UnitPathResult
}

// LogPath returns the path where logs should be written.
func (m *MockScheduler) LogPath() string {
	return m.LogPathResult
}

// Install records the call and marks the service loaded.
func (m *MockScheduler) Install(execPath, configPath string, intervalMinutes int) error {
	m.InstallCalls = append(m.InstallCalls, InstallCall{
		ExecPath:        execPath,
		ConfigPath:      configPath,
		IntervalMinutes: intervalMinutes,
	})
	if err, ok := m.Errors["Install"]; ok {
		return err
	}
	m.Installed = true
	m.StatusResult = "loaded"
	return nil
}

// Uninstall marks the service as not installed.
func (m *MockScheduler) Uninstall() error {
	if err, ok := m.Errors["Uninstall"]; ok {
		return err
	}
	m.Installed = false
	m.StatusResult = "not installed"
	return nil
}

// IsInstalled checks if the service is currently installed.
func (m *MockScheduler) IsInstalled() bool {
	return m.Installed
}

// Status returns the current status of the service.
func (m *MockScheduler) Status() string {
	return m.StatusResult
}

// Compile-time check that MockScheduler implements ports.Scheduler.
var _ ports.Scheduler = (*MockScheduler)(nil)
