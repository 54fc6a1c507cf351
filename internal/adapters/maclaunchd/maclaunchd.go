// Package maclaunchd provides a launchd scheduler adapter for macOS.
package maclaunchd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

const serviceLabel = "com.user.sitebak"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.BinaryPath}}</string>
        <string>cron</string>
    </array>
{{- if .ConfigPath}}
    <key>EnvironmentVariables</key>
    <dict>
        <key>SITEBAK_CONFIG</key>
        <string>{{.ConfigPath}}</string>
    </dict>
{{- end}}
    <key>StartInterval</key>
    <integer>{{.IntervalSeconds}}</integer>
    <key>RunAtLoad</key>
    <false/>
    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>
    <key>StandardErrorPath</key>
    <string>{{.LogPath}}</string>
</dict>
</plist>
`

var plist = template.Must(template.New("plist").Parse(plistTemplate))

type plistConfig struct {
	Label           string
	BinaryPath      string
	ConfigPath      string
	IntervalSeconds int
	LogPath         string
}

// MacLaunchdService implements ports.Scheduler for macOS.
type MacLaunchdService struct {
	homeDir   string
	launchctl func(args ...string) error
}

// New creates a new MacLaunchdService adapter.
func New() *MacLaunchdService {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &MacLaunchdService{homeDir: home, launchctl: launchctl}
}

func launchctl(args ...string) error {
	return exec.Command("launchctl", args...).Run()
}

// UnitPath returns the path where the plist file is stored.
func (s *MacLaunchdService) UnitPath() string {
	return filepath.Join(s.homeDir, "Library", "LaunchAgents", serviceLabel+".plist")
}

// LogPath returns the path where cron output is written.
func (s *MacLaunchdService) LogPath() string {
	return filepath.Join(s.homeDir, ".sitebak", "cron.log")
}

// render produces the plist for the given settings.
func (s *MacLaunchdService) render(binaryPath, configPath string, intervalMinutes int) ([]byte, error) {
	var buf bytes.Buffer
	err := plist.Execute(&buf, plistConfig{
		Label:           serviceLabel,
		BinaryPath:      binaryPath,
		ConfigPath:      configPath,
		IntervalSeconds: intervalMinutes * 60,
		LogPath:         s.LogPath(),
	})
	if err != nil {
		return nil, fmt.Errorf("writing plist: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the plist and loads the service.
func (s *MacLaunchdService) Install(execPath, configPath string, intervalMinutes int) error {
	if intervalMinutes < 1 {
		return fmt.Errorf("interval must be at least one minute")
	}

	// Find sitebak binary if not provided
	binaryPath := execPath
	if binaryPath == "" {
		var err error
		binaryPath, err = exec.LookPath("sitebak")
		if err != nil {
			return fmt.Errorf("sitebak not found in PATH: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.LogPath()), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	data, err := s.render(binaryPath, configPath, intervalMinutes)
	if err != nil {
		return err
	}

	plistPath := s.UnitPath()
	if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
		return fmt.Errorf("creating LaunchAgents directory: %w", err)
	}
	if err := os.WriteFile(plistPath, data, 0644); err != nil {
		return fmt.Errorf("creating plist: %w", err)
	}

	if err := s.launchctl("load", plistPath); err != nil {
		return fmt.Errorf("loading plist: %w", err)
	}
	return nil
}

// Uninstall unloads the service and removes the plist file.
func (s *MacLaunchdService) Uninstall() error {
	plistPath := s.UnitPath()

	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		return fmt.Errorf("plist not found: %s", plistPath)
	}

	_ = s.launchctl("unload", plistPath) // Ignore error if not loaded

	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("removing plist: %w", err)
	}
	return nil
}

// IsInstalled checks if the plist is present.
func (s *MacLaunchdService) IsInstalled() bool {
	_, err := os.Stat(s.UnitPath())
	return err == nil
}

// Status returns "loaded", "not loaded" or "not installed".
func (s *MacLaunchdService) Status() string {
	if !s.IsInstalled() {
		return "not installed"
	}
	if err := s.launchctl("list", serviceLabel); err == nil {
		return "loaded"
	}
	return "not loaded"
}

// Compile-time check that MacLaunchdService implements ports.Scheduler.
var _ ports.Scheduler = (*MacLaunchdService)(nil)
