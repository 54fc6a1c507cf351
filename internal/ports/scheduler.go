package ports

// Scheduler installs the periodic `sitebak cron` invocation with the host's
// service manager. Production code uses the maclaunchd adapter; tests use
// MockScheduler.
type Scheduler interface {
	// UnitPath returns the path where the service definition is stored.
	UnitPath() string

	// LogPath returns the path where cron output should be written.
	LogPath() string

	// Install writes the service definition and loads it. The job runs
	// execPath with "cron" every intervalMinutes minutes.
	Install(execPath, configPath string, intervalMinutes int) error

	// Uninstall unloads the service and removes the definition.
	Uninstall() error

	// IsInstalled checks if the service definition is present.
	IsInstalled() bool

	// Status returns the current status of the service.
	// Returns "loaded", "not loaded", or "not installed".
	Status() string
}
