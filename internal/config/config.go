// Package config loads and saves the sitebak configuration.
//
// Values are layered: built-in defaults, then the YAML file at ConfigPath,
// then SITEBAK_* environment variables ("__" separates nested keys, e.g.
// SITEBAK_JOBS__MAX_ATTEMPTS=5).
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	yamlv3 "gopkg.in/yaml.v3"
)

// Storage location keys.
const (
	StorageLocal     = "local"
	StorageDirectory = "directory"
	StorageRestic    = "restic"
)

// Compressor names.
const (
	CompressorNative = "native"
	CompressorShell  = "shell"
)

// FilesystemDirect is the only filesystem method that allows direct downloads.
const FilesystemDirect = "direct"

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "SITEBAK_"

// Config is the sitebak configuration.
type Config struct {
	SiteDir            string            `yaml:"site_dir"`
	SiteURL            string            `yaml:"site_url"`
	BackupDir          string            `yaml:"backup_dir"`
	BackupIdentifier   string            `yaml:"backup_identifier"`
	StatePath          string            `yaml:"state_path"`
	Schedule           string            `yaml:"schedule"`
	Exclude            []string          `yaml:"exclude"`
	Compressor         string            `yaml:"compressor"`
	Retention          Retention         `yaml:"retention"`
	Storage            []StorageLocation `yaml:"storage"`
	Remote             Remote            `yaml:"remote"`
	PublicLinkLifetime string            `yaml:"public_link_lifetime"`
	FilesystemMethod   string            `yaml:"filesystem_method"`
	TokenSecret        string            `yaml:"token_secret"`
	Jobs               Jobs              `yaml:"jobs"`
	Logging            Logging           `yaml:"logging"`
	Serve              Serve             `yaml:"serve"`
	MinFreeMB          int               `yaml:"min_free_mb"`
}

// Retention controls how many local archives are kept.
type Retention struct {
	KeepLast int `yaml:"keep_last"`
}

// StorageLocation enables or disables one storage location.
type StorageLocation struct {
	Key     string `yaml:"key"`
	Enabled bool   `yaml:"enabled"`
}

// Remote holds the settings of the remote storage providers.
type Remote struct {
	Directory DirectoryRemote `yaml:"directory"`
	Restic    ResticRemote    `yaml:"restic"`
}

// DirectoryRemote is a mounted directory (NAS, network share, ...).
type DirectoryRemote struct {
	Path string `yaml:"path"`
}

// ResticRemote is a restic repository.
type ResticRemote struct {
	Repo     string `yaml:"repo"`
	Password string `yaml:"password"`
}

// Jobs configures the job queue retry policy.
type Jobs struct {
	MaxAttempts int           `yaml:"max_attempts"`
	StaleAfter  time.Duration `yaml:"stale_after"`
}

// Logging configures the logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Serve configures the download endpoint.
type Serve struct {
	Addr      string `yaml:"addr"`
	RateLimit int    `yaml:"rate_limit"` // Download requests per minute per client IP, 0 disables
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "." // Fallback to current directory
	}
	return &Config{
		SiteDir:    filepath.Join(home, "public_html"),
		SiteURL:    "http://localhost",
		BackupDir:  filepath.Join(home, ".sitebak", "backups"),
		StatePath:  filepath.Join(home, ".sitebak", "state.db"),
		Schedule:   "0 3 * * *",
		Compressor: CompressorNative,
		Exclude: []string{
			".git",
			"node_modules",
			"cache",
			"*.tmp",
			"*.log",
			".DS_Store",
		},
		Retention: Retention{KeepLast: 10},
		Storage: []StorageLocation{
			{Key: StorageLocal, Enabled: true},
			{Key: StorageDirectory, Enabled: false},
			{Key: StorageRestic, Enabled: false},
		},
		PublicLinkLifetime: "1 hour",
		FilesystemMethod:   FilesystemDirect,
		Jobs: Jobs{
			MaxAttempts: 3,
			StaleAfter:  time.Hour,
		},
		Logging:   Logging{Level: "info", Format: "console"},
		Serve:     Serve{Addr: "127.0.0.1:8080", RateLimit: 30},
		MinFreeMB: 50,
	}
}

// ConfigPath returns the configuration file path. SITEBAK_CONFIG overrides
// the default of ~/.sitebak/config.yaml.
func ConfigPath() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return ExpandPath(p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sitebak", "config.yaml")
}

// Load reads the configuration from ConfigPath.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the configuration from path. A missing file yields the
// defaults (still subject to environment overrides).
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.SiteDir = ExpandPath(cfg.SiteDir)
	cfg.BackupDir = ExpandPath(cfg.BackupDir)
	cfg.StatePath = ExpandPath(cfg.StatePath)
	cfg.Remote.Directory.Path = ExpandPath(cfg.Remote.Directory.Path)
	cfg.Remote.Restic.Repo = ExpandPath(cfg.Remote.Restic.Repo)
	if cfg.BackupIdentifier == "" {
		cfg.BackupIdentifier = DeriveIdentifier(cfg.SiteDir)
	}

	return cfg, nil
}

// envKey maps SITEBAK_JOBS__MAX_ATTEMPTS to jobs.max_attempts.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

// Save writes the configuration to ConfigPath.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yamlv3.Marshal(c)
	if err != nil {
		return err
	}

	// The file holds the token secret and repository password.
	return os.WriteFile(path, data, 0600)
}

// DeriveIdentifier returns a stable backup identifier for a site directory.
func DeriveIdentifier(siteDir string) string {
	sum := sha256.Sum256([]byte(siteDir))
	return hex.EncodeToString(sum[:])[:10]
}

// SiteName returns the site's short name as used in archive filenames.
func (c *Config) SiteName() string {
	name := strings.ToLower(filepath.Base(filepath.Clean(c.SiteDir)))
	name = nonSlug.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return "site"
	}
	return name
}

// IsStorageEnabled reports whether the storage location key is enabled.
func (c *Config) IsStorageEnabled(key string) bool {
	for _, s := range c.Storage {
		if s.Key == key {
			return s.Enabled
		}
	}
	return false
}

// LinkLifetime parses PublicLinkLifetime.
func (c *Config) LinkLifetime() (time.Duration, error) {
	return ParseLifetime(c.PublicLinkLifetime)
}

var (
	nonSlug      = regexp.MustCompile(`[^a-z0-9]+`)
	identPattern = regexp.MustCompile(`^[a-z0-9]+$`)
)

var knownStorage = map[string]bool{
	StorageLocal:     true,
	StorageDirectory: true,
	StorageRestic:    true,
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.SiteDir == "" {
		errs = append(errs, errors.New("site_dir is required"))
	}
	if c.BackupDir == "" {
		errs = append(errs, errors.New("backup_dir is required"))
	}
	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}
	if !identPattern.MatchString(c.BackupIdentifier) {
		errs = append(errs, fmt.Errorf("backup_identifier %q must be lowercase letters and digits", c.BackupIdentifier))
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule %q: %w", c.Schedule, err))
	}
	if c.Compressor != CompressorNative && c.Compressor != CompressorShell {
		errs = append(errs, fmt.Errorf("compressor %q must be %q or %q", c.Compressor, CompressorNative, CompressorShell))
	}
	if c.Retention.KeepLast < 0 {
		errs = append(errs, errors.New("retention.keep_last must not be negative"))
	}

	seen := make(map[string]bool)
	for _, s := range c.Storage {
		if !knownStorage[s.Key] {
			errs = append(errs, fmt.Errorf("storage: unknown location %q", s.Key))
		}
		if seen[s.Key] {
			errs = append(errs, fmt.Errorf("storage: duplicate location %q", s.Key))
		}
		seen[s.Key] = true
	}
	if c.IsStorageEnabled(StorageDirectory) && c.Remote.Directory.Path == "" {
		errs = append(errs, errors.New("remote.directory.path is required when directory storage is enabled"))
	}
	if c.IsStorageEnabled(StorageRestic) && c.Remote.Restic.Repo == "" {
		errs = append(errs, errors.New("remote.restic.repo is required when restic storage is enabled"))
	}

	if _, err := c.LinkLifetime(); err != nil {
		errs = append(errs, fmt.Errorf("public_link_lifetime: %w", err))
	}
	if c.Jobs.MaxAttempts < 1 {
		errs = append(errs, errors.New("jobs.max_attempts must be at least 1"))
	}
	if c.Jobs.StaleAfter <= 0 {
		errs = append(errs, errors.New("jobs.stale_after must be positive"))
	}
	if c.MinFreeMB < 0 {
		errs = append(errs, errors.New("min_free_mb must not be negative"))
	}
	if c.Serve.RateLimit < 0 {
		errs = append(errs, errors.New("serve.rate_limit must not be negative"))
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q must be console or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

var lifetimeUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// ParseLifetime parses a link lifetime such as "1 hour", "+30 minutes" or
// a Go duration ("90m"). The result must be positive.
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if s == "" {
		return 0, errors.New("empty lifetime")
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		fields := strings.Fields(strings.ToLower(s))
		if len(fields) != 2 {
			return 0, fmt.Errorf("invalid lifetime %q", s)
		}
		n, convErr := strconv.Atoi(fields[0])
		unit, ok := lifetimeUnits[strings.TrimSuffix(fields[1], "s")]
		if convErr != nil || !ok {
			return 0, fmt.Errorf("invalid lifetime %q", s)
		}
		if n > 0 && int64(n) > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("lifetime %q is out of range", s)
		}
		d = time.Duration(n) * unit
	}

	if d <= 0 {
		return 0, fmt.Errorf("lifetime %q is not in the future", s)
	}
	return d, nil
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unexpanded if home unavailable
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
