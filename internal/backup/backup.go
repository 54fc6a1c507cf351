// Package backup creates site archives and applies the retention policy.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/disk"

	"github.com/mcdonaldj/sitebak/internal/archive"
	"github.com/mcdonaldj/sitebak/internal/archivelog"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/config"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/registry"
	"github.com/mcdonaldj/sitebak/internal/storage"
)

var (
	// ErrSiteNotFound is returned when the site directory does not exist.
	ErrSiteNotFound = errors.New("site directory not found")
	// ErrLowDiskSpace is returned when the backup directory's volume has
	// less free space than min_free_mb.
	ErrLowDiskSpace = errors.New("not enough free disk space")
)

var getUsage = disk.Usage

// Options configure one backup.
type Options struct {
	// Trigger is catalog.TriggerManual or catalog.TriggerScheduled.
	Trigger string
	// PreAutoUpdate marks the backup taken right before an automatic update.
	PreAutoUpdate bool
	Title         string
	Description   string
	Protect       bool
}

// Result describes a created archive.
type Result struct {
	Filename     string
	Filepath     string
	Size         int64
	FileCount    int
	SHA256       string
	Duration     time.Duration
	Pruned       []string
	DeleteQueued bool
	// Warnings lists follow-up steps that failed after the archive was made.
	Warnings []string
}

// Deps are the collaborators of the backup Service.
type Deps struct {
	FS         ports.FileSystem
	Compressor ports.Compressor
	Logs       *archivelog.Store
	Archives   *registry.Registry
	Archive    *archive.Archive
	Providers  *storage.Registry
	Local      *storage.Local
	Queue      storage.Enqueuer
	Log        zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service creates backups.
type Service struct {
	deps Deps
	cfg  *config.Config
}

// NewService creates a new backup service with the given dependencies.
func NewService(deps Deps, cfg *config.Config) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Log = deps.Log.With().Str("component", "backup").Logger()
	return &Service{deps: deps, cfg: cfg}
}

// Create archives the site directory. The archive log is written next to
// the zip and embedded in it, then retention runs and the follow-up jobs
// (uploads, local delete) are queued.
func (s *Service) Create(ctx context.Context, opts Options) (Result, error) {
	var res Result
	start := s.deps.Now()

	if info, err := s.deps.FS.Stat(s.cfg.SiteDir); err != nil || !info.IsDir() {
		return res, fmt.Errorf("%w: %s", ErrSiteNotFound, s.cfg.SiteDir)
	}
	if err := s.deps.FS.MkdirAll(s.cfg.BackupDir, 0755); err != nil {
		return res, fmt.Errorf("creating backup dir: %w", err)
	}
	if err := s.checkFreeSpace(); err != nil {
		return res, err
	}

	if opts.Trigger == "" {
		opts.Trigger = catalog.TriggerManual
	}
	res.Filename = catalog.ArchiveFilename(s.cfg.BackupIdentifier, s.cfg.SiteName(), start)
	res.Filepath = filepath.Join(s.cfg.BackupDir, res.Filename)

	attrs := archivelog.NewAttributes()
	attrs.Set(archivelog.KeyCompressor, archivelog.String(s.deps.Compressor.Name()))
	attrs.Set(archivelog.KeyTrigger, archivelog.String(opts.Trigger))
	if opts.Title != "" {
		attrs.Set(archivelog.KeyTitle, archivelog.String(opts.Title))
	}
	if opts.Description != "" {
		attrs.Set(archivelog.KeyDescription, archivelog.String(opts.Description))
	}
	if opts.Protect {
		attrs.Set(archivelog.KeyProtect, archivelog.String("1"))
	}
	attrs.Set(archivelog.KeySiteDir, archivelog.String(s.cfg.SiteDir))
	attrs.Set(archivelog.KeyFilepath, archivelog.String(res.Filepath))
	attrs.Set(archivelog.KeyLastModUnix, archivelog.Int(start.Unix()))

	embedded, err := attrs.MarshalJSON()
	if err != nil {
		return res, fmt.Errorf("encoding archive log: %w", err)
	}

	fileCount, err := s.deps.Compressor.Create(ports.CreateOptions{
		DestPath:  res.Filepath,
		SourceDir: s.cfg.SiteDir,
		Exclude:   s.excludes(),
		Extra:     map[string][]byte{filepath.Base(archivelog.PathFromZip(res.Filepath)): embedded},
	})
	if err != nil {
		_ = s.deps.FS.Remove(res.Filepath)
		return res, fmt.Errorf("creating archive: %w", err)
	}
	res.FileCount = fileCount

	// The zip's mtime is the archive date shown everywhere.
	if err := s.deps.FS.Chtimes(res.Filepath, start, start); err != nil {
		s.deps.Log.Warn().Err(err).Str("filename", res.Filename).Msg("setting archive timestamp")
	}

	info, err := s.deps.FS.Stat(res.Filepath)
	if err != nil {
		return res, fmt.Errorf("stat archive: %w", err)
	}
	res.Size = info.Size()

	res.SHA256, err = Checksum(s.deps.FS, res.Filepath)
	if err != nil {
		return res, fmt.Errorf("computing checksum: %w", err)
	}
	res.Duration = s.deps.Now().Sub(start)

	attrs.Set(archivelog.KeySize, archivelog.Int(res.Size))
	attrs.Set(archivelog.KeyFileCount, archivelog.Int(int64(fileCount)))
	attrs.Set(archivelog.KeyDuration, archivelog.String(res.Duration.Round(time.Millisecond).String()))
	attrs.Set(archivelog.KeySHA256, archivelog.String(res.SHA256))
	if !s.deps.Logs.Write(archivelog.Record{Zip: res.Filepath, Attrs: attrs}) {
		res.Warnings = append(res.Warnings, "archive log could not be written")
	}

	s.deps.Log.Info().
		Str("filename", res.Filename).
		Int64("size", res.Size).
		Int("file_count", res.FileCount).
		Str("trigger", opts.Trigger).
		Msg("archive created")

	s.deps.Archives.Reset()

	pruned, err := s.Prune(ctx)
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}
	res.Pruned = pruned

	if err := s.deps.Providers.EnqueueUploads(s.deps.Queue, res.Filepath); err != nil {
		s.deps.Log.Error().Err(err).Str("filename", res.Filename).Msg("queueing uploads")
		res.Warnings = append(res.Warnings, err.Error())
	}

	queued, err := s.deps.Local.PostArchiveFiles(storage.ArchiveInfo{
		Filepath:      res.Filepath,
		Trigger:       opts.Trigger,
		PreAutoUpdate: opts.PreAutoUpdate,
	})
	if err != nil {
		s.deps.Log.Error().Err(err).Str("filename", res.Filename).Msg("post archive hook")
		res.Warnings = append(res.Warnings, err.Error())
	}
	res.DeleteQueued = queued

	return res, nil
}

// checkFreeSpace refuses to start an archive on a nearly full volume.
func (s *Service) checkFreeSpace() error {
	if s.cfg.MinFreeMB <= 0 {
		return nil
	}
	usage, err := getUsage(s.cfg.BackupDir)
	if err != nil {
		s.deps.Log.Warn().Err(err).Str("path", s.cfg.BackupDir).Msg("reading disk usage")
		return nil
	}
	need := uint64(s.cfg.MinFreeMB) * 1024 * 1024
	if usage.Free < need {
		return fmt.Errorf("%w: %s free on %s, need %s", ErrLowDiskSpace,
			humanize.IBytes(usage.Free), s.cfg.BackupDir, humanize.IBytes(need))
	}
	return nil
}

// excludes returns the configured exclusions plus the backup directory
// when it lives inside the site.
func (s *Service) excludes() []string {
	out := append([]string(nil), s.cfg.Exclude...)
	rel, err := filepath.Rel(s.cfg.SiteDir, s.cfg.BackupDir)
	if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		out = append(out, filepath.Base(s.cfg.BackupDir))
	}
	return out
}

// Prune deletes the oldest web server archives beyond retention.keep_last.
// Protected archives are never deleted and do not count toward the limit.
func (s *Service) Prune(ctx context.Context) ([]string, error) {
	keep := s.cfg.Retention.KeepLast
	if keep <= 0 {
		return nil, nil
	}

	s.deps.Archives.Refresh(ctx)
	var pruned []string
	var errs []error
	kept := 0
	for _, e := range s.deps.Archives.All() {
		if !e.OnWebServer {
			continue
		}
		rec := s.deps.Logs.GetByZip(e.Filepath)
		if p, ok := rec.Get(archivelog.KeyProtect); ok && p.Truthy() {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		if !s.deps.Archive.Delete(e.Filepath) {
			errs = append(errs, fmt.Errorf("pruning %s failed", e.Filename))
			continue
		}
		s.deps.Log.Info().Str("filename", e.Filename).Msg("pruned archive")
		pruned = append(pruned, e.Filename)
	}
	s.deps.Archives.Reset()
	return pruned, errors.Join(errs...)
}

// Checksum calculates the SHA256 hash of a file.
func Checksum(fs ports.FileSystem, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
