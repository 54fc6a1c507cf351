package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcdonaldj/sitebak/internal/archive"
	"github.com/mcdonaldj/sitebak/internal/archivelog"
	"github.com/mcdonaldj/sitebak/internal/backup"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/jobs"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/registry"
	"github.com/mcdonaldj/sitebak/internal/storage"
)

// ActionRestore is the job action of a scheduled restore. Its action data
// is the archive filename.
const ActionRestore = "restore"

var (
	// ErrNotFound is returned for an archive no location knows about.
	ErrNotFound = errors.New("archive not found")
	// ErrNoChecksum is returned when the archive log has no checksum.
	ErrNoChecksum = errors.New("archive log has no checksum")
	// ErrChecksumMismatch is returned when the archive does not match its log.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrExists is returned when the site directory exists and neither wipe
	// nor archive was requested.
	ErrExists = errors.New("site directory already exists")
)

// RestoreOptions configures a restore.
type RestoreOptions struct {
	Filename string
	Wipe     bool // Delete the current site before restoring
	Archive  bool // Move the current site aside before restoring
}

// Service restores archives into the site directory.
type Service struct {
	fs        ports.FileSystem
	archive   *archive.Archive
	archives  *registry.Registry
	providers *storage.Registry
	siteDir   string
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a new recovery service with the given dependencies.
func NewService(fs ports.FileSystem, a *archive.Archive, archives *registry.Registry, providers *storage.Registry, siteDir string, log zerolog.Logger) *Service {
	return &Service{
		fs:        fs,
		archive:   a,
		archives:  archives,
		providers: providers,
		siteDir:   siteDir,
		log:       log.With().Str("component", "recovery").Logger(),
		now:       time.Now,
	}
}

// Verify checks the integrity of a web server archive by comparing its
// checksum with the one in its log.
func (s *Service) Verify(ctx context.Context, filename string) error {
	e, ok := s.archive.GetByName(ctx, filename)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	s.archive.Init(e.Filepath)

	expected, ok := s.archive.GetAttribute(archivelog.KeySHA256)
	if !ok || expected.String() == "" {
		return fmt.Errorf("%w: %s", ErrNoChecksum, filename)
	}

	actual, err := backup.Checksum(s.fs, e.Filepath)
	if err != nil {
		return fmt.Errorf("computing checksum: %w", err)
	}
	if actual != expected.String() {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected.String(), actual)
	}
	return nil
}

// Restore extracts an archive into the site directory. An archive that is
// only stored remotely is downloaded to the backup directory first.
func (s *Service) Restore(ctx context.Context, opts RestoreOptions) error {
	s.archives.Init(ctx)
	e, ok := s.archives.Lookup(opts.Filename)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, opts.Filename)
	}

	if !e.OnWebServer {
		if err := s.download(ctx, e); err != nil {
			return err
		}
	}

	// Legacy archives carry no checksum and are restored unverified.
	if err := s.Verify(ctx, opts.Filename); err != nil && !errors.Is(err, ErrNoChecksum) {
		return fmt.Errorf("verification failed: %w", err)
	}

	s.archive.Init(e.Filepath)
	c, err := s.archive.CompressorImpl()
	if err != nil {
		return err
	}

	// Handle existing site directory
	if _, err := s.fs.Stat(s.siteDir); err == nil {
		switch {
		case opts.Wipe:
			if err := s.fs.RemoveAll(s.siteDir); err != nil {
				return fmt.Errorf("removing current site: %w", err)
			}
		case opts.Archive:
			aside := fmt.Sprintf("%s-archived-%s", s.siteDir, s.now().Format("20060102-150405"))
			if err := s.fs.Rename(s.siteDir, aside); err != nil {
				return fmt.Errorf("archiving current site: %w", err)
			}
			s.log.Info().Str("path", aside).Msg("moved current site aside")
		default:
			return fmt.Errorf("%w: %s (use --wipe or --archive)", ErrExists, s.siteDir)
		}
	}

	if err := c.Extract(e.Filepath, s.siteDir); err != nil {
		return fmt.Errorf("extracting backup: %w", err)
	}

	// The embedded copy of the archive log is not part of the site.
	embedded := filepath.Join(s.siteDir, s.archive.LogFilename)
	if err := s.fs.Remove(embedded); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", embedded).Msg("removing embedded archive log")
	}

	s.log.Info().Str("filename", opts.Filename).Str("site_dir", s.siteDir).Msg("archive restored")
	return nil
}

// download fetches a remote-only archive into the backup directory.
func (s *Service) download(ctx context.Context, e catalog.Entry) error {
	var errs []error
	for _, loc := range e.Locations {
		p, err := s.providers.Get(loc.Type)
		if err != nil {
			continue
		}
		if err := p.Download(ctx, e.Filename, e.Filepath); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Title(), err))
			continue
		}
		s.log.Info().Str("filename", e.Filename).Str("provider", p.Key()).Msg("downloaded archive")
		s.archives.Reset()
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: no provider can download %s", ErrNotFound, e.Filename)
	}
	return fmt.Errorf("downloading %s: %w", e.Filename, errors.Join(errs...))
}

// Register installs the restore job handler on q. Scheduled restores move
// the current site aside instead of deleting it.
func (s *Service) Register(q *jobs.Queue) {
	q.Register(ActionRestore, func(ctx context.Context, job jobs.Job) error {
		return s.Restore(ctx, RestoreOptions{Filename: job.ActionData, Archive: true})
	})
}
