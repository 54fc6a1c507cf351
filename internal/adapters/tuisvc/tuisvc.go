// Package tuisvc provides the real implementation of ports.TUIService. The
// CLI uses the same service for its archive commands.
package tuisvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdonaldj/sitebak/internal/archive"
	"github.com/mcdonaldj/sitebak/internal/archivelog"
	"github.com/mcdonaldj/sitebak/internal/backup"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/compare"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/registry"
	"github.com/mcdonaldj/sitebak/internal/views"
)

// ErrRemoteOnly is returned for archives that are not on the web server.
var ErrRemoteOnly = errors.New("archive is only stored remotely")

// Service implements ports.TUIService on top of the registry and archive.
type Service struct {
	archives *registry.Registry
	archive  *archive.Archive
	views    *views.Views
	backups  *backup.Service
}

// New creates a new TUI service.
func New(archives *registry.Registry, a *archive.Archive, backups *backup.Service) *Service {
	return &Service{
		archives: archives,
		archive:  a,
		views:    views.New(archives, a),
		backups:  backups,
	}
}

// ListArchives returns the archive table, rescanning every location.
func (s *Service) ListArchives(ctx context.Context) ([]ports.TUIArchiveRow, []ports.TUICount, error) {
	s.archives.Reset()
	table := s.views.Table(ctx)

	rows := make([]ports.TUIArchiveRow, 0, len(table.Rows))
	for _, r := range table.Rows {
		rows = append(rows, ports.TUIArchiveRow{
			Filename:  r.Filename,
			Title:     r.Title,
			Date:      r.Date,
			Size:      r.Size,
			Locations: r.Locations,
			Protected: r.Protected,
		})
	}
	counts := make([]ports.TUICount, 0, len(table.Counts))
	for _, c := range table.Counts {
		counts = append(counts, ports.TUICount{Type: c.Type, Title: c.Title, Count: c.Count})
	}
	return rows, counts, nil
}

// Table returns the archive list with its location summary, rescanning
// every location.
func (s *Service) Table(ctx context.Context) views.Table {
	s.archives.Reset()
	return s.views.Table(ctx)
}

// Details returns the log attributes of filename and the entries of dir
// inside it.
func (s *Service) Details(ctx context.Context, filename, dir string) (ports.TUIDetails, error) {
	if err := s.bind(ctx, filename); err != nil {
		return ports.TUIDetails{}, err
	}

	d := ports.TUIDetails{Filename: filename, Compressor: s.archive.Compressor}
	for _, key := range s.archive.Log.Attrs.Keys() {
		v, _ := s.archive.Log.Attrs.Get(key)
		d.Attributes = append(d.Attributes, ports.TUIAttribute{Key: key, Value: v.String()})
	}

	entries, err := s.archive.Browse(ctx, dir)
	if err != nil {
		return d, err
	}
	for _, e := range entries {
		d.Entries = append(d.Entries, ports.TUIEntry{Name: e.Name, Size: e.Size, IsDir: e.IsDir})
	}
	return d, nil
}

// RunBackup performs a manual backup.
func (s *Service) RunBackup(ctx context.Context) (string, error) {
	res, err := s.backups.Create(ctx, backup.Options{Trigger: catalog.TriggerManual})
	if err != nil {
		return "", err
	}
	return res.Filename, nil
}

// SetProtected sets or clears the protect attribute of filename.
func (s *Service) SetProtected(ctx context.Context, filename string, protected bool) error {
	if err := s.bind(ctx, filename); err != nil {
		return err
	}
	value := archivelog.String("")
	if protected {
		value = archivelog.String("1")
	}
	if !s.archive.SetAttribute(archivelog.KeyProtect, value) {
		return fmt.Errorf("updating archive log of %s", filename)
	}
	return nil
}

// SetAttribute stores a string attribute in the log of filename.
func (s *Service) SetAttribute(ctx context.Context, filename, key, value string) error {
	if key == "" {
		return errors.New("attribute key is empty")
	}
	if err := s.bind(ctx, filename); err != nil {
		return err
	}
	if !s.archive.SetAttribute(key, archivelog.String(value)) {
		return fmt.Errorf("updating archive log of %s", filename)
	}
	return nil
}

// Delete removes the web server copy of filename and its log. Remote
// copies are kept.
func (s *Service) Delete(ctx context.Context, filename string) error {
	if err := s.bind(ctx, filename); err != nil {
		return err
	}
	if !s.archive.Delete(s.archive.Filepath) {
		return fmt.Errorf("deleting %s", filename)
	}
	return nil
}

// Link creates a time-limited public download link for filename.
func (s *Service) Link(ctx context.Context, filename string) (archive.DownloadLink, error) {
	link := s.archive.GenerateDownloadLink(ctx, filename)
	if link.Error != "" {
		return link, errors.New(link.Error)
	}
	return link, nil
}

// Compare lists the files that changed between two web server archives.
func (s *Service) Compare(ctx context.Context, oldFile, newFile string) (ports.TUIComparison, error) {
	oldPath, newPath, err := s.paths(ctx, oldFile, newFile)
	if err != nil {
		return ports.TUIComparison{}, err
	}
	res, err := compare.Archives(oldPath, newPath)
	if err != nil {
		return ports.TUIComparison{}, err
	}

	out := ports.TUIComparison{
		Old:      oldFile,
		New:      newFile,
		Added:    res.Added,
		Modified: res.Modified,
		Deleted:  res.Deleted,
	}
	for _, c := range res.Changes {
		out.Changes = append(out.Changes, ports.TUIChange{Path: c.Path, Status: c.Status, OldSize: c.OldSize, NewSize: c.NewSize})
	}
	return out, nil
}

// CompareFile returns the line diff of path between two archives.
func (s *Service) CompareFile(ctx context.Context, oldFile, newFile, path string) (ports.TUIFileDiff, error) {
	oldPath, newPath, err := s.paths(ctx, oldFile, newFile)
	if err != nil {
		return ports.TUIFileDiff{}, err
	}
	res, err := compare.File(oldPath, newPath, path)
	if err != nil {
		return ports.TUIFileDiff{}, err
	}

	out := ports.TUIFileDiff{Path: res.Path, IsBinary: res.IsBinary}
	for _, l := range res.Lines {
		out.Lines = append(out.Lines, ports.TUIDiffLine{Old: l.Old, New: l.New, Type: l.Type, Content: l.Content})
	}
	return out, nil
}

func (s *Service) paths(ctx context.Context, oldFile, newFile string) (string, string, error) {
	var paths [2]string
	for i, name := range []string{oldFile, newFile} {
		e, ok := s.archive.GetByName(ctx, name)
		if !ok {
			return "", "", fmt.Errorf("%w: %s", archive.ErrNotArchive, name)
		}
		paths[i] = e.Filepath
	}
	return paths[0], paths[1], nil
}

// bind binds the archive to the web server copy of filename.
func (s *Service) bind(ctx context.Context, filename string) error {
	e, ok := s.archive.GetByName(ctx, filename)
	if !ok {
		if _, known := s.archives.Lookup(filename); known {
			return fmt.Errorf("%w: %s", ErrRemoteOnly, filename)
		}
		return fmt.Errorf("%w: %s", archive.ErrNotArchive, filename)
	}
	s.archive.Init(e.Filepath)
	return nil
}

// Compile-time check that Service implements ports.TUIService.
var _ ports.TUIService = (*Service)(nil)
