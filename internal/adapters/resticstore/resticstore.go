// Package resticstore provides a remote provider that stores each archive
// as a restic snapshot.
package resticstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// Key is the storage location key of the provider.
const Key = "restic"

// Tag marks every snapshot created by sitebak.
const Tag = "sitebak"

// ErrNotInRepository is returned when no snapshot holds the archive.
var ErrNotInRepository = errors.New("archive not in repository")

// Breaker defaults. After FailureThreshold consecutive listing failures the
// repository is not contacted again until BreakerTimeout has passed.
const (
	FailureThreshold = 3
	BreakerTimeout   = time.Minute
)

// Store implements ports.RemoteProvider for a restic repository.
type Store struct {
	client   ports.ResticClient
	repo     string
	password string
	breaker  *gobreaker.CircuitBreaker[[]ports.Snapshot]
}

// New creates a restic provider for repo.
func New(client ports.ResticClient, repo, password string) *Store {
	return &Store{
		client:   client,
		repo:     repo,
		password: password,
		breaker: gobreaker.NewCircuitBreaker[[]ports.Snapshot](gobreaker.Settings{
			Name:    "restic:" + repo,
			Timeout: BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= FailureThreshold
			},
		}),
	}
}

// Key returns the provider key.
func (s *Store) Key() string { return Key }

// Title returns the provider title.
func (s *Store) Title() string { return "Restic" }

// IsSetup reports whether a repository and password are configured.
func (s *Store) IsSetup() bool { return s.repo != "" && s.password != "" }

// Upload snapshots the archive file, initializing the repository first if
// needed.
func (s *Store) Upload(ctx context.Context, path string) error {
	if !s.IsSetup() {
		return fmt.Errorf("restic storage is not configured")
	}
	if !s.client.IsInitialized(s.repo) {
		if err := s.client.Init(ctx, s.repo, s.password); err != nil && !strings.Contains(err.Error(), "already initialized") {
			return err
		}
	}
	_, err := s.client.Backup(ctx, s.repo, s.password, []string{path}, []string{Tag, fileTag(filepath.Base(path))})
	return err
}

// List returns one archive per filename, taken from its newest snapshot.
func (s *Store) List(ctx context.Context) ([]ports.RemoteArchive, error) {
	snaps, err := s.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	var archives []ports.RemoteArchive
	for _, name := range snaps.order {
		snap := snaps.latest[name]
		a := ports.RemoteArchive{Filename: name, LastModUnix: snap.Time.Unix()}
		if snap.Summary != nil {
			a.Size = snap.Summary.TotalBytesProcessed
		}
		archives = append(archives, a)
	}
	return archives, nil
}

// Download restores the newest snapshot of filename to destPath.
func (s *Store) Download(ctx context.Context, filename, destPath string) error {
	snaps, err := s.snapshots(ctx)
	if err != nil {
		return err
	}
	snap, ok := snaps.latest[filename]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInRepository, filename)
	}
	src := archivePath(snap)

	tmp, err := os.MkdirTemp(filepath.Dir(destPath), ".sitebak-restore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := s.client.Restore(ctx, s.repo, s.password, snap.ID, tmp, []string{src}); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(tmp, src), destPath); err != nil {
		return fmt.Errorf("moving restored archive: %w", err)
	}
	return nil
}

type snapshotIndex struct {
	latest map[string]ports.Snapshot
	order  []string
}

func (s *Store) snapshots(ctx context.Context) (snapshotIndex, error) {
	idx := snapshotIndex{latest: make(map[string]ports.Snapshot)}
	if !s.IsSetup() || !s.client.IsInitialized(s.repo) {
		return idx, nil
	}

	snaps, err := s.breaker.Execute(func() ([]ports.Snapshot, error) {
		return s.client.Snapshots(ctx, s.repo, s.password, []string{Tag})
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return idx, fmt.Errorf("restic repository unavailable: %w", err)
	}
	if err != nil {
		return idx, err
	}
	for _, snap := range snaps {
		p := archivePath(snap)
		if p == "" {
			continue
		}
		name := filepath.Base(p)
		prev, seen := idx.latest[name]
		if !seen {
			idx.order = append(idx.order, name)
		}
		if !seen || snap.Time.After(prev.Time) {
			idx.latest[name] = snap
		}
	}
	return idx, nil
}

// archivePath is the single archive path recorded by Upload.
func archivePath(snap ports.Snapshot) string {
	if len(snap.Paths) != 1 {
		return ""
	}
	return snap.Paths[0]
}

func fileTag(filename string) string {
	return "file:" + filename
}

// Compile-time check that Store implements ports.RemoteProvider.
var _ ports.RemoteProvider = (*Store)(nil)
