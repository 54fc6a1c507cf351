package mocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// MockResticClient implements ports.ResticClient for testing.
type MockResticClient struct {
	// InitializedRepos tracks which repos have been initialized
	InitializedRepos map[string]bool
	// Snapshots stores snapshots by repo path
	SnapshotsByRepo map[string][]ports.Snapshot
	// Contents holds the backed up file data by snapshot ID and path
	Contents map[string]map[string][]byte
	// RestoreCalls records restore calls
	RestoreCalls []RestoreCall
	// NextSnapshotID is returned by the next Backup call
	NextSnapshotID string
	// SnapshotsCalls counts Snapshots calls
	SnapshotsCalls int
	// Errors allows simulating errors for specific operations
	Errors struct {
		Init      error
		Backup    error
		Snapshots error
		Restore   error
	}
}

// RestoreCall records parameters of a Restore call.
type RestoreCall struct {
	RepoPath   string
	SnapshotID string
	TargetDir  string
	Include    []string
}

// NewMockResticClient creates a new mock restic client.
func NewMockResticClient() *MockResticClient {
	return &MockResticClient{
		InitializedRepos: make(map[string]bool),
		SnapshotsByRepo:  make(map[string][]ports.Snapshot),
		Contents:         make(map[string]map[string][]byte),
		NextSnapshotID:   "abc12345",
	}
}

// Init initializes a new restic repository at the given path.
func (m *MockResticClient) Init(ctx context.Context, repoPath, password string) error {
	if m.Errors.Init != nil {
		return m.Errors.Init
	}
	if m.InitializedRepos[repoPath] {
		return fmt.Errorf("repository already initialized at %s", repoPath)
	}
	m.InitializedRepos[repoPath] = true
	return nil
}

// Backup records a snapshot of paths. Regular files are read so that a
// later Restore can write them back.
func (m *MockResticClient) Backup(ctx context.Context, repoPath, password string, paths []string, tags []string) (string, error) {
	if m.Errors.Backup != nil {
		return "", m.Errors.Backup
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no paths specified for backup")
	}

	snapshotID := m.NextSnapshotID
	if n := len(m.SnapshotsByRepo[repoPath]); n > 0 {
		snapshotID = fmt.Sprintf("%s-%d", m.NextSnapshotID, n)
	}

	var total int64
	m.Contents[snapshotID] = make(map[string][]byte)
	for _, p := range paths {
		if data, err := os.ReadFile(p); err == nil {
			m.Contents[snapshotID][p] = data
			total += int64(len(data))
		}
	}

	snapshot := ports.Snapshot{
		ID:       snapshotID,
		ShortID:  snapshotID,
		Time:     time.Now(),
		Hostname: "test-host",
		Paths:    paths,
		Tags:     tags,
		Summary:  &ports.SnapshotSummary{TotalBytesProcessed: total},
	}

	m.SnapshotsByRepo[repoPath] = append(m.SnapshotsByRepo[repoPath], snapshot)
	return snapshotID, nil
}

// Snapshots returns all snapshots in the repository.
func (m *MockResticClient) Snapshots(ctx context.Context, repoPath, password string, tags []string) ([]ports.Snapshot, error) {
	m.SnapshotsCalls++
	if m.Errors.Snapshots != nil {
		return nil, m.Errors.Snapshots
	}

	snapshots := m.SnapshotsByRepo[repoPath]
	if snapshots == nil {
		return []ports.Snapshot{}, nil
	}

	// Filter by tags if specified
	if len(tags) == 0 {
		return snapshots, nil
	}

	var filtered []ports.Snapshot
	for _, snap := range snapshots {
		if matchesTags(snap.Tags, tags) {
			filtered = append(filtered, snap)
		}
	}
	return filtered, nil
}

// Restore writes the snapshot's recorded files below targetDir, keeping
// their original absolute paths like restic does.
func (m *MockResticClient) Restore(ctx context.Context, repoPath, password, snapshotID, targetDir string, include []string) error {
	m.RestoreCalls = append(m.RestoreCalls, RestoreCall{
		RepoPath:   repoPath,
		SnapshotID: snapshotID,
		TargetDir:  targetDir,
		Include:    include,
	})
	if m.Errors.Restore != nil {
		return m.Errors.Restore
	}

	for path, data := range m.Contents[snapshotID] {
		dest := filepath.Join(targetDir, path)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// IsInitialized checks if a restic repository exists at the given path.
func (m *MockResticClient) IsInitialized(repoPath string) bool {
	return m.InitializedRepos[repoPath]
}

// matchesTags checks if any snapshot tag matches any filter tag.
func matchesTags(snapshotTags, filterTags []string) bool {
	for _, st := range snapshotTags {
		for _, ft := range filterTags {
			if st == ft {
				return true
			}
		}
	}
	return false
}

// Compile-time check that MockResticClient implements ports.ResticClient.
var _ ports.ResticClient = (*MockResticClient)(nil)
