package ports

import (
	"context"
	"time"
)

// Snapshot represents a restic backup snapshot.
type Snapshot struct {
	ID       string           `json:"id"`       // Snapshot ID
	ShortID  string           `json:"short_id"` // Abbreviated snapshot ID
	Time     time.Time        `json:"time"`     // Snapshot creation time
	Hostname string           `json:"hostname"` // Machine hostname
	Paths    []string         `json:"paths"`    // Backed up paths
	Tags     []string         `json:"tags"`     // Snapshot tags
	Summary  *SnapshotSummary `json:"summary,omitempty"`
}

// SnapshotSummary is reported by restic 0.17 and later.
type SnapshotSummary struct {
	TotalBytesProcessed int64 `json:"total_bytes_processed"`
}

// ResticClient abstracts restic operations for testability.
// Production code uses the execrestic adapter; tests use MockResticClient.
type ResticClient interface {
	// Init initializes a new restic repository at the given path.
	// Returns an error if the repository already exists or cannot be created.
	Init(ctx context.Context, repoPath, password string) error

	// Backup creates a new backup of the given paths to the repository.
	// Tags can be used to identify/filter snapshots later.
	// Returns the snapshot ID on success.
	Backup(ctx context.Context, repoPath, password string, paths []string, tags []string) (string, error)

	// Snapshots returns all snapshots in the repository.
	// Can optionally filter by tags.
	Snapshots(ctx context.Context, repoPath, password string, tags []string) ([]Snapshot, error)

	// Restore restores a snapshot to the given target directory. Restic
	// recreates the original absolute paths below targetDir. When include is
	// non-empty only matching paths are restored.
	Restore(ctx context.Context, repoPath, password, snapshotID, targetDir string, include []string) error

	// IsInitialized checks if a restic repository exists at the given path.
	IsInitialized(repoPath string) bool
}
