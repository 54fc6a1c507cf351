package ports

import "time"

// Compressor abstracts zip archive operations for testability.
// Each archive records the name of the compressor that produced it; production
// code uses the zipcompressor (native) or execzip (shell utility) adapters and
// tests use MockCompressor.
type Compressor interface {
	// Name is the identifier stored in an archive's log under "compressor".
	Name() string

	// Create creates a zip archive of opts.SourceDir at opts.DestPath.
	// Returns the number of files archived (embedded extra files included).
	Create(opts CreateOptions) (fileCount int, err error)

	// Extract extracts a zip archive to destDir.
	Extract(zipPath, destDir string) error

	// Browse lists the immediate children of dir inside the archive, in the
	// order they appear. An empty dir lists the archive root.
	Browse(zipPath, dir string) ([]ArchiveEntry, error)

	// GetFile returns the named file from inside the archive. The result is
	// empty when the file is not present.
	GetFile(zipPath, file string) ([]ArchiveFile, error)
}

// CreateOptions configures a Compressor.Create call.
type CreateOptions struct {
	DestPath  string
	SourceDir string
	// Exclude is a list of patterns to skip (e.g., "cache", "*.tmp").
	Exclude []string
	// Extra holds additional files written at the archive root, keyed by name.
	Extra map[string][]byte
}

// ArchiveEntry describes a file or directory inside an archive.
type ArchiveEntry struct {
	Name         string
	Size         int64
	LastModified time.Time
	IsDir        bool
}

// ArchiveFile is an ArchiveEntry together with its content.
// Content is nil when only metadata was requested.
type ArchiveFile struct {
	ArchiveEntry
	Content []byte
}
