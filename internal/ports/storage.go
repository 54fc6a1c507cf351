package ports

import "context"

// RemoteArchive is an archive reported by a remote storage provider.
type RemoteArchive struct {
	Filename    string
	Size        int64
	LastModUnix int64
}

// RemoteProvider abstracts a remote storage location (a mounted directory, a
// restic repository, ...). Wire protocols live entirely behind this interface.
type RemoteProvider interface {
	// Key is the provider's stable identifier, e.g. "directory".
	Key() string

	// Title is the human label, e.g. "Directory".
	Title() string

	// IsSetup reports whether the provider has the configuration it needs.
	IsSetup() bool

	// Upload copies the archive at filepath to the provider.
	Upload(ctx context.Context, filepath string) error

	// List returns the archives currently held by the provider.
	List(ctx context.Context) ([]RemoteArchive, error)

	// Download copies filename from the provider to destPath.
	Download(ctx context.Context, filename, destPath string) error
}
