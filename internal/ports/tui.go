package ports

import "context"

// TUIArchiveRow is one archive as shown in the archive list.
type TUIArchiveRow struct {
	Filename  string
	Title     string
	Date      string
	Size      string
	Locations string
	Protected bool
}

// TUICount is one entry of the per-location summary, e.g. "Web Server (4)".
type TUICount struct {
	Type  string
	Title string
	Count int
}

// TUIAttribute is a single log attribute of an archive.
type TUIAttribute struct {
	Key   string
	Value string
}

// TUIEntry is a file or directory inside an archive.
type TUIEntry struct {
	Name  string
	Size  int64
	IsDir bool
}

// TUIDetails contains everything the details view shows for one archive.
type TUIDetails struct {
	Filename   string
	Compressor string
	Attributes []TUIAttribute
	Entries    []TUIEntry
}

// TUIChange is one file that differs between two archives.
type TUIChange struct {
	Path    string
	Status  rune // 'A' added, 'M' modified, 'D' deleted
	OldSize int64
	NewSize int64
}

// TUIComparison lists the changed files between two archives.
type TUIComparison struct {
	Old      string
	New      string
	Changes  []TUIChange
	Added    int
	Modified int
	Deleted  int
}

// TUIDiffLine is one line of a file diff.
type TUIDiffLine struct {
	Old     int
	New     int
	Type    rune // '+', '-' or ' '
	Content string
}

// TUIFileDiff is the line diff of one file between two archives.
type TUIFileDiff struct {
	Path     string
	Lines    []TUIDiffLine
	IsBinary bool
}

// TUIService provides operations needed by the TUI.
// This abstraction allows the TUI to be tested without real filesystem/backup operations.
type TUIService interface {
	// ListArchives returns the archive rows and location counts.
	ListArchives(ctx context.Context) ([]TUIArchiveRow, []TUICount, error)

	// Details returns the log attributes and root entries of an archive.
	Details(ctx context.Context, filename, dir string) (TUIDetails, error)

	// RunBackup performs a manual backup and returns the new archive's filename.
	RunBackup(ctx context.Context) (string, error)

	// SetProtected flags an archive as protected from retention, or clears it.
	SetProtected(ctx context.Context, filename string, protected bool) error

	// Compare lists the files that changed from oldFile to newFile.
	Compare(ctx context.Context, oldFile, newFile string) (TUIComparison, error)

	// CompareFile returns the line diff of path between two archives.
	CompareFile(ctx context.Context, oldFile, newFile, path string) (TUIFileDiff, error)
}
