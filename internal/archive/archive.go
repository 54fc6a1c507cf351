// Package archive represents one backup file together with its log.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcdonaldj/sitebak/internal/archivelog"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/config"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/registry"
)

// LegacyCompressor produced every archive that predates archive logs.
const LegacyCompressor = config.CompressorNative

// DetailsPage is the admin page showing one archive.
const DetailsPage = "sitebak-archive-details"

var (
	// ErrNotArchive is returned when the archive is unbound or unknown.
	ErrNotArchive = errors.New("not a known archive")
	// ErrUnknownCompressor is returned when no compressor matches the log.
	ErrUnknownCompressor = errors.New("unknown compressor")
)

// Compressors resolves a compressor by the name recorded in an archive's log.
type Compressors map[string]ports.Compressor

// Deps are the collaborators of an Archive.
type Deps struct {
	FS          ports.FileSystem
	Logs        *archivelog.Store
	Registry    *registry.Registry
	Compressors Compressors
	Tokens      ports.TokenAuthority
	Auth        ports.Authorizer
	Log         zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Settings are the configuration values an Archive needs.
type Settings struct {
	SiteURL            string
	BackupIdentifier   string
	FilesystemMethod   string
	PublicLinkLifetime string
}

// SettingsFrom extracts the archive settings from cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		SiteURL:            cfg.SiteURL,
		BackupIdentifier:   cfg.BackupIdentifier,
		FilesystemMethod:   cfg.FilesystemMethod,
		PublicLinkLifetime: cfg.PublicLinkLifetime,
	}
}

// Archive is a request-scoped view of one backup file. Bind it to a file
// with Init.
type Archive struct {
	Filepath       string
	Filename       string
	Compressor     string
	Log            archivelog.Record
	LogFilepath    string
	LogFilename    string
	ViewDetailsURL string

	deps     Deps
	settings Settings
}

// New creates an unbound Archive.
func New(deps Deps, settings Settings) *Archive {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Log = deps.Log.With().Str("component", "archive").Logger()
	a := &Archive{deps: deps, settings: settings}
	a.Reset()
	return a
}

// Init binds the archive to path. Binding to the current path is a no-op;
// any other path resets the archive first. A missing log is recovered from
// the zip when possible.
func (a *Archive) Init(path string) {
	if a.Filepath != "" && path == a.Filepath {
		return
	}

	a.Reset()

	a.Filepath = path
	a.Filename = filepath.Base(path)
	a.LogFilepath = a.deps.Logs.PathFromZip(path)
	a.LogFilename = filepath.Base(a.LogFilepath)

	haveLog := a.deps.FS.Exists(a.LogFilepath)
	if !haveLog {
		haveLog = a.deps.Logs.RestoreByZip(path)
	}
	if haveLog {
		a.Log = a.deps.Logs.GetByZip(path)
	}
	a.Log.Zip = path

	a.Compressor = LegacyCompressor
	if v, ok := a.Log.Get(archivelog.KeyCompressor); ok && v.String() != "" {
		a.Compressor = v.String()
	}

	a.ViewDetailsURL = a.detailsURL()
}

// Reset unbinds the archive.
func (a *Archive) Reset() {
	a.Filepath = ""
	a.Filename = ""
	a.Compressor = ""
	a.Log = archivelog.Record{Attrs: archivelog.NewAttributes()}
	a.LogFilepath = ""
	a.LogFilename = ""
	a.ViewDetailsURL = ""
}

func (a *Archive) detailsURL() string {
	q := url.Values{}
	q.Set("page", DetailsPage)
	q.Set("filename", a.Filename)
	return strings.TrimRight(a.settings.SiteURL, "/") + "/admin.php?" + q.Encode()
}

// GetAttribute returns a log attribute. ok is false when the archive is
// unbound or the attribute is unset or null.
func (a *Archive) GetAttribute(key string) (archivelog.Value, bool) {
	if a.Filepath == "" {
		return archivelog.Null(), false
	}
	v, ok := a.Log.Get(key)
	if !ok || v.IsNull() {
		return archivelog.Null(), false
	}
	return v, true
}

// SetAttribute stores a log attribute and persists the log immediately.
func (a *Archive) SetAttribute(key string, value archivelog.Value) bool {
	if a.Filepath == "" {
		return false
	}
	rec, ok := a.deps.Logs.Update(a.Filepath, func(attrs *archivelog.Attributes) {
		attrs.Set(key, value)
	})
	a.Log = rec
	return ok
}

// UpdateTimestamp sets the zip's modification time to the log's
// lastmodunix, undoing the timestamp changes of uploads and downloads.
func (a *Archive) UpdateTimestamp() bool {
	v, ok := a.GetAttribute(archivelog.KeyLastModUnix)
	if !ok {
		return false
	}
	unix, ok := v.Int64()
	if !ok || unix <= 0 {
		return false
	}
	t := time.Unix(unix, 0)
	if err := a.deps.FS.Chtimes(a.Filepath, t, t); err != nil {
		a.deps.Log.Warn().Err(err).Str("filename", a.Filename).Msg("updating archive timestamp")
		return false
	}
	return true
}

// IsArchive reports whether path is one of the archives on the web server.
func (a *Archive) IsArchive(ctx context.Context, path string) bool {
	a.deps.Registry.Init(ctx)
	for _, e := range a.deps.Registry.All() {
		if e.OnWebServer && e.Filepath == path {
			return true
		}
	}
	return false
}

// IsSiteArchive reports whether filename is a backup of this site.
func (a *Archive) IsSiteArchive(filename string) bool {
	return catalog.IsSiteArchive(filename, a.settings.BackupIdentifier)
}

// IsStoredLocally reports whether the bound archive is on the web server.
func (a *Archive) IsStoredLocally(ctx context.Context) bool {
	a.deps.Registry.Init(ctx)
	e, ok := a.deps.Registry.Lookup(a.Filename)
	return ok && e.OnWebServer
}

// IsStoredRemotely reports whether a remote provider holds the bound archive.
func (a *Archive) IsStoredRemotely(ctx context.Context) bool {
	a.deps.Registry.Init(ctx)
	e, ok := a.deps.Registry.Lookup(a.Filename)
	return ok && e.OnRemoteServer
}

// GetByName returns the web server archive named filename.
func (a *Archive) GetByName(ctx context.Context, filename string) (catalog.Entry, bool) {
	a.deps.Registry.Init(ctx)
	e, ok := a.deps.Registry.Lookup(filename)
	if !ok || !e.OnWebServer {
		return catalog.Entry{}, false
	}
	return e, true
}

// CompressorImpl returns the compressor that produced the bound archive.
func (a *Archive) CompressorImpl() (ports.Compressor, error) {
	c, ok := a.deps.Compressors[a.Compressor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompressor, a.Compressor)
	}
	return c, nil
}

// GetFile reads one file from the bound archive. With metaOnly the
// content is dropped.
func (a *Archive) GetFile(ctx context.Context, file string, metaOnly bool) ([]ports.ArchiveFile, error) {
	if a.Filepath == "" || !a.IsArchive(ctx, a.Filepath) {
		return nil, ErrNotArchive
	}
	c, err := a.CompressorImpl()
	if err != nil {
		return nil, err
	}
	files, err := c.GetFile(a.Filepath, file)
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", file, a.Filename, err)
	}
	if metaOnly {
		for i := range files {
			files[i].Content = nil
		}
	}
	return files, nil
}

// Browse lists the entries of dir inside the bound archive. The embedded
// copy of the archive log is hidden.
func (a *Archive) Browse(ctx context.Context, dir string) ([]ports.ArchiveEntry, error) {
	if a.Filepath == "" || !a.IsArchive(ctx, a.Filepath) {
		return nil, ErrNotArchive
	}
	c, err := a.CompressorImpl()
	if err != nil {
		return nil, err
	}
	entries, err := c.Browse(a.Filepath, dir)
	if err != nil {
		return nil, fmt.Errorf("browsing %s: %w", a.Filename, err)
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Name == a.LogFilename {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Delete removes the zip at path and its log. The log is removed even when
// the zip is already gone; the result reports the zip deletion.
func (a *Archive) Delete(path string) bool {
	err := a.deps.FS.Remove(path)
	if err != nil {
		a.deps.Log.Warn().Err(err).Str("filepath", path).Msg("deleting archive")
	}

	a.deps.Logs.DeleteByZip(path)
	a.deps.Registry.Reset()

	if path == a.Filepath {
		a.Reset()
	}
	return err == nil
}
