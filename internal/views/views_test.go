package views

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdonaldj/sitebak/internal/adapters/osfs"
	"github.com/mcdonaldj/sitebak/internal/adapters/zipcompressor"
	"github.com/mcdonaldj/sitebak/internal/archive"
	"github.com/mcdonaldj/sitebak/internal/archivelog"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/logging"
	"github.com/mcdonaldj/sitebak/internal/mocks"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/registry"
)

const ident = "abc123"

type providers struct{ list []ports.RemoteProvider }

func (p providers) Providers() []ports.RemoteProvider { return p.list }
func (p providers) IsEnabled(string) bool             { return true }

type fixture struct {
	backupDir string
	siteDir   string
	logs      *archivelog.Store
	remote    *mocks.MockRemoteProvider
	archive   *archive.Archive
	registry  *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		backupDir: filepath.Join(root, "backups"),
		siteDir:   filepath.Join(root, "site"),
		remote:    mocks.NewMockRemoteProvider("directory", "Directory"),
	}
	require.NoError(t, os.MkdirAll(f.backupDir, 0755))
	require.NoError(t, os.MkdirAll(f.siteDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.siteDir, "index.php"), []byte("<?php"), 0644))

	fs := osfs.New()
	zc := zipcompressor.New()
	f.logs = archivelog.NewStore(fs, osfs.NewLocker(), zc, logging.Nop())
	f.registry = registry.New(fs, providers{list: []ports.RemoteProvider{f.remote}}, f.backupDir, ident, logging.Nop())
	f.archive = archive.New(archive.Deps{
		FS:          fs,
		Logs:        f.logs,
		Registry:    f.registry,
		Compressors: archive.Compressors{zc.Name(): zc},
		Auth:        ports.AllowAll{},
		Log:         logging.Nop(),
	}, archive.Settings{SiteURL: "https://example.com", BackupIdentifier: ident, FilesystemMethod: "direct", PublicLinkLifetime: "1 hour"})
	return f
}

// makeZip creates an archive without any metadata and dates it at unix.
func (f *fixture) makeZip(t *testing.T, name string, unix int64) string {
	t.Helper()
	path := filepath.Join(f.backupDir, name)
	_, err := zipcompressor.New().Create(ports.CreateOptions{DestPath: path, SourceDir: f.siteDir})
	require.NoError(t, err)
	ts := time.Unix(unix, 0)
	require.NoError(t, os.Chtimes(path, ts, ts))
	return path
}

func name(ts string) string {
	return catalog.Prefix + ident + "-blog-" + ts + catalog.Extension
}

func TestLegacyArchiveRendersTimestamp(t *testing.T) {
	f := newFixture(t)
	path := f.makeZip(t, name("20240101-000000"), 1704067200)

	f.archive.Init(path)
	assert.False(t, f.logs.Exists(path), "no log to restore")
	assert.Equal(t, 0, f.archive.Log.Attrs.Len())
	assert.Equal(t, archive.LegacyCompressor, f.archive.Compressor)
	_, ok := f.archive.GetAttribute(archivelog.KeyTitle)
	assert.False(t, ok)

	table := New(f.registry, f.archive).Table(context.Background())
	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, catalog.FormatTimestamp(1704067200), row.Title)
	assert.False(t, row.HasTitle)
	assert.Equal(t, row.Date, row.Title)
	assert.Equal(t, "Web Server", row.Locations)
	assert.Contains(t, row.DetailsURL, "filename="+name("20240101-000000"))
}

func TestTitledProtectedArchive(t *testing.T) {
	f := newFixture(t)
	path := f.makeZip(t, name("20240102-000000"), 1704153600)

	attrs := archivelog.NewAttributes()
	attrs.Set(archivelog.KeyTitle, archivelog.String("Before upgrade"))
	attrs.Set(archivelog.KeyProtect, archivelog.String("1"))
	require.True(t, f.logs.Write(archivelog.Record{Zip: path, Attrs: attrs}))

	f.remote.Remote = []ports.RemoteArchive{{Filename: name("20240102-000000"), Size: 10, LastModUnix: 1704153600}}

	table := New(f.registry, f.archive).Table(context.Background())
	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, "Before upgrade", row.Title)
	assert.True(t, row.HasTitle)
	assert.True(t, row.Protected)
	assert.Equal(t, "Web Server"+LockMarker+", Directory", row.Locations)
}

func TestTableKeepsRegistryOrderAndCounts(t *testing.T) {
	f := newFixture(t)
	f.makeZip(t, name("20240101-000000"), 1704067200)
	f.makeZip(t, name("20240103-000000"), 1704240000)
	f.remote.Remote = []ports.RemoteArchive{
		{Filename: name("20240103-000000"), Size: 10, LastModUnix: 1704240000},
		{Filename: name("20231201-000000"), Size: 10, LastModUnix: 1701388800},
	}

	v := New(f.registry, f.archive)
	table := v.Table(context.Background())

	var names []string
	for _, r := range table.Rows {
		names = append(names, r.Filename)
	}
	var expected []string
	for _, e := range f.registry.All() {
		expected = append(expected, e.Filename)
	}
	assert.Equal(t, expected, names)
	assert.Equal(t, name("20240103-000000"), names[0])

	assert.Equal(t, []Count{
		{Type: catalog.LocationAll, Title: "All", Count: 3, Current: true},
		{Type: catalog.LocationWebServer, Title: "Web Server", Count: 2},
		{Type: "directory", Title: "Directory", Count: 2},
	}, table.Counts)
	assert.Equal(t, "All (3) | Web Server (2) | Directory (2)", v.CountSummary(context.Background()))
}

func TestEmptyTable(t *testing.T) {
	f := newFixture(t)
	table := New(f.registry, f.archive).Table(context.Background())
	assert.True(t, table.Empty())
	assert.Equal(t, "All (0) | Web Server (0) | Directory (0)", FormatCounts(table.Counts))
}

func TestLocationTitle(t *testing.T) {
	assert.Equal(t, "All", LocationTitle(catalog.LocationAll, "ignored"))
	assert.Equal(t, "Web Server", LocationTitle(catalog.LocationWebServer, ""))
	assert.Equal(t, "Directory", LocationTitle("directory", "Directory"))
	assert.Equal(t, "Remote", LocationTitle("ftp", ""))
}

func TestLocationsWithoutProtection(t *testing.T) {
	e := catalog.Entry{}
	e.AddLocation(catalog.Location{Type: catalog.LocationWebServer, Title: "Web Server"})
	e.AddLocation(catalog.Location{Type: "restic", Title: "Restic"})
	assert.Equal(t, "Web Server, Restic", Locations(e, false))
}
