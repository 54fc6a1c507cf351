package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/logging"
	"github.com/mcdonaldj/sitebak/internal/mocks"
	"github.com/mcdonaldj/sitebak/internal/ports"
)

type providerList struct {
	providers []ports.RemoteProvider
	disabled  map[string]bool
}

func (p *providerList) Providers() []ports.RemoteProvider { return p.providers }
func (p *providerList) IsEnabled(key string) bool         { return !p.disabled[key] }

const ident = "abc123"

func archiveName(ts string) string {
	return "sitebak-" + ident + "-blog-" + ts + ".zip"
}

func writeLocal(fs *mocks.MockFileSystem, name string, unix int64) {
	path := "/backups/" + name
	_ = fs.WriteFile(path, []byte("zip-bytes"), 0644)
	fs.ModTimes[path] = time.Unix(unix, 0)
}

func TestInitMergesLocationsByFilename(t *testing.T) {
	fs := mocks.NewMockFileSystem()
	writeLocal(fs, archiveName("20240101-000000"), 1704067200)
	writeLocal(fs, archiveName("20240102-000000"), 1704153600)
	writeLocal(fs, "unrelated.zip", 1704153600)

	dir := mocks.NewMockRemoteProvider("directory", "Directory")
	dir.Remote = []ports.RemoteArchive{
		{Filename: archiveName("20240102-000000"), Size: 9, LastModUnix: 1704153600},
		{Filename: archiveName("20231231-000000"), Size: 5, LastModUnix: 1703980800},
		{Filename: "sitebak-other-blog-20240101-000000.zip", Size: 5, LastModUnix: 1},
	}

	r := New(fs, &providerList{providers: []ports.RemoteProvider{dir}}, "/backups", ident, logging.Nop())
	r.Init(context.Background())

	all := r.All()
	require.Len(t, all, 3)

	// Newest first.
	assert.Equal(t, archiveName("20240102-000000"), all[0].Filename)
	assert.Equal(t, archiveName("20240101-000000"), all[1].Filename)
	assert.Equal(t, archiveName("20231231-000000"), all[2].Filename)

	both := all[0]
	assert.True(t, both.OnWebServer)
	assert.True(t, both.OnRemoteServer)
	assert.Len(t, both.Locations, 2)

	remoteOnly, ok := r.Lookup(archiveName("20231231-000000"))
	require.True(t, ok)
	assert.False(t, remoteOnly.OnWebServer)
	assert.True(t, remoteOnly.OnRemoteServer)
	assert.Equal(t, "/backups/"+archiveName("20231231-000000"), remoteOnly.Filepath)

	_, ok = r.Lookup("unrelated.zip")
	assert.False(t, ok)
}

func TestLocationCountMatchesEntries(t *testing.T) {
	fs := mocks.NewMockFileSystem()
	writeLocal(fs, archiveName("20240101-000000"), 100)
	writeLocal(fs, archiveName("20240102-000000"), 200)

	dir := mocks.NewMockRemoteProvider("directory", "Directory")
	dir.Remote = []ports.RemoteArchive{
		{Filename: archiveName("20240102-000000"), LastModUnix: 200},
		{Filename: archiveName("20240103-000000"), LastModUnix: 300},
		// Listed twice by the provider: still one location.
		{Filename: archiveName("20240103-000000"), LastModUnix: 300},
	}
	restic := mocks.NewMockRemoteProvider("restic", "Restic")
	restic.Remote = []ports.RemoteArchive{{Filename: archiveName("20240101-000000"), LastModUnix: 100}}

	r := New(fs, &providerList{providers: []ports.RemoteProvider{dir, restic}}, "/backups", ident, logging.Nop())
	r.Init(context.Background())

	all := r.All()
	counts := r.LocationCount()
	require.Equal(t, catalog.LocationAll, counts[0].Type)
	assert.Equal(t, len(all), counts[0].Count)

	for _, c := range counts[1:] {
		n := 0
		for _, e := range all {
			if e.HasLocation(c.Type) {
				n++
			}
		}
		assert.Equal(t, n, c.Count, c.Type)
	}

	assert.Equal(t, []string{"all", "on_web_server", "directory", "restic"}, countTypes(counts))
	assert.Equal(t, 3, r.CountOf(catalog.LocationAll))
	assert.Equal(t, 2, r.CountOf(catalog.LocationWebServer))
	assert.Equal(t, 2, r.CountOf("directory"))
	assert.Equal(t, 1, r.CountOf("restic"))
}

func countTypes(counts []Count) []string {
	var out []string
	for _, c := range counts {
		out = append(out, c.Type)
	}
	return out
}

func TestUnreachableProviderContributesNothing(t *testing.T) {
	fs := mocks.NewMockFileSystem()
	writeLocal(fs, archiveName("20240101-000000"), 100)

	broken := mocks.NewMockRemoteProvider("directory", "Directory")
	broken.Errors["List"] = errors.New("connection refused")

	r := New(fs, &providerList{providers: []ports.RemoteProvider{broken}}, "/backups", ident, logging.Nop())
	r.Init(context.Background())

	assert.Len(t, r.All(), 1)
	assert.Equal(t, 0, r.CountOf("directory"))
}

func TestDisabledAndUnconfiguredProvidersAreNotListed(t *testing.T) {
	fs := mocks.NewMockFileSystem()

	disabled := mocks.NewMockRemoteProvider("directory", "Directory")
	disabled.Remote = []ports.RemoteArchive{{Filename: archiveName("20240101-000000")}}
	notSetup := mocks.NewMockRemoteProvider("restic", "Restic")
	notSetup.Setup = false
	notSetup.Remote = []ports.RemoteArchive{{Filename: archiveName("20240102-000000")}}

	r := New(fs, &providerList{
		providers: []ports.RemoteProvider{disabled, notSetup},
		disabled:  map[string]bool{"directory": true},
	}, "/backups", ident, logging.Nop())
	r.Init(context.Background())

	assert.Empty(t, r.All())
	// Configured providers remain location types.
	assert.Len(t, r.LocationTypes(), 3)
}

func TestInitIsIdempotentUntilRefresh(t *testing.T) {
	fs := mocks.NewMockFileSystem()
	writeLocal(fs, archiveName("20240101-000000"), 100)

	r := New(fs, nil, "/backups", ident, logging.Nop())
	ctx := context.Background()
	r.Init(ctx)
	require.Len(t, r.All(), 1)

	writeLocal(fs, archiveName("20240102-000000"), 200)
	r.Init(ctx)
	assert.Len(t, r.All(), 1, "cached until refresh")

	r.Refresh(ctx)
	assert.Len(t, r.All(), 2)
}

func TestMissingBackupDirIsEmpty(t *testing.T) {
	r := New(mocks.NewMockFileSystem(), nil, "/nope", ident, logging.Nop())
	r.Init(context.Background())

	assert.Empty(t, r.All())
	assert.Equal(t, 0, r.CountOf(catalog.LocationAll))
}
