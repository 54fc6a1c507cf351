// Package registry aggregates every archive of the site across the web
// server and the remote storage providers into one deduplicated view.
//
// A Registry is request scoped: it is built on first use and cached for
// the rest of the invocation, never persisted.
package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/ports"
)

// WebServerTitle is the title of the web server location.
const WebServerTitle = "Web Server"

// ProviderSource lists the configured remote providers.
type ProviderSource interface {
	// Providers returns every configured provider in configured order.
	Providers() []ports.RemoteProvider
	// IsEnabled reports whether the provider key is an enabled location.
	IsEnabled(key string) bool
}

// Count is the number of archives at one location type.
type Count struct {
	Type  string
	Title string
	Count int
}

// Registry is the aggregated list of archives.
type Registry struct {
	fs         ports.FileSystem
	providers  ProviderSource
	backupDir  string
	identifier string
	log        zerolog.Logger

	initialized bool
	archives    map[string]*catalog.Entry
	all         []*catalog.Entry
	counts      []Count
}

// New creates a Registry listing backupDir and the enabled providers.
func New(fs ports.FileSystem, providers ProviderSource, backupDir, identifier string, log zerolog.Logger) *Registry {
	return &Registry{
		fs:         fs,
		providers:  providers,
		backupDir:  backupDir,
		identifier: identifier,
		log:        log.With().Str("component", "registry").Logger(),
	}
}

// BackupDir returns the local backup directory.
func (r *Registry) BackupDir() string {
	return r.backupDir
}

// Init builds the registry. Calling it again is a no-op until Reset.
func (r *Registry) Init(ctx context.Context) {
	if r.initialized {
		return
	}
	r.initialized = true
	r.archives = make(map[string]*catalog.Entry)
	r.all = nil

	r.addLocal()
	for _, p := range r.remoteProviders() {
		r.addRemote(ctx, p)
	}

	sort.SliceStable(r.all, func(i, j int) bool {
		if r.all[i].LastModUnix != r.all[j].LastModUnix {
			return r.all[i].LastModUnix > r.all[j].LastModUnix
		}
		return r.all[i].Filename < r.all[j].Filename
	})

	r.counts = r.count()
}

// Reset drops the cached state; the next Init rebuilds it.
func (r *Registry) Reset() {
	r.initialized = false
	r.archives = nil
	r.all = nil
	r.counts = nil
}

// Refresh rebuilds the registry.
func (r *Registry) Refresh(ctx context.Context) {
	r.Reset()
	r.Init(ctx)
}

func (r *Registry) remoteProviders() []ports.RemoteProvider {
	if r.providers == nil {
		return nil
	}
	var out []ports.RemoteProvider
	for _, p := range r.providers.Providers() {
		if r.providers.IsEnabled(p.Key()) && p.IsSetup() {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) addLocal() {
	entries, err := r.fs.ReadDir(r.backupDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn().Err(err).Str("dir", r.backupDir).Msg("listing backup directory")
		}
		return
	}

	loc := catalog.Location{
		Type:      catalog.LocationWebServer,
		Title:     WebServerTitle,
		TitleAttr: r.backupDir,
	}
	for _, de := range entries {
		if de.IsDir() || !catalog.IsSiteArchive(de.Name(), r.identifier) {
			continue
		}
		path := filepath.Join(r.backupDir, de.Name())
		info, err := r.fs.Stat(path)
		if err != nil {
			r.log.Warn().Err(err).Str("filename", de.Name()).Msg("reading archive info")
			continue
		}
		e := r.entry(de.Name(), info.Size(), info.ModTime().Unix())
		e.Filepath = path
		e.AddLocation(loc)
	}
}

func (r *Registry) addRemote(ctx context.Context, p ports.RemoteProvider) {
	list, err := p.List(ctx)
	if err != nil {
		r.log.Warn().Err(err).Str("provider", p.Key()).Msg("remote provider unavailable; skipping")
		return
	}

	loc := catalog.Location{Type: p.Key(), Title: p.Title(), TitleAttr: p.Title()}
	for _, ra := range list {
		if !catalog.IsSiteArchive(ra.Filename, r.identifier) {
			continue
		}
		e := r.entry(ra.Filename, ra.Size, ra.LastModUnix)
		e.AddLocation(loc)
	}
}

// entry returns the entry for filename, creating it on first sight.
func (r *Registry) entry(filename string, size, lastMod int64) *catalog.Entry {
	if e, ok := r.archives[filename]; ok {
		return e
	}
	e := &catalog.Entry{
		Filename:    filename,
		Filepath:    filepath.Join(r.backupDir, filename),
		Filedate:    catalog.FormatTimestamp(lastMod),
		Filesize:    size,
		LastModUnix: lastMod,
	}
	r.archives[filename] = e
	r.all = append(r.all, e)
	return e
}

func (r *Registry) count() []Count {
	counts := []Count{{Type: catalog.LocationAll, Title: "All", Count: len(r.all)}}
	for _, lt := range r.LocationTypes() {
		c := Count{Type: lt.Type, Title: lt.Title}
		for _, e := range r.all {
			if e.HasLocation(lt.Type) {
				c.Count++
			}
		}
		counts = append(counts, c)
	}
	return counts
}

// LocationTypes returns the known location types: the web server, then
// every configured provider in configured order.
func (r *Registry) LocationTypes() []catalog.Location {
	types := []catalog.Location{{Type: catalog.LocationWebServer, Title: WebServerTitle, TitleAttr: r.backupDir}}
	if r.providers == nil {
		return types
	}
	for _, p := range r.providers.Providers() {
		types = append(types, catalog.Location{Type: p.Key(), Title: p.Title(), TitleAttr: p.Title()})
	}
	return types
}

// All returns every archive, newest first.
func (r *Registry) All() []catalog.Entry {
	out := make([]catalog.Entry, len(r.all))
	for i, e := range r.all {
		out[i] = *e
	}
	return out
}

// Archives returns the archives keyed by filename.
func (r *Registry) Archives() map[string]catalog.Entry {
	out := make(map[string]catalog.Entry, len(r.archives))
	for k, e := range r.archives {
		out[k] = *e
	}
	return out
}

// Lookup returns the archive named filename.
func (r *Registry) Lookup(filename string) (catalog.Entry, bool) {
	e, ok := r.archives[filename]
	if !ok {
		return catalog.Entry{}, false
	}
	return *e, true
}

// LocationCount returns the number of archives per location type, starting
// with the "all" total.
func (r *Registry) LocationCount() []Count {
	return append([]Count(nil), r.counts...)
}

// CountOf returns the count for one location type.
func (r *Registry) CountOf(locationType string) int {
	for _, c := range r.counts {
		if c.Type == locationType {
			return c.Count
		}
	}
	return 0
}
