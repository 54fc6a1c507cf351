// Package storage knows the storage locations of the site's archives: the
// web server itself ("local") and the remote providers. It owns the jobs
// that move archives between them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/config"
	"github.com/mcdonaldj/sitebak/internal/jobs"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/registry"
)

// Job actions.
const (
	ActionDeleteLocal  = "delete_local"
	UploadActionPrefix = "upload_"
)

var (
	// ErrUnknownProvider is returned for a provider key that is not configured.
	ErrUnknownProvider = errors.New("unknown storage provider")
	// ErrNoRemoteCopy is returned when deleting the only copy of an archive.
	ErrNoRemoteCopy = errors.New("archive has no remote copy")
)

// Enqueuer adds jobs to the job queue.
type Enqueuer interface {
	Add(job jobs.Job) (bool, error)
}

// UploadAction returns the job action uploading to the provider key.
func UploadAction(key string) string {
	return UploadActionPrefix + key
}

// Registry holds the configured remote providers in configured order.
type Registry struct {
	providers []ports.RemoteProvider
	enabled   map[string]bool
}

// NewRegistry creates a Registry. locations enables or disables storage
// keys; providers missing from locations are disabled.
func NewRegistry(locations []config.StorageLocation, providers ...ports.RemoteProvider) *Registry {
	r := &Registry{enabled: make(map[string]bool)}
	for _, l := range locations {
		r.enabled[l.Key] = l.Enabled
	}
	order := make(map[string]int)
	for i, l := range locations {
		order[l.Key] = i
	}
	// Providers named in the configuration come first, in that order.
	for _, l := range locations {
		for _, p := range providers {
			if p.Key() == l.Key {
				r.providers = append(r.providers, p)
			}
		}
	}
	for _, p := range providers {
		if _, ok := order[p.Key()]; !ok {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// Providers returns every configured provider.
func (r *Registry) Providers() []ports.RemoteProvider {
	return append([]ports.RemoteProvider(nil), r.providers...)
}

// IsEnabled reports whether the storage key is an enabled location. This
// includes "local", which has no provider.
func (r *Registry) IsEnabled(key string) bool {
	return r.enabled[key]
}

// Enabled returns the providers that are enabled and set up.
func (r *Registry) Enabled() []ports.RemoteProvider {
	var out []ports.RemoteProvider
	for _, p := range r.providers {
		if r.enabled[p.Key()] && p.IsSetup() {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the provider with the given key.
func (r *Registry) Get(key string) (ports.RemoteProvider, error) {
	for _, p := range r.providers {
		if p.Key() == key {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
}

// EnqueueUploads queues an upload of the archive at path to every enabled
// provider.
func (r *Registry) EnqueueUploads(q Enqueuer, path string) error {
	var errs []error
	for _, p := range r.Enabled() {
		_, err := q.Add(jobs.Job{
			Action:      UploadAction(p.Key()),
			ActionData:  path,
			ActionTitle: "Upload backup to " + p.Title(),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register installs an upload handler per provider on q.
func (r *Registry) Register(q *jobs.Queue, log zerolog.Logger) {
	for _, p := range r.providers {
		q.Register(UploadAction(p.Key()), uploadHandler(p, log))
	}
}

func uploadHandler(p ports.RemoteProvider, log zerolog.Logger) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		if !p.IsSetup() {
			return fmt.Errorf("%s is not set up", p.Title())
		}
		if err := p.Upload(ctx, job.ActionData); err != nil {
			return fmt.Errorf("uploading %s to %s: %w", filepath.Base(job.ActionData), p.Title(), err)
		}
		log.Info().Str("provider", p.Key()).Str("filepath", job.ActionData).Msg("archive uploaded")
		return nil
	}
}

// ArchiveInfo describes a freshly created archive.
type ArchiveInfo struct {
	Filepath      string
	Trigger       string
	PreAutoUpdate bool
}

// Local is the web server storage location.
type Local struct {
	fs        ports.FileSystem
	providers *Registry
	archives  *registry.Registry
	queue     Enqueuer
	log       zerolog.Logger
}

// NewLocal creates the web server storage location.
func NewLocal(fs ports.FileSystem, providers *Registry, archives *registry.Registry, queue Enqueuer, log zerolog.Logger) *Local {
	return &Local{
		fs:        fs,
		providers: providers,
		archives:  archives,
		queue:     queue,
		log:       log.With().Str("component", "storage-local").Logger(),
	}
}

// DeleteLocal removes the archive at path from the web server. It refuses
// while no remote provider holds a copy.
func (l *Local) DeleteLocal(ctx context.Context, path string) error {
	l.archives.Refresh(ctx)
	e, ok := l.archives.Lookup(filepath.Base(path))
	if !ok || !e.OnRemoteServer {
		return fmt.Errorf("%w: %s", ErrNoRemoteCopy, filepath.Base(path))
	}
	if err := l.fs.Remove(path); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	l.archives.Reset()
	l.log.Info().Str("filepath", path).Msg("deleted local copy")
	return nil
}

// PostArchiveFiles runs after an archive is created. A scheduled backup
// that is not kept on the web server gets its local copy deleted by a
// later job, once the uploads have run. It reports whether a job was queued.
func (l *Local) PostArchiveFiles(info ArchiveInfo) (bool, error) {
	if info.Trigger != catalog.TriggerScheduled || info.PreAutoUpdate {
		return false, nil
	}
	if l.providers.IsEnabled(config.StorageLocal) {
		return false, nil
	}

	added, err := l.queue.Add(jobs.Job{
		Action:      ActionDeleteLocal,
		ActionData:  info.Filepath,
		ActionTitle: "Delete backup from Web Server",
	})
	if err != nil {
		return false, fmt.Errorf("queueing local delete: %w", err)
	}
	return added, nil
}

// Register installs the delete_local handler on q.
func (l *Local) Register(q *jobs.Queue) {
	q.Register(ActionDeleteLocal, func(ctx context.Context, job jobs.Job) error {
		if strings.TrimSpace(job.ActionData) == "" {
			return errors.New("delete_local job without a file path")
		}
		return l.DeleteLocal(ctx, job.ActionData)
	})
}

// Compile-time check that Registry can feed the archive registry.
var _ registry.ProviderSource = (*Registry)(nil)
