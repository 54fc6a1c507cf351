// Package dirstore provides a remote provider that copies archives to a
// directory, typically a mounted network share.
package dirstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/ports"
)

// Key is the storage location key of the provider.
const Key = "directory"

// Store implements ports.RemoteProvider for a directory.
type Store struct {
	dir string
}

// New creates a directory provider. An empty dir leaves it not set up.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Key returns the provider key.
func (s *Store) Key() string { return Key }

// Title returns the provider title.
func (s *Store) Title() string { return "Directory" }

// IsSetup reports whether a directory is configured.
func (s *Store) IsSetup() bool { return s.dir != "" }

// Upload copies the archive into the directory.
func (s *Store) Upload(ctx context.Context, path string) error {
	if !s.IsSetup() {
		return fmt.Errorf("directory storage is not configured")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}
	return copyFile(ctx, path, filepath.Join(s.dir, filepath.Base(path)))
}

// List returns the archives in the directory.
func (s *Store) List(ctx context.Context) ([]ports.RemoteArchive, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var archives []ports.RemoteArchive
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, catalog.Prefix) || !strings.HasSuffix(name, catalog.Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, ports.RemoteArchive{
			Filename:    name,
			Size:        info.Size(),
			LastModUnix: info.ModTime().Unix(),
		})
	}
	return archives, nil
}

// Download copies filename from the directory to destPath.
func (s *Store) Download(ctx context.Context, filename, destPath string) error {
	if filename != filepath.Base(filename) {
		return fmt.Errorf("invalid archive name %q", filename)
	}
	return copyFile(ctx, filepath.Join(s.dir, filename), destPath)
}

// copyFile copies src to dst through a temporary file in dst's directory,
// so dst never holds a partial copy. The modification time is preserved.
func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".sitebak-*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: in}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copying %s: %w", filepath.Base(src), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Compile-time check that Store implements ports.RemoteProvider.
var _ ports.RemoteProvider = (*Store)(nil)
