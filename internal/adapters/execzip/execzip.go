// Package execzip provides the shell compressor adapter, which runs the
// system zip and unzip utilities.
package execzip

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mcdonaldj/sitebak/internal/adapters/zipcompressor"
	"github.com/mcdonaldj/sitebak/internal/ports"
)

// Name is the identifier recorded in archive logs for this compressor.
const Name = "shell"

// ExecZip implements ports.Compressor with the zip and unzip binaries.
// Archives are plain zip files, so browsing reads them natively.
type ExecZip struct {
	*zipcompressor.ZipCompressor
	zipPath   string
	unzipPath string
}

// Option is a functional option for configuring ExecZip.
type Option func(*ExecZip)

// WithZipPath sets a custom path to the zip binary.
func WithZipPath(path string) Option {
	return func(z *ExecZip) { z.zipPath = path }
}

// WithUnzipPath sets a custom path to the unzip binary.
func WithUnzipPath(path string) Option {
	return func(z *ExecZip) { z.unzipPath = path }
}

// New creates a new ExecZip adapter.
func New(opts ...Option) *ExecZip {
	z := &ExecZip{
		ZipCompressor: zipcompressor.New(),
		zipPath:       "zip",
		unzipPath:     "unzip",
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Name returns the compressor identifier.
func (z *ExecZip) Name() string {
	return Name
}

// Available reports whether both binaries can be found.
func (z *ExecZip) Available() bool {
	_, zipErr := exec.LookPath(z.zipPath)
	_, unzipErr := exec.LookPath(z.unzipPath)
	return zipErr == nil && unzipErr == nil
}

// Create archives opts.SourceDir at opts.DestPath. The file list is built
// with the same exclusion rules as the native compressor and fed to zip on
// stdin; extra files are added at the archive root afterwards.
func (z *ExecZip) Create(opts ports.CreateOptions) (int, error) {
	files, err := listFiles(opts.SourceDir, opts.DestPath, opts.Exclude)
	if err != nil {
		return 0, err
	}

	count := 0
	if len(files) > 0 {
		cmd := exec.Command(z.zipPath, "-q", "-X", opts.DestPath, "-@")
		cmd.Dir = opts.SourceDir
		cmd.Stdin = strings.NewReader(strings.Join(files, "\n") + "\n")
		if out, err := cmd.CombinedOutput(); err != nil {
			return 0, fmt.Errorf("zip failed: %w: %s", err, string(out))
		}
		count = len(files)
	}

	if len(opts.Extra) > 0 {
		n, err := z.addExtra(opts.DestPath, opts.Extra)
		if err != nil {
			return 0, err
		}
		count += n
	}

	if count == 0 {
		return 0, fmt.Errorf("nothing to archive in %s", opts.SourceDir)
	}
	return count, nil
}

// addExtra writes the extra files to a scratch directory and adds them with
// junked paths.
func (z *ExecZip) addExtra(dest string, extra map[string][]byte) (int, error) {
	tmp, err := os.MkdirTemp("", "sitebak-extra-")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmp)

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)

	args := []string{"-q", "-X", "-j", dest}
	for _, name := range names {
		p := filepath.Join(tmp, filepath.Base(name))
		if err := os.WriteFile(p, extra[name], 0644); err != nil {
			return 0, err
		}
		args = append(args, p)
	}

	if out, err := exec.Command(z.zipPath, args...).CombinedOutput(); err != nil {
		return 0, fmt.Errorf("zip failed adding extra files: %w: %s", err, string(out))
	}
	return len(names), nil
}

// listFiles returns the regular files below root, relative to root.
func listFiles(root, dest string, exclude []string) ([]string, error) {
	absDest, _ := filepath.Abs(dest)
	var files []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if p != root && zipcompressor.ShouldExclude(p, exclude) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(p); abs == absDest {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

// Extract extracts a zip archive to destDir after checking that no entry
// escapes it.
func (z *ExecZip) Extract(zipPath, destDir string) error {
	names, err := z.names(zipPath)
	if err != nil {
		return err
	}

	absDestDir, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolving destination path: %w", err)
	}
	absDestDir = filepath.Clean(absDestDir)
	for _, name := range names {
		if !zipcompressor.IsWithinDir(absDestDir, filepath.Join(destDir, name)) {
			return fmt.Errorf("invalid file path (path traversal detected): %s", name)
		}
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	out, err := exec.Command(z.unzipPath, "-q", "-o", zipPath, "-d", destDir).CombinedOutput()
	if err != nil {
		return fmt.Errorf("unzip failed: %w: %s", err, string(out))
	}
	return nil
}

// names lists the entry names of an archive.
func (z *ExecZip) names(zipPath string) ([]string, error) {
	out, err := exec.Command(z.unzipPath, "-Z1", zipPath).Output()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", filepath.Base(zipPath), err)
	}
	var names []string
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}

// Compile-time check that ExecZip implements ports.Compressor.
var _ ports.Compressor = (*ExecZip)(nil)
