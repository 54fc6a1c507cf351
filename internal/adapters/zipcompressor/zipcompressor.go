// Package zipcompressor provides the native compressor adapter using the archive/zip package.
package zipcompressor

import (
	"archive/zip"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// Name is the identifier recorded in archive logs for this compressor.
const Name = "native"

// ZipCompressor implements ports.Compressor using archive/zip.
type ZipCompressor struct{}

// New creates a new ZipCompressor adapter.
func New() *ZipCompressor {
	return &ZipCompressor{}
}

// Name returns the compressor identifier.
func (a *ZipCompressor) Name() string {
	return Name
}

// ShouldExclude checks if a path should be excluded based on patterns.
func ShouldExclude(path string, excludePatterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range excludePatterns {
		// Check exact match
		if base == pattern {
			return true
		}
		// Check glob pattern
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// Create creates a zip archive of opts.SourceDir at opts.DestPath.
// Entries are stored relative to the source directory; extra files are
// written at the archive root after the walked files.
func (a *ZipCompressor) Create(opts ports.CreateOptions) (int, error) {
	zipFile, err := os.Create(opts.DestPath)
	if err != nil {
		return 0, err
	}

	w := zip.NewWriter(zipFile)
	fileCount := 0
	absDest, _ := filepath.Abs(opts.DestPath)

	walkErr := filepath.Walk(opts.SourceDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files with errors
		}

		if ShouldExclude(p, opts.Exclude) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil // Directories are created implicitly
		}

		// Never archive the archive being written (backup dir inside the site).
		if abs, _ := filepath.Abs(p); abs == absDest {
			return nil
		}

		relPath, err := filepath.Rel(opts.SourceDir, p)
		if err != nil {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return nil
		}
		header.Name = filepath.ToSlash(relPath)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return nil
		}

		file, err := os.Open(p)
		if err != nil {
			return nil
		}

		_, copyErr := io.Copy(writer, file)
		_ = file.Close() // Explicitly ignore close error - data already copied

		if copyErr != nil {
			return nil
		}

		fileCount++
		return nil
	})

	// Extra files go in sorted order so archives are reproducible.
	names := make([]string, 0, len(opts.Extra))
	for name := range opts.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()}
		header.SetMode(0644)
		writer, err := w.CreateHeader(header)
		if err != nil {
			_ = w.Close()
			_ = zipFile.Close()
			return 0, fmt.Errorf("adding %s: %w", name, err)
		}
		if _, err := writer.Write(opts.Extra[name]); err != nil {
			_ = w.Close()
			_ = zipFile.Close()
			return 0, fmt.Errorf("writing %s: %w", name, err)
		}
		fileCount++
	}

	// Close zip writer first to flush data
	if closeErr := w.Close(); closeErr != nil {
		_ = zipFile.Close() // Best effort cleanup on error path
		return 0, fmt.Errorf("closing zip writer: %w", closeErr)
	}

	// Then close the file
	if closeErr := zipFile.Close(); closeErr != nil {
		return 0, fmt.Errorf("closing zip file: %w", closeErr)
	}

	return fileCount, walkErr
}

// Extract extracts a zip archive to destDir.
func (a *ZipCompressor) Extract(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	// Get cleaned absolute path for destination
	absDestDir, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolving destination path: %w", err)
	}
	absDestDir = filepath.Clean(absDestDir)

	for _, f := range r.File {
		// SECURITY: Block symlinks to prevent symlink attacks
		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinks not supported in backups: %s", f.Name)
		}

		fpath := filepath.Join(destDir, f.Name)

		// SECURITY: Check for ZipSlip vulnerability
		if !IsWithinDir(absDestDir, fpath) {
			return fmt.Errorf("invalid file path (path traversal detected): %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, os.ModePerm); err != nil {
				return fmt.Errorf("creating directory %s: %w", fpath, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return fmt.Errorf("creating parent directory for %s: %w", fpath, err)
		}

		if err := extractFile(f, fpath); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}

	return nil
}

// MaxDecompressSize is the maximum allowed uncompressed file size (10GB).
// This prevents decompression bomb attacks (G110).
const MaxDecompressSize = 10 * 1024 * 1024 * 1024 // 10GB

// extractFile extracts a single file from the zip.
func extractFile(f *zip.File, destPath string) error {
	// SECURITY: Limit decompression size to prevent zip bombs (G110)
	declaredSize := f.UncompressedSize64
	if declaredSize > MaxDecompressSize {
		return fmt.Errorf("file too large: %d bytes exceeds limit of %d bytes", declaredSize, MaxDecompressSize)
	}

	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer func() { _ = outFile.Close() }()

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	// Add 1 byte to detect if actual size exceeds declared size
	limitedReader := io.LimitReader(rc, int64(declaredSize)+1)
	written, err := io.Copy(outFile, limitedReader)
	if err != nil {
		return err
	}

	if written > int64(declaredSize) {
		return fmt.Errorf("decompressed size exceeds declared size")
	}

	return nil
}

// IsWithinDir checks if the target path is within the base directory.
func IsWithinDir(absBaseDir, targetPath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absTarget = filepath.Clean(absTarget)

	return strings.HasPrefix(absTarget, absBaseDir+string(filepath.Separator)) ||
		absTarget == absBaseDir
}

// Browse lists the immediate children of dir inside the archive.
// Directories that only exist implicitly (as a prefix of file names) are
// reported once, in order of first appearance.
func (a *ZipCompressor) Browse(zipPath, dir string) ([]ports.ArchiveEntry, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	prefix := strings.Trim(filepath.ToSlash(dir), "/")
	if prefix != "" {
		prefix += "/"
	}

	var entries []ports.ArchiveEntry
	seenDirs := make(map[string]bool)
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, prefix) || f.Name == prefix {
			continue
		}
		rest := strings.TrimPrefix(f.Name, prefix)
		if idx := strings.Index(rest, "/"); idx != -1 {
			child := prefix + rest[:idx]
			if !seenDirs[child] {
				seenDirs[child] = true
				entries = append(entries, ports.ArchiveEntry{Name: child, IsDir: true, LastModified: f.Modified})
			}
			continue
		}
		entries = append(entries, ports.ArchiveEntry{
			Name:         f.Name,
			Size:         safeSize(f.UncompressedSize64),
			LastModified: f.Modified,
		})
	}

	return entries, nil
}

// GetFile reads a file, including its content, from inside a zip archive.
func (a *ZipCompressor) GetFile(zipPath, file string) ([]ports.ArchiveFile, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	target := path.Clean(filepath.ToSlash(file))
	for _, f := range r.File {
		if f.Name != target {
			continue
		}
		if f.UncompressedSize64 > MaxDecompressSize {
			return nil, fmt.Errorf("file too large: %s", file)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(io.LimitReader(rc, int64(f.UncompressedSize64)+1))
		_ = rc.Close()
		if err != nil {
			return nil, err
		}
		return []ports.ArchiveFile{{
			ArchiveEntry: ports.ArchiveEntry{
				Name:         f.Name,
				Size:         safeSize(f.UncompressedSize64),
				LastModified: f.Modified,
			},
			Content: content,
		}}, nil
	}

	return nil, nil
}

// safeSize converts an uncompressed size, guarding the uint64 -> int64 overflow.
func safeSize(n uint64) int64 {
	if n <= math.MaxInt64 {
		return int64(n)
	}
	return 0
}

// Compile-time check that ZipCompressor implements ports.Compressor.
var _ ports.Compressor = (*ZipCompressor)(nil)
