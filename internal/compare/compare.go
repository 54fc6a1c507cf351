// Package compare reports what changed in the site between two archives.
package compare

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mcdonaldj/sitebak/internal/archivelog"
)

// Change statuses.
const (
	Added    = 'A'
	Modified = 'M'
	Deleted  = 'D'
)

// MaxFileSize is the largest file whose content is diffed.
const MaxFileSize = 4 << 20

// Change is one file that differs between two archives.
type Change struct {
	Path    string
	Status  rune
	OldSize int64
	NewSize int64
}

// Result is the comparison of two archives.
type Result struct {
	Old      string
	New      string
	Changes  []Change
	Added    int
	Modified int
	Deleted  int
}

// Line is one line of a file diff. Old or New is 0 when the line does not
// exist on that side.
type Line struct {
	Old     int
	New     int
	Type    rune // '+' added, '-' deleted, ' ' unchanged
	Content string
}

// FileResult is the line diff of a single file.
type FileResult struct {
	Path     string
	Lines    []Line
	IsBinary bool
}

// Archives compares the files of the archives at oldPath and newPath. The
// embedded archive logs are ignored. Changes are ordered modified, added,
// deleted, then by path.
func Archives(oldPath, newPath string) (*Result, error) {
	files1, err := listFiles(oldPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(oldPath), err)
	}
	files2, err := listFiles(newPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(newPath), err)
	}

	result := &Result{Old: filepath.Base(oldPath), New: filepath.Base(newPath)}

	all := make(map[string]bool)
	for p := range files1 {
		all[p] = true
	}
	for p := range files2 {
		all[p] = true
	}

	for p := range all {
		info1, in1 := files1[p]
		info2, in2 := files2[p]

		change := Change{Path: p}
		switch {
		case in1 && !in2:
			change.Status = Deleted
			change.OldSize = info1.size
			result.Deleted++
		case !in1 && in2:
			change.Status = Added
			change.NewSize = info2.size
			result.Added++
		case info1.crc32 != info2.crc32 || info1.size != info2.size:
			change.Status = Modified
			change.OldSize = info1.size
			change.NewSize = info2.size
			result.Modified++
		default:
			continue
		}
		result.Changes = append(result.Changes, change)
	}

	order := map[rune]int{Modified: 0, Added: 1, Deleted: 2}
	sort.Slice(result.Changes, func(i, j int) bool {
		a, b := result.Changes[i], result.Changes[j]
		if a.Status != b.Status {
			return order[a.Status] < order[b.Status]
		}
		return a.Path < b.Path
	})

	return result, nil
}

type fileInfo struct {
	size  int64
	crc32 uint32
}

func listFiles(zipPath string) (map[string]fileInfo, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	logName := filepath.Base(archivelog.PathFromZip(zipPath))
	files := make(map[string]fileInfo)
	for _, f := range r.File {
		if f.FileInfo().IsDir() || f.Name == logName {
			continue
		}
		files[f.Name] = fileInfo{size: int64(f.UncompressedSize64), crc32: f.CRC32}
	}
	return files, nil
}

// File diffs one file between the two archives. A file missing on one side
// compares against empty content.
func File(oldPath, newPath, path string) (*FileResult, error) {
	result := &FileResult{Path: path}

	content1, err := readFile(oldPath, path)
	if err != nil {
		return nil, err
	}
	content2, err := readFile(newPath, path)
	if err != nil {
		return nil, err
	}

	if IsBinary(content1) || IsBinary(content2) {
		result.IsBinary = true
		return result, nil
	}

	result.Lines = LineDiff(content1, content2)
	return result, nil
}

// LineDiff returns the line diff of two texts.
func LineDiff(text1, text2 string) []Line {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(text1, text2)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []Line
	n1, n2 := 0, 0
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		for _, content := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			line := Line{Content: content}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				n1++
				n2++
				line.Type, line.Old, line.New = ' ', n1, n2
			case diffmatchpatch.DiffDelete:
				n1++
				line.Type, line.Old = '-', n1
			case diffmatchpatch.DiffInsert:
				n2++
				line.Type, line.New = '+', n2
			}
			out = append(out, line)
		}
	}
	return out
}

// readFile returns the content of path inside the archive, or "" when the
// archive does not hold it.
func readFile(zipPath, path string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.Name != path {
			continue
		}
		if f.UncompressedSize64 > MaxFileSize {
			return "", fmt.Errorf("%s is too large to compare", path)
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()

		content, err := io.ReadAll(io.LimitReader(rc, MaxFileSize+1))
		if err != nil {
			return "", err
		}
		return string(content), nil
	}
	return "", nil
}

// IsBinary reports whether content looks like binary data.
func IsBinary(content string) bool {
	sample := content
	if len(sample) > 8000 {
		sample = sample[:8000]
		// Do not count a rune split by the cut as invalid.
		for i := 0; i < utf8.UTFMax-1 && !utf8.RuneStart(content[len(sample)]); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	return strings.Contains(sample, "\x00") || !utf8.ValidString(sample)
}
