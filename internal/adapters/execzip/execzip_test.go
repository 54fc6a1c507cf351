package execzip

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mcdonaldj/sitebak/internal/adapters/zipcompressor"
	"github.com/mcdonaldj/sitebak/internal/ports"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.php":            "<?php",
		"wp-content/a.css":     "body{}",
		"wp-content/cache/x":   "cached",
		"debug.log":            "log",
		"wp-content/up/b.jpg":  "jpg",
		"backups/existing.zip": "zip",
	})

	files, err := listFiles(root, filepath.Join(root, "backups", "existing.zip"), []string{"cache", "*.log"})
	if err != nil {
		t.Fatalf("listFiles failed: %v", err)
	}
	sort.Strings(files)
	expected := []string{"index.php", "wp-content/a.css", "wp-content/up/b.jpg"}
	if len(files) != len(expected) {
		t.Fatalf("files = %v, expected %v", files, expected)
	}
	for i := range expected {
		if files[i] != filepath.FromSlash(expected[i]) {
			t.Errorf("files[%d] = %s, expected %s", i, files[i], expected[i])
		}
	}
}

func TestName(t *testing.T) {
	if New().Name() != "shell" {
		t.Errorf("Name = %s", New().Name())
	}
	z := New(WithZipPath("/opt/zip"), WithUnzipPath("/opt/unzip"))
	if z.zipPath != "/opt/zip" || z.unzipPath != "/opt/unzip" {
		t.Errorf("paths = %s, %s", z.zipPath, z.unzipPath)
	}
}

// The remaining tests need the zip and unzip binaries.

func requireBinaries(t *testing.T) *ExecZip {
	t.Helper()
	z := New()
	if !z.Available() {
		t.Skip("zip/unzip not installed")
	}
	return z
}

func TestCreateAndExtract(t *testing.T) {
	z := requireBinaries(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"index.php":        "<?php echo 1;",
		"wp-content/a.css": "body{}",
		"cache/page.html":  "cached",
	})

	dest := filepath.Join(t.TempDir(), "site.zip")
	n, err := z.Create(ports.CreateOptions{
		DestPath:  dest,
		SourceDir: src,
		Exclude:   []string{"cache"},
		Extra:     map[string][]byte{"site.log": []byte(`{"compressor":"shell"}`)},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if n != 3 {
		t.Errorf("file count = %d, expected 3", n)
	}

	// Shell archives are readable by the native reader.
	files, err := zipcompressor.New().GetFile(dest, "site.log")
	if err != nil || len(files) != 1 {
		t.Fatalf("GetFile = %v, %v", files, err)
	}
	if string(files[0].Content) != `{"compressor":"shell"}` {
		t.Errorf("site.log = %q", files[0].Content)
	}

	out := t.TempDir()
	if err := z.Extract(dest, out); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "wp-content", "a.css"))
	if err != nil || string(data) != "body{}" {
		t.Errorf("a.css = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(out, "cache")); !os.IsNotExist(err) {
		t.Error("excluded directory was archived")
	}
}

func TestBrowseUsesNativeReader(t *testing.T) {
	z := requireBinaries(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a/b.txt": "b", "c.txt": "c"})

	dest := filepath.Join(t.TempDir(), "site.zip")
	if _, err := z.Create(ports.CreateOptions{DestPath: dest, SourceDir: src}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	entries, err := z.Browse(dest, "")
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %+v", entries)
	}
}
