package osfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExistsAndChtimes(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "a.zip")

	if fs.Exists(path) {
		t.Fatal("Exists = true before the file was written")
	}
	if err := fs.WriteFile(path, []byte("zip"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !fs.Exists(path) {
		t.Fatal("Exists = false after the file was written")
	}

	when := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	if err := fs.Chtimes(path, when, when); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.ModTime().Equal(when) {
		t.Errorf("ModTime = %v, expected %v", info.ModTime(), when)
	}
}

func TestLockerUsesSiblingLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.log")
	l := NewLocker()

	unlock, err := l.Lock(path)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("Expected lock file: %v", err)
	}
	// The guarded file can be replaced while locked.
	if err := os.WriteFile(path+".tmp", []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		t.Errorf("Rename while locked failed: %v", err)
	}
	if err := unlock(); err != nil {
		t.Errorf("unlock failed: %v", err)
	}

	// The lock can be taken again once released.
	unlock, err = l.Lock(path)
	if err != nil {
		t.Fatalf("second Lock failed: %v", err)
	}
	_ = unlock()
}
