package mocks

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

func TestMockFileSystem(t *testing.T) {
	mockFS := NewMockFileSystem()

	// Test WriteFile and ReadFile
	_ = mockFS.WriteFile("/test/file.txt", []byte("hello"), 0644)
	content, err := mockFS.ReadFile("/test/file.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("content = %q, expected %q", string(content), "hello")
	}

	// Test Stat after WriteFile
	info, err := mockFS.Stat("/test/file.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("size = %d, expected 5", info.Size())
	}

	// Test Open streams the same content
	rc, err := mockFS.Open("/test/file.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	streamed, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(streamed) != "hello" {
		t.Errorf("Open content = %q, expected %q", string(streamed), "hello")
	}

	// Test ReadFile for non-existent file
	_, err = mockFS.ReadFile("/nonexistent")
	if err == nil {
		t.Error("ReadFile should fail for non-existent file")
	}

	// Test error injection
	mockFS.Errors["/error/path"] = errors.New("injected error")
	_, err = mockFS.ReadFile("/error/path")
	if err == nil || err.Error() != "injected error" {
		t.Errorf("Expected injected error, got: %v", err)
	}
}

func TestMockFileSystemReadDirFromFiles(t *testing.T) {
	mockFS := NewMockFileSystem()
	_ = mockFS.WriteFile("/backups/b.zip", []byte("b"), 0644)
	_ = mockFS.WriteFile("/backups/a.zip", []byte("a"), 0644)
	_ = mockFS.WriteFile("/backups/nested/c.zip", []byte("c"), 0644)

	entries, err := mockFS.ReadDir("/backups")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReadDir returned %d entries, expected 2", len(entries))
	}
	if entries[0].Name() != "a.zip" || entries[1].Name() != "b.zip" {
		t.Errorf("entries = %s, %s; expected sorted a.zip, b.zip", entries[0].Name(), entries[1].Name())
	}

	if _, err := mockFS.ReadDir("/missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestMockFileSystemChtimesAndRemove(t *testing.T) {
	mockFS := NewMockFileSystem()
	_ = mockFS.WriteFile("/f.zip", []byte("x"), 0644)

	mtime := time.Unix(1700000000, 0)
	if err := mockFS.Chtimes("/f.zip", mtime, mtime); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	info, _ := mockFS.Stat("/f.zip")
	if !info.ModTime().Equal(mtime) {
		t.Errorf("ModTime = %v, expected %v", info.ModTime(), mtime)
	}

	if err := mockFS.Remove("/f.zip"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mockFS.Exists("/f.zip") {
		t.Error("File should not exist after Remove")
	}
	if err := mockFS.Remove("/f.zip"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Second Remove should report ErrNotExist, got %v", err)
	}
	if len(mockFS.Removed) != 2 {
		t.Errorf("Removed = %d, expected 2", len(mockFS.Removed))
	}
}

func TestMockLocker(t *testing.T) {
	locker := NewMockLocker()

	unlock, err := locker.Lock("/a.log")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u, _ := locker.Lock("/a.log")
		close(acquired)
		_ = u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock should block while the first is held")
	case <-time.After(20 * time.Millisecond):
	}

	_ = unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired")
	}
}

func TestMockCompressor(t *testing.T) {
	c := NewMockCompressor()
	c.CreateResult = 5

	count, err := c.Create(ports.CreateOptions{
		DestPath:  "/backup.zip",
		SourceDir: "/site",
		Extra:     map[string][]byte{"backup.log": []byte("{}"), "wp-content/a.css": []byte("a")},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if count != 7 {
		t.Errorf("Create returned %d, expected 7", count)
	}

	entries, err := c.Browse("/backup.zip", "")
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "backup.log" || !entries[1].IsDir {
		t.Errorf("Browse = %+v", entries)
	}

	files, err := c.GetFile("/backup.zip", "backup.log")
	if err != nil || len(files) != 1 || string(files[0].Content) != "{}" {
		t.Errorf("GetFile = %+v, %v", files, err)
	}
	missing, err := c.GetFile("/backup.zip", "nope")
	if err != nil || missing != nil {
		t.Errorf("GetFile(missing) = %+v, %v", missing, err)
	}

	// Test error injection
	c.Errors["Create"] = errors.New("disk full")
	_, err = c.Create(ports.CreateOptions{DestPath: "/another.zip"})
	if err == nil || err.Error() != "disk full" {
		t.Errorf("Expected 'disk full' error, got: %v", err)
	}
}

func TestMockRemoteProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMockRemoteProvider("directory", "Directory")

	if err := p.Upload(ctx, "/backups/a.zip"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	list, err := p.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Filename != "a.zip" {
		t.Errorf("List = %+v", list)
	}

	p.Errors["List"] = errors.New("unreachable")
	if _, err := p.List(ctx); err == nil {
		t.Error("Expected List error")
	}
}

func TestMockTokenAuthority(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ta := NewMockTokenAuthority()
	ta.Now = func() time.Time { return now }

	token, err := ta.CreateToken("a.zip", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	payload, err := ta.ValidateToken(token)
	if err != nil || payload != "a.zip" {
		t.Errorf("ValidateToken = %q, %v", payload, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := ta.ValidateToken(token); !errors.Is(err, ErrMockToken) {
		t.Errorf("Expected expired token error, got %v", err)
	}
}

func TestMockScheduler(t *testing.T) {
	s := NewMockScheduler()

	// Test initial state
	if s.IsInstalled() {
		t.Error("Should not be installed initially")
	}
	if s.Status() != "not installed" {
		t.Errorf("Status = %q, expected %q", s.Status(), "not installed")
	}

	// Test Install
	if err := s.Install("/usr/local/bin/sitebak", "/config.yaml", 15); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if !s.IsInstalled() {
		t.Error("Should be installed after Install()")
	}
	if s.Status() != "loaded" {
		t.Errorf("Status = %q, expected %q", s.Status(), "loaded")
	}
	if len(s.InstallCalls) != 1 || s.InstallCalls[0].IntervalMinutes != 15 {
		t.Errorf("InstallCalls = %+v", s.InstallCalls)
	}

	// Test Uninstall
	if err := s.Uninstall(); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	if s.IsInstalled() {
		t.Error("Should not be installed after Uninstall()")
	}

	// Test error injection
	s.Errors["Install"] = errors.New("permission denied")
	err := s.Install("/path", "/config", 15)
	if err == nil || err.Error() != "permission denied" {
		t.Errorf("Expected 'permission denied' error, got: %v", err)
	}
}
