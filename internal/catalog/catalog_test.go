package catalog

import (
	"testing"
	"time"
)

func TestIsSiteArchive(t *testing.T) {
	tests := []struct {
		filename string
		expected bool
	}{
		{"sitebak-abc123-blog-20240101-030000.zip", true},
		{"sitebak-abc123-blog-20240101-030000.log", false},
		{"sitebak-zzz999-blog-20240101-030000.zip", false},
		{"other-abc123-blog.zip", false},
		{"backup-20240101.zip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSiteArchive(tt.filename, "abc123"); got != tt.expected {
			t.Errorf("IsSiteArchive(%q) = %v, expected %v", tt.filename, got, tt.expected)
		}
	}

	if IsSiteArchive("sitebak-.zip", "") {
		t.Error("empty identifier must not match every archive")
	}
}

func TestArchiveFilename(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := ArchiveFilename("abc123", "blog", ts)
	if got != "sitebak-abc123-blog-20240102-030405.zip" {
		t.Errorf("ArchiveFilename = %q", got)
	}
	if !IsSiteArchive(got, "abc123") {
		t.Error("generated filename should be a site archive")
	}
}

func TestAddLocationDistinctTypes(t *testing.T) {
	var e Entry
	if !e.AddLocation(Location{Type: LocationWebServer, Title: "Web Server"}) {
		t.Error("first web server location should be added")
	}
	if e.AddLocation(Location{Type: LocationWebServer, Title: "Web Server"}) {
		t.Error("duplicate location type should be ignored")
	}
	if !e.AddLocation(Location{Type: "directory", Title: "Directory"}) {
		t.Error("remote location should be added")
	}

	if len(e.Locations) != 2 {
		t.Errorf("Locations = %d, expected 2", len(e.Locations))
	}
	if !e.OnWebServer || !e.OnRemoteServer {
		t.Errorf("flags = %v/%v, expected both true", e.OnWebServer, e.OnRemoteServer)
	}
}
