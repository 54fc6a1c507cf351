// Package catalog holds the archive naming rules and the registry entry
// model shared by the archive, registry and views packages.
package catalog

import (
	"strings"
	"time"
)

// Prefix starts every archive filename created by sitebak.
const Prefix = "sitebak-"

// Extension is the archive file extension.
const Extension = ".zip"

// Location types. Remote providers use their own key as location type.
const (
	LocationAll       = "all"
	LocationWebServer = "on_web_server"
)

// Backup triggers recorded in the archive log.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "cron"
)

// DownloadPath is the route serving signed archive downloads.
const DownloadPath = "/download"

// DateFormat is how archive dates are shown.
const DateFormat = "January 2, 2006 3:04 pm"

// Location is one place an archive is stored.
type Location struct {
	Type      string
	Title     string
	TitleAttr string
}

// Entry is one archive known to the registry, wherever it is stored.
type Entry struct {
	Filename       string
	Filepath       string
	Filedate       string
	Filesize       int64
	LastModUnix    int64
	Locations      []Location
	OnWebServer    bool
	OnRemoteServer bool
}

// HasLocation reports whether the entry is stored at a location of type t.
func (e *Entry) HasLocation(t string) bool {
	for _, l := range e.Locations {
		if l.Type == t {
			return true
		}
	}
	return false
}

// AddLocation records l unless a location of the same type is already
// present. It keeps OnWebServer and OnRemoteServer in sync.
func (e *Entry) AddLocation(l Location) bool {
	if e.HasLocation(l.Type) {
		return false
	}
	e.Locations = append(e.Locations, l)
	if l.Type == LocationWebServer {
		e.OnWebServer = true
	} else {
		e.OnRemoteServer = true
	}
	return true
}

// IsSiteArchive reports whether filename is an archive of the site with the
// given backup identifier: it must start with Prefix, end with Extension
// and contain the identifier.
func IsSiteArchive(filename, identifier string) bool {
	return strings.HasPrefix(filename, Prefix) &&
		strings.HasSuffix(filename, Extension) &&
		identifier != "" &&
		strings.Contains(filename, identifier)
}

// ArchiveFilename returns the filename of a new archive taken at t.
func ArchiveFilename(identifier, site string, t time.Time) string {
	return Prefix + identifier + "-" + site + "-" + t.Format("20060102-150405") + Extension
}

// FormatTimestamp formats a unix timestamp for display.
func FormatTimestamp(unix int64) string {
	return time.Unix(unix, 0).Local().Format(DateFormat)
}
