// Package views renders the archive list and the per-location counts. It
// only reads: the registry decides membership and order.
package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mcdonaldj/sitebak/internal/archive"
	"github.com/mcdonaldj/sitebak/internal/archivelog"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/registry"
)

// Count titles.
const (
	TitleAll    = "All"
	TitleRemote = "Remote"
)

// LockMarker follows the web server location of a protected archive.
const LockMarker = " [locked]"

// EmptyMessage is shown instead of an empty table.
const EmptyMessage = "You currently do not have any backups."

// Row is one archive in the list.
type Row struct {
	Filename    string
	Title       string
	Date        string
	Size        string
	Filesize    int64
	LastModUnix int64
	Locations   string
	Protected   bool
	DetailsURL  string
	// HasTitle is false when Title fell back to the archive date.
	HasTitle bool
}

// Count is one entry of the location summary.
type Count struct {
	Type    string
	Title   string
	Count   int
	Current bool
}

// Table is the archive list with its location summary.
type Table struct {
	Counts []Count
	Rows   []Row
}

// Empty reports whether there are no archives.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Views renders the registry. The archive is re-bound for every row.
type Views struct {
	archives *registry.Registry
	archive  *archive.Archive
}

// New creates Views over the registry.
func New(archives *registry.Registry, a *archive.Archive) *Views {
	return &Views{archives: archives, archive: a}
}

// LocationTitle returns the label of a location type in the summary.
func LocationTitle(locationType, title string) string {
	switch locationType {
	case catalog.LocationAll:
		return TitleAll
	case catalog.LocationWebServer:
		return registry.WebServerTitle
	}
	if title == "" {
		return TitleRemote
	}
	return title
}

// Counts returns the number of archives per location, "All" first.
func (v *Views) Counts(ctx context.Context) []Count {
	v.archives.Init(ctx)
	var out []Count
	for _, c := range v.archives.LocationCount() {
		out = append(out, Count{
			Type:    c.Type,
			Title:   LocationTitle(c.Type, c.Title),
			Count:   c.Count,
			Current: c.Type == catalog.LocationAll,
		})
	}
	return out
}

// CountSummary renders the counts as "All (3) | Web Server (2) | ...".
func (v *Views) CountSummary(ctx context.Context) string {
	return FormatCounts(v.Counts(ctx))
}

// FormatCounts joins counts the way CountSummary does.
func FormatCounts(counts []Count) string {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Title, c.Count))
	}
	return strings.Join(parts, " | ")
}

// Locations joins the location titles of e. The web server location of a
// protected archive carries LockMarker.
func Locations(e catalog.Entry, protected bool) string {
	parts := make([]string, 0, len(e.Locations))
	for _, l := range e.Locations {
		s := l.Title
		if l.Type == catalog.LocationWebServer && protected {
			s += LockMarker
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// Table returns every archive in registry order.
func (v *Views) Table(ctx context.Context) Table {
	v.archives.Init(ctx)

	t := Table{Counts: v.Counts(ctx)}
	for _, e := range v.archives.All() {
		t.Rows = append(t.Rows, v.row(e))
	}
	return t
}

func (v *Views) row(e catalog.Entry) Row {
	v.archive.Init(e.Filepath)

	r := Row{
		Filename:    e.Filename,
		Date:        catalog.FormatTimestamp(e.LastModUnix),
		Size:        humanize.IBytes(uint64(max(e.Filesize, 0))),
		Filesize:    e.Filesize,
		LastModUnix: e.LastModUnix,
		DetailsURL:  v.archive.ViewDetailsURL,
	}

	if title, ok := v.archive.GetAttribute(archivelog.KeyTitle); ok && title.String() != "" {
		r.Title = title.String()
		r.HasTitle = true
	} else {
		r.Title = r.Date
	}
	if p, ok := v.archive.GetAttribute(archivelog.KeyProtect); ok {
		r.Protected = p.Truthy()
	}
	r.Locations = Locations(e, r.Protected)
	return r
}
