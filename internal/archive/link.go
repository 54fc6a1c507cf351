package archive

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/config"
)

// Link validation messages.
const (
	MsgPermission     = "Insufficient permission"
	MsgFilename       = "Invalid archive filename"
	MsgFilesystem     = `Filesystem access method is not "direct"`
	MsgNotFound       = "Archive file not found"
	MsgLinkLifetime   = `Invalid "public_link_lifetime" configuration setting`
	MsgTokenAuthority = "Download links are not configured"
)

// ValidationError lists every problem found while validating a request.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, "; ")
}

// DownloadLink is the result of GenerateDownloadLink. Either Error is set,
// or DownloadURL and ExpiresWhen are.
type DownloadLink struct {
	DownloadURL string    `json:"download_url,omitempty"`
	ExpiresWhen string    `json:"expires_when,omitempty"`
	ExpiresAt   time.Time `json:"-"`
	Error       string    `json:"error,omitempty"`
}

// ValidateLinkRequest checks whether a download link may be created for
// filename. All problems are reported together in a *ValidationError.
func (a *Archive) ValidateLinkRequest(ctx context.Context, filename string) error {
	var errs []string

	if a.deps.Auth == nil || !a.deps.Auth.CanManageBackups() {
		errs = append(errs, MsgPermission)
	}
	if filename == "" || filename != strings.TrimSpace(filename) || strings.ContainsAny(filename, `/\`) {
		errs = append(errs, MsgFilename)
	}
	if a.settings.FilesystemMethod != config.FilesystemDirect {
		errs = append(errs, MsgFilesystem)
	}
	if _, ok := a.GetByName(ctx, filename); !ok {
		errs = append(errs, MsgNotFound)
	}
	if _, err := a.expiry(); err != nil {
		errs = append(errs, MsgLinkLifetime)
	}
	if a.deps.Tokens == nil {
		errs = append(errs, MsgTokenAuthority)
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func (a *Archive) expiry() (time.Time, error) {
	d, err := config.ParseLifetime(a.settings.PublicLinkLifetime)
	if err != nil {
		return time.Time{}, err
	}
	return a.deps.Now().Add(d), nil
}

// GenerateDownloadLink creates a time-limited public link for filename.
// Nothing is created unless every validation passes.
func (a *Archive) GenerateDownloadLink(ctx context.Context, filename string) DownloadLink {
	if err := a.ValidateLinkRequest(ctx, filename); err != nil {
		return DownloadLink{Error: err.Error()}
	}

	expires, _ := a.expiry()
	token, err := a.deps.Tokens.CreateToken(filename, expires)
	if err != nil {
		a.deps.Log.Error().Err(err).Str("filename", filename).Msg("creating download token")
		return DownloadLink{Error: "Unable to create download token"}
	}

	q := url.Values{}
	q.Set("t", token)
	return DownloadLink{
		DownloadURL: strings.TrimRight(a.settings.SiteURL, "/") + catalog.DownloadPath + "?" + q.Encode(),
		ExpiresWhen: strings.TrimSpace(humanize.RelTime(a.deps.Now(), expires, "", "")),
		ExpiresAt:   expires,
	}
}
