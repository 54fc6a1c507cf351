package ports

import "time"

// TokenAuthority mints and validates opaque, time-boxed tokens.
// Production code uses the jwttoken adapter; tests use MockTokenAuthority.
type TokenAuthority interface {
	// CreateToken embeds payload in a token that expires at expires.
	CreateToken(payload string, expires time.Time) (string, error)

	// ValidateToken returns the embedded payload, or an error when the token
	// is malformed, tampered with or expired.
	ValidateToken(token string) (payload string, err error)
}

// Authorizer decides whether the current caller may manage backups.
type Authorizer interface {
	CanManageBackups() bool
}

// AllowAll is an Authorizer for trusted local callers such as the CLI.
type AllowAll struct{}

// CanManageBackups always returns true.
func (AllowAll) CanManageBackups() bool { return true }
