package mocks

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// ErrMockToken is returned for malformed or expired mock tokens.
var ErrMockToken = errors.New("invalid token")

// MockTokenAuthority implements ports.TokenAuthority for testing.
// Tokens have the form "<expires unix>|<payload>".
type MockTokenAuthority struct {
	// Now is the clock used by ValidateToken
	Now func() time.Time
	// CreateCalls records payloads passed to CreateToken
	CreateCalls []string
	// Errors maps method names to errors
	Errors map[string]error
}

// NewMockTokenAuthority creates a new mock token authority.
func NewMockTokenAuthority() *MockTokenAuthority {
	return &MockTokenAuthority{
		Now:    time.Now,
		Errors: make(map[string]error),
	}
}

// CreateToken embeds payload and expiry in a readable token.
func (m *MockTokenAuthority) CreateToken(payload string, expires time.Time) (string, error) {
	m.CreateCalls = append(m.CreateCalls, payload)
	if err, ok := m.Errors["CreateToken"]; ok {
		return "", err
	}
	return strconv.FormatInt(expires.Unix(), 10) + "|" + payload, nil
}

// ValidateToken returns the embedded payload unless the token has expired.
func (m *MockTokenAuthority) ValidateToken(token string) (string, error) {
	if err, ok := m.Errors["ValidateToken"]; ok {
		return "", err
	}
	exp, payload, ok := strings.Cut(token, "|")
	if !ok {
		return "", ErrMockToken
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", ErrMockToken
	}
	if !m.Now().Before(time.Unix(unix, 0)) {
		return "", ErrMockToken
	}
	return payload, nil
}

// MockAuthorizer implements ports.Authorizer for testing.
type MockAuthorizer struct {
	Allowed bool
}

// CanManageBackups returns Allowed.
func (m *MockAuthorizer) CanManageBackups() bool { return m.Allowed }

// Compile-time checks.
var (
	_ ports.TokenAuthority = (*MockTokenAuthority)(nil)
	_ ports.Authorizer     = (*MockAuthorizer)(nil)
)
