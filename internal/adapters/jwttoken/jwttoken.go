// Package jwttoken provides the token authority adapter for signed
// download links, using HS256 JSON web tokens.
package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// Issuer is the "iss" claim of every token.
const Issuer = "sitebak"

// ErrNoSecret is returned when no signing secret is configured.
var ErrNoSecret = errors.New("token secret is required")

// Claims are the claims of a download token.
type Claims struct {
	Payload string `json:"payload"`
	jwt.RegisteredClaims
}

// Authority implements ports.TokenAuthority.
type Authority struct {
	secret []byte
	now    func() time.Time
}

// New creates an Authority signing with secret.
func New(secret string) (*Authority, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Authority{secret: []byte(secret), now: time.Now}, nil
}

// WithClock returns a copy of a that reads the time from now.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	c := *a
	c.now = now
	return &c
}

// CreateToken signs payload into a token that expires at expires.
func (a *Authority) CreateToken(payload string, expires time.Time) (string, error) {
	now := a.now()
	claims := &Claims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken returns the payload of a valid, unexpired token.
func (a *Authority) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithTimeFunc(a.now),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	return claims.Payload, nil
}

// Compile-time check that Authority implements ports.TokenAuthority.
var _ ports.TokenAuthority = (*Authority)(nil)
