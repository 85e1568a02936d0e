// Package auth defines the authentication contract shared by transports.
// Transports extract a bearer token from the incoming request and hand it to
// an Authenticator; everything past that point works in terms of UserInfo.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthorized indicates authentication failed or no valid credentials
// were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInsufficientScope indicates the caller authenticated but lacks a
// required scope.
var ErrInsufficientScope = errors.New("insufficient scope")

// UserInfo represents an authenticated principal. Implementations should be
// lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user.
	UserID() string
	// Claims unmarshals the user's claims into the provided struct reference.
	Claims(ref any) error
}

// Authenticator validates bearer tokens and returns the associated user
// info. Invalid credentials return an error wrapping ErrUnauthorized; valid
// credentials missing a required scope return one wrapping
// ErrInsufficientScope.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// BearerToken extracts the token from an Authorization header value. The
// scheme comparison is case-insensitive per RFC 9110. ok is false when the
// header is absent or uses a different scheme.
func BearerToken(authorization string) (tok string, ok bool) {
	const prefix = "bearer "
	if len(authorization) <= len(prefix) {
		return "", false
	}
	if !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", false
	}
	tok = strings.TrimSpace(authorization[len(prefix):])
	return tok, tok != ""
}
