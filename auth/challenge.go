package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// BearerChallenge describes an HTTP authentication challenge: the status to
// respond with and the parameters of the WWW-Authenticate Bearer value per
// RFC 6750.
type BearerChallenge struct {
	Status      int
	Realm       string
	Error       string
	Description string
	Scope       []string
}

// Header renders the WWW-Authenticate header value.
func (c *BearerChallenge) Header() string {
	var b strings.Builder
	b.WriteString("Bearer")
	sep := " "
	write := func(key, val string) {
		if val == "" {
			return
		}
		fmt.Fprintf(&b, `%s%s="%s"`, sep, key, escapeQuoted(val))
		sep = ", "
	}
	write("realm", c.Realm)
	write("error", c.Error)
	write("error_description", c.Description)
	write("scope", strings.Join(c.Scope, " "))
	return b.String()
}

func escapeQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// NewAuthenticationRequired builds the challenge for requests carrying no
// credentials at all.
func NewAuthenticationRequired(realm string, scope ...string) *BearerChallenge {
	return &BearerChallenge{
		Status: http.StatusUnauthorized,
		Realm:  realm,
		Scope:  scope,
	}
}

// NewInvalidToken builds the challenge for requests whose token failed
// validation.
func NewInvalidToken(realm, description string) *BearerChallenge {
	return &BearerChallenge{
		Status:      http.StatusUnauthorized,
		Realm:       realm,
		Error:       "invalid_token",
		Description: description,
	}
}

// NewInsufficientScope builds the challenge for authenticated requests that
// lack a required scope.
func NewInsufficientScope(realm string, scope ...string) *BearerChallenge {
	return &BearerChallenge{
		Status:      http.StatusForbidden,
		Realm:       realm,
		Error:       "insufficient_scope",
		Description: "The request requires higher privileges than provided by the access token",
		Scope:       scope,
	}
}
