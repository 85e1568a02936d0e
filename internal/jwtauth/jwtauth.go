// Package jwtauth validates RFC 9068 JWT access tokens. Keys are fetched
// from a JWKS endpoint, either discovered from the issuer's OIDC metadata or
// configured directly, and auto-refreshed.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpwire/mcpwire/auth"
)

// Config controls token validation policy.
type Config struct {
	// Issuer is the expected "iss" claim and, for discovery, the OIDC issuer
	// URL. Required.
	Issuer string

	// ExpectedAudiences lists accepted "aud" values. A token is accepted
	// when any of its audiences matches any entry. At least one entry is
	// required.
	ExpectedAudiences []string

	// RequiredScopes must all be present in the token's "scope" claim.
	// Empty means no scope enforcement.
	RequiredScopes []string

	// AllowedAlgs restricts acceptable signing algorithms. Defaults to
	// RS256.
	AllowedAlgs []string

	// Leeway absorbs clock skew during time-based claim validation.
	// Defaults to 60s.
	Leeway time.Duration
}

func (c *Config) applyDefaults() {
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.Leeway == 0 {
		c.Leeway = 60 * time.Second
	}
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if c.Issuer == "" {
		return errors.New("issuer is required")
	}
	if len(c.ExpectedAudiences) == 0 {
		return errors.New("at least one expected audience is required")
	}
	return nil
}

// Authenticator validates bearer tokens against a JWKS-backed key set.
type Authenticator struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

var _ auth.Authenticator = (*Authenticator)(nil)

// NewFromDiscovery resolves the issuer's OIDC metadata to locate its JWKS
// endpoint and builds an Authenticator from it.
func NewFromDiscovery(ctx context.Context, cfg *Config) (*Authenticator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery metadata missing jwks_uri")
	}

	return newWithJWKS(ctx, cfg, meta.JwksURI)
}

// NewWithJWKS builds an Authenticator from an explicit JWKS endpoint,
// bypassing discovery.
func NewWithJWKS(ctx context.Context, cfg *Config, jwksURI string) (*Authenticator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri is required")
	}
	return newWithJWKS(ctx, cfg, jwksURI)
}

func newWithJWKS(ctx context.Context, cfg *Config, jwksURI string) (*Authenticator, error) {
	c := *cfg
	c.applyDefaults()

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	a := &Authenticator{cfg: c}
	a.keyfunc = func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		for _, allowed := range a.cfg.AllowedAlgs {
			if alg == allowed {
				return kf.Keyfunc(t)
			}
		}
		return nil, fmt.Errorf("disallowed alg: %s", alg)
	}
	return a, nil
}

// CheckAuthentication implements auth.Authenticator. Signature, issuer,
// audience, expiry, token type, and scope are all enforced here.
func (a *Authenticator) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", auth.ErrUnauthorized)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithLeeway(a.cfg.Leeway),
	)
	parsed, err := parser.Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token verification failed: %v", auth.ErrUnauthorized, err)
	}

	// RFC 9068 requires access tokens to declare their type.
	if typ, _ := parsed.Header["typ"].(string); typ != "at+jwt" && typ != "application/at+jwt" {
		return nil, fmt.Errorf("%w: invalid typ; want at+jwt", auth.ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", auth.ErrUnauthorized)
	}

	if !audIntersects(claims["aud"], a.cfg.ExpectedAudiences) {
		return nil, fmt.Errorf("%w: audience mismatch", auth.ErrUnauthorized)
	}

	if len(a.cfg.RequiredScopes) > 0 {
		scopeStr, _ := claims["scope"].(string)
		have := map[string]bool{}
		for _, s := range strings.Fields(scopeStr) {
			have[s] = true
		}
		for _, want := range a.cfg.RequiredScopes {
			if !have[want] {
				return nil, fmt.Errorf("%w: missing scope %s", auth.ErrInsufficientScope, want)
			}
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", auth.ErrUnauthorized)
	}

	return &userInfo{sub: sub, claims: claims}, nil
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }

func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

func audIntersects(aud any, wants []string) bool {
	wantSet := make(map[string]struct{}, len(wants))
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, ok := wantSet[s]; ok {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, ok := wantSet[s]; ok {
				return true
			}
		}
	}
	return false
}
