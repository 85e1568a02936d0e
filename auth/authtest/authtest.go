// Package authtest provides Authenticator implementations for tests and
// local development.
package authtest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcpwire/mcpwire/auth"
)

// Static validates tokens against a fixed token-to-user mapping. Unknown
// tokens fail with auth.ErrUnauthorized.
type Static struct {
	users map[string]string // token -> userID
}

// NewStatic builds a Static authenticator from token/userID pairs.
func NewStatic(users map[string]string) *Static {
	cp := make(map[string]string, len(users))
	for tok, uid := range users {
		cp[tok] = uid
	}
	return &Static{users: cp}
}

func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	uid, ok := s.users[tok]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthorized)
	}
	return &staticUser{id: uid}, nil
}

type staticUser struct {
	id string
}

func (u *staticUser) UserID() string { return u.id }

func (u *staticUser) Claims(ref any) error {
	b, err := json.Marshal(map[string]string{"sub": u.id})
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// NoAuth accepts every request as the configured user. Intended for local
// development only.
type NoAuth struct {
	UserID string
}

// NewNoAuth builds a NoAuth authenticator. An empty userID defaults to
// "test-user".
func NewNoAuth(userID string) *NoAuth {
	if userID == "" {
		userID = "test-user"
	}
	return &NoAuth{UserID: userID}
}

func (n *NoAuth) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	return &staticUser{id: n.UserID}, nil
}

var (
	_ auth.Authenticator = (*Static)(nil)
	_ auth.Authenticator = (*NoAuth)(nil)
)
