package engine

import (
	"github.com/mcpwire/mcpwire/sessions"
)

// SessionHandle is the engine's live view of a session. It implements
// sessions.Session and carries the metadata loaded from the session host.
type SessionHandle struct {
	meta sessions.Metadata
}

func newSessionHandle(meta sessions.Metadata) *SessionHandle {
	return &SessionHandle{meta: meta}
}

func (s *SessionHandle) SessionID() string       { return s.meta.SessionID }
func (s *SessionHandle) UserID() string          { return s.meta.UserID }
func (s *SessionHandle) ProtocolVersion() string { return s.meta.ProtocolVersion }

// ClientInfo returns the client implementation info captured at initialize.
func (s *SessionHandle) ClientInfo() sessions.ClientInfo { return s.meta.Client }

var _ sessions.Session = (*SessionHandle)(nil)
