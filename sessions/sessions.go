package sessions

import "context"

// Session represents a negotiated MCP session. Implementations MUST be safe
// for concurrent use.
type Session interface {
	SessionID() string
	UserID() string
	// ProtocolVersion is the negotiated MCP protocol version baked into the
	// session at initialize time.
	ProtocolVersion() string
}

// MessageHandlerFunc handles ordered messages for a session stream. If the
// handler returns an error, the subscription terminates with that error.
type MessageHandlerFunc func(ctx context.Context, msgID string, msg []byte) error

// ClientInfo identifies the client that opened the session.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}
