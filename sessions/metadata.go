package sessions

import "time"

// Metadata is the authoritative persisted representation of an MCP session.
// Timestamps are wall-clock times in UTC. TTL is a sliding window: the host
// SHOULD expire a session once LastAccess + TTL < now.
type Metadata struct {
	SessionID       string     `json:"session_id"`
	UserID          string     `json:"user_id"`
	ProtocolVersion string     `json:"protocol_version,omitempty"`
	Client          ClientInfo `json:"client,omitempty"`

	CreatedAt  time.Time     `json:"created_at"`
	LastAccess time.Time     `json:"last_access"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the sliding TTL window has elapsed at now. A zero
// TTL means the session never expires from inactivity.
func (m *Metadata) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return m.LastAccess.Add(m.TTL).Before(now)
}
