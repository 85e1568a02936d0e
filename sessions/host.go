package sessions

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by host lookups for unknown or expired
// session IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionHost is the contract transports and the engine need from a session
// store. It combines metadata lifecycle with an ordered per-session message
// stream that supports resuming from a previously observed event ID.
// Implementations must be safe for concurrent use; the redis host makes the
// contract work across server instances.
type SessionHost interface {
	// Lifecycle.
	CreateSession(ctx context.Context, meta Metadata) error
	GetSession(ctx context.Context, sessionID string) (Metadata, error)
	// TouchSession refreshes the sliding TTL window.
	TouchSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error

	// Messaging — ordered per session ID with resume via lastEventID.
	PublishSession(ctx context.Context, sessionID string, data []byte) (eventID string, err error)
	SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler MessageHandlerFunc) error

	// CleanupSession removes stream state after DeleteSession. Best effort.
	CleanupSession(ctx context.Context, sessionID string) error
}
