package memoryhost

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpwire/mcpwire/sessions"
)

// Host is an in-memory implementation of sessions.SessionHost. Suitable for
// single-process servers and tests.
type Host struct {
	mu      sync.RWMutex
	meta    map[string]sessions.Metadata
	streams map[string]*stream
	counter atomic.Int64

	now func() time.Time
}

type stream struct {
	mu          sync.Mutex
	messages    []message
	subscribers map[*subscriber]struct{}
}

type message struct {
	id   string
	data []byte
}

type subscriber struct {
	wake chan struct{}
}

func New() *Host {
	return &Host{
		meta:    make(map[string]sessions.Metadata),
		streams: make(map[string]*stream),
		now:     time.Now,
	}
}

// --- Lifecycle ---

func (h *Host) CreateSession(ctx context.Context, meta sessions.Metadata) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.meta[meta.SessionID]; exists {
		return fmt.Errorf("session %s already exists", meta.SessionID)
	}
	h.meta[meta.SessionID] = meta
	return nil
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (sessions.Metadata, error) {
	h.mu.RLock()
	meta, ok := h.meta[sessionID]
	h.mu.RUnlock()
	if !ok || meta.Expired(h.now()) {
		return sessions.Metadata{}, sessions.ErrSessionNotFound
	}
	return meta, nil
}

func (h *Host) TouchSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	meta, ok := h.meta[sessionID]
	if !ok || meta.Expired(h.now()) {
		return sessions.ErrSessionNotFound
	}
	meta.LastAccess = h.now()
	h.meta[sessionID] = meta
	return nil
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	_, ok := h.meta[sessionID]
	delete(h.meta, sessionID)
	h.mu.Unlock()
	if !ok {
		return sessions.ErrSessionNotFound
	}
	return nil
}

// --- Messaging ---

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	evID := strconv.FormatInt(h.counter.Add(1), 10)
	st := h.ensureStream(sessionID)

	st.mu.Lock()
	st.messages = append(st.messages, message{id: evID, data: append([]byte(nil), data...)})
	for sub := range st.subscribers {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
	st.mu.Unlock()

	return evID, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunc) error {
	st := h.ensureStream(sessionID)

	st.mu.Lock()
	var nextIdx int
	if lastEventID == "" {
		nextIdx = len(st.messages)
	} else {
		found := false
		for i := range st.messages {
			if st.messages[i].id == lastEventID {
				nextIdx = i + 1
				found = true
				break
			}
		}
		if !found {
			st.mu.Unlock()
			return fmt.Errorf("last event id %s not found", lastEventID)
		}
	}
	sub := &subscriber{wake: make(chan struct{}, 1)}
	st.subscribers[sub] = struct{}{}
	st.mu.Unlock()

	defer func() {
		st.mu.Lock()
		delete(st.subscribers, sub)
		st.mu.Unlock()
	}()

	for {
		// Drain everything published since our cursor before blocking.
		for {
			st.mu.Lock()
			if nextIdx >= len(st.messages) {
				st.mu.Unlock()
				break
			}
			m := st.messages[nextIdx]
			nextIdx++
			st.mu.Unlock()

			if err := handler(ctx, m.id, m.data); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.wake:
		}
	}
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	delete(h.streams, sessionID)
	h.mu.Unlock()
	return nil
}

func (h *Host) ensureStream(sessionID string) *stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.streams[sessionID]
	if !ok {
		st = &stream{subscribers: make(map[*subscriber]struct{})}
		h.streams[sessionID] = st
	}
	return st
}

var _ sessions.SessionHost = (*Host)(nil)
