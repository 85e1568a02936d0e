package memoryhost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mcpwire/mcpwire/sessions"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	h := New()

	meta := sessions.Metadata{
		SessionID:       "s1",
		UserID:          "u1",
		ProtocolVersion: "2025-06-18",
		CreatedAt:       time.Now(),
		LastAccess:      time.Now(),
		TTL:             time.Hour,
	}
	if err := h.CreateSession(ctx, meta); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.CreateSession(ctx, meta); err == nil {
		t.Fatal("duplicate create should fail")
	}

	got, err := h.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" || got.ProtocolVersion != "2025-06-18" {
		t.Fatalf("unexpected metadata: %+v", got)
	}

	if err := h.TouchSession(ctx, "s1"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := h.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.GetSession(ctx, "s1"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	h := New()

	past := time.Now().Add(-2 * time.Hour)
	meta := sessions.Metadata{SessionID: "s1", UserID: "u1", CreatedAt: past, LastAccess: past, TTL: time.Hour}
	if err := h.CreateSession(ctx, meta); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.GetSession(ctx, "s1"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expired session should be not found, got %v", err)
	}
}

func TestPublishSubscribeOrderingAndResume(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var firstID string
	for i, payload := range []string{"a", "b", "c"} {
		id, err := h.PublishSession(ctx, "s1", []byte(payload))
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		if i == 0 {
			firstID = id
		}
	}

	got := make(chan string, 3)
	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.SubscribeSession(subCtx, "s1", firstID, func(ctx context.Context, msgID string, msg []byte) error {
			got <- string(msg)
			return nil
		})
	}()

	for _, want := range []string{"b", "c"} {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("want %q got %q", want, v)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for replay")
		}
	}

	if _, err := h.PublishSession(ctx, "s1", []byte("d")); err != nil {
		t.Fatalf("publish live: %v", err)
	}
	select {
	case v := <-got:
		if v != "d" {
			t.Fatalf("want %q got %q", "d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live message")
	}

	subCancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("subscription should end with context.Canceled, got %v", err)
	}
}

func TestSubscribeUnknownEventID(t *testing.T) {
	h := New()
	err := h.SubscribeSession(context.Background(), "s1", "999", func(context.Context, string, []byte) error { return nil })
	if err == nil {
		t.Fatal("unknown last event id should error")
	}
}
