package redishost

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcpwire/mcpwire/sessions"
)

func mustHost(t *testing.T) *Host {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}
	h, err := New(Config{RedisAddr: addr, KeyPrefix: "mcpwire:test:" + uuid.NewString() + ":"})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRedisSessionLifecycle(t *testing.T) {
	h := mustHost(t)
	ctx := context.Background()

	meta := sessions.Metadata{
		SessionID:  uuid.NewString(),
		UserID:     "u1",
		CreatedAt:  time.Now().UTC(),
		LastAccess: time.Now().UTC(),
		TTL:        time.Minute,
	}
	if err := h.CreateSession(ctx, meta); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.CreateSession(ctx, meta); err == nil {
		t.Fatal("duplicate create should fail")
	}
	got, err := h.GetSession(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("unexpected metadata: %+v", got)
	}
	if err := h.TouchSession(ctx, meta.SessionID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := h.DeleteSession(ctx, meta.SessionID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.GetSession(ctx, meta.SessionID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestRedisPublishSubscribe(t *testing.T) {
	h := mustHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessID := uuid.NewString()
	firstID, err := h.PublishSession(ctx, sessID, []byte("a"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := h.PublishSession(ctx, sessID, []byte("b")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := make(chan string, 2)
	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()
	go func() {
		_ = h.SubscribeSession(subCtx, sessID, firstID, func(ctx context.Context, msgID string, msg []byte) error {
			got <- string(msg)
			return nil
		})
	}()

	select {
	case v := <-got:
		if v != "b" {
			t.Fatalf("want %q got %q", "b", v)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for resumed message")
	}

	if _, err := h.PublishSession(ctx, sessID, []byte("c")); err != nil {
		t.Fatalf("publish live: %v", err)
	}
	select {
	case v := <-got:
		if v != "c" {
			t.Fatalf("want %q got %q", "c", v)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for live message")
	}

	_ = h.CleanupSession(context.Background(), sessID)
}
