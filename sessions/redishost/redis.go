package redishost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/mcpwire/mcpwire/sessions"
)

// Config for the Redis-backed SessionHost. Defaults can be loaded via
// envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=mcp:sessions:"`
	// StreamTTL bounds how long an idle notification stream is retained.
	// ENV: SESSIONS_STREAM_TTL
	StreamTTL time.Duration `env:"SESSIONS_STREAM_TTL,default=24h"`
}

// Host implements sessions.SessionHost on Redis: metadata as JSON values
// with TTL, per-session notification streams via Redis Streams.
type Host struct {
	client    *redis.Client
	keyPrefix string
	streamTTL time.Duration
}

func New(cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:sessions:"
	}
	ttl := cfg.StreamTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Host{client: cl, keyPrefix: prefix, streamTTL: ttl}, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode env config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) metaKey(sessionID string) string   { return h.keyPrefix + "meta:" + sessionID }
func (h *Host) streamKey(sessionID string) string { return h.keyPrefix + "stream:" + sessionID }

// --- Lifecycle ---

func (h *Host) CreateSession(ctx context.Context, meta sessions.Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	ok, err := h.client.SetNX(ctx, h.metaKey(meta.SessionID), raw, ttlOrZero(meta.TTL)).Result()
	if err != nil {
		return fmt.Errorf("store session metadata: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", meta.SessionID)
	}
	return nil
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (sessions.Metadata, error) {
	raw, err := h.client.Get(ctx, h.metaKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return sessions.Metadata{}, sessions.ErrSessionNotFound
		}
		return sessions.Metadata{}, err
	}
	var meta sessions.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return sessions.Metadata{}, fmt.Errorf("decode session metadata: %w", err)
	}
	return meta, nil
}

func (h *Host) TouchSession(ctx context.Context, sessionID string) error {
	meta, err := h.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	meta.LastAccess = time.Now().UTC()
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	// SET XX refreshes value and TTL only while the key still exists so a
	// concurrent delete is not resurrected.
	ok, err := h.client.SetXX(ctx, h.metaKey(sessionID), raw, ttlOrZero(meta.TTL)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	n, err := h.client.Del(context.WithoutCancel(ctx), h.metaKey(sessionID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

// --- Messaging via Redis Streams ---

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	key := h.streamKey(sessionID)
	id, err := h.client.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]interface{}{"d": data}}).Result()
	if err != nil {
		return "", err
	}
	// Idle streams should not outlive the session by much.
	_ = h.client.Expire(ctx, key, h.streamTTL).Err()
	return id, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunc) error {
	key := h.streamKey(sessionID)
	start := lastEventID
	if start == "" {
		start = "$"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		res, err := h.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, start}, Count: 16, Block: 500 * time.Millisecond}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if len(res) == 0 {
			continue
		}
		for _, m := range res[0].Messages {
			start = m.ID
			var payload []byte
			switch v := m.Values["d"].(type) {
			case string:
				payload = []byte(v)
			case []byte:
				payload = v
			default:
				payload = []byte(fmt.Sprintf("%v", v))
			}
			if err := handler(ctx, m.ID, payload); err != nil {
				return err
			}
		}
	}
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	c := context.WithoutCancel(ctx)
	_, _ = h.client.Del(c, h.streamKey(sessionID)).Result()
	return nil
}

func ttlOrZero(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

var _ sessions.SessionHost = (*Host)(nil)
