// Package redishost provides a Redis-backed sessions.SessionHost for
// horizontally scaled deployments. Session metadata is stored as JSON values
// with a sliding TTL; the per-session notification stream uses Redis Streams
// (XADD/XREAD) so any instance can resume a client's stream from its last
// observed event ID.
//
// Configuration is env-driven via envdecode; see Config for the variables
// and their defaults. NewFromEnv is the usual entry point:
//
//	host, err := redishost.NewFromEnv()
package redishost
