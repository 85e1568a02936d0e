// Package sessions defines the session model shared by transports and the
// dispatch engine: a Session identity negotiated at initialize time, the
// persisted Metadata record, and the SessionHost storage contract.
//
// Two hosts ship with the library: sessions/memoryhost for single-process
// deployments and tests, and sessions/redishost for horizontally scaled
// deployments where the notification stream must be visible across
// instances.
package sessions
