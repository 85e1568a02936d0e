// Package streaminghttp serves MCP over the streaming HTTP transport.
//
// A single endpoint handles three verbs:
//
//   - POST carries one client-to-server JSON-RPC message. Requests are
//     answered with an application/json frame; notifications get 202.
//   - GET attaches a text/event-stream carrying server-to-client messages,
//     resumable via Last-Event-ID.
//   - DELETE terminates the session.
//
// Sessions are correlated via the Mcp-Session-Id header and persisted in a
// sessions.SessionHost, so any process sharing the host can serve any
// request.
//
// POST responses are committed lazily: while a request dispatches, the
// response writer stays untouched, and the dispatch engine may claim it to
// deliver an arbitrary HTTP response thrown by a capability handler. Clients
// observing such a response see plain HTTP (a 401 with WWW-Authenticate
// headers, a 429 with Retry-After, and so on) rather than a JSON-RPC error.
package streaminghttp
