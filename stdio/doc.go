// Package stdio implements a single-connection MCP transport over newline
// delimited JSON-RPC on stdin/stdout. It suits embedding a server as a child
// process of its only client.
//
// The transport has no native HTTP surface, so HTTP response descriptors
// thrown by capability handlers are delivered as synthesized JSON-RPC errors
// carrying the originalHttpResponse payload.
//
// The peer is identified without bearer tokens; by default the OS user of the
// process stands in as the principal. Sessions live in an in-process host and
// end with the connection.
package stdio
