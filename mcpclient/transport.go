package mcpclient

import (
	"context"

	"github.com/mcpwire/mcpwire/internal/jsonrpc"
)

// Transport carries JSON-RPC messages to a server. Call blocks until the
// matching response arrives. Implementations are safe for concurrent use.
type Transport interface {
	// Call sends a request and returns the server's response frame, or an
	// error when the transport could not complete the round trip. A thrown
	// HTTP response delivered natively surfaces as *HTTPResponseError here.
	Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)
	// Notify sends a notification (no response expected).
	Notify(ctx context.Context, req *jsonrpc.Request) error
	Close() error
}
