// Package mcpclient is an MCP client speaking the streaming HTTP and stdio
// transports.
//
// Servers in this ecosystem can answer a request with an arbitrary HTTP
// response instead of a JSON-RPC result. Over streaming HTTP that response
// arrives natively on the POST; over stdio (or any other non-HTTP transport)
// it arrives as a JSON-RPC error carrying an originalHttpResponse payload.
// The client folds both shapes into HTTPResponseError so callers handle them
// uniformly:
//
//	_, err := c.CallTool(ctx, "protected", nil)
//	if info := mcpclient.ExtractHTTPErrorInfo(err); info.Type == mcpclient.InfoHTTPResponse {
//	    challenge := info.Headers.Get("WWW-Authenticate")
//	    ...
//	}
package mcpclient
