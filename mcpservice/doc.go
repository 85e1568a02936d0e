// Package mcpservice exposes composable building blocks for implementing the
// server side of MCP. Capabilities (tools, resources, prompts, logging,
// completions) are surfaced through small interfaces that can be satisfied by
// a static container type, a per-session provider function, or a custom
// implementation.
//
// Capability discovery methods return (cap, ok, err). A false ok means the
// capability is absent for the session; err is reserved for transient or
// internal failures while determining support. An empty-but-present
// capability (e.g. a ToolsContainer with zero tools) is still advertised.
//
// Handlers can return an error from any capability method to fail a request.
// Returning (or wrapping) an *httpresp.Response takes the HTTP passthrough
// path instead of ordinary error mapping; see the httpresp package.
package mcpservice
