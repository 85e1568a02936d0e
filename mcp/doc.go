// Package mcp contains protocol data types and constants shared across
// transports, the dispatch engine, capability implementations, and the
// client. It mirrors the wire representation of the Model Context Protocol
// while keeping the surface Go-friendly (exported structs with json tags,
// string constants for method names and enumerations, helper validation
// functions).
//
// The package is intentionally free of transport logic: HTTP streaming and
// stdio import these types but implement their own framing, authentication,
// and session handling. Higher-level server packages (e.g. mcpservice)
// construct responses using these concrete types and hand them to the engine
// for JSON-RPC serialization.
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod). Using the constants avoids typographical mistakes
// and gives a single point of truth if the protocol evolves.
//
// Many list operations use cursor-based pagination. PaginatedRequest and
// PaginatedResult are embedded in request / result envelopes. BaseMetadata
// allows response producers to attach implementation-defined metadata under
// the _meta key without inflating every struct with an unused field.
//
// The LatestProtocolVersion constant reflects the most recent protocol date
// the library targets; IsSupportedProtocolVersion gates negotiation.
package mcp
