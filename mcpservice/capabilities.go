package mcpservice

import (
	"context"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

// ServerCapabilities is the surface the dispatch engine discovers per
// session. Implementations may be static (same capabilities for all
// sessions) or dynamic (vary by session) but MUST be safe for concurrent use
// and respect the provided context.
type ServerCapabilities interface {
	// GetServerInfo returns implementation information surfaced in
	// initialize results. It MAY be called multiple times and SHOULD be
	// inexpensive.
	GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)

	// GetPreferredProtocolVersion returns the server's preferred MCP
	// protocol version. If ok is false, the engine falls back to the
	// client's requested version when supported.
	GetPreferredProtocolVersion(ctx context.Context) (version string, ok bool, err error)

	// GetInstructions returns optional human-readable instructions included
	// in the initialize result. ok=false omits the field.
	GetInstructions(ctx context.Context, session sessions.Session) (instructions string, ok bool, err error)

	// GetToolsCapability returns the tools capability for the session, or
	// ok=false when tools are not supported.
	GetToolsCapability(ctx context.Context, session sessions.Session) (cap ToolsCapability, ok bool, err error)

	// GetResourcesCapability returns the resources capability for the
	// session, or ok=false when resources are not supported.
	GetResourcesCapability(ctx context.Context, session sessions.Session) (cap ResourcesCapability, ok bool, err error)

	// GetPromptsCapability returns the prompts capability for the session,
	// or ok=false when prompts are not supported.
	GetPromptsCapability(ctx context.Context, session sessions.Session) (cap PromptsCapability, ok bool, err error)

	// GetLoggingCapability returns the logging capability for the session,
	// or ok=false when logging/setLevel is not supported.
	GetLoggingCapability(ctx context.Context, session sessions.Session) (cap LoggingCapability, ok bool, err error)

	// GetCompletionsCapability returns the completions capability for the
	// session, or ok=false when completion/complete is not supported.
	GetCompletionsCapability(ctx context.Context, session sessions.Session) (cap CompletionsCapability, ok bool, err error)
}

// ToolsCapability defines the server's tools surface area. All methods MUST
// be safe for concurrent use.
type ToolsCapability interface {
	// ListTools returns a (possibly paginated) list of tools available to
	// the session. A nil cursor requests the first page.
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

	// CallTool invokes a named tool. Returning an error fails the request;
	// a wrapped *httpresp.Response takes the HTTP passthrough path.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

	// GetListChangedCapability returns an optional capability used to
	// register for tool list change callbacks. ok=false means listChanged
	// is not advertised.
	GetListChangedCapability(ctx context.Context, session sessions.Session) (cap ToolListChangedCapability, ok bool, err error)
}

// NotifyToolsListChangedFunc is invoked when the tool list changes for the
// session. Implementations MAY coalesce rapid changes.
type NotifyToolsListChangedFunc func(ctx context.Context, session sessions.Session)

// ToolListChangedCapability provides tools list-changed notification
// support. Register should respect ctx cancellation to stop callbacks.
type ToolListChangedCapability interface {
	Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (ok bool, err error)
}

// ResourcesCapability defines the server's resources surface area.
type ResourcesCapability interface {
	// ListResources returns a (possibly paginated) list of resources.
	ListResources(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Resource], error)

	// ListResourceTemplates returns a (possibly paginated) list of resource
	// templates.
	ListResourceTemplates(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.ResourceTemplate], error)

	// ReadResource returns the contents for a specific resource URI.
	ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error)

	// GetListChangedCapability returns an optional capability used to
	// register for resource list change callbacks.
	GetListChangedCapability(ctx context.Context, session sessions.Session) (cap ResourceListChangedCapability, ok bool, err error)
}

// NotifyResourceChangeFunc signals that the resource set changed. uri names
// the changed resource when known; empty means a general list change.
type NotifyResourceChangeFunc func(ctx context.Context, session sessions.Session, uri string)

// ResourceListChangedCapability provides resource list-changed notification
// support.
type ResourceListChangedCapability interface {
	Register(ctx context.Context, session sessions.Session, fn NotifyResourceChangeFunc) (ok bool, err error)
}

// PromptsCapability defines the server's prompts surface area.
type PromptsCapability interface {
	// ListPrompts returns a (possibly paginated) list of prompts.
	ListPrompts(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Prompt], error)

	// GetPrompt returns the prompt messages for the given name and arguments.
	GetPrompt(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error)

	// GetListChangedCapability returns an optional capability used to
	// register for prompt list change callbacks.
	GetListChangedCapability(ctx context.Context, session sessions.Session) (cap PromptListChangedCapability, ok bool, err error)
}

// NotifyPromptsListChangedFunc is invoked when the prompt list changes.
type NotifyPromptsListChangedFunc func(ctx context.Context, session sessions.Session)

// PromptListChangedCapability provides prompt list-changed notification
// support.
type PromptListChangedCapability interface {
	Register(ctx context.Context, session sessions.Session, fn NotifyPromptsListChangedFunc) (ok bool, err error)
}

// LoggingCapability allows the client to adjust the server's logging level.
type LoggingCapability interface {
	SetLevel(ctx context.Context, session sessions.Session, level mcp.LoggingLevel) error
}

// CompletionsCapability provides argument autocompletion for prompts and
// resource template arguments.
type CompletionsCapability interface {
	Complete(ctx context.Context, session sessions.Session, req *mcp.CompleteRequest) (*mcp.CompleteResult, error)
}
