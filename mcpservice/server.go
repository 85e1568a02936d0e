package mcpservice

import (
	"context"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

// ServerOption configures a concrete ServerCapabilities implementation.
type ServerOption func(*server)

type server struct {
	staticInfo   *mcp.ImplementationInfo
	infoProvider func(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)

	staticProtocolVersion string
	staticInstructions    *string
	instructionsProvider  func(ctx context.Context, session sessions.Session) (string, bool, error)

	staticToolsCap ToolsCapability
	toolsProvider  func(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error)

	staticResourcesCap ResourcesCapability
	resourcesProvider  func(ctx context.Context, session sessions.Session) (ResourcesCapability, bool, error)

	staticPromptsCap PromptsCapability
	promptsProvider  func(ctx context.Context, session sessions.Session) (PromptsCapability, bool, error)

	staticLoggingCap LoggingCapability

	staticCompletionsCap CompletionsCapability
}

// NewServer builds a ServerCapabilities using functional options. Options
// configure either static values or per-session providers.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets a static server info value.
func WithServerInfo(name, version string) ServerOption {
	return func(s *server) { s.staticInfo = &mcp.ImplementationInfo{Name: name, Version: version} }
}

// WithServerInfoProvider sets a provider for per-session server info.
func WithServerInfoProvider(fn func(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)) ServerOption {
	return func(s *server) { s.infoProvider = fn }
}

// WithPreferredProtocolVersion sets a static preferred protocol version.
func WithPreferredProtocolVersion(version string) ServerOption {
	return func(s *server) { s.staticProtocolVersion = version }
}

// WithInstructions sets static instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *server) { s.staticInstructions = &instr }
}

// WithInstructionsProvider sets a per-session provider for instructions.
func WithInstructionsProvider(fn func(ctx context.Context, session sessions.Session) (string, bool, error)) ServerOption {
	return func(s *server) { s.instructionsProvider = fn }
}

// WithToolsCapability wires a static ToolsCapability used for all sessions.
func WithToolsCapability(cap ToolsCapability) ServerOption {
	return func(s *server) { s.staticToolsCap = cap }
}

// WithToolsProvider wires a per-session tools capability provider.
func WithToolsProvider(fn func(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error)) ServerOption {
	return func(s *server) { s.toolsProvider = fn }
}

// WithResourcesCapability wires a static ResourcesCapability.
func WithResourcesCapability(cap ResourcesCapability) ServerOption {
	return func(s *server) { s.staticResourcesCap = cap }
}

// WithResourcesProvider wires a per-session resources capability provider.
func WithResourcesProvider(fn func(ctx context.Context, session sessions.Session) (ResourcesCapability, bool, error)) ServerOption {
	return func(s *server) { s.resourcesProvider = fn }
}

// WithPromptsCapability wires a static PromptsCapability.
func WithPromptsCapability(cap PromptsCapability) ServerOption {
	return func(s *server) { s.staticPromptsCap = cap }
}

// WithPromptsProvider wires a per-session prompts capability provider.
func WithPromptsProvider(fn func(ctx context.Context, session sessions.Session) (PromptsCapability, bool, error)) ServerOption {
	return func(s *server) { s.promptsProvider = fn }
}

// WithLoggingCapability wires a static LoggingCapability.
func WithLoggingCapability(cap LoggingCapability) ServerOption {
	return func(s *server) { s.staticLoggingCap = cap }
}

// WithCompletionsCapability wires a static CompletionsCapability.
func WithCompletionsCapability(cap CompletionsCapability) ServerOption {
	return func(s *server) { s.staticCompletionsCap = cap }
}

func (s *server) GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error) {
	if s.infoProvider != nil {
		return s.infoProvider(ctx, session)
	}
	if s.staticInfo != nil {
		return *s.staticInfo, nil
	}
	return mcp.ImplementationInfo{}, nil
}

func (s *server) GetPreferredProtocolVersion(ctx context.Context) (string, bool, error) {
	if s.staticProtocolVersion != "" {
		return s.staticProtocolVersion, true, nil
	}
	return "", false, nil
}

func (s *server) GetInstructions(ctx context.Context, session sessions.Session) (string, bool, error) {
	if s.instructionsProvider != nil {
		return s.instructionsProvider(ctx, session)
	}
	if s.staticInstructions != nil {
		return *s.staticInstructions, true, nil
	}
	return "", false, nil
}

func (s *server) GetToolsCapability(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error) {
	if s.toolsProvider != nil {
		return s.toolsProvider(ctx, session)
	}
	if s.staticToolsCap != nil {
		return s.staticToolsCap, true, nil
	}
	return nil, false, nil
}

func (s *server) GetResourcesCapability(ctx context.Context, session sessions.Session) (ResourcesCapability, bool, error) {
	if s.resourcesProvider != nil {
		return s.resourcesProvider(ctx, session)
	}
	if s.staticResourcesCap != nil {
		return s.staticResourcesCap, true, nil
	}
	return nil, false, nil
}

func (s *server) GetPromptsCapability(ctx context.Context, session sessions.Session) (PromptsCapability, bool, error) {
	if s.promptsProvider != nil {
		return s.promptsProvider(ctx, session)
	}
	if s.staticPromptsCap != nil {
		return s.staticPromptsCap, true, nil
	}
	return nil, false, nil
}

func (s *server) GetLoggingCapability(ctx context.Context, session sessions.Session) (LoggingCapability, bool, error) {
	if s.staticLoggingCap != nil {
		return s.staticLoggingCap, true, nil
	}
	return nil, false, nil
}

func (s *server) GetCompletionsCapability(ctx context.Context, session sessions.Session) (CompletionsCapability, bool, error) {
	if s.staticCompletionsCap != nil {
		return s.staticCompletionsCap, true, nil
	}
	return nil, false, nil
}
