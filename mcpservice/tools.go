package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown argument fields
// are allowed. When false (the default), the generated schema sets
// additionalProperties=false and runtime decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a StaticTool from a typed args struct A. It reflects a
// JSON Schema from A using invopop/jsonschema, down-converts it to MCP's
// simplified ToolInputSchema, and wraps the handler with runtime JSON
// decoding of the arguments.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, args A) (*mcp.CallToolResult, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectToMCPInputSchema[A](cfg.allowAdditionalProperties),
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			if cfg.allowAdditionalProperties {
				if err := json.Unmarshal(req.Arguments, &a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(req.Arguments))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			}
		}
		return fn(ctx, session, a)
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// NewToolWithOutput constructs a typed-input, typed-output tool. The output
// value returned by fn is serialized into structuredContent and its schema
// advertised as the tool's outputSchema.
func NewToolWithOutput[A, O any](name string, fn func(ctx context.Context, session sessions.Session, args A) (O, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	outSchema := reflectToMCPOutputSchema[O]()
	desc := mcp.Tool{
		Name:         name,
		Description:  cfg.description,
		InputSchema:  reflectToMCPInputSchema[A](cfg.allowAdditionalProperties),
		OutputSchema: &outSchema,
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			dec := json.NewDecoder(bytes.NewReader(req.Arguments))
			if !cfg.allowAdditionalProperties {
				dec.DisallowUnknownFields()
			}
			if err := dec.Decode(&a); err != nil {
				return Errorf("invalid arguments: %v", err), nil
			}
		}
		out, err := fn(ctx, session, a)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("marshal structured output: %w", err)
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("structured output must be an object: %w", err)
		}
		return &mcp.CallToolResult{StructuredContent: m}, nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectToMCPInputSchema reflects a Go type A into a jsonschema.Schema and
// converts it to the simplified mcp.ToolInputSchema.
func reflectToMCPInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	// Only object schemas map cleanly onto ToolInputSchema; anything else
	// degrades to an empty object with the configured unknown-field policy.
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toMCPProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

// reflectToMCPOutputSchema reflects a Go type O into an mcp.ToolOutputSchema.
func reflectToMCPOutputSchema[O any]() mcp.ToolOutputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(O))
	if s == nil || s.Type != "object" {
		return mcp.ToolOutputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}
	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toMCPProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}
	return mcp.ToolOutputSchema{Type: "object", Properties: props, Required: required}
}

// toMCPProperty recursively maps a jsonschema.Schema to the simplified MCP
// SchemaProperty.
func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toMCPProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// ToolsContainer owns a mutable, threadsafe set of tool descriptors and
// handlers. It implements ToolsCapability directly and embeds a
// ChangeNotifier so listChanged support comes for free.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler

	notifier ChangeNotifier

	pageSize int
}

// NewToolsContainer constructs a ToolsContainer with the given tools.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	tc := &ToolsContainer{pageSize: 50}
	tc.Replace(context.Background(), defs...)
	return tc
}

// SetPageSize sets the pagination size used by ListTools. Non-positive
// values are ignored.
func (tc *ToolsContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	tc.mu.Lock()
	tc.pageSize = n
	tc.mu.Unlock()
}

// Snapshot returns a copy of the current tool descriptors.
func (tc *ToolsContainer) Snapshot() []mcp.Tool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	out := make([]mcp.Tool, len(tc.tools))
	copy(out, tc.tools)
	return out
}

// Replace atomically replaces the entire tool set.
func (tc *ToolsContainer) Replace(_ context.Context, defs ...StaticTool) {
	tc.mu.Lock()
	tc.tools = make([]mcp.Tool, 0, len(defs))
	tc.handlers = make(map[string]ToolHandler, len(defs))
	for _, d := range defs {
		// last write wins on duplicate names
		tc.tools = append(tc.tools, d.Descriptor)
		if d.Handler != nil {
			tc.handlers[d.Descriptor.Name] = d.Handler
		}
	}
	tc.mu.Unlock()
	go func() { _ = tc.notifier.Notify(context.Background()) }()
}

// Add registers a new tool unless its name already exists. Returns true if
// added.
func (tc *ToolsContainer) Add(_ context.Context, def StaticTool) bool {
	tc.mu.Lock()
	name := def.Descriptor.Name
	if _, exists := tc.handlers[name]; exists {
		tc.mu.Unlock()
		return false
	}
	tc.tools = append(tc.tools, def.Descriptor)
	if def.Handler != nil {
		tc.handlers[name] = def.Handler
	}
	tc.mu.Unlock()
	go func() { _ = tc.notifier.Notify(context.Background()) }()
	return true
}

// Remove removes a tool by name. Returns true if removed.
func (tc *ToolsContainer) Remove(_ context.Context, name string) bool {
	tc.mu.Lock()
	n := 0
	removed := false
	for _, t := range tc.tools {
		if t.Name == name {
			removed = true
			continue
		}
		tc.tools[n] = t
		n++
	}
	if removed {
		tc.tools = tc.tools[:n]
		delete(tc.handlers, name)
	}
	tc.mu.Unlock()
	if removed {
		go func() { _ = tc.notifier.Notify(context.Background()) }()
	}
	return removed
}

// Subscriber implements ChangeSubscriber.
func (tc *ToolsContainer) Subscriber() <-chan struct{} {
	return tc.notifier.Subscriber()
}

// ListTools implements ToolsCapability with offset pagination.
func (tc *ToolsContainer) ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	tc.mu.RLock()
	all := make([]mcp.Tool, len(tc.tools))
	copy(all, tc.tools)
	size := tc.pageSize
	tc.mu.RUnlock()
	return pageSlice(all, cursor, size), nil
}

// CallTool implements ToolsCapability.
func (tc *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("invalid tool request: missing name")
	}
	tc.mu.RLock()
	h := tc.handlers[req.Name]
	tc.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("tool not found: %s", req.Name)
	}
	return h(ctx, session, req)
}

// GetListChangedCapability always advertises listChanged for containers.
func (tc *ToolsContainer) GetListChangedCapability(ctx context.Context, session sessions.Session) (ToolListChangedCapability, bool, error) {
	return toolsListChangedFromSubscriber{sub: tc}, true, nil
}

// toolsListChangedFromSubscriber adapts a ChangeSubscriber to
// ToolListChangedCapability.
type toolsListChangedFromSubscriber struct{ sub ChangeSubscriber }

func (t toolsListChangedFromSubscriber) Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (bool, error) {
	if t.sub == nil || fn == nil {
		return false, nil
	}
	ch := t.sub.Subscriber()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				fn(ctx, session)
			}
		}
	}()
	return true, nil
}

// TextResult builds a text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: s}}}
}

// Errorf returns an error CallToolResult with a single text block and
// IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}
