package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

// PromptHandler renders a prompt for the given request.
type PromptHandler func(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with its handler.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// PromptsContainer owns a mutable, threadsafe set of prompts. It implements
// PromptsCapability directly and embeds a ChangeNotifier for listChanged
// support.
type PromptsContainer struct {
	mu       sync.RWMutex
	prompts  []mcp.Prompt
	handlers map[string]PromptHandler

	notifier ChangeNotifier

	pageSize int
}

// NewPromptsContainer constructs a PromptsContainer with the given prompts.
func NewPromptsContainer(defs ...StaticPrompt) *PromptsContainer {
	pc := &PromptsContainer{pageSize: 50}
	pc.Replace(context.Background(), defs...)
	return pc
}

// Replace atomically replaces the prompt set.
func (pc *PromptsContainer) Replace(_ context.Context, defs ...StaticPrompt) {
	pc.mu.Lock()
	pc.prompts = make([]mcp.Prompt, 0, len(defs))
	pc.handlers = make(map[string]PromptHandler, len(defs))
	for _, d := range defs {
		pc.prompts = append(pc.prompts, d.Descriptor)
		if d.Handler != nil {
			pc.handlers[d.Descriptor.Name] = d.Handler
		}
	}
	pc.mu.Unlock()
	go func() { _ = pc.notifier.Notify(context.Background()) }()
}

// Subscriber implements ChangeSubscriber.
func (pc *PromptsContainer) Subscriber() <-chan struct{} {
	return pc.notifier.Subscriber()
}

// ListPrompts implements PromptsCapability with offset pagination.
func (pc *PromptsContainer) ListPrompts(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Prompt], error) {
	pc.mu.RLock()
	all := make([]mcp.Prompt, len(pc.prompts))
	copy(all, pc.prompts)
	size := pc.pageSize
	pc.mu.RUnlock()
	return pageSlice(all, cursor, size), nil
}

// GetPrompt implements PromptsCapability.
func (pc *PromptsContainer) GetPrompt(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("invalid prompt request: missing name")
	}
	pc.mu.RLock()
	h := pc.handlers[req.Name]
	pc.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("prompt not found: %s", req.Name)
	}
	return h(ctx, session, req)
}

// GetListChangedCapability always advertises listChanged for containers.
func (pc *PromptsContainer) GetListChangedCapability(ctx context.Context, session sessions.Session) (PromptListChangedCapability, bool, error) {
	return promptsListChangedFromSubscriber{sub: pc}, true, nil
}

type promptsListChangedFromSubscriber struct{ sub ChangeSubscriber }

func (p promptsListChangedFromSubscriber) Register(ctx context.Context, session sessions.Session, fn NotifyPromptsListChangedFunc) (bool, error) {
	if p.sub == nil || fn == nil {
		return false, nil
	}
	ch := p.sub.Subscriber()
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
