package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

// StaticResource pairs a resource descriptor with its contents.
type StaticResource struct {
	Descriptor mcp.Resource
	Contents   []mcp.ResourceContents
}

// TextResource builds a StaticResource holding a single text payload.
func TextResource(uri, name, mimeType, text string) StaticResource {
	return StaticResource{
		Descriptor: mcp.Resource{URI: uri, Name: name, MimeType: mimeType},
		Contents:   []mcp.ResourceContents{{URI: uri, MimeType: mimeType, Text: text}},
	}
}

// ResourcesContainer owns a mutable, threadsafe set of resources and
// templates. It implements ResourcesCapability directly and embeds a
// ChangeNotifier for listChanged support.
type ResourcesContainer struct {
	mu        sync.RWMutex
	resources []StaticResource
	templates []mcp.ResourceTemplate

	notifier ChangeNotifier

	pageSize int
}

// NewResourcesContainer constructs a ResourcesContainer with the given
// resources.
func NewResourcesContainer(defs ...StaticResource) *ResourcesContainer {
	rc := &ResourcesContainer{pageSize: 50}
	rc.Replace(context.Background(), defs...)
	return rc
}

// SetPageSize sets the pagination size used by the list operations.
func (rc *ResourcesContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	rc.mu.Lock()
	rc.pageSize = n
	rc.mu.Unlock()
}

// Replace atomically replaces the resource set.
func (rc *ResourcesContainer) Replace(_ context.Context, defs ...StaticResource) {
	rc.mu.Lock()
	rc.resources = append(rc.resources[:0:0], defs...)
	rc.mu.Unlock()
	go func() { _ = rc.notifier.Notify(context.Background()) }()
}

// SetTemplates replaces the advertised resource templates.
func (rc *ResourcesContainer) SetTemplates(tpls ...mcp.ResourceTemplate) {
	rc.mu.Lock()
	rc.templates = append(rc.templates[:0:0], tpls...)
	rc.mu.Unlock()
}

// Add registers a resource unless its URI already exists. Returns true if
// added.
func (rc *ResourcesContainer) Add(_ context.Context, def StaticResource) bool {
	rc.mu.Lock()
	for _, r := range rc.resources {
		if r.Descriptor.URI == def.Descriptor.URI {
			rc.mu.Unlock()
			return false
		}
	}
	rc.resources = append(rc.resources, def)
	rc.mu.Unlock()
	go func() { _ = rc.notifier.Notify(context.Background()) }()
	return true
}

// Remove removes a resource by URI. Returns true if removed.
func (rc *ResourcesContainer) Remove(_ context.Context, uri string) bool {
	rc.mu.Lock()
	n := 0
	removed := false
	for _, r := range rc.resources {
		if r.Descriptor.URI == uri {
			removed = true
			continue
		}
		rc.resources[n] = r
		n++
	}
	if removed {
		rc.resources = rc.resources[:n]
	}
	rc.mu.Unlock()
	if removed {
		go func() { _ = rc.notifier.Notify(context.Background()) }()
	}
	return removed
}

// Subscriber implements ChangeSubscriber.
func (rc *ResourcesContainer) Subscriber() <-chan struct{} {
	return rc.notifier.Subscriber()
}

// ListResources implements ResourcesCapability with offset pagination.
func (rc *ResourcesContainer) ListResources(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Resource], error) {
	rc.mu.RLock()
	all := make([]mcp.Resource, len(rc.resources))
	for i, r := range rc.resources {
		all[i] = r.Descriptor
	}
	size := rc.pageSize
	rc.mu.RUnlock()
	return pageSlice(all, cursor, size), nil
}

// ListResourceTemplates implements ResourcesCapability.
func (rc *ResourcesContainer) ListResourceTemplates(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.ResourceTemplate], error) {
	rc.mu.RLock()
	all := make([]mcp.ResourceTemplate, len(rc.templates))
	copy(all, rc.templates)
	size := rc.pageSize
	rc.mu.RUnlock()
	return pageSlice(all, cursor, size), nil
}

// ReadResource implements ResourcesCapability.
func (rc *ResourcesContainer) ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	for _, r := range rc.resources {
		if r.Descriptor.URI == uri {
			out := make([]mcp.ResourceContents, len(r.Contents))
			copy(out, r.Contents)
			return out, nil
		}
	}
	return nil, fmt.Errorf("resource not found: %s", uri)
}

// GetListChangedCapability always advertises listChanged for containers.
func (rc *ResourcesContainer) GetListChangedCapability(ctx context.Context, session sessions.Session) (ResourceListChangedCapability, bool, error) {
	return resourceListChangedFromSubscriber{sub: rc}, true, nil
}

// resourceListChangedFromSubscriber adapts a ChangeSubscriber to
// ResourceListChangedCapability.
type resourceListChangedFromSubscriber struct{ sub ChangeSubscriber }

func (r resourceListChangedFromSubscriber) Register(ctx context.Context, session sessions.Session, fn NotifyResourceChangeFunc) (bool, error) {
	if r.sub == nil || fn == nil {
		return false, nil
	}
	ch := r.sub.Subscriber()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				fn(ctx, session, "")
			}
		}
	}()
	return true, nil
}
