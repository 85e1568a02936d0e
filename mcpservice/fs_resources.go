package mcpservice

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

// FSResources serves the files under a directory as MCP resources. File
// paths map to URIs as "<scheme>://<relative-path>". When watching is
// enabled (the default), fsnotify events drive listChanged and per-resource
// update callbacks.
type FSResources struct {
	root   string
	scheme string

	mu      sync.RWMutex
	updated map[string]struct{} // URIs changed since last drain

	notifier ChangeNotifier
	watcher  *fsnotify.Watcher

	pageSize int
}

// FSOption configures an FSResources instance.
type FSOption func(*FSResources)

// WithFSScheme overrides the URI scheme (default "file").
func WithFSScheme(scheme string) FSOption {
	return func(f *FSResources) {
		if scheme != "" {
			f.scheme = scheme
		}
	}
}

// WithFSPageSize sets the list pagination size.
func WithFSPageSize(n int) FSOption {
	return func(f *FSResources) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// NewFSResources builds a directory-backed resources capability and starts
// watching root for changes. Close releases the watcher.
func NewFSResources(ctx context.Context, root string, opts ...FSOption) (*FSResources, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}

	f := &FSResources{
		root:     abs,
		scheme:   "file",
		updated:  make(map[string]struct{}),
		pageSize: 50,
	}
	for _, opt := range opts {
		opt(f)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	f.watcher = w
	// Watch the root and all existing subdirectories.
	if err := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	}); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch tree: %w", err)
	}

	go f.watchLoop(ctx)
	return f, nil
}

// Close stops the filesystem watcher.
func (f *FSResources) Close() error {
	f.notifier.Close()
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

func (f *FSResources) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories join the watch set.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = f.watcher.Add(ev.Name)
				}
			}
			if uri, err := f.uriFor(ev.Name); err == nil {
				f.mu.Lock()
				f.updated[uri] = struct{}{}
				f.mu.Unlock()
			}
			_ = f.notifier.Notify(ctx)
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// DrainUpdated returns and clears the set of URIs that changed since the
// last call. The engine uses it to emit resources/updated notifications.
func (f *FSResources) DrainUpdated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updated) == 0 {
		return nil
	}
	out := make([]string, 0, len(f.updated))
	for uri := range f.updated {
		out = append(out, uri)
	}
	f.updated = make(map[string]struct{})
	sort.Strings(out)
	return out
}

// Subscriber implements ChangeSubscriber.
func (f *FSResources) Subscriber() <-chan struct{} {
	return f.notifier.Subscriber()
}

func (f *FSResources) uriFor(path string) (string, error) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return "", err
	}
	return f.scheme + "://" + filepath.ToSlash(rel), nil
}

func (f *FSResources) pathFor(uri string) (string, error) {
	prefix := f.scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("unknown resource uri: %s", uri)
	}
	rel := strings.TrimPrefix(uri, prefix)
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	// Reject traversal outside the root.
	if path != f.root && !strings.HasPrefix(path, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("resource uri escapes root: %s", uri)
	}
	return path, nil
}

// ListResources implements ResourcesCapability by walking the directory.
func (f *FSResources) ListResources(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Resource], error) {
	var all []mcp.Resource
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		uri, err := f.uriFor(path)
		if err != nil {
			return err
		}
		all = append(all, mcp.Resource{URI: uri, Name: d.Name(), MimeType: mimeTypeFor(path)})
		return nil
	})
	if err != nil {
		return Page[mcp.Resource]{}, fmt.Errorf("walk resources: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].URI < all[j].URI })
	return pageSlice(all, cursor, f.pageSize), nil
}

// ListResourceTemplates implements ResourcesCapability. Directory-backed
// resources have no templates.
func (f *FSResources) ListResourceTemplates(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.ResourceTemplate], error) {
	return NewPage[mcp.ResourceTemplate](nil), nil
}

// ReadResource implements ResourcesCapability.
func (f *FSResources) ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	path, err := f.pathFor(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", uri, err)
	}
	return []mcp.ResourceContents{{URI: uri, MimeType: mimeTypeFor(path), Text: string(data)}}, nil
}

// GetListChangedCapability advertises listChanged backed by the watcher.
func (f *FSResources) GetListChangedCapability(ctx context.Context, session sessions.Session) (ResourceListChangedCapability, bool, error) {
	return resourceListChangedFromSubscriber{sub: f}, true, nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".txt", "":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

var _ ResourcesCapability = (*FSResources)(nil)
