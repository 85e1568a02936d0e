package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/elnormous/contenttype"

	"github.com/mcpwire/mcpwire/internal/jsonrpc"
)

const (
	sessionIDHeader       = "Mcp-Session-Id"
	protocolVersionHeader = "Mcp-Protocol-Version"
)

// HTTPTransport speaks the streaming HTTP transport's POST surface: one
// JSON-RPC message per POST, session identity via the Mcp-Session-Id header.
//
// A non-2xx response that is not a JSON-RPC frame is the server delivering a
// thrown HTTP response natively; Call returns it as *HTTPResponseError.
type HTTPTransport struct {
	endpoint string
	hc       *http.Client
	token    string

	mu              sync.Mutex
	sessionID       string
	protocolVersion string
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if hc != nil {
			t.hc = hc
		}
	}
}

// WithBearerToken attaches a bearer token to every request.
func WithBearerToken(token string) HTTPOption {
	return func(t *HTTPTransport) { t.token = token }
}

// NewHTTPTransport builds a transport that POSTs to endpoint.
func NewHTTPTransport(endpoint string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{endpoint: endpoint, hc: http.DefaultClient}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	resp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	t.captureSession(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && isJSONResponse(resp) {
		var frame jsonrpc.Response
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBodyBytes)).Decode(&frame); err != nil {
			return nil, fmt.Errorf("decode response frame: %w", err)
		}
		return &frame, nil
	}

	// Some servers wrap JSON-RPC frames in non-2xx statuses for transport
	// level failures; only a parseable frame counts as one.
	if isJSONResponse(resp) {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		var msg jsonrpc.AnyMessage
		if json.Unmarshal(body, &msg) == nil {
			if frame := msg.AsResponse(); frame != nil {
				return frame, nil
			}
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	return nil, newNativeHTTPError(resp)
}

func (t *HTTPTransport) Notify(ctx context.Context, req *jsonrpc.Request) error {
	resp, err := t.post(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return newNativeHTTPError(resp)
}

// Close ends the server-side session with a DELETE when one was established.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	sessionID := t.sessionID
	t.sessionID = ""
	t.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	req, err := http.NewRequest(http.MethodDelete, t.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(sessionIDHeader, sessionID)
	t.setAuth(req)
	resp, err := t.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, msg *jsonrpc.Request) (*http.Response, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	t.setAuth(req)

	t.mu.Lock()
	if t.sessionID != "" {
		req.Header.Set(sessionIDHeader, t.sessionID)
	}
	if t.protocolVersion != "" {
		req.Header.Set(protocolVersionHeader, t.protocolVersion)
	}
	t.mu.Unlock()

	return t.hc.Do(req)
}

func (t *HTTPTransport) setAuth(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

func (t *HTTPTransport) captureSession(resp *http.Response) {
	sessionID := resp.Header.Get(sessionIDHeader)
	version := resp.Header.Get(protocolVersionHeader)
	if sessionID == "" && version == "" {
		return
	}
	t.mu.Lock()
	if sessionID != "" {
		t.sessionID = sessionID
	}
	if version != "" {
		t.protocolVersion = version
	}
	t.mu.Unlock()
}

func isJSONResponse(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt := contenttype.NewMediaType(ct)
	return mt.Type == "application" && (mt.Subtype == "json" || strings.HasSuffix(mt.Subtype, "+json"))
}

var _ Transport = (*HTTPTransport)(nil)
