package streaminghttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mcpwire/mcpwire/auth/authtest"
	"github.com/mcpwire/mcpwire/httpresp"
	"github.com/mcpwire/mcpwire/internal/jsonrpc"
	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/mcpservice"
	"github.com/mcpwire/mcpwire/sessions"
	"github.com/mcpwire/mcpwire/sessions/memoryhost"
)

const testToken = "valid-token"

func newTestServer(t *testing.T, tools ...mcpservice.StaticTool) *httptest.Server {
	t.Helper()

	server := mcpservice.NewServer(
		mcpservice.WithServerInfo("test-server", "0.0.1"),
		mcpservice.WithToolsCapability(mcpservice.NewToolsContainer(tools...)),
	)
	authenticator := authtest.NewStatic(map[string]string{testToken: "user-1"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h, err := New(ctx, "http://example.test/mcp", memoryhost.New(), server, authenticator, WithRealm("mcp"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func postMessage(t *testing.T, srv *httptest.Server, sessID string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	if sessID != "" {
		req.Header.Set("Mcp-Session-Id", sessID)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func initializeSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test-client","version":"0.0.1"}}}`
	resp := postMessage(t, srv, "", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize: want 200, got %d", resp.StatusCode)
	}
	sessID := resp.Header.Get("Mcp-Session-Id")
	if sessID == "" {
		t.Fatalf("initialize: missing Mcp-Session-Id header")
	}
	var frame jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode initialize response: %v", err)
	}
	if frame.Error != nil {
		t.Fatalf("initialize: unexpected error %+v", frame.Error)
	}
	return sessID
}

func callToolBody(name string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":%q,"arguments":{}}}`, name)
}

func gatedTool() mcpservice.StaticTool {
	return mcpservice.StaticTool{
		Descriptor: mcp.Tool{Name: "gated", InputSchema: mcp.ToolInputSchema{Type: "object"}},
		Handler: func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
			resp := httpresp.New(401,
				httpresp.WithStatusText("Unauthorized"),
				httpresp.WithHeader("WWW-Authenticate", `Bearer realm="api"`),
				httpresp.WithHeader("WWW-Authenticate", `Basic realm="legacy"`),
				httpresp.WithHeader("Cache-Control", "no-store"),
				httpresp.WithBody([]byte("upstream authentication required")),
			)
			return nil, fmt.Errorf("upstream auth: %w", resp)
		},
	}
}

func TestInitializeAndToolCall(t *testing.T) {
	echo := mcpservice.NewTool("echo", func(ctx context.Context, session sessions.Session, args struct {
		Message string `json:"message"`
	}) (*mcp.CallToolResult, error) {
		return mcpservice.TextResult(args.Message), nil
	})
	srv := newTestServer(t, echo)
	sessID := initializeSession(t, srv)

	body := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`
	resp := postMessage(t, srv, sessID, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("want json response, got %q", ct)
	}

	var frame jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", frame.Error)
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Fatalf("want echoed text, got %+v", result)
	}
}

func TestThrownResponseWrittenNatively(t *testing.T) {
	srv := newTestServer(t, gatedTool())
	sessID := initializeSession(t, srv)

	resp := postMessage(t, srv, sessID, callToolBody("gated"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want raw 401 on the wire, got %d", resp.StatusCode)
	}

	challenges := resp.Header.Values("WWW-Authenticate")
	if len(challenges) != 2 {
		t.Fatalf("want 2 WWW-Authenticate values, got %v", challenges)
	}
	if challenges[0] != `Bearer realm="api"` || challenges[1] != `Basic realm="legacy"` {
		t.Fatalf("want challenge order preserved, got %v", challenges)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Fatalf("want descriptor header, got %q", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "upstream authentication required" {
		t.Fatalf("want descriptor body, got %q", body)
	}

	// Native responses carry only the descriptor's headers, not the
	// transport's JSON-RPC framing headers.
	if resp.Header.Get("Mcp-Session-Id") != "" {
		t.Fatalf("want no session header on native response")
	}
}

func TestMissingCredentialsChallenge(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != `Bearer realm="mcp"` {
		t.Fatalf("want bare bearer challenge, got %q", got)
	}
}

func TestInvalidTokenChallenge(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); !strings.Contains(got, `error="invalid_token"`) {
		t.Fatalf("want invalid_token challenge, got %q", got)
	}
}

func TestBatchRejected(t *testing.T) {
	srv := newTestServer(t)
	sessID := initializeSession(t, srv)

	resp := postMessage(t, srv, sessID, `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for batch, got %d", resp.StatusCode)
	}
}

func TestWrongContentType(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("want 415, got %d", resp.StatusCode)
	}
}

func TestNotificationAccepted(t *testing.T) {
	srv := newTestServer(t)
	sessID := initializeSession(t, srv)

	resp := postMessage(t, srv, sessID, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("want 202, got %d", resp.StatusCode)
	}
}

func TestRedundantInitializeConflicts(t *testing.T) {
	srv := newTestServer(t)
	sessID := initializeSession(t, srv)

	body := `{"jsonrpc":"2.0","id":9,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"x","version":"1"}}}`
	resp := postMessage(t, srv, sessID, body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409, got %d", resp.StatusCode)
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	srv := newTestServer(t)
	sessID := initializeSession(t, srv)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":3,"method":"ping"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Mcp-Session-Id", sessID)
	req.Header.Set("Mcp-Protocol-Version", "1999-01-01")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	srv := newTestServer(t)
	sessID := initializeSession(t, srv)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Mcp-Session-Id", sessID)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("want 204, got %d", resp.StatusCode)
	}

	// The session is gone; further use 404s.
	resp2 := postMessage(t, srv, sessID, `{"jsonrpc":"2.0","id":4,"method":"ping"}`)
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 after delete, got %d", resp2.StatusCode)
	}
}

func TestUnknownSessionNotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := postMessage(t, srv, "does-not-exist", `{"jsonrpc":"2.0","id":5,"method":"ping"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestGetStreamsServerEvents(t *testing.T) {
	listChangedTool := mcpservice.NewTool("noop", func(ctx context.Context, session sessions.Session, args struct{}) (*mcp.CallToolResult, error) {
		return mcpservice.TextResult("ok"), nil
	})
	srv := newTestServer(t, listChangedTool)
	sessID := initializeSession(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/mcp", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Mcp-Session-Id", sessID)

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("want event stream, got %q", ct)
	}

	// The stream stays open until the client goes away.
	cancel()
}
