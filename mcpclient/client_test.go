package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcpwire/mcpwire/auth/authtest"
	"github.com/mcpwire/mcpwire/httpresp"
	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/mcpservice"
	"github.com/mcpwire/mcpwire/sessions"
	"github.com/mcpwire/mcpwire/sessions/memoryhost"
	"github.com/mcpwire/mcpwire/stdio"
	"github.com/mcpwire/mcpwire/streaminghttp"
)

const testToken = "client-test-token"

func testTools() []mcpservice.StaticTool {
	echo := mcpservice.NewTool("echo", func(ctx context.Context, session sessions.Session, args struct {
		Message string `json:"message"`
	}) (*mcp.CallToolResult, error) {
		return mcpservice.TextResult(args.Message), nil
	})
	gated := mcpservice.StaticTool{
		Descriptor: mcp.Tool{Name: "gated", InputSchema: mcp.ToolInputSchema{Type: "object"}},
		Handler: func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
			resp := httpresp.New(401,
				httpresp.WithStatusText("Unauthorized"),
				httpresp.WithHeader("WWW-Authenticate", `Bearer realm="api"`),
				httpresp.WithHeader("WWW-Authenticate", `Basic realm="legacy"`),
				httpresp.WithBody([]byte("authentication required")),
			)
			return nil, fmt.Errorf("upstream auth: %w", resp)
		},
	}
	return []mcpservice.StaticTool{echo, gated}
}

func testServerCapabilities() mcpservice.ServerCapabilities {
	return mcpservice.NewServer(
		mcpservice.WithServerInfo("client-test", "0.0.1"),
		mcpservice.WithToolsCapability(mcpservice.NewToolsContainer(testTools()...)),
	)
}

func newHTTPClient(t *testing.T) *Client {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h, err := streaminghttp.New(ctx, "http://example.test/mcp", memoryhost.New(), testServerCapabilities(),
		authtest.NewStatic(map[string]string{testToken: "user-1"}))
	if err != nil {
		t.Fatalf("streaminghttp.New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	transport := NewHTTPTransport(srv.URL+"/mcp",
		WithHTTPClient(srv.Client()),
		WithBearerToken(testToken),
	)
	c := New(transport, WithClientInfo("e2e-client", "0.0.1"))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newStdioClient(t *testing.T) *Client {
	t.Helper()

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	h := stdio.NewHandler(testServerCapabilities(),
		stdio.WithIO(c2sR, s2cW),
		stdio.WithLogger(slog.New(slog.DiscardHandler)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = c2sW.Close()
		_ = s2cW.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("stdio server did not stop")
		}
	})

	transport := NewStdioTransport(s2cR, c2sW, c2sW.Close)
	c := New(transport, WithClientInfo("e2e-client", "0.0.1"))
	return c
}

func mustInitialize(t *testing.T, c *Client) *mcp.InitializeResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := c.Initialize(ctx)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return res
}

func TestHTTPClientRoundTrip(t *testing.T) {
	c := newHTTPClient(t)
	res := mustInitialize(t, c)
	if res.ServerInfo.Name != "client-test" {
		t.Fatalf("want server info, got %+v", res.ServerInfo)
	}

	ctx := context.Background()
	tools, err := c.ListTools(ctx, "")
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools.Tools) != 2 {
		t.Fatalf("want 2 tools, got %d", len(tools.Tools))
	}

	out, err := c.CallTool(ctx, "echo", map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(out.Content) != 1 || out.Content[0].Text != "hello" {
		t.Fatalf("want echo, got %+v", out)
	}
}

func TestHTTPClientReceivesNativeResponse(t *testing.T) {
	c := newHTTPClient(t)
	mustInitialize(t, c)

	_, err := c.CallTool(context.Background(), "gated", nil)
	if !IsHTTPResponseError(err) {
		t.Fatalf("want http response error, got %v", err)
	}

	var hr *HTTPResponseError
	errors.As(err, &hr)
	if hr.Status != 401 || hr.StatusText != "Unauthorized" {
		t.Fatalf("want 401 Unauthorized, got %d %q", hr.Status, hr.StatusText)
	}
	if hr.Error() != "Error POSTing to endpoint (HTTP 401): authentication required" {
		t.Fatalf("want native message, got %q", hr.Error())
	}
	// The native path preserves one header line per value.
	values := hr.Headers.Values("WWW-Authenticate")
	if len(values) != 2 || values[0] != `Bearer realm="api"` || values[1] != `Basic realm="legacy"` {
		t.Fatalf("want ordered distinct challenge lines, got %v", values)
	}
	if hr.Response == nil || hr.Response.StatusCode != 401 {
		t.Fatalf("want genuine response attached")
	}
}

func TestStdioClientReceivesSynthesizedResponse(t *testing.T) {
	c := newStdioClient(t)
	mustInitialize(t, c)

	_, err := c.CallTool(context.Background(), "gated", nil)
	if !IsHTTPResponseError(err) {
		t.Fatalf("want http response error, got %v", err)
	}

	var hr *HTTPResponseError
	errors.As(err, &hr)
	if hr.Status != 401 || hr.StatusText != "Unauthorized" {
		t.Fatalf("want 401 Unauthorized, got %d %q", hr.Status, hr.StatusText)
	}
	if hr.Error() != "MCP error 401: HTTP 401: Unauthorized" {
		t.Fatalf("want synthesized message, got %q", hr.Error())
	}
	// The synthesized path folds repeated values into one joined line.
	values := hr.Headers.Values("WWW-Authenticate")
	if len(values) != 1 || values[0] != `Bearer realm="api", Basic realm="legacy"` {
		t.Fatalf("want joined challenge line, got %v", values)
	}
}

func TestBothTransportsExtractEquivalentInfo(t *testing.T) {
	httpClient := newHTTPClient(t)
	mustInitialize(t, httpClient)
	stdioClient := newStdioClient(t)
	mustInitialize(t, stdioClient)

	_, httpErr := httpClient.CallTool(context.Background(), "gated", nil)
	_, stdioErr := stdioClient.CallTool(context.Background(), "gated", nil)

	native := ExtractHTTPErrorInfo(httpErr)
	synthesized := ExtractHTTPErrorInfo(stdioErr)
	if native.Type != InfoHTTPResponse || synthesized.Type != InfoHTTPResponse {
		t.Fatalf("want both classified, got %v / %v", native.Type, synthesized.Type)
	}
	if native.Status != synthesized.Status {
		t.Fatalf("status diverged: %d vs %d", native.Status, synthesized.Status)
	}
	if native.StatusText != synthesized.StatusText {
		t.Fatalf("statusText diverged: %q vs %q", native.StatusText, synthesized.StatusText)
	}
	if native.Body != synthesized.Body {
		t.Fatalf("body diverged: %q vs %q", native.Body, synthesized.Body)
	}
}

func TestStdioClientListTools(t *testing.T) {
	c := newStdioClient(t)
	mustInitialize(t, c)

	tools, err := c.ListTools(context.Background(), "")
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools.Tools) != 2 {
		t.Fatalf("want 2 tools, got %d", len(tools.Tools))
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	c := New(NewHTTPTransport("http://example.invalid/mcp"))
	if _, err := c.ListTools(context.Background(), ""); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("want ErrNotInitialized, got %v", err)
	}
}
