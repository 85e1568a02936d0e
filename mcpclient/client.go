package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mcpwire/mcpwire/internal/jsonrpc"
	"github.com/mcpwire/mcpwire/mcp"
)

// ErrNotInitialized is returned when an operation runs before Initialize.
var ErrNotInitialized = errors.New("mcpclient: session not initialized")

// Client drives an MCP session over a Transport.
type Client struct {
	transport Transport
	info      mcp.ImplementationInfo

	nextID      atomic.Int64
	initialized atomic.Bool
	initResult  *mcp.InitializeResult
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientInfo sets the name and version the client reports during the
// initialize handshake.
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.info = mcp.ImplementationInfo{Name: name, Version: version}
	}
}

// New builds a Client on transport. Call Initialize before any operation.
func New(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		info:      mcp.ImplementationInfo{Name: "mcpwire-client", Version: "0.0.0"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize performs the MCP handshake and sends the initialized
// notification. It must complete before other operations.
func (c *Client) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	var res mcp.InitializeResult
	err := c.call(ctx, mcp.InitializeMethod, &mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo:      c.info,
	}, &res)
	if err != nil {
		return nil, err
	}

	note, err := jsonrpc.NewRequest(nil, string(mcp.InitializedNotificationMethod), nil)
	if err != nil {
		return nil, err
	}
	if err := c.transport.Notify(ctx, note); err != nil {
		return nil, fmt.Errorf("send initialized notification: %w", err)
	}

	c.initResult = &res
	c.initialized.Store(true)
	return &res, nil
}

// ServerInfo returns the initialize result, or nil before Initialize.
func (c *Client) ServerInfo() *mcp.InitializeResult { return c.initResult }

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	var res mcp.EmptyResult
	return c.call(ctx, mcp.PingMethod, &mcp.PingRequest{}, &res)
}

// ListTools fetches one page of tools. An empty cursor starts from the
// beginning; the result's NextCursor continues the walk.
func (c *Client) ListTools(ctx context.Context, cursor string) (*mcp.ListToolsResult, error) {
	if !c.initialized.Load() {
		return nil, ErrNotInitialized
	}
	req := &mcp.ListToolsRequest{}
	req.Cursor = cursor
	var res mcp.ListToolsResult
	if err := c.call(ctx, mcp.ToolsListMethod, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CallTool invokes a tool by name. A thrown HTTP response surfaces as
// *HTTPResponseError regardless of transport.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if !c.initialized.Load() {
		return nil, ErrNotInitialized
	}
	var res mcp.CallToolResult
	err := c.call(ctx, mcp.ToolsCallMethod, &mcp.CallToolRequest{Name: name, Arguments: args}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResources fetches one page of resources.
func (c *Client) ListResources(ctx context.Context, cursor string) (*mcp.ListResourcesResult, error) {
	if !c.initialized.Load() {
		return nil, ErrNotInitialized
	}
	req := &mcp.ListResourcesRequest{}
	req.Cursor = cursor
	var res mcp.ListResourcesResult
	if err := c.call(ctx, mcp.ResourcesListMethod, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadResource reads a resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if !c.initialized.Load() {
		return nil, ErrNotInitialized
	}
	var res mcp.ReadResourceResult
	if err := c.call(ctx, mcp.ResourcesReadMethod, &mcp.ReadResourceRequest{URI: uri}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Close tears down the transport (and the server session, where the
// transport tracks one).
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) call(ctx context.Context, method mcp.Method, params, result any) error {
	id := jsonrpc.NewRequestID(c.nextID.Add(1))
	req, err := jsonrpc.NewRequest(id, string(method), params)
	if err != nil {
		return err
	}

	resp, err := c.transport.Call(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return errorFromRPC(resp.Error)
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
