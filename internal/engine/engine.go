package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpwire/mcpwire/internal/jsonrpc"
	"github.com/mcpwire/mcpwire/internal/logctx"
	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/mcpservice"
	"github.com/mcpwire/mcpwire/sessions"
)

const defaultSessionTTL = 1 * time.Hour

var (
	// ErrSessionOwnership indicates a session exists but belongs to another
	// authenticated user.
	ErrSessionOwnership = errors.New("session does not belong to user")

	// ErrUnsupportedProtocolVersion indicates the client requested a
	// protocol version this server cannot speak.
	ErrUnsupportedProtocolVersion = errors.New("unsupported protocol version")
)

// Engine is the transport-agnostic core of an MCP server. Transports decode
// JSON-RPC frames, declare their delivery capabilities via TransportInfo, and
// delegate here for session lifecycle and request dispatch.
type Engine struct {
	host sessions.SessionHost
	srv  mcpservice.ServerCapabilities
	log  *slog.Logger

	sessionTTL time.Duration

	// in-flight request tracking so notifications/cancelled can interrupt
	// long-running handlers on this instance
	inflightMu sync.Mutex
	inflight   map[string]context.CancelCauseFunc // "<sessionID>:<reqID>" -> cancel
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSessionTTL overrides the sliding session TTL (default 1h).
func WithSessionTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.sessionTTL = d
		}
	}
}

func NewEngine(host sessions.SessionHost, srv mcpservice.ServerCapabilities, opts ...EngineOption) *Engine {
	e := &Engine{
		host:       host,
		srv:        srv,
		log:        slog.Default(),
		sessionTTL: defaultSessionTTL,
		inflight:   make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// InitializeSession performs the MCP initialize handshake: negotiates a
// protocol version, persists the session record, and assembles the
// InitializeResult from the discovered capabilities.
func (e *Engine) InitializeSession(ctx context.Context, userID string, req *mcp.InitializeRequest) (*SessionHandle, *mcp.InitializeResult, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("initialize request required")
	}

	version, err := e.negotiateProtocolVersion(ctx, req.ProtocolVersion)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	meta := sessions.Metadata{
		SessionID:       uuid.NewString(),
		UserID:          userID,
		ProtocolVersion: version,
		Client: sessions.ClientInfo{
			Name:    req.ClientInfo.Name,
			Version: req.ClientInfo.Version,
		},
		CreatedAt:  now,
		LastAccess: now,
		TTL:        e.sessionTTL,
	}
	if err := e.host.CreateSession(ctx, meta); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	sess := newSessionHandle(meta)
	cleanup := true
	defer func() {
		if cleanup {
			_ = e.host.DeleteSession(context.WithoutCancel(ctx), sess.SessionID())
		}
	}()

	serverInfo, err := e.srv.GetServerInfo(ctx, sess)
	if err != nil {
		return nil, nil, fmt.Errorf("get server info: %w", err)
	}

	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    mcp.ServerCapabilities{},
		ServerInfo:      serverInfo,
	}

	if instr, ok, err := e.srv.GetInstructions(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("get instructions: %w", err)
	} else if ok {
		res.Instructions = instr
	}

	if toolsCap, ok, err := e.srv.GetToolsCapability(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("get tools capability: %w", err)
	} else if ok && toolsCap != nil {
		entry := &struct {
			ListChanged bool `json:"listChanged"`
		}{}
		if lc, hasLC, err := toolsCap.GetListChangedCapability(ctx, sess); err != nil {
			return nil, nil, fmt.Errorf("get tools listChanged capability: %w", err)
		} else if hasLC && lc != nil {
			entry.ListChanged = true
		}
		res.Capabilities.Tools = entry
	}

	if resCap, ok, err := e.srv.GetResourcesCapability(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("get resources capability: %w", err)
	} else if ok && resCap != nil {
		entry := &struct {
			ListChanged bool `json:"listChanged"`
		}{}
		if lc, hasLC, err := resCap.GetListChangedCapability(ctx, sess); err != nil {
			return nil, nil, fmt.Errorf("get resources listChanged capability: %w", err)
		} else if hasLC && lc != nil {
			entry.ListChanged = true
		}
		res.Capabilities.Resources = entry
	}

	if promptsCap, ok, err := e.srv.GetPromptsCapability(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("get prompts capability: %w", err)
	} else if ok && promptsCap != nil {
		entry := &struct {
			ListChanged bool `json:"listChanged"`
		}{}
		if lc, hasLC, err := promptsCap.GetListChangedCapability(ctx, sess); err != nil {
			return nil, nil, fmt.Errorf("get prompts listChanged capability: %w", err)
		} else if hasLC && lc != nil {
			entry.ListChanged = true
		}
		res.Capabilities.Prompts = entry
	}

	if _, ok, err := e.srv.GetLoggingCapability(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("get logging capability: %w", err)
	} else if ok {
		res.Capabilities.Logging = &struct{}{}
	}

	if _, ok, err := e.srv.GetCompletionsCapability(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("get completions capability: %w", err)
	} else if ok {
		res.Capabilities.Completions = &struct{}{}
	}

	cleanup = false
	e.log.InfoContext(ctx, "engine.session.initialized",
		slog.String("session_id", sess.SessionID()),
		slog.String("protocol_version", version),
		slog.String("client_name", req.ClientInfo.Name))

	return sess, res, nil
}

func (e *Engine) negotiateProtocolVersion(ctx context.Context, requested string) (string, error) {
	if v, ok, err := e.srv.GetPreferredProtocolVersion(ctx); err != nil {
		return "", fmt.Errorf("get preferred protocol version: %w", err)
	} else if ok && v != "" {
		return v, nil
	}
	if mcp.IsSupportedProtocolVersion(requested) {
		return requested, nil
	}
	// Offer our latest; clients that cannot speak it will disconnect.
	return mcp.LatestProtocolVersion, nil
}

// LoadSession resolves an existing session by ID, enforcing that it belongs
// to the authenticated user, and refreshes its sliding TTL.
func (e *Engine) LoadSession(ctx context.Context, sessionID, userID string) (*SessionHandle, error) {
	meta, err := e.host.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if meta.UserID != userID {
		// Do not leak whether the session exists to other users.
		return nil, fmt.Errorf("%w: %s", ErrSessionOwnership, sessionID)
	}
	if err := e.host.TouchSession(ctx, sessionID); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		e.log.WarnContext(ctx, "engine.session.touch_fail", slog.String("err", err.Error()))
	}
	return newSessionHandle(meta), nil
}

// DeleteSession tears down a session and its message stream.
func (e *Engine) DeleteSession(ctx context.Context, sess *SessionHandle) error {
	if err := e.host.DeleteSession(ctx, sess.SessionID()); err != nil {
		return err
	}
	if err := e.host.CleanupSession(ctx, sess.SessionID()); err != nil {
		e.log.WarnContext(ctx, "engine.session.cleanup_fail", slog.String("err", err.Error()))
	}
	e.log.InfoContext(ctx, "engine.session.deleted", slog.String("session_id", sess.SessionID()))
	return nil
}

// SubscribeSession replays and follows the session's server-to-client message
// stream. It blocks until ctx is done or the subscription fails.
func (e *Engine) SubscribeSession(ctx context.Context, sess *SessionHandle, lastEventID string, fn sessions.MessageHandlerFunc) error {
	return e.host.SubscribeSession(ctx, sess.SessionID(), lastEventID, fn)
}

// PublishToSession appends a server-originated JSON-RPC message to the
// session's stream for delivery over any listening stream transport.
func (e *Engine) PublishToSession(ctx context.Context, sess *SessionHandle, method mcp.Method, params any) error {
	note, err := jsonrpc.NewRequest(nil, string(method), params)
	if err != nil {
		return err
	}
	b, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = e.host.PublishSession(ctx, sess.SessionID(), b)
	return err
}

// HandleRequest dispatches a single JSON-RPC request to the appropriate
// capability handler and routes any thrown HTTP response descriptor according
// to the transport's declared capabilities. A (nil, nil) return means the
// response was already delivered natively and the transport must not emit a
// JSON-RPC frame.
func (e *Engine) HandleRequest(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   "request",
	})

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)
	key := e.trackInflight(sess, req, cancel)
	defer e.untrackInflight(key)

	resp, err := e.dispatchMethod(reqCtx, sess, req)
	if err != nil {
		return e.dispatchThrownError(ctx, req, err)
	}
	return resp, nil
}

// HandleNotification processes a client-originated notification.
func (e *Engine) HandleNotification(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) error {
	switch req.Method {
	case string(mcp.InitializedNotificationMethod):
		e.log.InfoContext(ctx, "engine.session.ready", slog.String("session_id", sess.SessionID()))
		return nil
	case string(mcp.CancelledNotificationMethod):
		var params mcp.CancelledNotification
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fmt.Errorf("invalid cancelled notification: %w", err)
		}
		e.cancelInflight(sess, params.RequestID, params.Reason)
		return nil
	default:
		e.log.DebugContext(ctx, "engine.notification.ignored", slog.String("method", req.Method))
		return nil
	}
}

func (e *Engine) dispatchMethod(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	switch req.Method {
	case string(mcp.PingMethod):
		return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	case string(mcp.ToolsListMethod):
		return e.handleToolsList(ctx, sess, req)
	case string(mcp.ToolsCallMethod):
		return e.handleToolCall(ctx, sess, req)
	case string(mcp.ResourcesListMethod):
		return e.handleResourcesList(ctx, sess, req)
	case string(mcp.ResourcesReadMethod):
		return e.handleResourcesRead(ctx, sess, req)
	case string(mcp.ResourcesTemplatesListMethod):
		return e.handleResourcesTemplatesList(ctx, sess, req)
	case string(mcp.PromptsListMethod):
		return e.handlePromptsList(ctx, sess, req)
	case string(mcp.PromptsGetMethod):
		return e.handlePromptsGet(ctx, sess, req)
	case string(mcp.CompletionCompleteMethod):
		return e.handleCompletionsComplete(ctx, sess, req)
	case string(mcp.LoggingSetLevelMethod):
		return e.handleSetLoggingLevel(ctx, sess, req)
	}
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil), nil
}

func inflightKey(sessionID, reqID string) string { return sessionID + ":" + reqID }

func (e *Engine) trackInflight(sess *SessionHandle, req *jsonrpc.Request, cancel context.CancelCauseFunc) string {
	reqID := req.ID.String()
	if reqID == "" {
		return ""
	}
	key := inflightKey(sess.SessionID(), reqID)
	e.inflightMu.Lock()
	e.inflight[key] = cancel
	e.inflightMu.Unlock()
	return key
}

func (e *Engine) untrackInflight(key string) {
	if key == "" {
		return
	}
	e.inflightMu.Lock()
	delete(e.inflight, key)
	e.inflightMu.Unlock()
}

func (e *Engine) cancelInflight(sess *SessionHandle, reqID, reason string) {
	key := inflightKey(sess.SessionID(), reqID)
	e.inflightMu.Lock()
	cancel := e.inflight[key]
	e.inflightMu.Unlock()
	if cancel != nil {
		cancel(fmt.Errorf("cancelled by client: %s", reason))
	}
}

func (e *Engine) handleToolsList(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	cap, ok, err := e.srv.GetToolsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil), nil
	}

	page, err := cap.ListTools(ctx, sess, cursorFrom(params.Cursor))
	if err != nil {
		return nil, err
	}

	res := &mcp.ListToolsResult{Tools: page.Items}
	if page.NextCursor != nil {
		res.NextCursor = *page.NextCursor
	}
	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(page.Items)))
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleToolCall(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	cap, ok, err := e.srv.GetToolsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil), nil
	}

	res, err := cap.CallTool(ctx, sess, &params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.InfoContext(ctx, "engine.handle_request.cancelled", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "cancelled", nil), nil
		}
		return nil, err
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.String("tool_name", params.Name))
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleResourcesList(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.ListResourcesRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	cap, ok, err := e.srv.GetResourcesCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported", nil), nil
	}

	page, err := cap.ListResources(ctx, sess, cursorFrom(params.Cursor))
	if err != nil {
		return nil, err
	}

	res := &mcp.ListResourcesResult{Resources: page.Items}
	if page.NextCursor != nil {
		res.NextCursor = *page.NextCursor
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleResourcesRead(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	cap, ok, err := e.srv.GetResourcesCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported", nil), nil
	}

	contents, err := cap.ReadResource(ctx, sess, params.URI)
	if err != nil {
		return nil, err
	}
	return jsonrpc.NewResultResponse(req.ID, &mcp.ReadResourceResult{Contents: contents})
}

func (e *Engine) handleResourcesTemplatesList(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.ListResourceTemplatesRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	cap, ok, err := e.srv.GetResourcesCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported", nil), nil
	}

	page, err := cap.ListResourceTemplates(ctx, sess, cursorFrom(params.Cursor))
	if err != nil {
		return nil, err
	}

	res := &mcp.ListResourceTemplatesResult{ResourceTemplates: page.Items}
	if page.NextCursor != nil {
		res.NextCursor = *page.NextCursor
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handlePromptsList(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.ListPromptsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	cap, ok, err := e.srv.GetPromptsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "prompts capability not supported", nil), nil
	}

	page, err := cap.ListPrompts(ctx, sess, cursorFrom(params.Cursor))
	if err != nil {
		return nil, err
	}

	res := &mcp.ListPromptsResult{Prompts: page.Items}
	if page.NextCursor != nil {
		res.NextCursor = *page.NextCursor
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handlePromptsGet(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.GetPromptRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	cap, ok, err := e.srv.GetPromptsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "prompts capability not supported", nil), nil
	}

	res, err := cap.GetPrompt(ctx, sess, &params)
	if err != nil {
		return nil, err
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleCompletionsComplete(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.CompleteRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	cap, ok, err := e.srv.GetCompletionsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "completions capability not supported", nil), nil
	}

	res, err := cap.Complete(ctx, sess, &params)
	if err != nil {
		return nil, err
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleSetLoggingLevel(ctx context.Context, sess *SessionHandle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.SetLevelRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	cap, ok, err := e.srv.GetLoggingCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok || cap == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "logging level not supported", nil), nil
	}

	if err := cap.SetLevel(ctx, sess, params.Level); err != nil {
		if errors.Is(err, mcpservice.ErrInvalidLoggingLevel) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
		return nil, err
	}
	return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
}

func cursorFrom(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
