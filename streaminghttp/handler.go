package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/mcpwire/mcpwire/auth"
	"github.com/mcpwire/mcpwire/internal/engine"
	"github.com/mcpwire/mcpwire/internal/jsonrpc"
	"github.com/mcpwire/mcpwire/internal/logctx"
	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/mcpservice"
	"github.com/mcpwire/mcpwire/sessions"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	postResponseTypes    = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
	getResponseTypes     = []contenttype.MediaType{eventStreamMediaType}
)

const (
	lastEventIDHeader        = "Last-Event-ID"
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
	authorizationHeader      = "Authorization"
	wwwAuthenticateHeader    = "WWW-Authenticate"
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections that
// happen before a JSON-RPC exchange is possible. This is transport-level; it
// does not claim JSON-RPC framing.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger *slog.Logger
	realm  string
}

// WithLogger sets the slog logger used by the handler. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = realm }
}

// Handler implements the MCP streaming HTTP transport: POST carries a single
// client-to-server JSON-RPC message, GET attaches a server-to-client SSE
// stream, DELETE terminates the session.
//
// Because POST responses are not committed until the engine returns, the
// handler declares native HTTP delivery for every dispatched request: a
// handler that throws an HTTP response descriptor gets it written verbatim
// on the wire instead of a JSON-RPC frame.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	endpoint *url.URL

	auth  auth.Authenticator
	eng   *engine.Engine
	realm string
}

// New constructs a Handler.
//
// Required:
//   - publicEndpoint: externally visible URL of the MCP endpoint
//   - host: session persistence and message streams
//   - server: the capability surface to serve
//   - authenticator: bearer token validation
func New(ctx context.Context, publicEndpoint string, host sessions.SessionHost, server mcpservice.ServerCapabilities, authenticator auth.Authenticator, opts ...Option) (*Handler, error) {
	if host == nil {
		return nil, fmt.Errorf("session host is required")
	}
	if server == nil {
		return nil, fmt.Errorf("server capabilities are required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	endpoint, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL %q: %w", publicEndpoint, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("endpoint URL must use http or https, got %q", endpoint.Scheme)
	}

	cfg := &newConfig{logger: slog.Default(), realm: "mcp"}
	for _, opt := range opts {
		opt(cfg)
	}

	log := slog.New(logctx.Handler{Handler: cfg.logger.Handler()})

	h := &Handler{
		log:      log,
		endpoint: endpoint,
		auth:     authenticator,
		eng:      engine.NewEngine(host, server, engine.WithLogger(log)),
		realm:    cfg.realm,
	}

	path := endpoint.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", path), h.handlePost)
	mux.HandleFunc(fmt.Sprintf("GET %s", path), h.handleGet)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", path), h.handleDelete)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Transport:  "streaminghttp",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}
	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, postResponseTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "accept must include application/json or text/event-stream")
			return
		}
	}

	userInfo := h.checkAuthentication(ctx, r, w)
	if userInfo == nil {
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batching is not supported")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message: "+err.Error())
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.handleInitialize(ctx, w, userInfo, &msg, start)
		return
	}

	sess, err := h.eng.LoadSession(ctx, sessID, userInfo.UserID())
	if err != nil {
		switch {
		case errors.Is(err, sessions.ErrSessionNotFound), errors.Is(err, engine.ErrSessionOwnership):
			writeJSONError(w, http.StatusNotFound, "session not found")
		default:
			h.log.ErrorContext(ctx, "session.load.fail", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "failed to load session")
		}
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.SessionID(),
		UserID:          sess.UserID(),
		ProtocolVersion: sess.ProtocolVersion(),
	})

	if pv := r.Header.Get(mcpProtocolVersionHeader); pv != "" && pv != sess.ProtocolVersion() {
		writeJSONError(w, http.StatusBadRequest, "protocol version mismatch")
		return
	}

	req := msg.AsRequest()
	if req == nil {
		// Client-originated responses have no server-side correlator in this
		// implementation; acknowledge and drop.
		h.log.DebugContext(ctx, "rpc.response.ignored")
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if req.Method == string(mcp.InitializeMethod) {
		writeJSONError(w, http.StatusConflict, "session already initialized")
		return
	}

	if req.IsNotification() {
		if err := h.eng.HandleNotification(ctx, sess, req); err != nil {
			h.log.ErrorContext(ctx, "notification.inbound.fail", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusBadRequest, "invalid notification")
			return
		}
		w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	// The response is uncommitted until the engine returns, so this request
	// dispatches with native HTTP delivery available.
	exchange := newHTTPExchange(w)
	dispatchCtx := engine.WithTransportInfo(ctx, engine.TransportInfo{
		NativeHTTP: true,
		Exchange:   exchange,
	})

	resp, err := h.eng.HandleRequest(dispatchCtx, sess, req)
	if err != nil {
		if exchange.claimed() {
			// Too late to change the wire; the native write already started.
			h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
			return
		}
		h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if resp == nil {
		// Delivered natively through the exchange.
		h.log.InfoContext(ctx, "rpc.inbound.native", slog.Duration("dur", time.Since(start)))
		return
	}
	exchange.close()

	w.Header().Set(mcpSessionIDHeader, sess.SessionID())
	w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(ctx, "rpc.response.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) handleInitialize(ctx context.Context, w http.ResponseWriter, userInfo auth.UserInfo, msg *jsonrpc.AnyMessage, start time.Time) {
	req := msg.AsRequest()
	if req == nil || req.Method != string(mcp.InitializeMethod) || req.IsNotification() {
		writeJSONError(w, http.StatusBadRequest, "expected initialize request")
		return
	}
	var initReq mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &initReq); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid initialize params")
		return
	}

	sess, initRes, err := h.eng.InitializeSession(ctx, userInfo.UserID(), &initReq)
	if err != nil {
		h.log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to initialize session")
		return
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, initRes)
	if err != nil {
		h.log.ErrorContext(ctx, "session.initialize.encode.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to encode initialize response")
		return
	}

	w.Header().Set(mcpSessionIDHeader, sess.SessionID())
	w.Header().Set(mcpProtocolVersionHeader, initRes.ProtocolVersion)
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(ctx, "session.initialize.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "session.initialize.ok",
		slog.String("session_id", sess.SessionID()),
		slog.Duration("dur", time.Since(start)))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, getResponseTypes); err != nil {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	userInfo := h.checkAuthentication(ctx, r, w)
	if userInfo == nil {
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sess, err := h.eng.LoadSession(ctx, sessID, userInfo.UserID())
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) || errors.Is(err, engine.ErrSessionOwnership) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.ErrorContext(ctx, "session.load.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.SessionID(),
		UserID:          sess.UserID(),
		ProtocolVersion: sess.ProtocolVersion(),
	})

	if pv := r.Header.Get(mcpProtocolVersionHeader); pv != "" && pv != sess.ProtocolVersion() {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	lastEventID := r.Header.Get(lastEventIDHeader)

	w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	wf := &lockedWriteFlusher{w: w, f: f, ctx: ctx}
	h.log.InfoContext(ctx, "sse.stream.start")

	err = h.eng.SubscribeSession(ctx, sess, lastEventID, func(cbCtx context.Context, msgID string, payload []byte) error {
		return writeSSEEvent(wf, msgID, payload)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.end")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userInfo := h.checkAuthentication(ctx, r, w)
	if userInfo == nil {
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sess, err := h.eng.LoadSession(ctx, sessID, userInfo.UserID())
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) || errors.Is(err, engine.ErrSessionOwnership) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.ErrorContext(ctx, "session.load.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := h.eng.DeleteSession(ctx, sess); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.ErrorContext(ctx, "session.delete.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkAuthentication validates the bearer token on the request. On failure
// it writes the appropriate challenge response and returns nil.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) auth.UserInfo {
	header := r.Header.Get(authorizationHeader)
	if header == "" {
		// RFC 6750: no credentials at all gets a bare challenge without an
		// error code.
		ch := auth.NewAuthenticationRequired(h.realm)
		w.Header().Add(wwwAuthenticateHeader, ch.Header())
		writeJSONError(w, ch.Status, "authentication required")
		return nil
	}

	tok, ok := auth.BearerToken(header)
	if !ok {
		ch := &auth.BearerChallenge{
			Status:      http.StatusBadRequest,
			Realm:       h.realm,
			Error:       "invalid_request",
			Description: "malformed bearer authorization header",
		}
		w.Header().Add(wwwAuthenticateHeader, ch.Header())
		writeJSONError(w, ch.Status, "malformed authorization header")
		return nil
	}

	userInfo, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInsufficientScope):
			ch := auth.NewInsufficientScope(h.realm)
			w.Header().Add(wwwAuthenticateHeader, ch.Header())
			writeJSONError(w, ch.Status, "insufficient scope")
		case errors.Is(err, auth.ErrUnauthorized):
			ch := auth.NewInvalidToken(h.realm, "token validation failed")
			w.Header().Add(wwwAuthenticateHeader, ch.Header())
			writeJSONError(w, ch.Status, "invalid token")
		default:
			h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "authentication error")
		}
		return nil
	}
	return userInfo
}

// lockedWriteFlusher serializes SSE writes and refuses to write after ctx is
// canceled.
type lockedWriteFlusher struct {
	w   io.Writer
	f   http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return l.ctx.Err()
	}
	_, err := l.w.Write(p)
	return err
}

func (l *lockedWriteFlusher) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.f.Flush()
}

func writeSSEEvent(wf *lockedWriteFlusher, msgID string, payload []byte) error {
	if msgID != "" {
		if err := wf.write([]byte(fmt.Sprintf("id: %s\n", msgID))); err != nil {
			return fmt.Errorf("write sse id: %w", err)
		}
	}
	if err := wf.write([]byte("data: ")); err != nil {
		return fmt.Errorf("write sse prefix: %w", err)
	}
	if err := wf.write(payload); err != nil {
		return fmt.Errorf("write sse payload: %w", err)
	}
	if err := wf.write([]byte("\n\n")); err != nil {
		return fmt.Errorf("write sse terminator: %w", err)
	}
	wf.flush()
	return nil
}
