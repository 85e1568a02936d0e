package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mcpwire/mcpwire/internal/engine"
	"github.com/mcpwire/mcpwire/internal/jsonrpc"
	"github.com/mcpwire/mcpwire/internal/logctx"
	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/mcpservice"
	"github.com/mcpwire/mcpwire/sessions/memoryhost"
)

// maxLineBytes bounds a single inbound JSON-RPC line.
const maxLineBytes = 4 * 1024 * 1024

// Handler is a single-connection stdio transport. It reads one JSON-RPC
// message per line from its reader and writes one message per line to its
// writer. Dispatch goes through the same engine as the HTTP transport, but
// the connection never advertises native HTTP delivery, so thrown HTTP
// response descriptors reach the client as synthesized JSON-RPC errors.
type Handler struct {
	srv          mcpservice.ServerCapabilities
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	userProvider UserProvider

	wmu sync.Mutex
}

// NewHandler constructs a stdio Handler bound to os.Stdin and os.Stdout
// unless the options say otherwise.
func NewHandler(srv mcpservice.ServerCapabilities, opts ...Option) *Handler {
	h := &Handler{
		srv:          srv,
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.Default(),
		userProvider: OSUserProvider{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = slog.New(logctx.Handler{Handler: h.l.Handler()})
	return h
}

// Serve runs the connection loop until EOF on the reader or ctx is done.
// It handles the initialize handshake itself and forwards everything else to
// the dispatch engine. Server-originated notifications published to the
// session are streamed back interleaved with responses.
func (h *Handler) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	userID, err := h.userProvider.CurrentUserID()
	if err != nil {
		return fmt.Errorf("resolve stdio user: %w", err)
	}

	eng := engine.NewEngine(memoryhost.New(), h.srv, engine.WithLogger(h.l))

	var (
		sess *engine.SessionHandle
		wg   sync.WaitGroup
	)
	defer func() {
		cancel()
		wg.Wait()
		if sess != nil {
			if err := eng.DeleteSession(context.WithoutCancel(ctx), sess); err != nil {
				h.l.Warn("stdio.session.cleanup_fail", slog.String("err", err.Error()))
			}
		}
	}()

	scanner := bufio.NewScanner(h.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] == '[' {
			h.writeMessage(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "batch requests are not supported", nil))
			continue
		}

		var msg jsonrpc.AnyMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			h.writeMessage(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
			continue
		}

		req := msg.AsRequest()
		if req == nil {
			// Client-originated responses have no pending server request to
			// correlate with on this transport.
			h.l.DebugContext(ctx, "stdio.response.ignored")
			continue
		}

		if sess == nil {
			sess = h.handleUninitialized(ctx, eng, userID, req, &wg)
			continue
		}

		switch {
		case req.Method == string(mcp.InitializeMethod):
			h.writeMessage(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil))
		case req.IsNotification():
			if err := eng.HandleNotification(ctx, sess, req); err != nil {
				h.l.WarnContext(ctx, "stdio.notification.fail", slog.String("err", err.Error()))
			}
		default:
			// Requests dispatch concurrently so a cancelled notification can
			// interrupt an inflight call.
			wg.Add(1)
			go func(req *jsonrpc.Request) {
				defer wg.Done()
				resp, err := eng.HandleRequest(ctx, sess, req)
				if err != nil {
					h.l.ErrorContext(ctx, "stdio.request.fail", slog.String("err", err.Error()))
					resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
				}
				if resp != nil {
					h.writeMessage(resp)
				}
			}(req)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdio: %w", err)
	}
	return nil
}

// handleUninitialized processes the first messages on the connection, before
// the initialize handshake completes. It returns the new session handle when
// initialization succeeds.
func (h *Handler) handleUninitialized(ctx context.Context, eng *engine.Engine, userID string, req *jsonrpc.Request, wg *sync.WaitGroup) *engine.SessionHandle {
	if req.IsNotification() {
		return nil
	}
	if req.Method != string(mcp.InitializeMethod) {
		h.writeMessage(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "server not initialized", nil))
		return nil
	}

	var initReq mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &initReq); err != nil {
		h.writeMessage(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params", nil))
		return nil
	}

	sess, res, err := eng.InitializeSession(ctx, userID, &initReq)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.initialize.fail", slog.String("err", err.Error()))
		h.writeMessage(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "failed to initialize session", nil))
		return nil
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, res)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.initialize.fail", slog.String("err", err.Error()))
		return nil
	}
	h.writeMessage(resp)

	// Follow the session's outbound stream for the life of the connection.
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := eng.SubscribeSession(ctx, sess, "", func(ctx context.Context, msgID string, msg []byte) error {
			return h.writeRaw(msg)
		})
		if err != nil && ctx.Err() == nil {
			h.l.WarnContext(ctx, "stdio.subscribe.fail", slog.String("err", err.Error()))
		}
	}()

	return sess
}

func (h *Handler) writeMessage(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.l.Error("stdio.write.marshal_fail", slog.String("err", err.Error()))
		return
	}
	if err := h.writeRaw(b); err != nil {
		h.l.Error("stdio.write.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) writeRaw(b []byte) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if _, err := h.w.Write(b); err != nil {
		return err
	}
	_, err := h.w.Write([]byte{'\n'})
	return err
}
