package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcpwire/mcpwire/httpresp"
	"github.com/mcpwire/mcpwire/internal/jsonrpc"
	"github.com/mcpwire/mcpwire/internal/logctx"
)

// dispatchThrownError routes a handler error to one of three outcomes:
//
//  1. The error wraps a valid *httpresp.Response and the transport declared
//     native HTTP delivery: the response is written through the exchange and
//     no JSON-RPC frame is produced.
//  2. The error wraps a valid *httpresp.Response but the transport cannot
//     deliver HTTP natively: the descriptor is synthesized into a JSON-RPC
//     error whose code is the HTTP status and whose data carries the full
//     descriptor under the originalHttpResponse discriminator.
//  3. Anything else (including invalid descriptors and transport faults) is
//     an ordinary internal error.
func (e *Engine) dispatchThrownError(ctx context.Context, req *jsonrpc.Request, err error) (*jsonrpc.Response, error) {
	var hr *httpresp.Response
	if !errors.As(err, &hr) {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}

	// A descriptor with a status outside [100, 599] is a server-side bug.
	// It must never leak to the client as if it were a deliberate response.
	if !hr.ValidStatus() {
		e.log.ErrorContext(ctx, "engine.dispatch.invalid_http_status", slog.Int("http_status", hr.Status()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}

	info := TransportInfoFrom(ctx)
	ctx = logctx.WithDispatchData(ctx, &logctx.DispatchData{
		NativeHTTP: info.NativeHTTP,
		HTTPStatus: hr.Status(),
	})

	if !info.NativeHTTP {
		e.log.InfoContext(ctx, "engine.dispatch.http_response.synthesized")
		return synthesizeErrorResponse(req.ID, hr), nil
	}

	// The transport claimed native delivery. From here on, failure means we
	// can no longer answer the request at all, so errors surface to the
	// transport rather than turning into JSON-RPC frames.
	if info.Exchange == nil {
		e.log.ErrorContext(ctx, "engine.dispatch.missing_exchange")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if err := writeNativeResponse(info.Exchange, hr); err != nil {
		e.log.ErrorContext(ctx, "engine.dispatch.http_response.write_fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("write native http response: %w", err)
	}

	e.log.InfoContext(ctx, "engine.dispatch.http_response.native")
	return nil, nil
}

// writeNativeResponse claims the exchange and writes the descriptor as-is:
// status first, then each header value in insertion order with its original
// casing, then the body, then End.
func writeNativeResponse(x NativeHTTPExchange, hr *httpresp.Response) error {
	if err := x.WriteStatus(hr.Status(), hr.StatusText()); err != nil {
		return err
	}
	h := hr.Header()
	for _, name := range h.Names() {
		for _, value := range h.Values(name) {
			if err := x.AppendHeader(name, value); err != nil {
				return err
			}
		}
	}
	if body := hr.Body(); len(body) > 0 {
		if err := x.WriteBody(body); err != nil {
			return err
		}
	}
	return x.End()
}

// synthesizeErrorResponse lowers the descriptor onto the JSON-RPC error
// channel: code = HTTP status, message = "HTTP {status}: {statusText}", data
// = the wire-shaped descriptor with flattened lowercase headers.
func synthesizeErrorResponse(id *jsonrpc.RequestID, hr *httpresp.Response) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(
		id,
		jsonrpc.ErrorCode(hr.Status()),
		httpresp.ErrorMessage(hr.Status(), hr.StatusText()),
		hr.WireData(),
	)
}
