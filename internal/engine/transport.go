package engine

import (
	"context"
	"errors"
)

// ErrExchangeClosed is returned by NativeHTTPExchange implementations when a
// write is attempted after the underlying response has already been
// committed or torn down.
var ErrExchangeClosed = errors.New("native http exchange closed")

// NativeHTTPExchange is the per-request writing surface a transport hands to
// the engine when it can represent an arbitrary HTTP response directly. The
// exchange is terminal: once claimed, the transport must not write anything
// else for the request, and the engine calls End exactly once.
type NativeHTTPExchange interface {
	// WriteStatus commits the status line. statusText travels with the
	// response descriptor for transports that can carry it; HTTP/1.1
	// transports built on net/http ignore it because the standard library
	// derives the reason phrase from the code.
	WriteStatus(code int, statusText string) error

	// AppendHeader adds one header field. It is called once per value, in
	// the descriptor's insertion order, with the original casing.
	AppendHeader(name, value string) error

	// WriteBody writes the response body bytes.
	WriteBody(body []byte) error

	// End flushes and finalizes the response.
	End() error
}

// TransportInfo describes the delivery capabilities of the transport that
// received the current request. The transport classifies itself exactly once,
// when it accepts the request; the engine never reclassifies mid-dispatch.
type TransportInfo struct {
	// NativeHTTP is true when the transport can deliver an arbitrary HTTP
	// response (status, headers, body) for this request.
	NativeHTTP bool

	// Exchange is the response writer for native transports. It must be
	// non-nil whenever NativeHTTP is true; a native claim without an
	// exchange is a transport bug the engine treats as an internal fault.
	Exchange NativeHTTPExchange
}

type transportInfoKey struct{}

// WithTransportInfo attaches the transport's capability declaration to the
// request context.
func WithTransportInfo(ctx context.Context, info TransportInfo) context.Context {
	return context.WithValue(ctx, transportInfoKey{}, info)
}

// TransportInfoFrom returns the transport capabilities carried on ctx. The
// zero value (non-native) is returned when no transport declared itself,
// which is the correct conservative default for in-process callers.
func TransportInfoFrom(ctx context.Context) TransportInfo {
	info, _ := ctx.Value(transportInfoKey{}).(TransportInfo)
	return info
}
