// Package httpresp defines the HTTP response descriptor that request
// handlers can return as an error to take control of the raw HTTP exchange
// (on transports that have one) or to have a structurally equivalent
// JSON-RPC error synthesized (on transports that do not).
//
// A handler signals a response by returning a *Response from its error
// path, optionally wrapped:
//
//	return nil, httpresp.New(http.StatusUnauthorized,
//		httpresp.WithStatusText("Unauthorized"),
//		httpresp.WithHeader("WWW-Authenticate", `Bearer realm="mcp"`),
//		httpresp.WithBody([]byte("authentication required")),
//	)
//
// The dispatcher detects the descriptor with errors.As, so wrapping with
// fmt.Errorf("...: %w", resp) is fine.
package httpresp

import (
	"encoding/json"
	"fmt"
)

// Response describes a complete HTTP response a handler wants delivered to
// the caller. It is a value object; mutate it only through options at
// construction time.
type Response struct {
	status     int
	statusText string
	header     *Header
	body       []byte
}

// Option configures a Response under construction.
type Option func(*Response)

// WithStatusText sets the reason phrase carried alongside the status code.
// It is emitted verbatim in synthesized payloads and client messages; the
// native HTTP status line uses the standard phrase for the code because Go's
// HTTP stack does not emit custom reason phrases.
func WithStatusText(text string) Option {
	return func(r *Response) { r.statusText = text }
}

// WithHeader appends one header field. Repeating a name accumulates values.
func WithHeader(name, value string) Option {
	return func(r *Response) { r.header.Add(name, value) }
}

// WithHeaders merges all fields of h, preserving its order.
func WithHeaders(h *Header) Option {
	return func(r *Response) {
		for _, name := range h.Names() {
			for _, v := range h.Values(name) {
				r.header.Add(name, v)
			}
		}
	}
}

// WithBody sets the response body.
func WithBody(body []byte) Option {
	return func(r *Response) { r.body = body }
}

// WithJSONBody marshals v as the body and sets Content-Type to
// application/json unless one was already provided.
func WithJSONBody(v any) Option {
	return func(r *Response) {
		b, err := json.Marshal(v)
		if err != nil {
			// Construction inputs are programmer-controlled; surface the
			// mistake loudly rather than emitting a half-built response.
			panic(fmt.Sprintf("httpresp: marshal JSON body: %v", err))
		}
		r.body = b
		if !r.header.Has("Content-Type") {
			r.header.Set("Content-Type", "application/json")
		}
	}
}

// New builds a Response with the given status code. Status validity is not
// enforced here; the dispatcher rejects out-of-range codes as a local fault
// so that a bad descriptor is never smuggled to the peer.
func New(status int, opts ...Option) *Response {
	r := &Response{status: status, header: &Header{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Status returns the HTTP status code.
func (r *Response) Status() int { return r.status }

// StatusText returns the reason phrase, possibly empty.
func (r *Response) StatusText() string { return r.statusText }

// Header returns a copy of the response headers. Callers cannot mutate the
// descriptor through the returned value.
func (r *Response) Header() *Header { return r.header.Clone() }

// Body returns the response body, or nil when none was set.
func (r *Response) Body() []byte {
	if len(r.body) == 0 {
		return nil
	}
	out := make([]byte, len(r.body))
	copy(out, r.body)
	return out
}

// ValidStatus reports whether the status code is within the transmissible
// HTTP range.
func (r *Response) ValidStatus() bool { return r.status >= 100 && r.status <= 599 }

// Error implements the error interface so handlers can return the
// descriptor directly from their error path.
func (r *Response) Error() string {
	return ErrorMessage(r.status, r.statusText)
}

// ErrorMessage renders the message used both as the descriptor's Error()
// text and as the synthesized JSON-RPC error message.
func ErrorMessage(status int, statusText string) string {
	return fmt.Sprintf("HTTP %d: %s", status, statusText)
}
