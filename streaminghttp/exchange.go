package streaminghttp

import (
	"net/http"
	"sync"

	"github.com/mcpwire/mcpwire/internal/engine"
)

// httpExchange adapts an http.ResponseWriter to engine.NativeHTTPExchange
// with deferred commit: the status code is buffered and headers accumulate on
// the underlying writer until the first body write (or End), at which point
// the response is committed. The transport keeps the writer uncommitted
// while a request dispatches so the engine can claim it for a thrown HTTP
// response; if the engine does not claim it, the transport closes the
// exchange and writes the JSON-RPC frame itself.
type httpExchange struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	status    int
	committed bool
	closed    bool
}

func newHTTPExchange(w http.ResponseWriter) *httpExchange {
	return &httpExchange{w: w}
}

func (x *httpExchange) WriteStatus(code int, statusText string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return engine.ErrExchangeClosed
	}
	// net/http derives the reason phrase from the code; statusText is
	// carried only on transports that can encode it.
	x.status = code
	return nil
}

func (x *httpExchange) AppendHeader(name, value string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return engine.ErrExchangeClosed
	}
	if x.committed {
		return engine.ErrExchangeClosed
	}
	x.w.Header().Add(name, value)
	return nil
}

func (x *httpExchange) WriteBody(body []byte) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return engine.ErrExchangeClosed
	}
	x.commitLocked()
	_, err := x.w.Write(body)
	return err
}

func (x *httpExchange) End() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return engine.ErrExchangeClosed
	}
	x.commitLocked()
	x.closed = true
	if f, ok := x.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (x *httpExchange) commitLocked() {
	if x.committed {
		return
	}
	status := x.status
	if status == 0 {
		status = http.StatusOK
	}
	x.w.WriteHeader(status)
	x.committed = true
}

// claimed reports whether the engine wrote through the exchange.
func (x *httpExchange) claimed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.committed
}

// close invalidates the exchange so any late engine write fails instead of
// corrupting the transport's own response.
func (x *httpExchange) close() {
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()
}

var _ engine.NativeHTTPExchange = (*httpExchange)(nil)
