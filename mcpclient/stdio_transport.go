package mcpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mcpwire/mcpwire/internal/jsonrpc"
)

// ErrTransportClosed is returned by calls racing a transport shutdown.
var ErrTransportClosed = errors.New("mcpclient: transport closed")

// StdioTransport speaks newline-delimited JSON-RPC over a reader/writer
// pair, typically the stdin/stdout of a child server process. A background
// loop demultiplexes responses to their callers by request ID; server
// notifications are exposed on Notifications.
type StdioTransport struct {
	w   io.Writer
	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *jsonrpc.Response
	readErr error

	notifications chan *jsonrpc.Request
	done          chan struct{}
	closeIO       func() error
	closeOnce     sync.Once
}

// NewStdioTransport starts reading from r immediately. closeIO, when
// non-nil, is invoked by Close to unblock the reader (for example closing
// the child's stdin).
func NewStdioTransport(r io.Reader, w io.Writer, closeIO func() error) *StdioTransport {
	t := &StdioTransport{
		w:             w,
		pending:       make(map[string]chan *jsonrpc.Response),
		notifications: make(chan *jsonrpc.Request, 16),
		done:          make(chan struct{}),
		closeIO:       closeIO,
	}
	go t.readLoop(r)
	return t
}

// Notifications streams server-originated notifications. The channel closes
// when the transport shuts down; slow consumers drop messages rather than
// stall the read loop.
func (t *StdioTransport) Notifications() <-chan *jsonrpc.Request {
	return t.notifications
}

func (t *StdioTransport) Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if req.ID.IsNil() {
		return nil, errors.New("mcpclient: request requires an id")
	}
	key := req.ID.String()
	ch := make(chan *jsonrpc.Response, 1)

	t.mu.Lock()
	if t.readErr != nil {
		err := t.readErr
		t.mu.Unlock()
		return nil, err
	}
	t.pending[key] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
	}()

	if err := t.writeLine(req); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		t.mu.Lock()
		err := t.readErr
		t.mu.Unlock()
		if err == nil {
			err = ErrTransportClosed
		}
		return nil, err
	}
}

func (t *StdioTransport) Notify(ctx context.Context, req *jsonrpc.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.writeLine(req)
}

func (t *StdioTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.closeIO != nil {
			err = t.closeIO()
		}
	})
	return err
}

func (t *StdioTransport) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := t.w.Write(b); err != nil {
		return err
	}
	_, err = t.w.Write([]byte{'\n'})
	return err
}

func (t *StdioTransport) readLoop(r io.Reader) {
	defer func() {
		t.mu.Lock()
		if t.readErr == nil {
			t.readErr = ErrTransportClosed
		}
		t.mu.Unlock()
		close(t.done)
		close(t.notifications)
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxErrorBodyBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg jsonrpc.AnyMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}

		if req := msg.AsRequest(); req != nil {
			if req.IsNotification() {
				select {
				case t.notifications <- req:
				default:
				}
			}
			continue
		}

		resp := msg.AsResponse()
		if resp == nil || resp.ID.IsNil() {
			continue
		}
		t.mu.Lock()
		ch := t.pending[resp.ID.String()]
		t.mu.Unlock()
		if ch != nil {
			ch <- resp
		}
	}
	if err := scanner.Err(); err != nil {
		t.mu.Lock()
		t.readErr = fmt.Errorf("read transport: %w", err)
		t.mu.Unlock()
	}
}

var _ Transport = (*StdioTransport)(nil)
