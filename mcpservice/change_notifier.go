package mcpservice

import (
	"context"
	"sync"
)

// ChangeNotifier is a small in-process pub-sub for change events. Containers
// embed it so the capability layer can surface listChanged notifications.
type ChangeNotifier struct {
	mu          sync.RWMutex
	subscribers []chan struct{}
	closed      bool
}

// Notify signals all registered listeners that the underlying set changed.
// Delivery is best-effort: slow subscribers are skipped rather than blocked
// on.
func (cn *ChangeNotifier) Notify(ctx context.Context) error {
	cn.mu.RLock()
	defer cn.mu.RUnlock()

	if cn.closed {
		return nil
	}
	for _, ch := range cn.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close releases all subscriber channels. Further Subscriber calls return a
// closed channel.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subscribers
	cn.subscribers = nil
	cn.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// ChangeSubscriber is implemented by anything that can hand out change
// signal channels.
type ChangeSubscriber interface {
	Subscriber() <-chan struct{}
}

// Subscriber returns a channel that receives a signal whenever Notify is
// called. The channel is buffered with capacity 1; signals are coalesced.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	if cn.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}

	ch := make(chan struct{}, 1)
	cn.subscribers = append(cn.subscribers, ch)
	return ch
}
