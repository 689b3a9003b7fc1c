// Package stream fans audit entries out to live in-process subscribers, such as
// the admin Server-Sent Events feed.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"ideaboard.app/internal/audit"
)

const subscriberBuffer = 16

// Hub fan-outs audit entries to all active subscribers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan audit.Entry
	next    int
	dropped atomic.Uint64
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]chan audit.Entry)}
}

// Subscribe registers a subscriber and returns a channel which will receive entries.
// The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan audit.Entry {
	ch := make(chan audit.Entry, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish implements audit.Publisher. Slow subscribers miss entries instead of
// blocking the recorder.
func (h *Hub) Publish(_ context.Context, e audit.Entry) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
