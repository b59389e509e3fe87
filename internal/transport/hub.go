package transport

import (
	"sync"
	"time"
)

// Event describes a transaction the service has co-signed.
type Event struct {
	Time      time.Time
	ID        string
	Payer     string
	Signature string
	Submitted bool
}

type Subscriber chan Event

// Hub fans co-sign events out to subscribers. Slow subscribers lose events
// instead of blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[Subscriber]struct{}),
	}
}

// Subscribe returns a new channel with room for buffer pending events.
func (h *Hub) Subscribe(buffer int) Subscriber {
	ch := make(Subscriber, buffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it.
func (h *Hub) Unsubscribe(ch Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	delete(h.subscribers, ch)
	close(ch)
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
