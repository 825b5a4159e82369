// Package realtime broadcasts resource change events to connected clients.
//
// Delivery is best effort and at most once: a client whose buffer is full
// misses the event, and nothing is replayed on reconnect. Every event carries
// a sequence number so clients can notice gaps and re-fetch.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/cloudbsd/admin-panel/internal/metrics"
)

// EventResourceUpdate is emitted whenever resources of a kind change.
const EventResourceUpdate = "resource_update"

// DefaultBuffer is the per-client event buffer.
const DefaultBuffer = 64

// ResourceUpdate is the payload of EventResourceUpdate.
type ResourceUpdate struct {
	Resource  string    `json:"resource"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is one message on the stream.
type Event struct {
	Event string         `json:"event"`
	Data  ResourceUpdate `json:"data"`
	Seq   uint64         `json:"seq"`
}

// Hub fans events out to subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	seq  uint64
	now  func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan Event]struct{}),
		now:  time.Now,
	}
}

// Subscribe registers a new subscriber with the given buffer size.
func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeClients.Inc()
	return ch
}

// Unsubscribe removes and closes ch. It is safe to call more than once.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; !ok {
		return
	}
	delete(h.subs, ch)
	close(ch)
	metrics.RealtimeClients.Dec()
}

// Clients returns the number of subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish assigns the next sequence number and offers the event to every
// subscriber without blocking.
func (h *Hub) Publish(event, resource string) Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	evt := Event{
		Event: event,
		Data:  ResourceUpdate{Resource: resource, Timestamp: h.now().UTC()},
		Seq:   h.seq,
	}
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			metrics.RealtimeDroppedEvents.Inc()
		}
	}
	return evt
}

// ResourceUpdated broadcasts a resource_update for kind.
func (h *Hub) ResourceUpdated(kind string) {
	h.Publish(EventResourceUpdate, kind)
}

// RunHeartbeat emits a resource_update for the next kind in kinds every
// interval until ctx is done.
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration, kinds []string) {
	if interval <= 0 || len(kinds) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ResourceUpdated(kinds[next])
			next = (next + 1) % len(kinds)
		}
	}
}
