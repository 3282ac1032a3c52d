package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"gamifyd/core"
	"gamifyd/engine"
)

// Hub is a simple pub/sub for broadcasting committed events to channels.
// Subscribers are scoped to a company; an empty company ID receives every
// tenant's events (admin streams).
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscription
	next int
}

type subscription struct {
	companyID string
	ch        chan core.Event
}

func NewHub() *Hub { return &Hub{subs: map[int]subscription{}} }

func (h *Hub) Subscribe(companyID string, buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscription{companyID: companyID, ch: ch}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]chan core.Event, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.companyID != "" && sub.companyID != ev.CompanyID {
			continue
		}
		receivers = append(receivers, sub.ch)
	}
	h.mu.RUnlock()
	for _, ch := range receivers {
		select {
		case ch <- ev:
		default: /* drop if full */
		}
	}
}

// Bridge forwards every event published on the bus into the hub.
// The returned function detaches the bridge.
func Bridge(bus *engine.EventBus, hub *Hub) func() {
	return bus.Subscribe(engine.EventAll, func(ctx context.Context, ev core.Event) {
		hub.Broadcast(ctx, ev)
	})
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
