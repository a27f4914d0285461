package streaming

import (
	"sync"
	"sync/atomic"

	"github.com/rvergara/maestro/pkg/schema"
)

const subscriberBuffer = 64

// Filter narrows which events a subscriber receives. Zero value matches
// everything.
type Filter struct {
	WorkflowID string
	EventTypes []string
}

func (f Filter) matches(e *schema.Event) bool {
	if f.WorkflowID != "" && f.WorkflowID != e.WorkflowID {
		return false
	}
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == e.Type {
			return true
		}
	}
	return false
}

type subscriber struct {
	ch     chan *schema.Event
	filter Filter
}

// Hub is an in-memory fan-out of workflow events to live subscribers.
// Broadcast never blocks: a subscriber whose buffer is full misses the event.
// The durable history lives in the event log, not here.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Broadcast delivers the event to every matching subscriber, dropping it for
// subscribers that cannot keep up.
func (h *Hub) Broadcast(event *schema.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.filter.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. Cancel is idempotent and closes the channel.
func (h *Hub) Subscribe(filter Filter) (<-chan *schema.Event, func()) {
	id := h.nextID.Add(1)
	ch := make(chan *schema.Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
