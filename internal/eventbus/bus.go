// Package eventbus implements the bounded, lag-tolerant in-process
// broadcast bus required by spec §5/§9: publishers never block, and a
// slow subscriber drops messages and logs a count rather than stalling
// the bus. Grounded on the teacher's capacity-bound eventChan pattern
// (internal/gateway, internal/business/*) generalized into an explicit
// fan-out broadcaster, since the teacher's events package itself never
// implements a multi-subscriber bus.
package eventbus

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ocpp-csms/central-system/internal/domain/events"
)

// Capacity is the bounded channel size per subscriber (spec §5: "capacity
// 1024").
const Capacity = 1024

// Bus is a bounded broadcast implementation of ports.EventBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int64]chan events.Event
	nextID      int64
	log         zerolog.Logger
}

// New constructs an empty Bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int64]chan events.Event),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function that removes it.
func (b *Bus) Subscribe() (<-chan events.Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan events.Event, Capacity)
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans evt out to every subscriber without blocking. A subscriber
// whose channel is full is skipped; the drop is logged with its count.
func (b *Bus) Publish(evt events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn().
				Int64("subscriber_id", id).
				Str("event_type", string(evt.EventType())).
				Msg("subscriber lagging, dropped event")
		}
	}
}

// SubscriberCount reports the current number of live subscribers, mainly
// useful for tests and metrics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
