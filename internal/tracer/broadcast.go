package tracer

import (
	"sync"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

const subscriberBuffer = 64

// Broadcaster fans trace events out to live subscribers. Delivery is
// at-most-once: a slow subscriber whose buffer is full misses the event, and
// a subscriber that attaches after an event has fired never receives it.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan domain.TraceEvent]struct{}
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan domain.TraceEvent]struct{})}
}

// Subscribe attaches a new subscriber. The returned cancel function detaches
// it and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan domain.TraceEvent, func()) {
	ch := make(chan domain.TraceEvent, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers without blocking.
func (b *Broadcaster) Publish(ev domain.TraceEvent) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// buffer full, drop
		}
	}
	b.mu.RUnlock()
}

// SubscriberCount returns the number of attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
