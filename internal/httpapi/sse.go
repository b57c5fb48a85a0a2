package httpapi

import (
	"sync"

	"rotoforge/internal/track"
)

// Broker fans tracker events out to Server-Sent-Events subscribers. Publish
// never blocks; a subscriber that falls behind loses events rather than
// stalling the tracking loop.
type Broker struct {
	mu   sync.Mutex
	subs map[chan track.Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan track.Event]struct{})}
}

// Publish implements track.EventPublisher.
func (b *Broker) Publish(e track.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new event channel; the returned cancel func must be
// called when the subscriber goes away.
func (b *Broker) Subscribe() (<-chan track.Event, func()) {
	ch := make(chan track.Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

// Publishers chains multiple event sinks.
type Publishers []track.EventPublisher

func (ps Publishers) Publish(e track.Event) {
	for _, p := range ps {
		p.Publish(e)
	}
}
