package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DefaultBroadcastBuffer is the per-subscriber queue length.
const DefaultBroadcastBuffer = 64

// Broadcast fans every published event out to all subscribers. Each
// subscriber has a bounded queue; when it is full the event is dropped for
// that subscriber only, so a slow reader never stalls the publisher.
type Broadcast struct {
	mu      sync.Mutex
	subs    map[uint64]*subscription
	next    uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

type subscription struct {
	name string
	ch   chan Event
}

// NewBroadcast creates a broadcast with the given per-subscriber buffer.
func NewBroadcast(buffer int) *Broadcast {
	if buffer <= 0 {
		buffer = DefaultBroadcastBuffer
	}
	return &Broadcast{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Subscribe returns a receive channel and a cancel function. The channel is
// closed by cancel or by Close.
func (b *Broadcast) Subscribe(name string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = &subscription{name: name, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish offers ev to every subscriber without blocking.
func (b *Broadcast) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			n := b.dropped.Add(1)
			log.Debug().
				Str("subscriber", s.name).
				Str("event", string(ev.Type)).
				Uint64("dropped_total", n).
				Msg("broadcast queue full, event dropped")
		}
	}
}

// Dropped returns how many deliveries were dropped so far.
func (b *Broadcast) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcast) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription channel. Later publishes are no-ops.
func (b *Broadcast) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}
