// Package broadcast implements an in-process publish/subscribe hub for data
// change notifications.
package broadcast

import (
	"context"
	"sync"

	"github.com/capitalengine/capitalengine/internal/models/modelevent"
	"github.com/rs/zerolog"
)

// Broadcaster fans each published event out to every live subscriber exactly
// once. Delivery is best-effort: a subscriber whose buffer is full at publish
// time misses that event and catches up from the next full-snapshot one.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uint64]chan modelevent.Event
	nextID      uint64
	closed      bool
	log         *zerolog.Logger
}

// NewBroadcaster initializes a broadcast hub.
func NewBroadcaster(log *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan modelevent.Event),
		log:         log,
	}
}

// Subscribe registers a new consumer and returns its event channel together
// with a cancel function. The cancel function is idempotent and closes the
// channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan modelevent.Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan modelevent.Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers without blocking the
// publisher.
func (b *Broadcaster) Publish(event modelevent.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Warn().Uint64("subscriber", id).Str("type", event.Type).Msg("subscriber buffer is full, dropping event")
		}
	}
}

// Run blocks until ctx is cancelled, then closes every subscriber channel and
// rejects further publishes and subscriptions.
func (b *Broadcaster) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for id, ch := range b.subscribers {
			delete(b.subscribers, id)
			close(ch)
		}
		b.log.Info().Msg("broadcast hub shut down")
	}()
}
