package events

import (
	"context"
	"sync"
)

const defaultBufferSize = 64

// Bus fans session lifecycle events out to a dynamically managed set of
// subscribers. There is one persistent publisher (the supervisor event loop);
// observers come and go with their connections.
type Bus struct {
	mu               sync.RWMutex
	subscribers      map[uint64]chan Event
	nextSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[uint64]chan Event),
		done:        make(chan struct{}),
	}
}

// Publish delivers event to every current subscriber. Delivery is at most
// once per subscriber; a subscriber whose buffer is full misses the event
// instead of blocking the publisher.
func (b *Bus) Publish(event Event) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	b.mu.RLock()
	subs := make([]chan Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

// Subscribe registers a new subscriber and returns its event channel along
// with an unsubscribe function. The channel is closed on unsubscribe, bus
// close, or context cancellation.
func (b *Bus) Subscribe(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextSubscriberID
	b.nextSubscriberID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.subscribers {
			close(ch)
			delete(b.subscribers, id)
		}
		b.mu.Unlock()
	})
}
