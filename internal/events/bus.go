package events

import (
	"context"
	"sync"

	"github.com/financeanalyst/securecore/internal/models"
)

// Bus fan-outs security events to all active subscribers. Identity and
// data protection publish; the audit engine subscribes. Subscribers that
// fall behind have events dropped rather than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan models.SecurityEvent
	next int
}

// NewBus initialises an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan models.SecurityEvent),
	}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the provided context ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan models.SecurityEvent {
	ch := make(chan models.SecurityEvent, 64)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (b *Bus) Publish(evt models.SecurityEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
