package events

import (
	"context"
	"sync"
)

// Handler receives a broadcast event. Handlers should be non-blocking.
type Handler func(event Event)

// Bus is the in-process fan-out used by the real-time push collaborator.
// Subscribers come and go (WebSocket sessions); the core only broadcasts.
type Bus struct {
	subscribers map[string]Handler
	mu          sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]Handler)}
}

// Subscribe registers a handler under an ID used for later Unsubscribe.
func (b *Bus) Subscribe(id string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a subscriber.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Publish broadcasts to all subscribers.
func (b *Bus) Publish(_ context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, handler := range b.subscribers {
		handler(event)
	}
}
