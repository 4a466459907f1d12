// Package stream fans inbound stanzas out to subscribed handlers.
package stream

import (
	"sync"

	"github.com/meszmate/conference/internal/xmpp/packet"
)

// Handler handles an inbound stanza
type Handler func(s *packet.Stanza)

// Handle identifies a subscription. The zero Handle is never issued.
type Handle uint64

type subscription struct {
	handle  Handle
	handler Handler
}

// Bus delivers published stanzas to every subscriber, synchronously and in
// subscription order. Publish must be called from a single goroutine to keep
// per-subscriber arrival order.
type Bus struct {
	mu   sync.RWMutex
	next Handle
	subs []subscription
}

// NewBus creates a new stanza bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler and returns its handle
func (b *Bus) Subscribe(handler Handler) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.subs = append(b.subs, subscription{handle: b.next, handler: handler})
	return b.next
}

// Unsubscribe removes the handler registered under h. Unknown handles are
// ignored.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.handle == h {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers s to all current subscribers. Handlers may subscribe or
// unsubscribe while being called; changes apply from the next Publish.
func (b *Bus) Publish(s *packet.Stanza) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(s)
	}
}

// Len returns the number of active subscriptions
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
