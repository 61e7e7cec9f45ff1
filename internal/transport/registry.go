package transport

import (
	"encoding/json"
	"sync"
)

// ListenerID identifies one registered handler.
type ListenerID uint64

type listener struct {
	id      ListenerID
	handler Handler
}

// Registry maps event names to handlers. It is shared by every subscription
// on a channel, so adding or removing one listener never touches another.
type Registry struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[string][]listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string][]listener)}
}

// Subscribe adds h for event.
func (r *Registry) Subscribe(event string, h Handler) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.listeners[event] = append(r.listeners[event], listener{id: id, handler: h})
	return id
}

// Unsubscribe removes the listener with id from event.
func (r *Registry) Unsubscribe(event string, id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.listeners[event]
	for i, l := range current {
		if l.id != id {
			continue
		}
		// copy-on-write so in-flight dispatches keep their snapshot
		next := make([]listener, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(r.listeners, event)
		} else {
			r.listeners[event] = next
		}
		return
	}
}

// Dispatch calls every handler registered for event, in registration order,
// and returns how many were called.
func (r *Registry) Dispatch(event string, payload json.RawMessage) int {
	r.mu.RLock()
	handlers := r.listeners[event]
	r.mu.RUnlock()

	for _, l := range handlers {
		l.handler(payload)
	}
	return len(handlers)
}

// Count returns the number of listeners for event.
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[event])
}
