// Package transport provides the push channel used for live token updates.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// Pseudo-events delivered when the connection state changes.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

var (
	// ErrNotConnected is returned by Emit when no connection is established.
	// Nothing is sent in that case.
	ErrNotConnected = errors.New("push channel not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("push channel closed")
)

// Handler receives the raw JSON payload of a named event.
type Handler func(payload json.RawMessage)

// Channel is a bidirectional named-event connection.
type Channel interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// IsConnected reports whether Emit can currently deliver.
	IsConnected() bool

	// Emit sends a named event. Returns ErrNotConnected without sending
	// when disconnected; callers are expected to check IsConnected first.
	Emit(event string, payload any) error

	// Subscribe registers h for event and returns an id for Unsubscribe.
	Subscribe(event string, h Handler) ListenerID

	// Unsubscribe removes a listener. Unknown ids are ignored.
	Unsubscribe(event string, id ListenerID)

	// Close shuts the connection down and stops reconnecting.
	Close() error
}
