// Package view owns the synchronizers behind the dashboard and token detail
// screens. A process-wide Context makes sure only one view is active at a time.
package view

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrViewBusy is returned by Acquire while another view owns the context.
	ErrViewBusy = errors.New("another view is active")

	// ErrNotOpen is returned by view operations before Open or after Close.
	ErrNotOpen = errors.New("view not open")

	// ErrAlreadyOpen is returned by Open on a view that is open.
	ErrAlreadyOpen = errors.New("view already open")
)

// Context is the shared state every view competes for. At most one view
// holds it; the holder releases it on Close.
type Context struct {
	mu    sync.Mutex
	owner string
	gen   uint64
}

// NewContext creates an unowned context.
func NewContext() *Context {
	return &Context{}
}

// Acquire makes name the owner. The returned release func gives ownership
// back; calling it more than once, or after another view took over, is a no-op.
func (c *Context) Acquire(name string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.owner != "" {
		return nil, fmt.Errorf("%w: %s", ErrViewBusy, c.owner)
	}
	c.owner = name
	c.gen++
	gen := c.gen

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen {
			c.owner = ""
		}
	}, nil
}

// Active returns the current owner, or "" when none.
func (c *Context) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}
