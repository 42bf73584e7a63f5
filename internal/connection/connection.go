package connection

import (
	"context"
	"sync"

	"github.com/roach88/nbstore/internal/event"
)

// Status is the lifecycle state of a connection.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

// Event is emitted to subscribers whenever the status or error changes.
type Event struct {
	Status Status
	Err    error
}

// Hooks acquire and release the resource behind a connection.
// Either hook may be nil.
type Hooks[T any] struct {
	Connect    func(ctx context.Context) (T, error)
	Disconnect func(ctx context.Context, res T) error
}

// Observer is the read side of a connection.
type Observer interface {
	ShareID() string
	Status() (Status, error)
	OnStatusChanged(fn func(Event)) (unsubscribe func())
}

// Handle is what a storage holds: an observable connection it can connect
// and disconnect. Both *Connection and *Shared implement it.
type Handle interface {
	Observer
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Connection owns exactly one lazily created resource and broadcasts its
// lifecycle.
//
// Thread-safety: all methods are safe for concurrent use.
type Connection[T any] struct {
	shareID string
	hooks   Hooks[T]

	mu      sync.Mutex
	status  Status
	err     error
	res     T
	settled chan struct{} // non-nil while an acquisition is in flight

	events event.Bus[Event]
}

// New creates an idle connection identified by shareID.
func New[T any](shareID string, hooks Hooks[T]) *Connection[T] {
	return &Connection[T]{
		shareID: shareID,
		hooks:   hooks,
		status:  StatusIdle,
	}
}

// Dummy returns a connection with no resource. It connects and disconnects
// instantly and is used by backends that have nothing to open.
func Dummy(shareID string) *Connection[struct{}] {
	return New(shareID, Hooks[struct{}]{})
}

// ShareID returns the stable identity used to deduplicate shared connections.
func (c *Connection[T]) ShareID() string {
	return c.shareID
}

// Status returns the current status and, for StatusError, its reason.
func (c *Connection[T]) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.err
}

// OnStatusChanged subscribes fn to status changes.
func (c *Connection[T]) OnStatusChanged(fn func(Event)) (unsubscribe func()) {
	return c.events.Subscribe(fn)
}

// Inner returns the live resource, or ErrNotConnected.
func (c *Connection[T]) Inner() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusConnected {
		var zero T
		return zero, ErrNotConnected
	}
	return c.res, nil
}

// Connect acquires the resource if needed and waits until it is settled.
//
// Connected: returns immediately. Connecting: joins the in-flight acquisition.
// Otherwise: starts a new acquisition. If ctx ends first, Connect returns
// ctx.Err() and the acquisition carries on for the other waiters.
func (c *Connection[T]) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case StatusConnected:
		c.mu.Unlock()
		return nil
	case StatusConnecting:
	default:
		c.settled = make(chan struct{})
		c.setStatusLocked(StatusConnecting, nil)
		go c.acquire(c.settled)
	}
	settled := c.settled
	c.mu.Unlock()

	if settled != nil {
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusConnected {
		return nil
	}
	if c.err != nil {
		return &ConnectionError{ShareID: c.shareID, Op: "connect", Err: c.err}
	}
	return ErrNotConnected
}

// Disconnect tears the resource down and moves to closed.
// An in-flight acquisition is allowed to settle first. Disconnecting a
// connection that is not connected is a no-op.
func (c *Connection[T]) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if settled := c.settled; settled != nil {
		c.mu.Unlock()
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	if c.status != StatusConnected {
		return nil
	}

	res := c.res
	var zero T
	c.res = zero

	if c.hooks.Disconnect != nil {
		if err := c.hooks.Disconnect(ctx, res); err != nil {
			c.setStatusLocked(StatusError, err)
			return &ConnectionError{ShareID: c.shareID, Op: "disconnect", Err: err}
		}
	}
	c.setStatusLocked(StatusClosed, nil)
	return nil
}

// SetStatus overrides the status. Used by connections that mirror a
// resource owned elsewhere and learn about its state through events.
func (c *Connection[T]) SetStatus(status Status, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStatusLocked(status, err)
}

func (c *Connection[T]) acquire(settled chan struct{}) {
	var (
		res T
		err error
	)
	if c.hooks.Connect != nil {
		res, err = c.hooks.Connect(context.Background())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		var zero T
		c.res = zero
		c.setStatusLocked(StatusError, err)
	} else {
		c.res = res
		c.setStatusLocked(StatusConnected, nil)
	}
	c.settled = nil
	close(settled)
}

// setStatusLocked records the new state and emits only on change.
// Any transition carrying an error is emitted.
func (c *Connection[T]) setStatusLocked(status Status, err error) {
	if status == c.status && err == nil && c.err == nil {
		return
	}
	c.status = status
	c.err = err
	c.events.Publish(Event{Status: status, Err: err})
}
