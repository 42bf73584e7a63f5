package connection

import (
	"context"
	"fmt"
	"sync"
)

// Arena deduplicates connections by share id and reference-counts their
// logical owners.
type Arena struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex // serialises attach against the last-owner teardown
	refs int
	conn any
}

// NewArena creates an empty arena. A process normally has one.
func NewArena() *Arena {
	return &Arena{entries: make(map[string]*entry)}
}

// Share returns a new logical owner of conn. If the arena already holds a
// connection with the same share id, the handle is backed by that one and
// conn is discarded.
//
// Panics if the share id is already bound to a connection of another
// resource type; that is a programming error.
func Share[T any](a *Arena, conn *Connection[T]) *Shared[T] {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := conn.ShareID()
	e, ok := a.entries[id]
	if !ok {
		e = &entry{conn: conn}
		a.entries[id] = e
	}
	existing, ok := e.conn.(*Connection[T])
	if !ok {
		panic(fmt.Sprintf("connection: share id %q is bound to %T", id, e.conn))
	}
	return &Shared[T]{entry: e, conn: existing}
}

// Refs returns the number of attached owners for a share id.
func (a *Arena) Refs(shareID string) int {
	a.mu.Lock()
	e, ok := a.entries[shareID]
	a.mu.Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

func (e *entry) attach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refs++
}

// release drops one reference and runs teardown when it was the last.
func (e *entry) release(ctx context.Context, teardown func(context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return nil
	}
	e.refs = 0
	return teardown(ctx)
}

// Shared is one logical owner of a shared connection.
type Shared[T any] struct {
	entry *entry
	conn  *Connection[T]

	mu       sync.Mutex
	attached bool
}

var _ Handle = (*Shared[struct{}])(nil)

// ShareID returns the share id of the underlying connection.
func (s *Shared[T]) ShareID() string { return s.conn.ShareID() }

// Status returns the status of the underlying connection.
func (s *Shared[T]) Status() (Status, error) { return s.conn.Status() }

// OnStatusChanged subscribes to the underlying connection.
func (s *Shared[T]) OnStatusChanged(fn func(Event)) (unsubscribe func()) {
	return s.conn.OnStatusChanged(fn)
}

// Inner returns the shared resource, or ErrNotConnected.
func (s *Shared[T]) Inner() (T, error) { return s.conn.Inner() }

// Underlying returns the shared connection.
func (s *Shared[T]) Underlying() *Connection[T] { return s.conn }

// Connect attaches this owner (once) and connects the shared resource.
// Later owners reuse an already connected resource without re-acquiring it.
// If ctx ends before the resource settles, this owner is detached again.
func (s *Shared[T]) Connect(ctx context.Context) error {
	s.mu.Lock()
	if !s.attached {
		s.entry.attach()
		s.attached = true
	}
	s.mu.Unlock()

	err := s.conn.Connect(ctx)
	if err != nil && ctx.Err() != nil {
		s.mu.Lock()
		wasAttached := s.attached
		s.attached = false
		s.mu.Unlock()
		if wasAttached {
			// Teardown may have to wait for the acquisition to settle.
			go func() {
				_ = s.entry.release(context.Background(), s.conn.Disconnect)
			}()
		}
	}
	return err
}

// Disconnect detaches this owner. The resource is torn down only when no
// owner remains attached.
func (s *Shared[T]) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return nil
	}
	s.attached = false
	s.mu.Unlock()

	return s.entry.release(ctx, s.conn.Disconnect)
}
