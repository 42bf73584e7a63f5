// Package event provides a small publish/subscribe channel used to fan out
// connection status changes.
//
// Each subscriber owns an unbounded github.com/cheggaaa/mb/v3 buffer drained
// by its own goroutine, so:
//   - Publish never blocks on a slow subscriber
//   - Events reach one subscriber in publish order
//   - A subscriber may call back into the publisher without deadlocking
package event

import (
	"context"
	"sync"

	"github.com/cheggaaa/mb/v3"
)

// Bus fans values of type T out to subscribers.
// The zero value is ready to use.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber[T]
	nextID uint64
	done   bool
}

type subscriber[T any] struct {
	queue *mb.MB[T]
	fn    func(T)
}

// Subscribe registers fn and returns a function that removes it.
// Subscribing to a completed bus yields no events and a no-op unsubscribe.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return func() {}
	}
	if b.subs == nil {
		b.subs = make(map[uint64]*subscriber[T])
	}

	b.nextID++
	id := b.nextID
	s := &subscriber[T]{queue: mb.New[T](0), fn: fn}
	b.subs[id] = s
	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Publish delivers v to every current subscriber.
// Publishing to a completed bus is a no-op.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	for _, s := range b.subs {
		// Unbounded buffer: Add only fails once the subscriber is closed.
		_ = s.queue.Add(context.Background(), v)
	}
}

// Complete closes the bus. Current subscribers stop receiving events and
// later subscriptions receive none.
func (b *Bus[T]) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	b.done = true
	for id, s := range b.subs {
		_ = s.queue.Close()
		delete(b.subs, id)
	}
}

// Completed reports whether Complete has been called.
func (b *Bus[T]) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Subscribers returns the number of active subscriptions.
func (b *Bus[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subs[id]; ok {
		_ = s.queue.Close()
		delete(b.subs, id)
	}
}

func (s *subscriber[T]) run() {
	for {
		v, err := s.queue.WaitOne(context.Background())
		if err != nil {
			return
		}
		s.fn(v)
	}
}
