// Package registry caches one SpaceStorage per space for the lifetime of a
// process and fans their connection status out to listeners.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/event"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/sqlite"
	"github.com/roach88/nbstore/internal/storage"
)

// ErrClosed is returned by EnsureStore after Teardown.
var ErrClosed = errors.New("registry is closed")

// Factory builds the storage of a space. It must not connect it.
type Factory func(key space.Key) (*storage.SpaceStorage, error)

// NativeFactory builds sqlite doc, blob and sync storages sharing one
// database handle per space through arena.
func NativeFactory(rt *nativedb.Runtime, arena *connection.Arena) Factory {
	return func(key space.Key) (*storage.SpaceStorage, error) {
		opts := storage.Options{Type: key.Type, ID: key.ID}
		return storage.NewSpaceStorage(key, storage.Storages{
			Doc:  sqlite.NewDocStorage(rt, arena, opts),
			Blob: sqlite.NewBlobStorage(rt, arena, opts),
			Sync: sqlite.NewSyncStorage(rt, arena, opts),
		})
	}
}

// StatusEvent reports a connection status change of one storage.
type StatusEvent struct {
	SpaceType space.Type        `json:"spaceType"`
	SpaceID   string            `json:"spaceId"`
	Storage   space.StorageType `json:"storage"`
	Status    connection.Status `json:"status"`
	Error     string            `json:"error,omitempty"`
}

// Options configure a Registry.
type Options struct {
	Logger *slog.Logger
}

// Registry is the process-wide store cache.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	factory Factory
	log     *slog.Logger

	mu      sync.Mutex
	stores  map[string]*storage.SpaceStorage
	loading map[string]*loadingStore
	closed  bool

	events event.Bus[StatusEvent]
}

type loadingStore struct {
	loadCh chan struct{}
	store  *storage.SpaceStorage
	err    error
}

// New creates an empty registry.
func New(factory Factory, opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		factory: factory,
		log:     log,
		stores:  make(map[string]*storage.SpaceStorage),
		loading: make(map[string]*loadingStore),
	}
}

// EnsureStore returns the storage of key, building and connecting it on
// first use. Concurrent callers for one key share a single load. If ctx ends
// first the caller gets ctx.Err() and the load carries on.
//
// A failed connect does not fail EnsureStore: the store is cached and the
// failure is reported through OnConnectionStatusChanged.
func (r *Registry) EnsureStore(ctx context.Context, key space.Key) (*storage.SpaceStorage, error) {
	key = space.NewKey(key.Type, key.ID)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	id := key.String()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if st, ok := r.stores[id]; ok {
		r.mu.Unlock()
		return st, nil
	}
	l, ok := r.loading[id]
	if !ok {
		l = &loadingStore{loadCh: make(chan struct{})}
		r.loading[id] = l
		go r.load(key, l)
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.loadCh:
	}
	return l.store, l.err
}

func (r *Registry) load(key space.Key, l *loadingStore) {
	id := key.String()

	st, err := r.factory(key)
	if err != nil {
		err = fmt.Errorf("build storage %s: %w", id, err)
		r.log.Error("space storage build failed", "space", id, "error", err)
	} else {
		st.OnConnection(func(e storage.ConnectionEvent) {
			ev := StatusEvent{SpaceType: key.Type, SpaceID: key.ID, Storage: e.Storage, Status: e.Status}
			if e.Err != nil {
				ev.Error = e.Err.Error()
			}
			r.events.Publish(ev)
		})
		if cerr := st.Connect(context.Background()); cerr != nil {
			r.log.Warn("space storage connect failed", "space", id, "error", cerr)
		} else {
			r.log.Debug("space storage connected", "space", id)
		}
	}

	r.mu.Lock()
	delete(r.loading, id)
	closed := r.closed
	if err == nil && !closed {
		r.stores[id] = st
	}
	r.mu.Unlock()

	// A load that outlives Teardown owns its store and must destroy it.
	if err == nil && closed {
		if derr := st.Destroy(context.Background()); derr != nil {
			r.log.Error("failed to destroy space storage", "space", id, "error", derr)
		} else {
			r.log.Debug("space storage destroyed after teardown", "space", id)
		}
		st, err = nil, ErrClosed
	}
	l.store, l.err = st, err
	close(l.loadCh)
}

// Close disconnects the storage of key but keeps it cached, so a later
// EnsureStore or operation reconnects it. Closing an unknown key is a no-op.
func (r *Registry) Close(ctx context.Context, key space.Key) error {
	key = space.NewKey(key.Type, key.ID)
	r.mu.Lock()
	st, ok := r.stores[key.String()]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return st.Disconnect(ctx)
}

// Cached reports whether key has a cached storage.
func (r *Registry) Cached(key space.Key) bool {
	key = space.NewKey(key.Type, key.ID)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stores[key.String()]
	return ok
}

// OnConnectionStatusChanged subscribes fn to status changes of every cached
// storage. Events stop after Teardown.
func (r *Registry) OnConnectionStatusChanged(fn func(StatusEvent)) (unsubscribe func()) {
	return r.events.Subscribe(fn)
}

// Teardown completes the event stream, then destroys every cached storage.
// A failing destroy is logged and does not stop the others; the failures
// are returned together. Teardown is idempotent.
func (r *Registry) Teardown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pending := make([]*loadingStore, 0, len(r.loading))
	for _, l := range r.loading {
		pending = append(pending, l)
	}
	r.mu.Unlock()

	r.events.Complete()

wait:
	for _, l := range pending {
		select {
		case <-l.loadCh:
		case <-ctx.Done():
			r.log.Warn("teardown stopped waiting for in-flight loads", "error", ctx.Err())
			break wait
		}
	}

	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*storage.SpaceStorage)
	r.mu.Unlock()

	var result *multierror.Error
	for id, st := range stores {
		if err := st.Destroy(ctx); err != nil {
			r.log.Error("failed to destroy space storage", "space", id, "error", err)
			result = multierror.Append(result, fmt.Errorf("destroy %s: %w", id, err))
			continue
		}
		r.log.Debug("space storage destroyed", "space", id)
	}
	return result.ErrorOrNil()
}
