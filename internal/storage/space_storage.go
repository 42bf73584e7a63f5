package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/event"
	"github.com/roach88/nbstore/internal/space"
)

// ErrDestroyed is returned when a destroyed SpaceStorage is used again.
var ErrDestroyed = errors.New("space storage destroyed")

// ConnectionEvent reports a status change of one sub-storage.
type ConnectionEvent struct {
	Storage space.StorageType
	Status  connection.Status
	Err     error
}

// Storages lists the storages a SpaceStorage owns. Any may be nil.
type Storages struct {
	Doc  DocStorage
	Blob BlobStorage
	Sync SyncStorage
}

// SpaceStorage owns one doc, one blob and one sync storage for a space and
// coordinates their lifecycle.
//
// Thread-safety: all methods are safe for concurrent use.
type SpaceStorage struct {
	key  space.Key
	doc  DocStorage
	blob BlobStorage
	sync SyncStorage

	events event.Bus[ConnectionEvent]

	mu        sync.Mutex
	unsubs    []func()
	destroyed bool
}

// NewSpaceStorage builds the aggregator and starts forwarding the status of
// every sub-storage connection.
//
// Every storage must belong to key and sit in the slot of its own kind.
func NewSpaceStorage(key space.Key, s Storages) (*SpaceStorage, error) {
	ss := &SpaceStorage{key: key, doc: s.Doc, blob: s.Blob, sync: s.Sync}

	all := ss.storages()
	if len(all) == 0 {
		return nil, fmt.Errorf("space storage %s: no storages", key)
	}
	for _, st := range all {
		if st.SpaceType() != key.Type || st.SpaceID() != key.ID {
			return nil, fmt.Errorf("space storage %s: %s storage belongs to %s:%s",
				key, st.StorageType(), st.SpaceType(), st.SpaceID())
		}
	}
	if s.Doc != nil && s.Doc.StorageType() != space.StorageDoc ||
		s.Blob != nil && s.Blob.StorageType() != space.StorageBlob ||
		s.Sync != nil && s.Sync.StorageType() != space.StorageSync {
		return nil, fmt.Errorf("space storage %s: storage registered under the wrong kind", key)
	}

	for _, st := range all {
		kind := st.StorageType()
		unsub := st.Connection().OnStatusChanged(func(e connection.Event) {
			ss.events.Publish(ConnectionEvent{Storage: kind, Status: e.Status, Err: e.Err})
		})
		ss.unsubs = append(ss.unsubs, unsub)
	}
	return ss, nil
}

// Key returns the space this storage serves.
func (s *SpaceStorage) Key() space.Key {
	return s.key
}

// Get returns the storage of the given kind, or a CONFIGURATION error.
func (s *SpaceStorage) Get(kind space.StorageType) (Storage, error) {
	switch kind {
	case space.StorageDoc:
		if s.doc != nil {
			return s.doc, nil
		}
	case space.StorageBlob:
		if s.blob != nil {
			return s.blob, nil
		}
	case space.StorageSync:
		if s.sync != nil {
			return s.sync, nil
		}
	}
	return nil, NewConfigurationError(s.key, kind)
}

// Doc returns the doc storage, or a CONFIGURATION error.
func (s *SpaceStorage) Doc() (DocStorage, error) {
	if s.doc == nil {
		return nil, NewConfigurationError(s.key, space.StorageDoc)
	}
	return s.doc, nil
}

// Blob returns the blob storage, or a CONFIGURATION error.
func (s *SpaceStorage) Blob() (BlobStorage, error) {
	if s.blob == nil {
		return nil, NewConfigurationError(s.key, space.StorageBlob)
	}
	return s.blob, nil
}

// Sync returns the sync storage, or a CONFIGURATION error.
func (s *SpaceStorage) Sync() (SyncStorage, error) {
	if s.sync == nil {
		return nil, NewConfigurationError(s.key, space.StorageSync)
	}
	return s.sync, nil
}

// OnConnection subscribes fn to status changes of every sub-storage.
func (s *SpaceStorage) OnConnection(fn func(ConnectionEvent)) (unsubscribe func()) {
	return s.events.Subscribe(fn)
}

// Connect connects every storage. A failing storage does not stop the
// others from connecting; all failures are returned together.
func (s *SpaceStorage) Connect(ctx context.Context) error {
	if s.isDestroyed() {
		return ErrDestroyed
	}
	return s.each(func(st Storage) error { return st.Connect(ctx) })
}

// Disconnect disconnects every storage.
func (s *SpaceStorage) Disconnect(ctx context.Context) error {
	return s.each(func(st Storage) error { return st.Disconnect(ctx) })
}

// Destroy disconnects every storage and releases the aggregator for good.
// Calling Destroy again is a no-op.
func (s *SpaceStorage) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	err := s.Disconnect(ctx)
	for _, unsub := range unsubs {
		unsub()
	}
	s.events.Complete()
	return err
}

func (s *SpaceStorage) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// storages returns the registered storages in canonical order.
func (s *SpaceStorage) storages() []Storage {
	var out []Storage
	if s.doc != nil {
		out = append(out, s.doc)
	}
	if s.blob != nil {
		out = append(out, s.blob)
	}
	if s.sync != nil {
		out = append(out, s.sync)
	}
	return out
}

func (s *SpaceStorage) each(fn func(Storage) error) error {
	var merr *multierror.Error
	for _, st := range s.storages() {
		if err := fn(st); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", st.StorageType(), err))
		}
	}
	return merr.ErrorOrNil()
}
