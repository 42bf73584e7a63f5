// Package remote implements the storage contracts for processes that reach
// the native backend through an ipc.API.
//
// Connecting a remote storage asks the owner of the backend to connect the
// space; the connection then mirrors the status the owner reports for it.
package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/ipc"
	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// Options configure remote storages.
type Options struct {
	storage.Options

	// API reaches the backend owner. Nil means it is unreachable.
	API ipc.API

	// Arena shares one connection among the storages of a space.
	Arena *connection.Arena
}

// ShareID returns the share id of the remote connection of key.
func ShareID(key space.Key) string {
	return "ipc:" + string(key.Type) + ":" + key.ID
}

// mirror follows the owner's status events for one space.
type mirror struct {
	mu    sync.Mutex
	unsub func()
}

func (m *mirror) start(api ipc.API, key space.Key, conn *connection.Connection[struct{}]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		return nil
	}
	unsub, err := api.OnConnectionStatusChanged(func(e registry.StatusEvent) {
		if e.SpaceType != key.Type || e.SpaceID != key.ID {
			return
		}
		var err error
		if e.Error != "" {
			err = errors.New(e.Error)
		}
		conn.SetStatus(e.Status, err)
	})
	if err != nil {
		return err
	}
	m.unsub = unsub
	return nil
}

func (m *mirror) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// NewConnection creates the connection of key over api.
func NewConnection(api ipc.API, key space.Key) *connection.Connection[struct{}] {
	var (
		m    mirror
		conn *connection.Connection[struct{}]
	)
	conn = connection.New(ShareID(key), connection.Hooks[struct{}]{
		Connect: func(ctx context.Context) (struct{}, error) {
			if api == nil {
				return struct{}{}, storage.NewContextUnavailable(key, "")
			}
			if err := api.Connect(ctx, key); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, m.start(api, key, conn)
		},
		Disconnect: func(ctx context.Context, _ struct{}) error {
			m.stop()
			if api == nil {
				return nil
			}
			return api.Close(ctx, key)
		},
	})
	return conn
}

type base struct {
	storage.Base
	api ipc.API
}

func newBase(opts Options, kind space.StorageType) base {
	arena := opts.Arena
	if arena == nil {
		arena = connection.NewArena()
	}
	conn := connection.Share(arena, NewConnection(opts.API, opts.Key()))
	return base{Base: storage.NewBase(opts.Options, kind, conn), api: opts.API}
}

// client returns the API, or CONTEXT_UNAVAILABLE when there is none.
func (b *base) client() (ipc.API, error) {
	if b.api == nil {
		return nil, storage.NewContextUnavailable(b.Key(), b.StorageType())
	}
	return b.api, nil
}

// NewSpaceStorage builds the doc, blob and sync storages of key over api.
func NewSpaceStorage(api ipc.API, arena *connection.Arena, key space.Key) (*storage.SpaceStorage, error) {
	opts := Options{Options: storage.Options{Type: key.Type, ID: key.ID}, API: api, Arena: arena}
	return storage.NewSpaceStorage(key, storage.Storages{
		Doc:  NewDocStorage(opts),
		Blob: NewBlobStorage(opts),
		Sync: NewSyncStorage(opts),
	})
}
