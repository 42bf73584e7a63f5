package sqlite

import (
	"context"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// ShareID returns the share id of the native database of key.
func ShareID(key space.Key) string {
	return "sqlite:" + string(key.Type) + ":" + key.ID
}

// NewConnection creates the connection to key's database.
// With a nil runtime, connecting fails with CONTEXT_UNAVAILABLE.
func NewConnection(rt *nativedb.Runtime, key space.Key) *connection.Connection[*nativedb.DB] {
	return connection.New(ShareID(key), connection.Hooks[*nativedb.DB]{
		Connect: func(ctx context.Context) (*nativedb.DB, error) {
			if rt == nil {
				return nil, storage.NewContextUnavailable(key, "")
			}
			return rt.Open(key)
		},
		Disconnect: func(ctx context.Context, db *nativedb.DB) error {
			return db.Close()
		},
	})
}

type base struct {
	storage.Base
	rt   *nativedb.Runtime
	conn *connection.Shared[*nativedb.DB]
}

func newBase(rt *nativedb.Runtime, arena *connection.Arena, opts storage.Options, kind space.StorageType) base {
	if arena == nil {
		arena = connection.NewArena()
	}
	conn := connection.Share(arena, NewConnection(rt, opts.Key()))
	return base{Base: storage.NewBase(opts, kind, conn), rt: rt, conn: conn}
}

// db connects if needed and returns the open database.
func (b *base) db(ctx context.Context) (*nativedb.DB, error) {
	if b.rt == nil {
		return nil, storage.NewContextUnavailable(b.Key(), b.StorageType())
	}
	if err := b.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return b.conn.Inner()
}
