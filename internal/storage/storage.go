package storage

import (
	"context"
	"time"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/space"
)

// Storage is the capability shared by every storage kind.
type Storage interface {
	SpaceType() space.Type
	SpaceID() string
	StorageType() space.StorageType
	Connection() connection.Observer
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// DocStorage stores CRDT update logs and their merged document records.
type DocStorage interface {
	Storage

	// GetDoc returns the merged state of a document, or nil if it has none.
	// The result reflects every update pushed before the call.
	GetDoc(ctx context.Context, docID string) (*space.DocRecord, error)

	// PushDocUpdate appends an update and merges it into the document.
	// The returned clock carries the assigned timestamp, monotonic per doc.
	PushDocUpdate(ctx context.Context, update space.DocUpdate) (space.DocClock, error)

	// DeleteDoc irreversibly removes the updates and record of a document.
	DeleteDoc(ctx context.Context, docID string) error

	// GetDocTimestamps returns the last-modified time of every document
	// modified at or after after. A zero after returns all documents.
	GetDocTimestamps(ctx context.Context, after time.Time) (space.DocClocks, error)
}

// BlobStorage stores binary attachments.
type BlobStorage interface {
	Storage

	// Get returns a live blob, or nil if it is missing or tombstoned.
	Get(ctx context.Context, key string) (*space.BlobRecord, error)

	// Set upserts a blob; the last write for a key wins.
	Set(ctx context.Context, blob space.BlobRecord) error

	// Delete tombstones a blob, or removes it when permanently is true.
	Delete(ctx context.Context, key string, permanently bool) error

	// Release purges every tombstoned blob of the space.
	Release(ctx context.Context) error

	// List returns the metadata of every live blob.
	List(ctx context.Context) ([]space.BlobMeta, error)
}

// SyncStorage stores per-peer synchronization clocks.
type SyncStorage interface {
	Storage

	// GetPeerClocks returns the last update each document is known to have
	// reached peer with.
	GetPeerClocks(ctx context.Context, peer string) (space.DocClocks, error)
	SetPeerClock(ctx context.Context, peer string, clock space.DocClock) error

	// GetPeerPushedClocks returns the last update peer pushed to us per document.
	GetPeerPushedClocks(ctx context.Context, peer string) (space.DocClocks, error)
	SetPeerPushedClock(ctx context.Context, peer string, clock space.DocClock) error

	// ClearClocks resets all peer clock state of the space.
	ClearClocks(ctx context.Context) error
}

// Options identify the space a storage belongs to.
type Options struct {
	Type space.Type
	ID   string
}

// Key returns the space key of the options.
func (o Options) Key() space.Key {
	return space.NewKey(o.Type, o.ID)
}

// Base implements the shared half of Storage. Concrete storages embed it.
type Base struct {
	opts Options
	kind space.StorageType
	conn connection.Handle
}

// NewBase creates a Base for a storage of kind using conn.
func NewBase(opts Options, kind space.StorageType, conn connection.Handle) Base {
	return Base{opts: Options{Type: opts.Type, ID: opts.Key().ID}, kind: kind, conn: conn}
}

// SpaceType returns the type of the owning space.
func (b *Base) SpaceType() space.Type { return b.opts.Type }

// SpaceID returns the id of the owning space.
func (b *Base) SpaceID() string { return b.opts.ID }

// Key returns the key of the owning space.
func (b *Base) Key() space.Key { return space.Key{Type: b.opts.Type, ID: b.opts.ID} }

// StorageType returns the storage kind.
func (b *Base) StorageType() space.StorageType { return b.kind }

// Connection returns the observable side of the storage's connection.
func (b *Base) Connection() connection.Observer { return b.conn }

// Connect connects the storage's connection.
func (b *Base) Connect(ctx context.Context) error { return b.conn.Connect(ctx) }

// Disconnect disconnects the storage's connection.
func (b *Base) Disconnect(ctx context.Context) error { return b.conn.Disconnect(ctx) }
