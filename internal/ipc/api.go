package ipc

import (
	"context"
	"time"

	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/space"
)

// API is the storage surface callable across the process boundary.
type API interface {
	Connect(ctx context.Context, key space.Key) error
	Close(ctx context.Context, key space.Key) error

	PushDocUpdate(ctx context.Context, key space.Key, update space.DocUpdate) (space.DocClock, error)
	GetDoc(ctx context.Context, key space.Key, docID string) (*space.DocRecord, error)
	DeleteDoc(ctx context.Context, key space.Key, docID string) error
	GetDocTimestamps(ctx context.Context, key space.Key, after time.Time) (space.DocClocks, error)

	SetBlob(ctx context.Context, key space.Key, blob space.BlobRecord) error
	GetBlob(ctx context.Context, key space.Key, blobKey string) (*space.BlobRecord, error)
	DeleteBlob(ctx context.Context, key space.Key, blobKey string, permanently bool) error
	ListBlobs(ctx context.Context, key space.Key) ([]space.BlobMeta, error)
	ReleaseBlobs(ctx context.Context, key space.Key) error

	GetPeerClocks(ctx context.Context, key space.Key, peer string) (space.DocClocks, error)
	SetPeerClock(ctx context.Context, key space.Key, peer string, clock space.DocClock) error
	GetPeerPushedClocks(ctx context.Context, key space.Key, peer string) (space.DocClocks, error)
	SetPeerPushedClock(ctx context.Context, key space.Key, peer string, clock space.DocClock) error
	ClearClocks(ctx context.Context, key space.Key) error

	// OnConnectionStatusChanged subscribes fn to status changes of every
	// storage managed behind the API.
	OnConnectionStatusChanged(fn func(registry.StatusEvent)) (unsubscribe func(), err error)
}
