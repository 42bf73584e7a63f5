package ipc

import (
	"context"
	"time"

	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// Handlers implements API in the process that owns the registry.
// Every call resolves the space storage through EnsureStore first.
type Handlers struct {
	reg *registry.Registry
}

var _ API = (*Handlers)(nil)

// NewHandlers creates handlers over reg.
func NewHandlers(reg *registry.Registry) *Handlers {
	return &Handlers{reg: reg}
}

func (h *Handlers) doc(ctx context.Context, key space.Key) (storage.DocStorage, error) {
	st, err := h.reg.EnsureStore(ctx, key)
	if err != nil {
		return nil, err
	}
	return st.Doc()
}

func (h *Handlers) blob(ctx context.Context, key space.Key) (storage.BlobStorage, error) {
	st, err := h.reg.EnsureStore(ctx, key)
	if err != nil {
		return nil, err
	}
	return st.Blob()
}

func (h *Handlers) sync(ctx context.Context, key space.Key) (storage.SyncStorage, error) {
	st, err := h.reg.EnsureStore(ctx, key)
	if err != nil {
		return nil, err
	}
	return st.Sync()
}

// Connect ensures the store and (re)connects every storage of the space.
func (h *Handlers) Connect(ctx context.Context, key space.Key) error {
	st, err := h.reg.EnsureStore(ctx, key)
	if err != nil {
		return err
	}
	return st.Connect(ctx)
}

// Close disconnects the space; it stays cached.
func (h *Handlers) Close(ctx context.Context, key space.Key) error {
	return h.reg.Close(ctx, key)
}

func (h *Handlers) PushDocUpdate(ctx context.Context, key space.Key, update space.DocUpdate) (space.DocClock, error) {
	doc, err := h.doc(ctx, key)
	if err != nil {
		return space.DocClock{}, err
	}
	return doc.PushDocUpdate(ctx, update)
}

func (h *Handlers) GetDoc(ctx context.Context, key space.Key, docID string) (*space.DocRecord, error) {
	doc, err := h.doc(ctx, key)
	if err != nil {
		return nil, err
	}
	return doc.GetDoc(ctx, docID)
}

func (h *Handlers) DeleteDoc(ctx context.Context, key space.Key, docID string) error {
	doc, err := h.doc(ctx, key)
	if err != nil {
		return err
	}
	return doc.DeleteDoc(ctx, docID)
}

func (h *Handlers) GetDocTimestamps(ctx context.Context, key space.Key, after time.Time) (space.DocClocks, error) {
	doc, err := h.doc(ctx, key)
	if err != nil {
		return nil, err
	}
	return doc.GetDocTimestamps(ctx, after)
}

func (h *Handlers) SetBlob(ctx context.Context, key space.Key, blob space.BlobRecord) error {
	b, err := h.blob(ctx, key)
	if err != nil {
		return err
	}
	return b.Set(ctx, blob)
}

func (h *Handlers) GetBlob(ctx context.Context, key space.Key, blobKey string) (*space.BlobRecord, error) {
	b, err := h.blob(ctx, key)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, blobKey)
}

func (h *Handlers) DeleteBlob(ctx context.Context, key space.Key, blobKey string, permanently bool) error {
	b, err := h.blob(ctx, key)
	if err != nil {
		return err
	}
	return b.Delete(ctx, blobKey, permanently)
}

func (h *Handlers) ListBlobs(ctx context.Context, key space.Key) ([]space.BlobMeta, error) {
	b, err := h.blob(ctx, key)
	if err != nil {
		return nil, err
	}
	return b.List(ctx)
}

func (h *Handlers) ReleaseBlobs(ctx context.Context, key space.Key) error {
	b, err := h.blob(ctx, key)
	if err != nil {
		return err
	}
	return b.Release(ctx)
}

func (h *Handlers) GetPeerClocks(ctx context.Context, key space.Key, peer string) (space.DocClocks, error) {
	s, err := h.sync(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.GetPeerClocks(ctx, peer)
}

func (h *Handlers) SetPeerClock(ctx context.Context, key space.Key, peer string, clock space.DocClock) error {
	s, err := h.sync(ctx, key)
	if err != nil {
		return err
	}
	return s.SetPeerClock(ctx, peer, clock)
}

func (h *Handlers) GetPeerPushedClocks(ctx context.Context, key space.Key, peer string) (space.DocClocks, error) {
	s, err := h.sync(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.GetPeerPushedClocks(ctx, peer)
}

func (h *Handlers) SetPeerPushedClock(ctx context.Context, key space.Key, peer string, clock space.DocClock) error {
	s, err := h.sync(ctx, key)
	if err != nil {
		return err
	}
	return s.SetPeerPushedClock(ctx, peer, clock)
}

func (h *Handlers) ClearClocks(ctx context.Context, key space.Key) error {
	s, err := h.sync(ctx, key)
	if err != nil {
		return err
	}
	return s.ClearClocks(ctx)
}

func (h *Handlers) OnConnectionStatusChanged(fn func(registry.StatusEvent)) (func(), error) {
	return h.reg.OnConnectionStatusChanged(fn), nil
}
