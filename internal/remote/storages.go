package remote

import (
	"context"
	"time"

	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// DocStorage forwards doc operations to the backend owner.
type DocStorage struct{ base }

var _ storage.DocStorage = (*DocStorage)(nil)

func NewDocStorage(opts Options) *DocStorage {
	return &DocStorage{base: newBase(opts, space.StorageDoc)}
}

func (s *DocStorage) GetDoc(ctx context.Context, docID string) (*space.DocRecord, error) {
	api, err := s.client()
	if err != nil {
		return nil, err
	}
	return api.GetDoc(ctx, s.Key(), docID)
}

func (s *DocStorage) PushDocUpdate(ctx context.Context, update space.DocUpdate) (space.DocClock, error) {
	api, err := s.client()
	if err != nil {
		return space.DocClock{}, err
	}
	return api.PushDocUpdate(ctx, s.Key(), update)
}

func (s *DocStorage) DeleteDoc(ctx context.Context, docID string) error {
	api, err := s.client()
	if err != nil {
		return err
	}
	return api.DeleteDoc(ctx, s.Key(), docID)
}

func (s *DocStorage) GetDocTimestamps(ctx context.Context, after time.Time) (space.DocClocks, error) {
	api, err := s.client()
	if err != nil {
		return nil, err
	}
	return api.GetDocTimestamps(ctx, s.Key(), after)
}

// BlobStorage forwards blob operations to the backend owner.
type BlobStorage struct{ base }

var _ storage.BlobStorage = (*BlobStorage)(nil)

func NewBlobStorage(opts Options) *BlobStorage {
	return &BlobStorage{base: newBase(opts, space.StorageBlob)}
}

func (s *BlobStorage) Get(ctx context.Context, key string) (*space.BlobRecord, error) {
	api, err := s.client()
	if err != nil {
		return nil, err
	}
	return api.GetBlob(ctx, s.Key(), key)
}

func (s *BlobStorage) Set(ctx context.Context, blob space.BlobRecord) error {
	api, err := s.client()
	if err != nil {
		return err
	}
	return api.SetBlob(ctx, s.Key(), blob)
}

func (s *BlobStorage) Delete(ctx context.Context, key string, permanently bool) error {
	api, err := s.client()
	if err != nil {
		return err
	}
	return api.DeleteBlob(ctx, s.Key(), key, permanently)
}

func (s *BlobStorage) Release(ctx context.Context) error {
	api, err := s.client()
	if err != nil {
		return err
	}
	return api.ReleaseBlobs(ctx, s.Key())
}

func (s *BlobStorage) List(ctx context.Context) ([]space.BlobMeta, error) {
	api, err := s.client()
	if err != nil {
		return nil, err
	}
	return api.ListBlobs(ctx, s.Key())
}

// SyncStorage forwards peer clock operations to the backend owner.
type SyncStorage struct{ base }

var _ storage.SyncStorage = (*SyncStorage)(nil)

func NewSyncStorage(opts Options) *SyncStorage {
	return &SyncStorage{base: newBase(opts, space.StorageSync)}
}

func (s *SyncStorage) GetPeerClocks(ctx context.Context, peer string) (space.DocClocks, error) {
	api, err := s.client()
	if err != nil {
		return nil, err
	}
	return api.GetPeerClocks(ctx, s.Key(), peer)
}

func (s *SyncStorage) SetPeerClock(ctx context.Context, peer string, clock space.DocClock) error {
	api, err := s.client()
	if err != nil {
		return err
	}
	return api.SetPeerClock(ctx, s.Key(), peer, clock)
}

func (s *SyncStorage) GetPeerPushedClocks(ctx context.Context, peer string) (space.DocClocks, error) {
	api, err := s.client()
	if err != nil {
		return nil, err
	}
	return api.GetPeerPushedClocks(ctx, s.Key(), peer)
}

func (s *SyncStorage) SetPeerPushedClock(ctx context.Context, peer string, clock space.DocClock) error {
	api, err := s.client()
	if err != nil {
		return err
	}
	return api.SetPeerPushedClock(ctx, s.Key(), peer, clock)
}

func (s *SyncStorage) ClearClocks(ctx context.Context) error {
	api, err := s.client()
	if err != nil {
		return err
	}
	return api.ClearClocks(ctx, s.Key())
}
