package sqlite

import (
	"context"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// BlobStorage stores blobs in the space database.
type BlobStorage struct {
	base
}

var _ storage.BlobStorage = (*BlobStorage)(nil)

// NewBlobStorage creates the blob storage of a space.
func NewBlobStorage(rt *nativedb.Runtime, arena *connection.Arena, opts storage.Options) *BlobStorage {
	return &BlobStorage{base: newBase(rt, arena, opts, space.StorageBlob)}
}

func (s *BlobStorage) Get(ctx context.Context, key string) (*space.BlobRecord, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetBlob(ctx, key)
}

func (s *BlobStorage) Set(ctx context.Context, blob space.BlobRecord) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return db.SetBlob(ctx, blob)
}

func (s *BlobStorage) Delete(ctx context.Context, key string, permanently bool) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return db.DeleteBlob(ctx, key, permanently)
}

func (s *BlobStorage) Release(ctx context.Context) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	_, err = db.ReleaseBlobs(ctx)
	return err
}

func (s *BlobStorage) List(ctx context.Context) ([]space.BlobMeta, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return db.ListBlobs(ctx)
}

// GetDeleted returns a tombstoned blob that has not been released.
// It is recovery tooling and not part of the blob contract.
func (s *BlobStorage) GetDeleted(ctx context.Context, key string) (*space.BlobRecord, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetDeletedBlob(ctx, key)
}

// Recover clears the tombstone of key. Returns false if nothing was recovered.
func (s *BlobStorage) Recover(ctx context.Context, key string) (bool, error) {
	db, err := s.db(ctx)
	if err != nil {
		return false, err
	}
	return db.RecoverBlob(ctx, key)
}
