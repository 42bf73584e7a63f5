package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// DocStorage stores documents in the space database.
type DocStorage struct {
	base
}

var _ storage.DocStorage = (*DocStorage)(nil)

// NewDocStorage creates the doc storage of a space.
func NewDocStorage(rt *nativedb.Runtime, arena *connection.Arena, opts storage.Options) *DocStorage {
	return &DocStorage{base: newBase(rt, arena, opts, space.StorageDoc)}
}

func (s *DocStorage) GetDoc(ctx context.Context, docID string) (*space.DocRecord, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetDoc(ctx, docID)
}

func (s *DocStorage) PushDocUpdate(ctx context.Context, update space.DocUpdate) (space.DocClock, error) {
	db, err := s.db(ctx)
	if err != nil {
		return space.DocClock{}, err
	}
	ts, err := db.PushUpdate(ctx, update.DocID, update.Bin)
	if errors.Is(err, nativedb.ErrMerge) {
		return space.DocClock{}, storage.NewMergeFailure(s.Key(), update.DocID, err)
	}
	if err != nil {
		return space.DocClock{}, err
	}
	return space.DocClock{DocID: update.DocID, Timestamp: ts}, nil
}

func (s *DocStorage) DeleteDoc(ctx context.Context, docID string) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return db.DeleteDoc(ctx, docID)
}

func (s *DocStorage) GetDocTimestamps(ctx context.Context, after time.Time) (space.DocClocks, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetDocTimestamps(ctx, after)
}

// ReplayDoc rebuilds the document record from its update log.
func (s *DocStorage) ReplayDoc(ctx context.Context, docID string) (*space.DocRecord, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := db.ReplayDoc(ctx, docID)
	if errors.Is(err, nativedb.ErrMerge) {
		return nil, storage.NewMergeFailure(s.Key(), docID, err)
	}
	return rec, err
}
