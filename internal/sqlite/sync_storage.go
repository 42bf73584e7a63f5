package sqlite

import (
	"context"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// SyncStorage stores peer clocks in the space database.
type SyncStorage struct {
	base
}

var _ storage.SyncStorage = (*SyncStorage)(nil)

// NewSyncStorage creates the sync storage of a space.
func NewSyncStorage(rt *nativedb.Runtime, arena *connection.Arena, opts storage.Options) *SyncStorage {
	return &SyncStorage{base: newBase(rt, arena, opts, space.StorageSync)}
}

func (s *SyncStorage) GetPeerClocks(ctx context.Context, peer string) (space.DocClocks, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetPeerRemoteClocks(ctx, peer)
}

func (s *SyncStorage) SetPeerClock(ctx context.Context, peer string, clock space.DocClock) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return db.SetPeerRemoteClock(ctx, peer, clock.DocID, clock.Timestamp)
}

func (s *SyncStorage) GetPeerPushedClocks(ctx context.Context, peer string) (space.DocClocks, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetPeerPushedClocks(ctx, peer)
}

func (s *SyncStorage) SetPeerPushedClock(ctx context.Context, peer string, clock space.DocClock) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return db.SetPeerPushedClock(ctx, peer, clock.DocID, clock.Timestamp)
}

func (s *SyncStorage) ClearClocks(ctx context.Context) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return db.ClearClocks(ctx)
}
