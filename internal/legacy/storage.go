package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/crdt"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// Options configure a legacy DocStorage.
type Options struct {
	storage.Options

	// Path of the v1 database. Empty means no legacy database is reachable.
	Path string

	// Merger replays updates. Defaults to crdt.Automerge.
	Merger crdt.Merger

	// Arena shares the handle with other storages opening the same path.
	Arena *connection.Arena

	Now space.Now
}

// ShareID returns the share id of the v1 database at path.
func ShareID(path string) string {
	return "sqlite-v1:" + path
}

// DocStorage is the read-only v1 doc storage.
type DocStorage struct {
	storage.Base
	path   string
	merger crdt.Merger
	now    space.Now
	conn   *connection.Shared[*sql.DB]
}

var _ storage.DocStorage = (*DocStorage)(nil)

// NewDocStorage creates a doc storage over the v1 database at opts.Path.
func NewDocStorage(opts Options) *DocStorage {
	arena := opts.Arena
	if arena == nil {
		arena = connection.NewArena()
	}
	merger := opts.Merger
	if merger == nil {
		merger = crdt.Automerge{}
	}
	key := opts.Key()
	conn := connection.Share(arena, connection.New(ShareID(opts.Path), connection.Hooks[*sql.DB]{
		Connect: func(ctx context.Context) (*sql.DB, error) {
			if opts.Path == "" {
				return nil, storage.NewContextUnavailable(key, space.StorageDoc)
			}
			return open(opts.Path)
		},
		Disconnect: func(ctx context.Context, db *sql.DB) error {
			return db.Close()
		},
	}))
	return &DocStorage{
		Base:   storage.NewBase(opts.Options, space.StorageDoc, conn),
		path:   opts.Path,
		merger: merger,
		now:    opts.Now.OrDefault(),
		conn:   conn,
	}
}

// open opens an existing v1 database. It never creates one.
func open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *DocStorage) db(ctx context.Context) (*sql.DB, error) {
	if s.path == "" {
		return nil, storage.NewContextUnavailable(s.Key(), space.StorageDoc)
	}
	if err := s.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return s.conn.Inner()
}

// docFilter selects the rows of docID. The root doc has the space id as
// its doc id and is stored with a NULL doc_id.
func (s *DocStorage) docFilter(docID string) (string, []any) {
	if docID == s.SpaceID() {
		return `(doc_id IS NULL OR doc_id = ?)`, []any{docID}
	}
	return `doc_id = ?`, []any{docID}
}

// GetDoc replays every legacy update of docID. Returns nil if there are none.
// The record timestamp is the read time; v1 kept no reliable clocks.
func (s *DocStorage) GetDoc(ctx context.Context, docID string) (*space.DocRecord, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	filter, args := s.docFilter(docID)
	rows, err := db.QueryContext(ctx, `SELECT data FROM updates WHERE `+filter+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query legacy updates %s: %w", docID, err)
	}
	defer rows.Close()

	var updates [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan legacy update: %w", err)
		}
		updates = append(updates, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy updates: %w", err)
	}
	if len(updates) == 0 {
		return nil, nil
	}

	bin, err := s.merger.Merge(updates...)
	if err != nil {
		return nil, storage.NewMergeFailure(s.Key(), docID, err)
	}
	return &space.DocRecord{DocID: docID, Bin: bin, Timestamp: s.now()}, nil
}

// PushDocUpdate accepts the update without persisting it.
// The v1 format is frozen; new writes go to the native backend.
func (s *DocStorage) PushDocUpdate(ctx context.Context, update space.DocUpdate) (space.DocClock, error) {
	return space.DocClock{DocID: update.DocID, Timestamp: s.now()}, nil
}

// DeleteDoc removes the legacy rows of docID.
func (s *DocStorage) DeleteDoc(ctx context.Context, docID string) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	filter, args := s.docFilter(docID)
	if _, err := db.ExecContext(ctx, `DELETE FROM updates WHERE `+filter, args...); err != nil {
		return fmt.Errorf("delete legacy doc %s: %w", docID, err)
	}
	return nil
}

// GetDocTimestamps always returns an empty mapping: v1 has no clocks, so
// nothing in it is ever reported as modified.
func (s *DocStorage) GetDocTimestamps(ctx context.Context, after time.Time) (space.DocClocks, error) {
	return space.DocClocks{}, nil
}

// DocIDs lists the documents present in the database, sorted.
func (s *DocStorage) DocIDs(ctx context.Context) ([]string, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT COALESCE(doc_id, ?) AS id FROM updates ORDER BY id
	`, s.SpaceID())
	if err != nil {
		return nil, fmt.Errorf("query legacy doc ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan legacy doc id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy doc ids: %w", err)
	}
	return ids, nil
}
