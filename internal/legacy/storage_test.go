package legacy

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
	"github.com/roach88/nbstore/internal/testutil"
)

const v1Schema = `
CREATE TABLE updates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    data BLOB NOT NULL,
    timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    doc_id TEXT
)`

type row struct {
	docID *string
	data  []byte
}

func ptr(s string) *string { return &s }

// createV1DB writes a v1 database with the given rows and returns its path.
func createV1DB(t *testing.T, rows ...row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v1.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(v1Schema)
	require.NoError(t, err)
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO updates (data, doc_id) VALUES (?, ?)`, r.data, r.docID)
		require.NoError(t, err)
	}
	return path
}

func newTestStorage(t *testing.T, path string) *DocStorage {
	t.Helper()
	s := NewDocStorage(Options{
		Options: storage.Options{Type: space.TypeWorkspace, ID: "ws1"},
		Path:    path,
		Merger:  testutil.UnionMerger{},
		Now:     testutil.NewFrozenClock(testutil.Epoch).Now,
	})
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s
}

func TestGetDoc_ReplaysUpdates(t *testing.T) {
	path := createV1DB(t,
		row{ptr("d1"), testutil.Entries("a")},
		row{ptr("d2"), testutil.Entries("z")},
		row{ptr("d1"), testutil.Entries("b")},
	)
	s := newTestStorage(t, path)

	rec, err := s.GetDoc(context.Background(), "d1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "d1", rec.DocID)
	assert.Equal(t, testutil.Entries("a", "b"), rec.Bin)
	assert.Equal(t, testutil.Epoch, rec.Timestamp)
}

func TestGetDoc_RootDocStoredWithNullID(t *testing.T) {
	path := createV1DB(t,
		row{nil, testutil.Entries("root1")},
		row{ptr("ws1"), testutil.Entries("root2")},
		row{ptr("d1"), testutil.Entries("other")},
	)
	s := newTestStorage(t, path)

	rec, err := s.GetDoc(context.Background(), "ws1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, testutil.Entries("root1", "root2"), rec.Bin)
}

func TestGetDoc_Missing(t *testing.T) {
	s := newTestStorage(t, createV1DB(t))
	rec, err := s.GetDoc(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetDoc_MergeFailure(t *testing.T) {
	s := newTestStorage(t, createV1DB(t, row{ptr("d"), testutil.Entries("!bad")}))
	_, err := s.GetDoc(context.Background(), "d")
	assert.True(t, storage.IsMergeFailure(err))
}

func TestPushDocUpdate_AcceptedButNotPersisted(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, createV1DB(t, row{ptr("d"), testutil.Entries("a")}))

	clock, err := s.PushDocUpdate(ctx, space.DocUpdate{DocID: "d", Bin: testutil.Entries("b")})
	require.NoError(t, err)
	assert.Equal(t, space.DocClock{DocID: "d", Timestamp: testutil.Epoch}, clock)

	rec, err := s.GetDoc(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, testutil.Entries("a"), rec.Bin)
}

func TestGetDocTimestamps_AlwaysEmpty(t *testing.T) {
	s := newTestStorage(t, createV1DB(t, row{ptr("d"), testutil.Entries("a")}))
	got, err := s.GetDocTimestamps(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDeleteDoc(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, createV1DB(t,
		row{nil, testutil.Entries("root")},
		row{ptr("d"), testutil.Entries("a")},
	))

	require.NoError(t, s.DeleteDoc(ctx, "ws1"))
	rec, err := s.GetDoc(ctx, "ws1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	ids, err := s.DocIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids)
}

func TestDocIDs(t *testing.T) {
	s := newTestStorage(t, createV1DB(t,
		row{ptr("b"), testutil.Entries("1")},
		row{nil, testutil.Entries("2")},
		row{ptr("a"), testutil.Entries("3")},
		row{ptr("b"), testutil.Entries("4")},
	))
	ids, err := s.DocIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "ws1"}, ids)
}

func TestEmptyPath_ContextUnavailable(t *testing.T) {
	s := newTestStorage(t, "")
	_, err := s.GetDoc(context.Background(), "d")
	assert.True(t, storage.IsContextUnavailable(err))
	_, err = s.DocIDs(context.Background())
	assert.True(t, storage.IsContextUnavailable(err))
}

func TestMissingFile_NotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	s := newTestStorage(t, path)

	_, err := s.GetDoc(context.Background(), "d")
	require.Error(t, err)
	assert.True(t, connection.IsConnectionError(err))
	assert.NoFileExists(t, path)
}

func TestShareID(t *testing.T) {
	s := newTestStorage(t, "/tmp/x.db")
	assert.Equal(t, "sqlite-v1:/tmp/x.db", s.Connection().ShareID())
}
