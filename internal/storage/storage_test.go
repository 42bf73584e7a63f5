package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/space"
)

var testKey = space.NewKey(space.TypeWorkspace, "ws1")

// fakeDoc is a DocStorage whose connection can be made to fail.
type fakeDoc struct {
	Base
}

func (f *fakeDoc) GetDoc(context.Context, string) (*space.DocRecord, error) { return nil, nil }
func (f *fakeDoc) PushDocUpdate(_ context.Context, u space.DocUpdate) (space.DocClock, error) {
	return space.DocClock{DocID: u.DocID}, nil
}
func (f *fakeDoc) DeleteDoc(context.Context, string) error { return nil }
func (f *fakeDoc) GetDocTimestamps(context.Context, time.Time) (space.DocClocks, error) {
	return space.DocClocks{}, nil
}

type fakeBlob struct {
	Base
}

func (f *fakeBlob) Get(context.Context, string) (*space.BlobRecord, error) { return nil, nil }
func (f *fakeBlob) Set(context.Context, space.BlobRecord) error          { return nil }
func (f *fakeBlob) Delete(context.Context, string, bool) error           { return nil }
func (f *fakeBlob) Release(context.Context) error                        { return nil }
func (f *fakeBlob) List(context.Context) ([]space.BlobMeta, error)       { return nil, nil }

type fakeSync struct {
	Base
}

func (f *fakeSync) GetPeerClocks(context.Context, string) (space.DocClocks, error) { return nil, nil }
func (f *fakeSync) SetPeerClock(context.Context, string, space.DocClock) error    { return nil }
func (f *fakeSync) GetPeerPushedClocks(context.Context, string) (space.DocClocks, error) {
	return nil, nil
}
func (f *fakeSync) SetPeerPushedClock(context.Context, string, space.DocClock) error { return nil }
func (f *fakeSync) ClearClocks(context.Context) error                              { return nil }

func opts() Options { return Options{Type: testKey.Type, ID: testKey.ID} }

func failingConn(id string) *connection.Connection[int] {
	return connection.New(id, connection.Hooks[int]{
		Connect: func(context.Context) (int, error) { return 0, errors.New("blob dir missing") },
	})
}

func newFakeSpace(t *testing.T, blobConn connection.Handle) *SpaceStorage {
	t.Helper()
	if blobConn == nil {
		blobConn = connection.Dummy("blob")
	}
	ss, err := NewSpaceStorage(testKey, Storages{
		Doc:  &fakeDoc{Base: NewBase(opts(), space.StorageDoc, connection.Dummy("doc"))},
		Blob: &fakeBlob{Base: NewBase(opts(), space.StorageBlob, blobConn)},
		Sync: &fakeSync{Base: NewBase(opts(), space.StorageSync, connection.Dummy("sync"))},
	})
	require.NoError(t, err)
	return ss
}

func TestBase_IdentifiesSpace(t *testing.T) {
	b := NewBase(opts(), space.StorageDoc, connection.Dummy("doc"))
	assert.Equal(t, space.TypeWorkspace, b.SpaceType())
	assert.Equal(t, "ws1", b.SpaceID())
	assert.Equal(t, space.StorageDoc, b.StorageType())
	assert.Equal(t, testKey, b.Key())
	assert.Equal(t, "doc", b.Connection().ShareID())
}

func TestSpaceStorage_GetByKind(t *testing.T) {
	ss := newFakeSpace(t, nil)

	for _, kind := range space.ValidStorageTypes {
		st, err := ss.Get(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, st.StorageType())
	}

	_, err := ss.Get("index")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestSpaceStorage_MissingKindIsConfigurationError(t *testing.T) {
	ss, err := NewSpaceStorage(testKey, Storages{
		Doc: &fakeDoc{Base: NewBase(opts(), space.StorageDoc, connection.Dummy("doc"))},
	})
	require.NoError(t, err)

	_, err = ss.Blob()
	assert.True(t, IsConfigurationError(err))
	_, err = ss.Sync()
	assert.True(t, IsConfigurationError(err))
	_, err = ss.Get(space.StorageBlob)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "workspace:ws1")
}

func TestNewSpaceStorage_RejectsForeignStorage(t *testing.T) {
	other := Options{Type: space.TypeUserspace, ID: "u1"}
	_, err := NewSpaceStorage(testKey, Storages{
		Doc: &fakeDoc{Base: NewBase(other, space.StorageDoc, connection.Dummy("doc"))},
	})
	assert.Error(t, err)

	_, err = NewSpaceStorage(testKey, Storages{})
	assert.Error(t, err)
}

func TestSpaceStorage_PartialConnect(t *testing.T) {
	ss := newFakeSpace(t, failingConn("blob"))

	var mu sync.Mutex
	var events []ConnectionEvent
	defer ss.OnConnection(func(e ConnectionEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})()

	err := ss.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob")
	assert.Contains(t, err.Error(), "blob dir missing")

	doc, _ := ss.Get(space.StorageDoc)
	status, _ := doc.Connection().Status()
	assert.Equal(t, connection.StatusConnected, status)
	syncSt, _ := ss.Get(space.StorageSync)
	status, _ = syncSt.Connection().Status()
	assert.Equal(t, connection.StatusConnected, status)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e.Storage == space.StorageBlob && e.Status == connection.StatusError {
				return e.Err != nil
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSpaceStorage_DestroyIsFinal(t *testing.T) {
	ss := newFakeSpace(t, nil)
	ctx := context.Background()
	require.NoError(t, ss.Connect(ctx))

	require.NoError(t, ss.Destroy(ctx))
	require.NoError(t, ss.Destroy(ctx))

	doc, _ := ss.Get(space.StorageDoc)
	status, _ := doc.Connection().Status()
	assert.Equal(t, connection.StatusClosed, status)
	assert.ErrorIs(t, ss.Connect(ctx), ErrDestroyed)
}

func TestErrorHelpers(t *testing.T) {
	mf := NewMergeFailure(testKey, "d1", errors.New("bad header"))
	wrapped := errors.Join(errors.New("push"), mf)

	assert.True(t, IsMergeFailure(wrapped))
	assert.False(t, IsContextUnavailable(wrapped))
	assert.Equal(t, ErrCodeMergeFailure, CodeOf(wrapped))
	assert.Contains(t, mf.Error(), "doc=d1")
	assert.Contains(t, mf.Error(), "bad header")

	assert.True(t, IsContextUnavailable(NewContextUnavailable(testKey, space.StorageBlob)))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
