package ipc

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
	"github.com/roach88/nbstore/internal/testutil"
)

var ws1 = space.NewKey(space.TypeWorkspace, "ws1")

func newTestHandlers(t *testing.T, rt *nativedb.Runtime) *Handlers {
	t.Helper()
	reg := registry.New(registry.NativeFactory(rt, connection.NewArena()), registry.Options{})
	t.Cleanup(func() { reg.Teardown(context.Background()) })
	return NewHandlers(reg)
}

func testRuntime(t *testing.T) *nativedb.Runtime {
	t.Helper()
	return &nativedb.Runtime{DataDir: t.TempDir(), Options: nativedb.Options{Merger: testutil.UnionMerger{}}}
}

// socketPath returns a short path; unix socket paths are length-limited.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "nbs")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

// startDaemon serves api and returns a connected client.
func startDaemon(t *testing.T, api API) (*Client, string) {
	t.Helper()
	path := socketPath(t)
	d := NewDaemon(api, path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	select {
	case <-d.Ready():
	case err := <-done:
		t.Fatalf("Serve() failed: %v", err)
	}

	client, err := Dial(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Disconnect()
		cancel()
		assert.NoError(t, <-done)
	})
	return client, path
}

// exerciseAPI runs every method through api and checks the results.
func exerciseAPI(t *testing.T, api API) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, api.Connect(ctx, ws1))

	clock, err := api.PushDocUpdate(ctx, ws1, space.DocUpdate{DocID: "d", Bin: testutil.Entries("a")})
	require.NoError(t, err)
	assert.Equal(t, "d", clock.DocID)
	_, err = api.PushDocUpdate(ctx, ws1, space.DocUpdate{DocID: "d", Bin: testutil.Entries("b")})
	require.NoError(t, err)

	rec, err := api.GetDoc(ctx, ws1, "d")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, testutil.Entries("a", "b"), rec.Bin)

	missing, err := api.GetDoc(ctx, ws1, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	stamps, err := api.GetDocTimestamps(ctx, ws1, time.Time{})
	require.NoError(t, err)
	assert.Contains(t, stamps, "d")
	stamps, err = api.GetDocTimestamps(ctx, ws1, rec.Timestamp.Add(time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, stamps)

	require.NoError(t, api.DeleteDoc(ctx, ws1, "d"))
	rec, err = api.GetDoc(ctx, ws1, "d")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, api.SetBlob(ctx, ws1, space.BlobRecord{Key: "k", Data: []byte("data"), Mime: "text/plain"}))
	blob, err := api.GetBlob(ctx, ws1, "k")
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, []byte("data"), blob.Data)
	assert.Equal(t, int64(4), blob.Size)

	metas, err := api.ListBlobs(ctx, ws1)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "k", metas[0].Key)

	require.NoError(t, api.DeleteBlob(ctx, ws1, "k", false))
	blob, err = api.GetBlob(ctx, ws1, "k")
	require.NoError(t, err)
	assert.Nil(t, blob)
	require.NoError(t, api.ReleaseBlobs(ctx, ws1))

	require.NoError(t, api.SetPeerClock(ctx, ws1, "p", space.DocClock{DocID: "d", Timestamp: space.FromMillis(20)}))
	require.NoError(t, api.SetPeerClock(ctx, ws1, "p", space.DocClock{DocID: "d", Timestamp: space.FromMillis(10)}))
	require.NoError(t, api.SetPeerPushedClock(ctx, ws1, "p", space.DocClock{DocID: "d", Timestamp: space.FromMillis(5)}))

	remote, err := api.GetPeerClocks(ctx, ws1, "p")
	require.NoError(t, err)
	assert.Equal(t, space.DocClocks{"d": space.FromMillis(20)}, remote)
	pushed, err := api.GetPeerPushedClocks(ctx, ws1, "p")
	require.NoError(t, err)
	assert.Equal(t, space.DocClocks{"d": space.FromMillis(5)}, pushed)

	require.NoError(t, api.ClearClocks(ctx, ws1))
	remote, err = api.GetPeerClocks(ctx, ws1, "p")
	require.NoError(t, err)
	assert.Empty(t, remote)

	require.NoError(t, api.Close(ctx, ws1))
}

func TestHandlers_AllMethods(t *testing.T) {
	exerciseAPI(t, newTestHandlers(t, testRuntime(t)))
}

func TestClient_AllMethods(t *testing.T) {
	client, _ := startDaemon(t, newTestHandlers(t, testRuntime(t)))
	require.NoError(t, client.Ping(context.Background()))
	exerciseAPI(t, client)
}

func TestClient_MergeFailureCode(t *testing.T) {
	ctx := context.Background()
	client, _ := startDaemon(t, newTestHandlers(t, testRuntime(t)))

	_, err := client.PushDocUpdate(ctx, ws1, space.DocUpdate{DocID: "d", Bin: testutil.Entries("!bad")})
	require.Error(t, err)
	assert.True(t, storage.IsMergeFailure(err))
	assert.NotContains(t, err.Error(), "MERGE_FAILURE: MERGE_FAILURE")
}

func TestClient_ContextUnavailableFromDaemon(t *testing.T) {
	client, _ := startDaemon(t, newTestHandlers(t, nil))

	_, err := client.GetDoc(context.Background(), ws1, "d")
	assert.True(t, storage.IsContextUnavailable(err), "got %v", err)
}

func TestDial_MissingSocket(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "absent.sock"), nil)
	require.Error(t, err)
	assert.True(t, storage.IsContextUnavailable(err))
}

func TestClient_InvalidKey(t *testing.T) {
	client, _ := startDaemon(t, newTestHandlers(t, testRuntime(t)))
	err := client.Connect(context.Background(), space.Key{Type: "bogus", ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid space type")
}

func TestClient_DisconnectIdempotent(t *testing.T) {
	client, _ := startDaemon(t, newTestHandlers(t, testRuntime(t)))
	require.NoError(t, client.Disconnect())
	require.NoError(t, client.Disconnect())
	assert.ErrorIs(t, client.Ping(context.Background()), ErrClientClosed)
}

func TestClient_StatusEvents(t *testing.T) {
	ctx := context.Background()
	client, _ := startDaemon(t, newTestHandlers(t, testRuntime(t)))

	var mu sync.Mutex
	var events []registry.StatusEvent
	unsub, err := client.OnConnectionStatusChanged(func(e registry.StatusEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, client.Connect(ctx, ws1))
	require.NoError(t, client.Close(ctx, ws1))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		var connected, closed bool
		for _, e := range events {
			if e.SpaceID != "ws1" || e.SpaceType != space.TypeWorkspace {
				continue
			}
			connected = connected || e.Status == connection.StatusConnected
			closed = closed || e.Status == connection.StatusClosed
		}
		return connected && closed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemon_RemovesSocketOnShutdown(t *testing.T) {
	path := socketPath(t)
	d := NewDaemon(newTestHandlers(t, testRuntime(t)), path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	<-d.Ready()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cancel()
	require.NoError(t, <-done)
	assert.NoFileExists(t, path)
}

// slowDocs delays GetDoc past the caller's deadline.
type slowDocs struct {
	*Handlers
	delay time.Duration
}

func (s slowDocs) GetDoc(ctx context.Context, key space.Key, docID string) (*space.DocRecord, error) {
	time.Sleep(s.delay)
	return s.Handlers.GetDoc(ctx, key, docID)
}

func TestClient_LateReplyDoesNotLeakIntoNextCall(t *testing.T) {
	client, _ := startDaemon(t, slowDocs{Handlers: newTestHandlers(t, testRuntime(t)), delay: 200 * time.Millisecond})
	require.NoError(t, client.Connect(context.Background(), ws1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.GetDoc(ctx, ws1, "d")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Ping(context.Background()), "ping %d", i)
	}
	// The connection that timed out is gone; a fresh one serves documents.
	_, err = client.PushDocUpdate(context.Background(), ws1, space.DocUpdate{DocID: "d", Bin: testutil.Entries("a")})
	require.NoError(t, err)
}

func TestClient_CancelWithoutDeadlineReturnsPromptly(t *testing.T) {
	client, _ := startDaemon(t, slowDocs{Handlers: newTestHandlers(t, testRuntime(t)), delay: 500 * time.Millisecond})
	require.NoError(t, client.Connect(context.Background(), ws1))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.GetDoc(ctx, ws1, "d")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	require.NoError(t, client.Ping(context.Background()))
}

func TestClient_CancelledContextNotSent(t *testing.T) {
	client, _ := startDaemon(t, newTestHandlers(t, testRuntime(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.Ping(ctx), context.Canceled)
	require.NoError(t, client.Ping(context.Background()))
}
