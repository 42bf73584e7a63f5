package legacy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/sqlite"
	"github.com/roach88/nbstore/internal/storage"
	"github.com/roach88/nbstore/internal/testutil"
)

func TestImport_CopiesDocsAndClearsClocks(t *testing.T) {
	ctx := context.Background()
	from := newTestStorage(t, createV1DB(t,
		row{nil, testutil.Entries("root")},
		row{ptr("d1"), testutil.Entries("a")},
		row{ptr("d1"), testutil.Entries("b")},
	))

	clock := testutil.NewStepClock(testutil.Epoch, time.Millisecond)
	rt := &nativedb.Runtime{
		DataDir: t.TempDir(),
		Options: nativedb.Options{Merger: testutil.UnionMerger{}, Now: clock.Now},
	}
	arena := connection.NewArena()
	opts := storage.Options{Type: space.TypeWorkspace, ID: "ws1"}
	doc := sqlite.NewDocStorage(rt, arena, opts)
	sync := sqlite.NewSyncStorage(rt, arena, opts)
	t.Cleanup(func() {
		doc.Disconnect(ctx)
		sync.Disconnect(ctx)
	})

	require.NoError(t, sync.SetPeerClock(ctx, "peer", space.DocClock{DocID: "d1", Timestamp: space.FromMillis(99)}))

	n, err := Import(ctx, from, doc, sync)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := doc.GetDoc(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, testutil.Entries("a", "b"), rec.Bin)

	root, err := doc.GetDoc(ctx, "ws1")
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, testutil.Entries("root"), root.Bin)

	clocks, err := sync.GetPeerClocks(ctx, "peer")
	require.NoError(t, err)
	assert.Empty(t, clocks)
}

func TestImport_NilSync(t *testing.T) {
	ctx := context.Background()
	from := newTestStorage(t, createV1DB(t, row{ptr("d"), testutil.Entries("a")}))

	rt := &nativedb.Runtime{DataDir: t.TempDir(), Options: nativedb.Options{Merger: testutil.UnionMerger{}}}
	doc := sqlite.NewDocStorage(rt, nil, storage.Options{Type: space.TypeWorkspace, ID: "ws1"})
	t.Cleanup(func() { doc.Disconnect(ctx) })

	n, err := Import(ctx, from, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImport_TargetUnavailable(t *testing.T) {
	ctx := context.Background()
	from := newTestStorage(t, createV1DB(t, row{ptr("d"), testutil.Entries("a")}))
	doc := sqlite.NewDocStorage(nil, nil, storage.Options{Type: space.TypeWorkspace, ID: "ws1"})

	n, err := Import(ctx, from, doc, nil)
	assert.Zero(t, n)
	assert.True(t, storage.IsContextUnavailable(err))
}
