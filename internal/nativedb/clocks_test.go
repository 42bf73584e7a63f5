package nativedb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbstore/internal/space"
)

func TestPeerClocks_Monotonic(t *testing.T) {
	ctx := context.Background()
	db, _ := createTestDB(t)

	require.NoError(t, db.SetPeerRemoteClock(ctx, "p", "d", space.FromMillis(2000)))
	require.NoError(t, db.SetPeerRemoteClock(ctx, "p", "d", space.FromMillis(1000)))

	got, err := db.GetPeerRemoteClocks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, space.DocClocks{"d": space.FromMillis(2000)}, got)

	require.NoError(t, db.SetPeerRemoteClock(ctx, "p", "d", space.FromMillis(3000)))
	got, err = db.GetPeerRemoteClocks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, space.FromMillis(3000), got["d"])
}

func TestPeerClocks_RemoteAndPushedIndependent(t *testing.T) {
	ctx := context.Background()
	db, _ := createTestDB(t)

	require.NoError(t, db.SetPeerRemoteClock(ctx, "p", "d1", space.FromMillis(10)))
	require.NoError(t, db.SetPeerPushedClock(ctx, "p", "d2", space.FromMillis(20)))

	remote, err := db.GetPeerRemoteClocks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, space.DocClocks{"d1": space.FromMillis(10)}, remote)

	pushed, err := db.GetPeerPushedClocks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, space.DocClocks{"d2": space.FromMillis(20)}, pushed)

	other, err := db.GetPeerPushedClocks(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, other)
	assert.Empty(t, other)
}

func TestClearClocks(t *testing.T) {
	ctx := context.Background()
	db, _ := createTestDB(t)

	require.NoError(t, db.SetPeerRemoteClock(ctx, "p1", "d", space.FromMillis(10)))
	require.NoError(t, db.SetPeerPushedClock(ctx, "p2", "d", space.FromMillis(10)))
	require.NoError(t, db.ClearClocks(ctx))

	for _, peer := range []string{"p1", "p2"} {
		remote, err := db.GetPeerRemoteClocks(ctx, peer)
		require.NoError(t, err)
		assert.Empty(t, remote)
		pushed, err := db.GetPeerPushedClocks(ctx, peer)
		require.NoError(t, err)
		assert.Empty(t, pushed)
	}
}

func TestPeerClocks_EpochAndEarlierAreReported(t *testing.T) {
	ctx := context.Background()
	db, _ := createTestDB(t)

	require.NoError(t, db.SetPeerRemoteClock(ctx, "p", "epoch", space.FromMillis(0)))
	require.NoError(t, db.SetPeerRemoteClock(ctx, "p", "before", space.FromMillis(-5000)))
	require.NoError(t, db.SetPeerPushedClock(ctx, "p", "before", space.FromMillis(-5000)))

	remote, err := db.GetPeerRemoteClocks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, space.DocClocks{
		"epoch":  space.FromMillis(0),
		"before": space.FromMillis(-5000),
	}, remote)

	pushed, err := db.GetPeerPushedClocks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, space.DocClocks{"before": space.FromMillis(-5000)}, pushed, "epoch doc has no pushed clock")

	// Still monotonic across the epoch.
	require.NoError(t, db.SetPeerRemoteClock(ctx, "p", "before", space.FromMillis(-9000)))
	require.NoError(t, db.SetPeerRemoteClock(ctx, "p", "epoch", space.FromMillis(-1)))
	remote, err = db.GetPeerRemoteClocks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, space.FromMillis(-5000), remote["before"])
	assert.Equal(t, space.FromMillis(0), remote["epoch"])
}
