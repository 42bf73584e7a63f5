package nativedb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/testutil"
)

func TestRuntime_Path(t *testing.T) {
	rt := &Runtime{DataDir: "/data"}

	tests := []struct {
		name string
		key  space.Key
		want string
	}{
		{"workspace", space.NewKey(space.TypeWorkspace, "ws1"), "/data/workspaces/ws1/storage.db"},
		{"userspace", space.NewKey(space.TypeUserspace, "u1"), "/data/userspaces/u1/storage.db"},
		{"separator escaped", space.NewKey(space.TypeWorkspace, "a/b"), "/data/workspaces/a%2Fb/storage.db"},
		{"dot-dot escaped", space.NewKey(space.TypeWorkspace, ".."), "/data/workspaces/%2E%2E/storage.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rt.Path(tt.key))
		})
	}
}

func TestRuntime_OpenCreatesDirs(t *testing.T) {
	rt := &Runtime{DataDir: t.TempDir(), Options: Options{Merger: testutil.UnionMerger{}}}
	key := space.NewKey(space.TypeWorkspace, "ws1")

	db, err := rt.Open(key)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(rt.DataDir, "workspaces", "ws1", "storage.db"))
	assert.NoError(t, err)

	_, err = db.PushUpdate(context.Background(), "doc", testutil.Entries("a"))
	assert.NoError(t, err)
}

func TestRuntime_OpenRejectsInvalidKey(t *testing.T) {
	rt := &Runtime{DataDir: t.TempDir()}
	_, err := rt.Open(space.Key{Type: "bogus", ID: "x"})
	assert.Error(t, err)
}
