package nativedb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/nbstore/internal/testutil"
)

// createTestDB opens a fresh database in a temp dir using the union merger
// and a clock stepping 1ms per call from testutil.Epoch.
func createTestDB(t *testing.T) (*DB, *testutil.StepClock) {
	t.Helper()
	clock := testutil.NewStepClock(testutil.Epoch, time.Millisecond)
	path := filepath.Join(t.TempDir(), "storage.db")
	db, err := Open(path, Options{Merger: testutil.UnionMerger{}, Now: clock.Now})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, clock
}
