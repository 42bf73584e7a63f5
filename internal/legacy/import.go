package legacy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// Import copies every document of from into to as one update each, then
// clears the peer clocks of sync so the space resynchronises from scratch.
// sync may be nil. Returns the number of documents imported.
//
// The legacy rows are left in place; callers delete them once satisfied.
func Import(ctx context.Context, from *DocStorage, to storage.DocStorage, sync storage.SyncStorage) (int, error) {
	ids, err := from.DocIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}

	imported := 0
	for _, id := range ids {
		rec, err := from.GetDoc(ctx, id)
		if err != nil {
			return imported, fmt.Errorf("import %s: %w", id, err)
		}
		if rec == nil {
			continue
		}
		if _, err := to.PushDocUpdate(ctx, space.DocUpdate{DocID: id, Bin: rec.Bin}); err != nil {
			return imported, fmt.Errorf("import %s: %w", id, err)
		}
		imported++
		slog.Debug("imported legacy doc", "space", from.Key().String(), "doc", id, "bytes", len(rec.Bin))
	}

	if sync != nil {
		if err := sync.ClearClocks(ctx); err != nil {
			return imported, fmt.Errorf("import: clear clocks: %w", err)
		}
	}
	return imported, nil
}
