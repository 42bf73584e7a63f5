package harness

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
	"github.com/roach88/nbstore/internal/testutil"
)

// operation runs one named storage call. The result is JSON-shaped: nil,
// or a map of plain values with times as Unix milliseconds.
type operation func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error)

var operations = map[string]operation{
	"pushDocUpdate": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		docs, err := st.Doc()
		if err != nil {
			return nil, err
		}
		clock, err := docs.PushDocUpdate(ctx, space.DocUpdate{DocID: args.DocID, Bin: testutil.Entries(args.Entries...)})
		if err != nil {
			return nil, err
		}
		return map[string]any{"docId": clock.DocID, "timestamp": space.ToMillis(clock.Timestamp)}, nil
	},
	"getDoc": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		docs, err := st.Doc()
		if err != nil {
			return nil, err
		}
		rec, err := docs.GetDoc(ctx, args.DocID)
		if err != nil || rec == nil {
			return notFound(err)
		}
		return map[string]any{
			"found":     true,
			"docId":     rec.DocID,
			"entries":   entries(rec.Bin),
			"timestamp": space.ToMillis(rec.Timestamp),
		}, nil
	},
	"deleteDoc": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		docs, err := st.Doc()
		if err != nil {
			return nil, err
		}
		return nil, docs.DeleteDoc(ctx, args.DocID)
	},
	"getDocTimestamps": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		docs, err := st.Doc()
		if err != nil {
			return nil, err
		}
		var after time.Time
		if args.After != nil {
			after = space.FromMillis(*args.After)
		}
		clocks, err := docs.GetDocTimestamps(ctx, after)
		if err != nil {
			return nil, err
		}
		return map[string]any{"clocks": millis(clocks)}, nil
	},

	"setBlob": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		blobs, err := st.Blob()
		if err != nil {
			return nil, err
		}
		return nil, blobs.Set(ctx, space.BlobRecord{Key: args.Key, Data: []byte(args.Data), Mime: args.Mime})
	},
	"getBlob": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		blobs, err := st.Blob()
		if err != nil {
			return nil, err
		}
		rec, err := blobs.Get(ctx, args.Key)
		if err != nil || rec == nil {
			return notFound(err)
		}
		out := blobMeta(rec.Meta())
		out["found"] = true
		out["data"] = string(rec.Data)
		return out, nil
	},
	"deleteBlob": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		blobs, err := st.Blob()
		if err != nil {
			return nil, err
		}
		return nil, blobs.Delete(ctx, args.Key, args.Permanently)
	},
	"listBlobs": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		blobs, err := st.Blob()
		if err != nil {
			return nil, err
		}
		metas, err := blobs.List(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"blobs": lo.Map(metas, func(m space.BlobMeta, _ int) map[string]any {
			return blobMeta(m)
		})}, nil
	},
	"releaseBlobs": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		blobs, err := st.Blob()
		if err != nil {
			return nil, err
		}
		return nil, blobs.Release(ctx)
	},

	"getPeerClocks": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		sync, err := st.Sync()
		if err != nil {
			return nil, err
		}
		clocks, err := sync.GetPeerClocks(ctx, args.Peer)
		if err != nil {
			return nil, err
		}
		return map[string]any{"clocks": millis(clocks)}, nil
	},
	"setPeerClock": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		sync, err := st.Sync()
		if err != nil {
			return nil, err
		}
		return nil, sync.SetPeerClock(ctx, args.Peer, docClock(args))
	},
	"getPeerPushedClocks": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		sync, err := st.Sync()
		if err != nil {
			return nil, err
		}
		clocks, err := sync.GetPeerPushedClocks(ctx, args.Peer)
		if err != nil {
			return nil, err
		}
		return map[string]any{"clocks": millis(clocks)}, nil
	},
	"setPeerPushedClock": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		sync, err := st.Sync()
		if err != nil {
			return nil, err
		}
		return nil, sync.SetPeerPushedClock(ctx, args.Peer, docClock(args))
	},
	"clearClocks": func(ctx context.Context, st *storage.SpaceStorage, args Args) (map[string]any, error) {
		sync, err := st.Sync()
		if err != nil {
			return nil, err
		}
		return nil, sync.ClearClocks(ctx)
	},
}

func operationNames() []string {
	names := lo.Keys(operations)
	sort.Strings(names)
	return names
}

func notFound(err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"found": false}, nil
}

// entries decodes a UnionMerger binary.
func entries(bin []byte) []string {
	out := []string{}
	for _, line := range bytes.Split(bin, []byte("\n")) {
		if len(line) > 0 {
			out = append(out, string(line))
		}
	}
	return out
}

func millis(clocks space.DocClocks) map[string]int64 {
	return lo.MapValues(clocks, func(t time.Time, _ string) int64 {
		return space.ToMillis(t)
	})
}

func blobMeta(m space.BlobMeta) map[string]any {
	return map[string]any{
		"key":       m.Key,
		"mime":      m.Mime,
		"size":      m.Size,
		"createdAt": space.ToMillis(m.CreatedAt),
	}
}

func docClock(args Args) space.DocClock {
	return space.DocClock{DocID: args.DocID, Timestamp: space.FromMillis(args.Timestamp)}
}
