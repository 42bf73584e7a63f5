package nativedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/nbstore/internal/space"
)

// ErrMerge marks failures of the Merger while folding an update.
// The wrapped chain also carries the merger's own error.
var ErrMerge = errors.New("merge failed")

// PushUpdate appends bin to the update log of docID and merges it into the
// document snapshot, all in one transaction. The assigned timestamp is
// max(now, last+1ms) so it is strictly increasing per document.
// A merge failure leaves the database unchanged.
func (d *DB) PushUpdate(ctx context.Context, docID string, bin []byte) (time.Time, error) {
	var assigned int64
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		last, err := lastClock(ctx, tx, docID)
		if err != nil {
			return err
		}
		assigned = space.ToMillis(d.now())
		if assigned <= last {
			assigned = last + 1
		}

		var snapshot []byte
		err = tx.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE doc_id = ?`, docID).Scan(&snapshot)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query snapshot %s: %w", docID, err)
		}

		merged, err := d.merger.Merge(snapshot, bin)
		if err != nil {
			return fmt.Errorf("%w: doc %s: %w", ErrMerge, docID, err)
		}
		if bin == nil {
			bin = []byte{}
		}
		if merged == nil {
			merged = []byte{}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO updates (doc_id, data, created_at) VALUES (?, ?, ?)
		`, docID, bin, assigned); err != nil {
			return fmt.Errorf("insert update %s: %w", docID, err)
		}
		if err := upsertSnapshot(ctx, tx, docID, merged, assigned); err != nil {
			return err
		}
		return upsertClock(ctx, tx, docID, assigned)
	})
	if err != nil {
		return time.Time{}, err
	}
	return space.FromMillis(assigned), nil
}

// GetDoc returns the merged snapshot of docID, or nil if it has none.
func (d *DB) GetDoc(ctx context.Context, docID string) (*space.DocRecord, error) {
	var (
		data      []byte
		updatedAt int64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT data, updated_at FROM snapshots WHERE doc_id = ?
	`, docID).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot %s: %w", docID, err)
	}
	return &space.DocRecord{DocID: docID, Bin: data, Timestamp: space.FromMillis(updatedAt)}, nil
}

// DeleteDoc removes the snapshot, update log and clock of docID.
func (d *DB) DeleteDoc(ctx context.Context, docID string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"snapshots", "updates", "clocks"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE doc_id = ?`, docID); err != nil {
				return fmt.Errorf("delete %s of %s: %w", table, docID, err)
			}
		}
		return nil
	})
}

// GetDocTimestamps returns the clock of every document modified at or after
// after. A zero after returns every document.
func (d *DB) GetDocTimestamps(ctx context.Context, after time.Time) (space.DocClocks, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT doc_id, timestamp FROM clocks WHERE timestamp >= ? ORDER BY doc_id
	`, space.ToMillis(after))
	if err != nil {
		return nil, fmt.Errorf("query clocks: %w", err)
	}
	defer rows.Close()
	return scanClocks(rows)
}

// DocUpdates returns the update log of docID in timestamp order.
// Returns an empty slice (not nil) if the document has no updates.
func (d *DB) DocUpdates(ctx context.Context, docID string) ([]space.DocUpdate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT data, created_at FROM updates WHERE doc_id = ? ORDER BY created_at ASC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("query updates %s: %w", docID, err)
	}
	defer rows.Close()

	updates := []space.DocUpdate{}
	for rows.Next() {
		var (
			data      []byte
			createdAt int64
		)
		if err := rows.Scan(&data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		updates = append(updates, space.DocUpdate{DocID: docID, Bin: data, Timestamp: space.FromMillis(createdAt)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return updates, nil
}

// ReplayDoc rebuilds the snapshot of docID from its full update log.
// Returns nil if the document has no updates.
func (d *DB) ReplayDoc(ctx context.Context, docID string) (*space.DocRecord, error) {
	updates, err := d.DocUpdates(ctx, docID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, nil
	}

	bins := make([][]byte, len(updates))
	for i, u := range updates {
		bins[i] = u.Bin
	}
	merged, err := d.merger.Merge(bins...)
	if err != nil {
		return nil, fmt.Errorf("%w: doc %s: %w", ErrMerge, docID, err)
	}
	if merged == nil {
		merged = []byte{}
	}

	last := space.ToMillis(updates[len(updates)-1].Timestamp)
	err = d.inTx(ctx, func(tx *sql.Tx) error {
		return upsertSnapshot(ctx, tx, docID, merged, last)
	})
	if err != nil {
		return nil, err
	}
	return &space.DocRecord{DocID: docID, Bin: merged, Timestamp: space.FromMillis(last)}, nil
}

func lastClock(ctx context.Context, tx *sql.Tx, docID string) (int64, error) {
	var ts int64
	err := tx.QueryRowContext(ctx, `SELECT timestamp FROM clocks WHERE doc_id = ?`, docID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query clock %s: %w", docID, err)
	}
	return ts, nil
}

func upsertSnapshot(ctx context.Context, tx *sql.Tx, docID string, data []byte, ts int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (doc_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, docID, data, ts)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", docID, err)
	}
	return nil
}

func upsertClock(ctx context.Context, tx *sql.Tx, docID string, ts int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO clocks (doc_id, timestamp) VALUES (?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET timestamp = excluded.timestamp
	`, docID, ts)
	if err != nil {
		return fmt.Errorf("upsert clock %s: %w", docID, err)
	}
	return nil
}

func scanClocks(rows *sql.Rows) (space.DocClocks, error) {
	clocks := space.DocClocks{}
	for rows.Next() {
		var (
			docID string
			ts    int64
		)
		if err := rows.Scan(&docID, &ts); err != nil {
			return nil, fmt.Errorf("scan clock: %w", err)
		}
		clocks[docID] = space.FromMillis(ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clocks: %w", err)
	}
	return clocks, nil
}
