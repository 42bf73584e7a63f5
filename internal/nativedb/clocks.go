package nativedb

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/nbstore/internal/space"
)

// Peer clocks only move forward: a write older than the stored value is
// ignored. A NULL column means the clock was never set, so any instant,
// the epoch included, is a valid clock.

// GetPeerRemoteClocks returns the clocks up to which peer has our updates.
func (d *DB) GetPeerRemoteClocks(ctx context.Context, peer string) (space.DocClocks, error) {
	return d.peerClocks(ctx, peer, "remote_clock")
}

// SetPeerRemoteClock advances the remote clock of peer for docID.
func (d *DB) SetPeerRemoteClock(ctx context.Context, peer, docID string, ts time.Time) error {
	return d.setPeerClock(ctx, peer, docID, "remote_clock", ts)
}

// GetPeerPushedClocks returns the clocks up to which we have peer's updates.
func (d *DB) GetPeerPushedClocks(ctx context.Context, peer string) (space.DocClocks, error) {
	return d.peerClocks(ctx, peer, "pushed_clock")
}

// SetPeerPushedClock advances the pushed clock of peer for docID.
func (d *DB) SetPeerPushedClock(ctx context.Context, peer, docID string, ts time.Time) error {
	return d.setPeerClock(ctx, peer, docID, "pushed_clock", ts)
}

// ClearClocks deletes every peer clock.
func (d *DB) ClearClocks(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM peer_clocks`); err != nil {
		return fmt.Errorf("clear peer clocks: %w", err)
	}
	return nil
}

func (d *DB) peerClocks(ctx context.Context, peer, column string) (space.DocClocks, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT doc_id, `+column+` FROM peer_clocks WHERE peer = ? AND `+column+` IS NOT NULL ORDER BY doc_id
	`, peer)
	if err != nil {
		return nil, fmt.Errorf("query %s of %s: %w", column, peer, err)
	}
	defer rows.Close()
	return scanClocks(rows)
}

func (d *DB) setPeerClock(ctx context.Context, peer, docID, column string, ts time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO peer_clocks (peer, doc_id, `+column+`) VALUES (?, ?, ?)
		ON CONFLICT(peer, doc_id) DO UPDATE SET `+column+` = CASE
			WHEN `+column+` IS NULL OR excluded.`+column+` > `+column+` THEN excluded.`+column+`
			ELSE `+column+`
		END
	`, peer, docID, space.ToMillis(ts))
	if err != nil {
		return fmt.Errorf("set %s of %s/%s: %w", column, peer, docID, err)
	}
	return nil
}
