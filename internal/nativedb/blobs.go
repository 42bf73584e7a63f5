package nativedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nbstore/internal/space"
)

// SetBlob upserts a blob and clears any tombstone on its key.
// Size is taken from the data; a zero CreatedAt is stamped with now.
func (d *DB) SetBlob(ctx context.Context, blob space.BlobRecord) error {
	createdAt := blob.CreatedAt
	if createdAt.IsZero() {
		createdAt = d.now()
	}
	data := blob.Data
	if data == nil {
		data = []byte{}
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO blobs (key, data, mime, size, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			mime = excluded.mime,
			size = excluded.size,
			created_at = excluded.created_at,
			deleted_at = NULL
	`, blob.Key, data, blob.Mime, int64(len(data)), space.ToMillis(createdAt))
	if err != nil {
		return fmt.Errorf("upsert blob %s: %w", blob.Key, err)
	}
	return nil
}

// GetBlob returns a live blob, or nil if it is missing or tombstoned.
func (d *DB) GetBlob(ctx context.Context, key string) (*space.BlobRecord, error) {
	return d.getBlob(ctx, key, `deleted_at IS NULL`)
}

// GetDeletedBlob returns a tombstoned blob that has not been released yet.
func (d *DB) GetDeletedBlob(ctx context.Context, key string) (*space.BlobRecord, error) {
	return d.getBlob(ctx, key, `deleted_at IS NOT NULL`)
}

// RecoverBlob clears the tombstone of key.
// Returns false if there was no tombstoned blob to recover.
func (d *DB) RecoverBlob(ctx context.Context, key string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE blobs SET deleted_at = NULL WHERE key = ? AND deleted_at IS NOT NULL
	`, key)
	if err != nil {
		return false, fmt.Errorf("recover blob %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recover blob %s: %w", key, err)
	}
	return n > 0, nil
}

// DeleteBlob tombstones key, or removes the row when permanently is set.
// Deleting a missing key is a no-op.
func (d *DB) DeleteBlob(ctx context.Context, key string, permanently bool) error {
	var err error
	if permanently {
		_, err = d.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key)
	} else {
		_, err = d.db.ExecContext(ctx, `
			UPDATE blobs SET deleted_at = ? WHERE key = ? AND deleted_at IS NULL
		`, space.ToMillis(d.now()), key)
	}
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// ReleaseBlobs purges every tombstoned blob and returns how many were removed.
func (d *DB) ReleaseBlobs(ctx context.Context) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM blobs WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("release blobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release blobs: %w", err)
	}
	return n, nil
}

// ListBlobs returns the metadata of every live blob ordered by key.
// Returns an empty slice (not nil) if there are none.
func (d *DB) ListBlobs(ctx context.Context) ([]space.BlobMeta, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT key, mime, size, created_at FROM blobs WHERE deleted_at IS NULL ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("query blobs: %w", err)
	}
	defer rows.Close()

	metas := []space.BlobMeta{}
	for rows.Next() {
		var (
			m         space.BlobMeta
			createdAt int64
		)
		if err := rows.Scan(&m.Key, &m.Mime, &m.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		m.CreatedAt = space.FromMillis(createdAt)
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blobs: %w", err)
	}
	return metas, nil
}

func (d *DB) getBlob(ctx context.Context, key, filter string) (*space.BlobRecord, error) {
	var (
		b         space.BlobRecord
		createdAt int64
		deletedAt sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT key, data, mime, size, created_at, deleted_at FROM blobs WHERE key = ? AND `+filter,
		key,
	).Scan(&b.Key, &b.Data, &b.Mime, &b.Size, &createdAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query blob %s: %w", key, err)
	}
	b.CreatedAt = space.FromMillis(createdAt)
	if deletedAt.Valid {
		t := space.FromMillis(deletedAt.Int64)
		b.DeletedAt = &t
	}
	return &b, nil
}
