package nativedb

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/nbstore/internal/space"
)

// Runtime locates and opens per-space databases under DataDir.
// A nil *Runtime means the native backend is unavailable in this process.
type Runtime struct {
	DataDir string
	Options Options
}

// Path returns <DataDir>/<type>s/<id>/storage.db.
// The id is path-escaped so it always names a single directory.
func (r *Runtime) Path(key space.Key) string {
	return filepath.Join(r.DataDir, string(key.Type)+"s", escapeID(key.ID), "storage.db")
}

func escapeID(id string) string {
	switch id {
	case ".", "..":
		return strings.ReplaceAll(id, ".", "%2E")
	}
	return url.PathEscape(id)
}

// Open opens the database of key, creating its directory if needed.
func (r *Runtime) Open(key space.Key) (*DB, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	path := r.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create space dir: %w", err)
	}
	return Open(path, r.Options)
}
