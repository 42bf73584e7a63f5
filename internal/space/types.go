package space

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Type identifies the kind of collaborative space.
type Type string

const (
	TypeWorkspace Type = "workspace"
	TypeUserspace Type = "userspace"
)

// ValidTypes lists the allowed space types.
var ValidTypes = []Type{TypeWorkspace, TypeUserspace}

// ParseType converts a string into a Type, rejecting unknown values.
func ParseType(s string) (Type, error) {
	for _, t := range ValidTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid space type %q: must be one of %v", s, ValidTypes)
}

// StorageType identifies one of the data kinds multiplexed per space.
type StorageType string

const (
	StorageDoc  StorageType = "doc"
	StorageBlob StorageType = "blob"
	StorageSync StorageType = "sync"
)

// ValidStorageTypes lists the storage kinds in their canonical order.
var ValidStorageTypes = []StorageType{StorageDoc, StorageBlob, StorageSync}

// ParseStorageType converts a string into a StorageType.
func ParseStorageType(s string) (StorageType, error) {
	for _, t := range ValidStorageTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid storage type %q: must be one of %v", s, ValidStorageTypes)
}

// Key is the partition key for all storage.
type Key struct {
	Type Type   `json:"spaceType"`
	ID   string `json:"spaceId"`
}

// NewKey builds a Key with an NFC-normalised ID.
func NewKey(t Type, id string) Key {
	return Key{Type: t, ID: norm.NFC.String(id)}
}

// String returns "<type>:<id>", the registry cache id.
func (k Key) String() string {
	return string(k.Type) + ":" + k.ID
}

// Validate reports whether the key names a real space.
func (k Key) Validate() error {
	if _, err := ParseType(string(k.Type)); err != nil {
		return err
	}
	if k.ID == "" {
		return fmt.Errorf("space id is required")
	}
	return nil
}

// DocUpdate is one atomic CRDT update for a document.
type DocUpdate struct {
	DocID     string    `json:"docId"`
	Bin       []byte    `json:"bin"`
	Timestamp time.Time `json:"timestamp"`
}

// DocRecord is the materialized state of a document: the merge of all its updates.
type DocRecord struct {
	DocID     string    `json:"docId"`
	Bin       []byte    `json:"bin"`
	Timestamp time.Time `json:"timestamp"`
}

// DocClock is the last known synchronization point for a document.
type DocClock struct {
	DocID     string    `json:"docId"`
	Timestamp time.Time `json:"timestamp"`
}

// DocClocks maps docId to timestamp.
type DocClocks map[string]time.Time

// BlobRecord is a binary attachment.
// DeletedAt is set when the blob is tombstoned and not yet released.
type BlobRecord struct {
	Key       string     `json:"key"`
	Data      []byte     `json:"data"`
	Mime      string     `json:"mime"`
	Size      int64      `json:"size"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// BlobMeta is the listing form of a blob, without its data.
type BlobMeta struct {
	Key       string    `json:"key"`
	Mime      string    `json:"mime"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Meta returns the listing form of the record.
func (b BlobRecord) Meta() BlobMeta {
	return BlobMeta{Key: b.Key, Mime: b.Mime, Size: b.Size, CreatedAt: b.CreatedAt}
}
