// Package storage defines the storage contracts of a space and the
// SpaceStorage aggregator that owns one storage of each kind.
//
// Three kinds exist, each behind its own interface:
//   - DocStorage: CRDT update logs merged into document records
//   - BlobStorage: binary attachments with tombstoned deletes
//   - SyncStorage: per-peer synchronization clocks
//
// Every storage embeds Base, which identifies the space and delegates
// Connect/Disconnect to a connection.Handle. Concrete storages never open
// their physical resource except through that handle.
//
// Missing documents and blobs are not errors: GetDoc and Get return nil, nil.
package storage
